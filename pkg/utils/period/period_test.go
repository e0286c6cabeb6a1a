// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package period_test

import (
	"errors"
	"testing"
	"time"

	"github.com/gardener/housekeeping/pkg/utils/period"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		desc    string
		input   string
		wanted  time.Duration
		wantErr bool
	}{
		{desc: "days", input: "P3D", wanted: 72 * time.Hour},
		{desc: "weeks and days", input: "P1W2D", wanted: 9 * period.Day},
		{desc: "time part", input: "PT12H30M", wanted: 12*time.Hour + 30*time.Minute},
		{desc: "days and time", input: "P1DT6H", wanted: 30 * time.Hour},
		{desc: "lower case", input: "p7d", wanted: 7 * period.Day},
		{desc: "go duration", input: "90m", wanted: 90 * time.Minute},
		{desc: "empty", input: "", wantErr: true},
		{desc: "bare designator", input: "P", wantErr: true},
		{desc: "dangling time designator", input: "P1DT", wantErr: true},
		{desc: "months are ambiguous", input: "P1M", wantErr: true},
		{desc: "garbage", input: "three days", wantErr: true},
		{desc: "negative go duration", input: "-1h", wantErr: true},
		{desc: "days overflow", input: "P213504D", wantErr: true},
		{desc: "weeks overflow", input: "P30501W", wantErr: true},
		{desc: "hours overflow", input: "PT5124095576030432H", wantErr: true},
		{desc: "sum overflow", input: "P106751DT24H", wantErr: true},
		{desc: "largest days", input: "P106751D", wanted: 106751 * period.Day},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := period.Parse(tc.input)
			if tc.wantErr {
				if !errors.Is(err, period.ErrInvalidPeriod) {
					t.Fatalf("want ErrInvalidPeriod got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got != tc.wanted {
				t.Fatalf("want %s got %s", tc.wanted, got)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		input  time.Duration
		wanted string
	}{
		{0, "PT0S"},
		{3 * period.Day, "P3D"},
		{30 * time.Hour, "P1DT6H"},
		{90 * time.Minute, "PT1H30M"},
		{45 * time.Second, "PT45S"},
	}

	for _, tc := range testCases {
		if got := period.Format(tc.input); got != tc.wanted {
			t.Fatalf("Format(%s) == %q, expected %q", tc.input, got, tc.wanted)
		}
	}
}
