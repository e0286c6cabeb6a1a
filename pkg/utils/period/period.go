// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package period parses and formats cleanup delays.
//
// Delays are accepted either as ISO-8601 durations limited to fixed-length
// units (weeks, days, hours, minutes and seconds), e.g. P3D or P1DT12H, or as
// Go duration strings, e.g. 72h.
package period

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned when a delay cannot be parsed.
var ErrInvalidPeriod = errors.New("invalid period")

// Day is the length of a day used by ISO-8601 periods.
const Day = 24 * time.Hour

var isoPattern = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// Parse parses the given delay.
func Parse(s string) (time.Duration, error) {
	value := strings.ToUpper(strings.TrimSpace(s))
	if value == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidPeriod)
	}

	if !strings.HasPrefix(value, "P") {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidPeriod, s)
		}
		if d < 0 {
			return 0, fmt.Errorf("%w: negative value %s", ErrInvalidPeriod, s)
		}

		return d, nil
	}

	match := isoPattern.FindStringSubmatch(value)
	if match == nil || value == "P" || strings.HasSuffix(value, "T") {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPeriod, s)
	}

	units := []time.Duration{7 * Day, Day, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		group := match[i+1]
		if group == "" {
			continue
		}
		n, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidPeriod, s)
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("%w: %s out of range", ErrInvalidPeriod, s)
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("%w: %s out of range", ErrInvalidPeriod, s)
		}
		total += part
	}

	return total, nil
}

// MustParse parses the given delay, or panics in case of errors.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return d
}

// Format returns the ISO-8601 representation of the given duration, using
// days as the largest unit.
func Format(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}

	var sb strings.Builder
	sb.WriteString("P")
	if days := d / Day; days > 0 {
		fmt.Fprintf(&sb, "%dD", days)
		d -= days * Day
	}
	if d == 0 {
		return sb.String()
	}

	sb.WriteString("T")
	if hours := d / time.Hour; hours > 0 {
		fmt.Fprintf(&sb, "%dH", hours)
		d -= hours * time.Hour
	}
	if minutes := d / time.Minute; minutes > 0 {
		fmt.Fprintf(&sb, "%dM", minutes)
		d -= minutes * time.Minute
	}
	if seconds := d / time.Second; seconds > 0 {
		fmt.Fprintf(&sb, "%dS", seconds)
	}

	return sb.String()
}
