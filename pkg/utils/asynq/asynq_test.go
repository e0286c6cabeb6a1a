// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package asynq

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
)

func TestUnmarshal(t *testing.T) {
	type payload struct {
		Retention string `json:"retention" yaml:"retention"`
	}

	testCases := []struct {
		desc string
		data string
		want string
	}{
		{desc: "json", data: `{"retention": "P7D"}`, want: "P7D"},
		{desc: "yaml", data: "retention: P14D\n", want: "P14D"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var got payload
			if err := Unmarshal([]byte(tc.data), &got); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got.Retention != tc.want {
				t.Fatalf("want %s got %s", tc.want, got.Retention)
			}
		})
	}
}

func TestSkipRetry(t *testing.T) {
	base := errors.New("bad payload")
	err := SkipRetry(base)
	if !errors.Is(err, base) || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("want error to wrap both causes, got %v", err)
	}
	if OutcomeOf(err) != OutcomeSkipped {
		t.Fatalf("want skipped outcome got %s", OutcomeOf(err))
	}
}

func TestOutcomeOf(t *testing.T) {
	if got := OutcomeOf(nil); got != OutcomeSucceeded {
		t.Fatalf("want succeeded got %s", got)
	}
	if got := OutcomeOf(errors.New("boom")); got != OutcomeFailed {
		t.Fatalf("want failed got %s", got)
	}
}

func TestGetQueueNameDefault(t *testing.T) {
	if got := GetQueueName(context.Background()); got != "default" {
		t.Fatalf("want default queue got %s", got)
	}
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := asynq.HandlerFunc(func(ctx context.Context, _ *asynq.Task) error {
		GetLogger(ctx).Info("inside handler")

		return nil
	})

	mw := NewLoggerMiddleware(logger)(handler)
	if err := mw.ProcessTask(context.Background(), asynq.NewTask("hk:task:cleanup", nil)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if !strings.Contains(buf.String(), "task_name=hk:task:cleanup") {
		t.Fatalf("want task name attribute in %q", buf.String())
	}
}
