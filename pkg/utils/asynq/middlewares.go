// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package asynq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gardener/housekeeping/pkg/metrics"
)

// Outcome describes how a task handler has finished.
type Outcome string

const (
	// OutcomeSucceeded is the outcome of handlers, which returned no error.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeSkipped is the outcome of handlers, which returned an error
	// wrapping [asynq.SkipRetry].
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed is the outcome of handlers, which will be retried.
	OutcomeFailed Outcome = "failed"
)

// OutcomeOf returns the [Outcome] for the error returned by a handler.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

// NewLoggerMiddleware returns a new [asynq.MiddlewareFunc], which embeds a
// [slog.Logger] annotated with the task details in the handler context.
func NewLoggerMiddleware(logger *slog.Logger) asynq.MiddlewareFunc {
	middleware := func(handler asynq.Handler) asynq.Handler {
		mw := func(ctx context.Context, task *asynq.Task) error {
			attrs := []any{slog.String("task_name", task.Type())}
			if taskID, ok := asynq.GetTaskID(ctx); ok {
				attrs = append(attrs, slog.String("task_id", taskID))
			}
			if queueName, ok := asynq.GetQueueName(ctx); ok {
				attrs = append(attrs, slog.String("task_queue", queueName))
			}
			if retry, ok := asynq.GetRetryCount(ctx); ok && retry > 0 {
				attrs = append(attrs, slog.Int("task_retry", retry))
			}

			return handler.ProcessTask(WithLogger(ctx, logger.With(attrs...)), task)
		}

		return asynq.HandlerFunc(mw)
	}

	return asynq.MiddlewareFunc(middleware)
}

// NewMeasuringMiddleware returns a new [asynq.MiddlewareFunc], which logs the
// duration and outcome of tasks.
func NewMeasuringMiddleware() asynq.MiddlewareFunc {
	middleware := func(handler asynq.Handler) asynq.Handler {
		mw := func(ctx context.Context, task *asynq.Task) error {
			logger := GetLogger(ctx)
			logger.Info("received task")
			start := time.Now()
			err := handler.ProcessTask(ctx, task)

			level := slog.LevelInfo
			attrs := []any{"duration", time.Since(start), "outcome", OutcomeOf(err)}
			if err != nil {
				level = slog.LevelError
				attrs = append(attrs, "reason", err)
			}
			logger.Log(ctx, level, "task finished", attrs...)

			return err
		}

		return asynq.HandlerFunc(mw)
	}

	return asynq.MiddlewareFunc(middleware)
}

// NewMetricsMiddleware returns a new [asynq.MiddlewareFunc], which counts the
// task outcomes and observes the duration of succeeded tasks.
func NewMetricsMiddleware() asynq.MiddlewareFunc {
	middleware := func(handler asynq.Handler) asynq.Handler {
		mw := func(ctx context.Context, task *asynq.Task) error {
			labels := []string{task.Type(), GetQueueName(ctx)}
			start := time.Now()
			err := handler.ProcessTask(ctx, task)

			switch OutcomeOf(err) {
			case OutcomeSucceeded:
				metrics.TaskSuccessfulTotal.WithLabelValues(labels...).Inc()
				metrics.TaskDurationSeconds.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			case OutcomeSkipped:
				metrics.TaskSkippedTotal.WithLabelValues(labels...).Inc()
			case OutcomeFailed:
				metrics.TaskFailedTotal.WithLabelValues(labels...).Inc()
			}

			return err
		}

		return asynq.HandlerFunc(mw)
	}

	return asynq.MiddlewareFunc(middleware)
}
