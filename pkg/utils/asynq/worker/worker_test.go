// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/gardener/housekeeping/pkg/core/config"
	"github.com/gardener/housekeeping/pkg/core/registry"
)

func TestHandlersFromRegistry(t *testing.T) {
	reg := registry.New[string, asynq.Handler]()
	called := make(map[string]int)
	for _, name := range []string{"hk:task:cleanup", "hk:task:disable"} {
		reg.MustRegister(name, asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
			called[name]++

			return nil
		}))
	}

	w := NewFromConfig(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, config.WorkerConfig{})
	w.HandlersFromRegistry(reg)

	if err := w.mux.ProcessTask(context.Background(), asynq.NewTask("hk:task:disable", nil)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if called["hk:task:disable"] != 1 || called["hk:task:cleanup"] != 0 {
		t.Fatalf("unexpected dispatch: %v", called)
	}

	if err := w.mux.ProcessTask(context.Background(), asynq.NewTask("hk:task:unknown", nil)); err == nil {
		t.Fatal("want error for unknown task type")
	}
}

func TestUseMiddlewares(t *testing.T) {
	sentinel := errors.New("blocked")
	w := NewFromConfig(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, config.WorkerConfig{Concurrency: 2})
	w.Handle("hk:task:cleanup", asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	w.UseMiddlewares(func(asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return sentinel })
	})

	err := w.mux.ProcessTask(context.Background(), asynq.NewTask("hk:task:cleanup", nil))
	if !errors.Is(err, sentinel) {
		t.Fatalf("want middleware error got %v", err)
	}
}
