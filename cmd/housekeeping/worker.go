// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/core/registry"
	"github.com/gardener/housekeeping/pkg/housekeeping/tasks"
	"github.com/gardener/housekeeping/pkg/metrics"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
	"github.com/gardener/housekeeping/pkg/utils/asynq/worker"
)

// NewWorkerCommand returns a new command for interfacing with the workers.
func NewWorkerCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "worker",
		Usage:   "worker operations",
		Aliases: []string{"w"},
		Before: func(ctx *cli.Context) error {
			return validateConfig(getConfig(ctx), validateRedisConfig, validateDBConfig, validateObjectStoreConfig)
		},
		Subcommands: []*cli.Command{
			{
				Name:    "start",
				Usage:   "start the workers",
				Aliases: []string{"s"},
				Action: func(ctx *cli.Context) error {
					conf := getConfig(ctx)
					db := newDB(conf)
					defer db.Close() // nolint: errcheck

					rt, err := newRuntime(conf, db, runtimeOptions{})
					if err != nil {
						return err
					}

					if err := tasks.RegisterHandlers(registry.TaskRegistry, rt); err != nil {
						return err
					}

					logger := slog.Default()
					w := worker.NewFromConfig(
						newRedisClientOpt(conf),
						conf.Worker,
						worker.WithBaseContext(func() context.Context {
							return asynqutils.WithLogger(ctx.Context, logger)
						}),
						worker.WithErrorHandler(asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
							asynqutils.GetLogger(ctx).Error("task failed", "name", task.Type(), "reason", err)
						})),
						worker.WithHealthCheck(func(err error) {
							if err != nil {
								logger.Warn("redis health check failed", "reason", err)
							}
						}),
					)
					w.UseMiddlewares(
						asynqutils.NewLoggerMiddleware(logger),
						asynqutils.NewMeasuringMiddleware(),
						asynqutils.NewMetricsMiddleware(),
					)
					w.HandlersFromRegistry(registry.TaskRegistry)

					if addr := conf.Worker.Metrics.Address; addr != "" {
						path := conf.Worker.Metrics.Path
						if path == "" {
							path = "/metrics"
						}

						server := metrics.NewServer(addr, path)
						go func() {
							slog.Info("starting metrics server", "address", addr, "path", path)
							if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
								slog.Error("metrics server failed", "reason", err)
							}
						}()
						defer server.Shutdown(context.Background()) // nolint: errcheck
					}

					return w.Run()
				},
			},
		},
	}

	return cmd
}
