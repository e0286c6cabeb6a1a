// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/core/config"
	slogutils "github.com/gardener/housekeeping/pkg/utils/slog"
	"github.com/gardener/housekeeping/pkg/version"
)

func main() {
	app := &cli.App{
		Name:                 "housekeeping",
		Version:              version.Version,
		EnableBashCompletion: true,
		Usage:                "command-line tool for managing housekeeping of expired and unreferenced data",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enables debug mode, if set",
				Value: false,
			},
			&cli.StringFlag{
				Name:     "config",
				Usage:    "path to config file",
				Required: true,
				Aliases:  []string{"file"},
				EnvVars:  []string{"HOUSEKEEPING_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "redis-endpoint",
				Usage:   "redis endpoint to connect to",
				EnvVars: []string{"REDIS_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "database-uri",
				Usage:   "database uri to connect to",
				EnvVars: []string{"DATABASE_URI"},
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "plan deletions without performing them",
				EnvVars: []string{"HOUSEKEEPING_DRY_RUN"},
			},
		},
		Before: func(ctx *cli.Context) error {
			configFile := ctx.String("config")
			conf, err := config.Parse(configFile)
			if err != nil {
				return fmt.Errorf("cannot parse config: %w", err)
			}

			// Overrides from flags/options
			if ctx.IsSet("debug") {
				conf.Debug = ctx.Bool("debug")
			}

			if ctx.IsSet("redis-endpoint") {
				conf.Redis.Endpoint = ctx.String("redis-endpoint")
			}

			if ctx.IsSet("database-uri") {
				conf.Database.DSN = ctx.String("database-uri")
			}

			if ctx.IsSet("dry-run") {
				conf.Cleanup.DryRun = ctx.Bool("dry-run")
			}

			if conf.Debug && conf.Logging.Level == "" {
				conf.Logging.Level = string(slogutils.LevelDebug)
			}

			logger, err := slogutils.NewFromConfig(os.Stderr, conf.Logging)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx.Context = context.WithValue(ctx.Context, configKey{}, conf)

			return nil
		},
		Commands: []*cli.Command{
			NewDatabaseCommand(),
			NewWorkerCommand(),
			NewSchedulerCommand(),
			NewTaskCommand(),
			NewQueueCommand(),
			NewModelCommand(),
			NewScheduleCommand(),
			NewRecordCommand(),
			NewDashboardCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
