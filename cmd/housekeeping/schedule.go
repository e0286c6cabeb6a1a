// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/core/config"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/tasks"
	"github.com/gardener/housekeeping/pkg/utils/period"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// scheduleFlags are the flags shared by the schedule sub-commands.
var scheduleFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "database",
		Usage:    "database name",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "table",
		Usage:    "table name",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "path",
		Usage:    "location of the data, e.g. s3://bucket/db/table",
		Required: true,
	},
	&cli.StringFlag{
		Name:  "delay",
		Usage: "cleanup delay, e.g. P3D or 72h",
	},
	&cli.StringFlag{
		Name:  "client-id",
		Usage: "client id of the intent",
	},
	&cli.TimestampFlag{
		Name:   "created-at",
		Usage:  "creation time of the data",
		Layout: time.RFC3339,
	},
	&cli.BoolFlag{
		Name:  "enqueue",
		Usage: "enqueue the intent for a worker instead of scheduling it directly",
	},
}

// NewScheduleCommand returns a new command for scheduling data for
// housekeeping.
func NewScheduleCommand() *cli.Command {
	cmd := &cli.Command{
		Name:  "schedule",
		Usage: "schedule data for housekeeping",
		Subcommands: []*cli.Command{
			{
				Name:  "path",
				Usage: "schedule an unreferenced path",
				Flags: scheduleFlags,
				Action: func(ctx *cli.Context) error {
					return scheduleIntent(ctx, models.LifecycleUnreferenced, nil)
				},
			},
			{
				Name:  "table",
				Usage: "schedule an expired table along with its partitions",
				Flags: scheduleFlags,
				Action: func(ctx *cli.Context) error {
					return scheduleIntent(ctx, models.LifecycleExpired, nil)
				},
			},
			{
				Name:  "partition",
				Usage: "schedule an expired partition",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "partition",
						Usage:    "partition name",
						Required: true,
					},
				}, scheduleFlags...),
				Action: func(ctx *cli.Context) error {
					return scheduleIntent(ctx, models.LifecycleExpired, ptr.To(ctx.String("partition")))
				},
			},
		},
	}

	return cmd
}

// resolveDelay returns the cleanup delay of an intent. An explicit delay
// takes precedence over the retention period of the table in the catalog,
// which takes precedence over the configured default.
func resolveDelay(ctx context.Context, conf *config.Config, explicit, database, table string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	factory := newCatalogFactory(conf)
	if factory != nil {
		var retention string
		err := catalog.With(ctx, factory, func(client catalog.Client) error {
			props, err := client.GetTableProperties(ctx, database, table)
			if err != nil {
				return err
			}
			retention = props[catalog.PropertyRetentionPeriod]

			return nil
		})

		switch {
		case errors.Is(err, catalog.ErrTableNotFound):
		case err != nil:
			return "", err
		case retention != "":
			return retention, nil
		}
	}

	delay, err := conf.Cleanup.GetDefaultDelay()
	if err != nil {
		return "", err
	}

	return period.Format(delay), nil
}

// scheduleIntent schedules the intent described by the flags.
func scheduleIntent(ctx *cli.Context, lifecycle models.LifecycleType, partition *string) error {
	conf := getConfig(ctx)
	database := ctx.String("database")
	table := ctx.String("table")

	delay, err := resolveDelay(ctx.Context, conf, ctx.String("delay"), database, table)
	if err != nil {
		return fmt.Errorf("cannot resolve cleanup delay: %w", err)
	}

	clientID := ctx.String("client-id")
	if clientID == "" {
		clientID = conf.Cleanup.GetClientID()
	}

	payload := tasks.SchedulePayload{
		LifecycleType: lifecycle,
		Path:          ctx.String("path"),
		DatabaseName:  database,
		TableName:     table,
		PartitionName: partition,
		CleanupDelay:  delay,
		ClientID:      clientID,
		CreatedAt:     ctx.Timestamp("created-at"),
	}

	if ctx.Bool("enqueue") {
		if err := validateRedisConfig(conf); err != nil {
			return err
		}

		task, err := tasks.NewScheduleTask(payload)
		if err != nil {
			return err
		}

		client := newAsynqClient(conf)
		defer client.Close() // nolint: errcheck

		info, err := client.EnqueueContext(ctx.Context, task)
		if err != nil {
			return fmt.Errorf("cannot enqueue intent: %w", err)
		}
		fmt.Printf("%s/%s\n", info.Queue, info.ID)

		return nil
	}

	candidate, err := payload.Candidate(time.Now())
	if err != nil {
		return err
	}

	if err := validateConfig(conf, validateDBConfig, validateObjectStoreConfig); err != nil {
		return err
	}

	db := newDB(conf)
	defer db.Close() // nolint: errcheck

	rt, err := newRuntime(conf, db, runtimeOptions{})
	if err != nil {
		return err
	}

	if err := rt.Scheduler.Schedule(ctx.Context, candidate); err != nil {
		return err
	}

	entity := candidate.Entity()
	slog.Info(
		"scheduled for housekeeping",
		"database", entity.DatabaseName,
		"table", entity.TableName,
		"path", entity.Path,
		"cleanup_delay", delay,
	)

	return nil
}
