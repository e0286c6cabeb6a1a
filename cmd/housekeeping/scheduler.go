// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/core/config"
	"github.com/gardener/housekeeping/pkg/housekeeping/tasks"
)

// periodicJobs returns the periodic housekeeping jobs from the cleanup
// schedules followed by the additional jobs of the scheduler.
func periodicJobs(conf *config.Config) []*config.PeriodicJob {
	jobs := make([]*config.PeriodicJob, 0)
	schedules := []struct {
		name string
		spec string
		desc string
	}{
		{tasks.CleanupTaskType, conf.Cleanup.Schedules.Cleanup, "cleanup tick"},
		{tasks.DisableTaskType, conf.Cleanup.Schedules.Disable, "disable sweep"},
		{tasks.PurgeAuditTaskType, conf.Cleanup.Schedules.PurgeAudit, "audit retention"},
	}

	for _, item := range schedules {
		if item.spec == "" {
			continue
		}
		jobs = append(jobs, &config.PeriodicJob{
			Name: item.name,
			Spec: item.spec,
			Desc: item.desc,
		})
	}

	return append(jobs, conf.Scheduler.Jobs...)
}

// NewSchedulerCommand returns a new command for interfacing with the scheduler.
func NewSchedulerCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "scheduler",
		Usage:   "scheduler operations",
		Aliases: []string{"s"},
		Before: func(ctx *cli.Context) error {
			return validateRedisConfig(getConfig(ctx))
		},
		Subcommands: []*cli.Command{
			{
				Name:    "start",
				Usage:   "start the scheduler",
				Aliases: []string{"s"},
				Action: func(ctx *cli.Context) error {
					conf := getConfig(ctx)
					scheduler := newScheduler(conf)

					defaultQueue := conf.Scheduler.DefaultQueue
					if defaultQueue == "" {
						defaultQueue = config.DefaultQueueName
					}

					for _, job := range periodicJobs(conf) {
						queue := defaultQueue
						if job.Queue != "" {
							queue = job.Queue
						}

						task := asynq.NewTask(job.Name, []byte(job.Payload))
						id, err := scheduler.Register(job.Spec, task, tasks.TickOptions(job.Name, queue)...)
						if err != nil {
							return fmt.Errorf("cannot register %s: %w", job.Name, err)
						}

						slog.Info(
							"periodic task registered",
							"id", id,
							"name", task.Type(),
							"spec", job.Spec,
							"desc", job.Desc,
							"queue", queue,
						)
					}

					return scheduler.Run()
				},
			},
			{
				Name:    "jobs",
				Usage:   "list periodic jobs",
				Aliases: []string{"j"},
				Action: withInspector(func(_ *cli.Context, inspector *asynq.Inspector) error {
					items, err := inspector.SchedulerEntries()
					if err != nil {
						return err
					}

					if len(items) == 0 {
						return nil
					}

					headers := []string{
						"ID",
						"SPEC",
						"TYPE",
						"PREV",
						"NEXT",
						"OPTS",
					}

					table := newTableWriter(os.Stdout, headers)
					for _, item := range items {
						opts := make([]string, 0, len(item.Opts))
						for _, opt := range item.Opts {
							opts = append(opts, opt.String())
						}

						row := []string{
							item.ID,
							item.Spec,
							item.Task.Type(),
							formatTime(item.Prev),
							fmt.Sprintf("In %s", time.Until(item.Next).Round(time.Second)),
							strings.Join(opts, ", "),
						}
						if err := table.Append(row); err != nil {
							return err
						}
					}

					return table.Render()
				}),
			},
		},
	}

	return cmd
}
