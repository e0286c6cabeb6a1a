// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/core/config"
)

// queueFlag is the flag for specifying the queue to operate on.
var queueFlag = &cli.StringFlag{
	Name:    "queue",
	Usage:   "queue name",
	Value:   config.DefaultQueueName,
	Aliases: []string{"name", "q"},
}

// withInspector wraps the given action with the setup of an
// [asynq.Inspector].
func withInspector(action func(ctx *cli.Context, inspector *asynq.Inspector) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		inspector := newInspector(getConfig(ctx))
		defer inspector.Close() // nolint: errcheck

		return action(ctx, inspector)
	}
}

// NewQueueCommand returns a new command for interfacing with the queues.
func NewQueueCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "queue",
		Usage:   "queue operations",
		Aliases: []string{"q"},
		Before: func(ctx *cli.Context) error {
			return validateRedisConfig(getConfig(ctx))
		},
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "list queues",
				Aliases: []string{"ls"},
				Action: withInspector(func(_ *cli.Context, inspector *asynq.Inspector) error {
					queues, err := inspector.Queues()
					if err != nil {
						return err
					}

					if len(queues) == 0 {
						return nil
					}

					table := newTableWriter(os.Stdout, []string{"NAME"})
					for _, item := range queues {
						_ = table.Append([]string{item})
					}

					return table.Render()
				}),
			},
			{
				Name:    "info",
				Usage:   "get queue info",
				Aliases: []string{"i"},
				Flags:   []cli.Flag{queueFlag},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					q, err := inspector.GetQueueInfo(ctx.String("queue"))
					if err != nil {
						return err
					}

					fmt.Printf("%-20s: %s\n", "Name", q.Queue)
					fmt.Printf("%-20s: %s\n", "Latency", q.Latency.String())
					fmt.Printf("%-20s: %d\n", "Size", q.Size)
					fmt.Printf("%-20s: %d\n", "Pending", q.Pending)
					fmt.Printf("%-20s: %d\n", "Active", q.Active)
					fmt.Printf("%-20s: %d\n", "Scheduled", q.Scheduled)
					fmt.Printf("%-20s: %d\n", "Retry", q.Retry)
					fmt.Printf("%-20s: %d\n", "Archived", q.Archived)
					fmt.Printf("%-20s: %d\n", "Completed", q.Completed)
					fmt.Printf("%-20s: %d\n", "Processed (daily)", q.Processed)
					fmt.Printf("%-20s: %d\n", "Failed (daily)", q.Failed)
					fmt.Printf("%-20s: %v\n", "Paused", q.Paused)

					return nil
				}),
			},
			{
				Name:    "pause",
				Usage:   "pause a queue",
				Aliases: []string{"p"},
				Flags:   []cli.Flag{queueFlag},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					return inspector.PauseQueue(ctx.String("queue"))
				}),
			},
			{
				Name:    "resume",
				Usage:   "resume a queue",
				Aliases: []string{"r"},
				Flags:   []cli.Flag{queueFlag},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					return inspector.UnpauseQueue(ctx.String("queue"))
				}),
			},
			{
				Name:    "drain",
				Usage:   "drain queue messages",
				Aliases: []string{"d"},
				Flags: []cli.Flag{
					queueFlag,
					&cli.StringFlag{
						Name:  "type",
						Usage: "message type to drain",
						Value: "scheduled",
					},
				},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					typeToFunc := map[string]func(queue string) (int, error){
						"scheduled": inspector.DeleteAllScheduledTasks,
						"pending":   inspector.DeleteAllPendingTasks,
						"archived":  inspector.DeleteAllArchivedTasks,
						"completed": inspector.DeleteAllCompletedTasks,
						"retry":     inspector.DeleteAllRetryTasks,
					}

					messageType := ctx.String("type")
					deleteFunc, ok := typeToFunc[messageType]
					if !ok {
						types := slices.Sorted(maps.Keys(typeToFunc))

						return fmt.Errorf("message type should be one of %s", strings.Join(types, ", "))
					}

					count, err := deleteFunc(ctx.String("queue"))
					if err != nil {
						return err
					}
					fmt.Printf("drained %d %s task(s)\n", count, messageType)

					return nil
				}),
			},
		},
	}

	return cmd
}
