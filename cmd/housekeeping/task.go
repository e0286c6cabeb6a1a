// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/housekeeping/tasks"
)

// errPayloadConflict is returned when both an inline payload and a payload
// file are given.
var errPayloadConflict = errors.New("cannot use --payload and --payload-file at the same time")

// taskListFlags are the flags of the sub-commands listing tasks.
var taskListFlags = []cli.Flag{
	queueFlag,
	&cli.IntFlag{
		Name:    "page",
		Aliases: []string{"p"},
		Usage:   "page number to retrieve",
		Value:   1,
	},
	&cli.IntFlag{
		Name:    "size",
		Aliases: []string{"s"},
		Usage:   "page size to use",
		Value:   50,
	},
}

// newTaskStateCommand returns a sub-command listing the tasks in the given
// state.
func newTaskStateCommand(name string, state asynq.TaskState) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: fmt.Sprintf("list %s tasks", state.String()),
		Flags: taskListFlags,
		Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
			return printTasksInState(ctx, inspector, state)
		}),
	}
}

// NewTaskCommand returns a [cli.Command] for interfacing with task-related
// operations.
func NewTaskCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "task",
		Usage:   "task operations",
		Aliases: []string{"t"},
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "list housekeeping tasks",
				Aliases: []string{"ls"},
				Action: func(_ *cli.Context) error {
					for _, name := range tasks.TaskTypes() {
						fmt.Println(name)
					}

					return nil
				},
			},
			{
				Name:    "cancel",
				Usage:   "cancel a running task",
				Aliases: []string{"c"},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "task id",
						Required: true,
					},
				},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					return inspector.CancelProcessing(ctx.String("id"))
				}),
			},
			{
				Name:    "delete",
				Usage:   "delete a task",
				Aliases: []string{"d"},
				Flags: []cli.Flag{
					queueFlag,
					&cli.StringFlag{
						Name:     "id",
						Usage:    "task id",
						Required: true,
					},
				},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					return inspector.DeleteTask(ctx.String("queue"), ctx.String("id"))
				}),
			},
			newTaskStateCommand("active", asynq.TaskStateActive),
			newTaskStateCommand("pending", asynq.TaskStatePending),
			newTaskStateCommand("archived", asynq.TaskStateArchived),
			newTaskStateCommand("completed", asynq.TaskStateCompleted),
			newTaskStateCommand("retried", asynq.TaskStateRetry),
			newTaskStateCommand("scheduled", asynq.TaskStateScheduled),
			{
				Name:    "enqueue",
				Usage:   "submit a task",
				Aliases: []string{"submit"},
				Flags: []cli.Flag{
					queueFlag,
					&cli.StringFlag{
						Name:     "task",
						Aliases:  []string{"t"},
						Usage:    "name of task to enqueue",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "payload",
						Usage: "task payload",
					},
					&cli.PathFlag{
						Name:  "payload-file",
						Usage: "path to a payload file",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "set timeout for task",
						Value: 30 * time.Minute,
					},
				},
				Action: func(ctx *cli.Context) error {
					payload, err := readPayload(ctx)
					if err != nil {
						return err
					}

					conf := getConfig(ctx)
					client := newAsynqClient(conf)
					defer client.Close() // nolint: errcheck

					taskName := ctx.String("task")
					task := asynq.NewTask(taskName, payload)
					info, err := client.EnqueueContext(
						ctx.Context,
						task,
						asynq.Queue(ctx.String("queue")),
						asynq.Timeout(ctx.Duration("timeout")),
					)
					if err != nil {
						return fmt.Errorf("cannot enqueue %q task: %w", taskName, err)
					}

					fmt.Printf("%s/%s\n", info.Queue, info.ID)

					return nil
				},
			},
			{
				Name:    "inspect",
				Usage:   "inspect a task",
				Aliases: []string{"i"},
				Flags: []cli.Flag{
					queueFlag,
					&cli.StringFlag{
						Name:     "id",
						Usage:    "task id",
						Required: true,
					},
				},
				Action: withInspector(func(ctx *cli.Context, inspector *asynq.Inspector) error {
					info, err := inspector.GetTaskInfo(ctx.String("queue"), ctx.String("id"))
					if err != nil {
						return err
					}

					fmt.Printf("%-20s: %s\n", "ID", info.ID)
					fmt.Printf("%-20s: %s\n", "Queue", info.Queue)
					fmt.Printf("%-20s: %s\n", "Type/Name", info.Type)
					fmt.Printf("%-20s: %v\n", "State", info.State)
					fmt.Printf("%-20s: %d/%d\n", "Retry", info.Retried, info.MaxRetry)
					fmt.Printf("%-20s: %s\n", "Timeout", info.Timeout.String())
					fmt.Printf("%-20s: %s\n", "Last Failed At", formatTime(info.LastFailedAt))
					fmt.Printf("%-20s: %s\n", "Next Process At", formatTime(info.NextProcessAt))
					fmt.Printf("%-20s: %s\n", "Completed At", formatTime(info.CompletedAt))
					fmt.Printf("\nLast Error\n----------\n%s\n", info.LastErr)
					fmt.Printf("\nPayload\n-------\n%s\n", formatBytes(info.Payload))
					fmt.Printf("\nResult\n------\n%s\n", formatBytes(info.Result))

					return nil
				}),
			},
		},
	}

	return cmd
}

// readPayload reads the task payload from the flags.
func readPayload(ctx *cli.Context) ([]byte, error) {
	payloadData := ctx.String("payload")
	payloadFile := ctx.Path("payload-file")

	switch {
	case payloadData != "" && payloadFile != "":
		return nil, errPayloadConflict
	case payloadData != "":
		return []byte(payloadData), nil
	case payloadFile != "":
		data, err := os.ReadFile(filepath.Clean(payloadFile))
		if err != nil {
			return nil, fmt.Errorf("cannot read payload file: %w", err)
		}

		return data, nil
	}

	return nil, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return na
	}

	return t.String()
}

func formatBytes(data []byte) string {
	if data == nil {
		return "<nil>"
	}

	return string(data)
}

// printTasksInState prints the tasks in the given state
func printTasksInState(ctx *cli.Context, inspector *asynq.Inspector, state asynq.TaskState) error {
	stateToFunc := map[asynq.TaskState]func(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		asynq.TaskStateActive:    inspector.ListActiveTasks,
		asynq.TaskStatePending:   inspector.ListPendingTasks,
		asynq.TaskStateArchived:  inspector.ListArchivedTasks,
		asynq.TaskStateCompleted: inspector.ListCompletedTasks,
		asynq.TaskStateRetry:     inspector.ListRetryTasks,
		asynq.TaskStateScheduled: inspector.ListScheduledTasks,
	}

	getFunc, ok := stateToFunc[state]
	if !ok {
		return fmt.Errorf("unknown task state: %v", state)
	}

	items, err := getFunc(ctx.String("queue"), asynq.Page(ctx.Int("page")), asynq.PageSize(ctx.Int("size")))
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	headers := []string{
		"ID",
		"TYPE",
		"RETRIED",
		"IS ORPHANED",
	}
	table := newTableWriter(os.Stdout, headers)
	for _, item := range items {
		row := []string{
			item.ID,
			item.Type,
			fmt.Sprintf("%d/%d", item.Retried, item.MaxRetry),
			strconv.FormatBool(item.IsOrphaned),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}
