// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	"github.com/gardener/housekeeping/pkg/housekeeping/tasks"
	"github.com/gardener/housekeeping/pkg/utils"
	"github.com/gardener/housekeeping/pkg/utils/period"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// withRuntime wraps the given action with the setup of the housekeeping
// components.
func withRuntime(action func(ctx *cli.Context, rt *tasks.Runtime) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		conf := getConfig(ctx)
		if err := validateObjectStoreConfig(conf); err != nil {
			return err
		}

		db := newDB(conf)
		defer db.Close() // nolint: errcheck

		rt, err := newRuntime(conf, db, runtimeOptions{dryRun: ctx.Bool("dry-run")})
		if err != nil {
			return err
		}

		return action(ctx, rt)
	}
}

// NewRecordCommand returns a new command for interfacing with the
// housekeeping records.
func NewRecordCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "record",
		Usage:   "housekeeping record operations",
		Aliases: []string{"r"},
		Before: func(ctx *cli.Context) error {
			return validateDBConfig(getConfig(ctx))
		},
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "list housekeeping records",
				Aliases: []string{"ls"},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "lifecycle",
						Usage: "lifecycle type, either UNREFERENCED or EXPIRED",
						Value: string(models.LifecycleExpired),
					},
					&cli.StringSliceFlag{
						Name:  "status",
						Usage: "only list records in the given status",
					},
					&cli.StringFlag{
						Name:  "database",
						Usage: "only list records of the given database",
					},
					&cli.StringFlag{
						Name:  "table",
						Usage: "only list records of the given table",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "fetch up to this number of records",
						Value: 100,
					},
				},
				Action: listRecords,
			},
			{
				Name:  "stats",
				Usage: "display the number of records per lifecycle and status",
				Action: func(ctx *cli.Context) error {
					db := newDB(getConfig(ctx))
					defer db.Close() // nolint: errcheck

					counts, err := store.New(db).CountByStatus(ctx.Context)
					if err != nil {
						return err
					}

					groups := utils.GroupBy(counts, func(item store.StatusCount) models.LifecycleType {
						return item.LifecycleType
					})

					table := newTableWriter(os.Stdout, []string{"LIFECYCLE", "STATUS", "COUNT"})
					for _, lifecycle := range utils.SortedKeys(groups) {
						total := 0
						for _, item := range groups[lifecycle] {
							total += item.Count
							_ = table.Append([]string{string(lifecycle), string(item.Status), strconv.Itoa(item.Count)})
						}
						_ = table.Append([]string{string(lifecycle), "TOTAL", strconv.Itoa(total)})
					}

					return table.Render()
				},
			},
			{
				Name:  "cleanup",
				Usage: "run a cleanup tick in-process",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "plan deletions without performing them",
					},
					&cli.TimestampFlag{
						Name:   "reference-time",
						Usage:  "time at which records are considered due",
						Layout: time.RFC3339,
					},
				},
				Action: withRuntime(func(ctx *cli.Context, rt *tasks.Runtime) error {
					referenceTime := time.Now()
					if ts := ctx.Timestamp("reference-time"); ts != nil {
						referenceTime = *ts
					}

					report, err := rt.Engine.CleanUp(ctx.Context, referenceTime)

					fmt.Printf("run %s (dry run: %t)\n", report.RunID, report.DryRun)
					headers := []string{"LIFECYCLE", "FETCHES", "PROCESSED", "DELETED", "FAILED", "SKIPPED", "BYTES"}
					table := newTableWriter(os.Stdout, headers)
					for _, stats := range report.Handlers {
						_ = table.Append([]string{
							string(stats.LifecycleType),
							strconv.Itoa(stats.Fetches),
							strconv.Itoa(stats.Processed),
							strconv.Itoa(stats.Deleted),
							strconv.Itoa(stats.Failed),
							strconv.Itoa(stats.Skipped),
							strconv.FormatInt(stats.Bytes, 10),
						})
					}
					if renderErr := table.Render(); renderErr != nil {
						return renderErr
					}

					return err
				}),
			},
			{
				Name:  "disable",
				Usage: "disable housekeeping of tables no longer marked as managed",
				Action: withRuntime(func(ctx *cli.Context, rt *tasks.Runtime) error {
					count, err := rt.Engine.Disable(ctx.Context)
					if err != nil {
						return err
					}
					fmt.Printf("disabled %d table(s)\n", count)

					return nil
				}),
			},
			{
				Name:  "purge-audit",
				Usage: "delete audit entries older than the retention",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "retention",
						Usage: "retention of audit entries, e.g. P30D",
					},
				},
				Action: withRuntime(func(ctx *cli.Context, rt *tasks.Runtime) error {
					retention := rt.AuditRetention
					if value := ctx.String("retention"); value != "" {
						d, err := period.Parse(value)
						if err != nil {
							return err
						}
						retention = d
					}

					count, err := rt.Purger.Purge(ctx.Context, retention)
					if err != nil {
						return err
					}
					fmt.Printf("purged %d audit entries\n", count)

					return nil
				}),
			},
		},
	}

	return cmd
}

// filterRecords applies the common record filters from the flags.
func filterRecords(ctx *cli.Context) func(q *bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if statuses := ctx.StringSlice("status"); len(statuses) > 0 {
			for i := range statuses {
				statuses[i] = strings.ToUpper(statuses[i])
			}
			q = q.Where("status IN (?)", bun.In(statuses))
		}

		if database := ctx.String("database"); database != "" {
			q = q.Where("database_name = ?", database)
		}

		if table := ctx.String("table"); table != "" {
			q = q.Where("table_name = ?", table)
		}

		return q.Order("cleanup_timestamp ASC", "id ASC").Limit(ctx.Int("limit"))
	}
}

// listRecords lists the housekeeping records of the selected lifecycle.
func listRecords(ctx *cli.Context) error {
	db := newDB(getConfig(ctx))
	defer db.Close() // nolint: errcheck

	lifecycle := models.LifecycleType(strings.ToUpper(ctx.String("lifecycle")))
	records := make([]models.Record, 0)
	switch lifecycle {
	case models.LifecycleUnreferenced:
		items := make([]*models.PathRecord, 0)
		if err := db.NewSelect().Model(&items).Apply(filterRecords(ctx)).Scan(ctx.Context); err != nil {
			return err
		}
		for _, item := range items {
			records = append(records, item)
		}
	case models.LifecycleExpired:
		items := make([]*models.MetadataRecord, 0)
		if err := db.NewSelect().Model(&items).Apply(filterRecords(ctx)).Scan(ctx.Context); err != nil {
			return err
		}
		for _, item := range items {
			records = append(records, item)
		}
	default:
		return fmt.Errorf("unknown lifecycle type %q", lifecycle)
	}

	if len(records) == 0 {
		return nil
	}

	headers := []string{
		"ID",
		"DATABASE",
		"TABLE",
		"PARTITION",
		"PATH",
		"STATUS",
		"DELAY",
		"CLEANUP-AT",
		"ATTEMPTS",
	}
	table := newTableWriter(os.Stdout, headers)
	for _, rec := range records {
		h := rec.Entity()
		partition := na
		if m, ok := rec.(*models.MetadataRecord); ok {
			partition = ptr.Value(m.PartitionName, na)
		}

		row := []string{
			strconv.FormatInt(h.ID, 10),
			h.DatabaseName,
			h.TableName,
			partition,
			h.Path,
			string(h.Status),
			period.Format(h.CleanupDelay),
			h.CleanupTimestamp.Format(time.RFC3339),
			strconv.Itoa(h.CleanupAttempts),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}
