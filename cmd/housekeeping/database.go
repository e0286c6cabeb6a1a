// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

// errNoMigrationName is returned when creating a migration without a name.
var errNoMigrationName = errors.New("must specify migration description")

// migratorAction is an action, which operates on a [migrate.Migrator].
type migratorAction func(ctx *cli.Context, migrator *migrate.Migrator) error

// withMigrator wraps the given action with the setup of the database and
// the migrator.
func withMigrator(action migratorAction) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		conf := getConfig(ctx)
		db := newDB(conf)
		defer db.Close() // nolint: errcheck

		migrator, err := newMigrator(conf, db)
		if err != nil {
			return err
		}

		return action(ctx, migrator)
	}
}

// withMigrationLock runs the given function while holding the migration
// lock.
func withMigrationLock(ctx context.Context, migrator *migrate.Migrator, fn func() error) error {
	if err := migrator.Lock(ctx); err != nil {
		return err
	}

	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			slog.Error("failed to unlock migrations", "reason", err)
		}
	}()

	return fn()
}

// NewDatabaseCommand returns a new command for interfacing with the database.
func NewDatabaseCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "database",
		Usage:   "database operations",
		Aliases: []string{"db"},
		Before: func(ctx *cli.Context) error {
			return validateDBConfig(getConfig(ctx))
		},
		Subcommands: []*cli.Command{
			{
				Name:    "init",
				Usage:   "initialize migration tables",
				Aliases: []string{"i"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					return migrator.Init(ctx.Context)
				}),
			},
			{
				Name:    "migrate",
				Usage:   "apply pending migrations",
				Aliases: []string{"m"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					return withMigrationLock(ctx.Context, migrator, func() error {
						group, err := migrator.Migrate(ctx.Context)
						if err != nil {
							return err
						}

						if group.IsZero() {
							fmt.Println("database is up to date")

							return nil
						}
						fmt.Printf("database migrated to %s\n", group)

						return nil
					})
				}),
			},
			{
				Name:    "rollback",
				Usage:   "rollback last migration group",
				Aliases: []string{"r"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					return withMigrationLock(ctx.Context, migrator, func() error {
						group, err := migrator.Rollback(ctx.Context)
						if err != nil {
							return err
						}

						if group.IsZero() {
							fmt.Println("there are no migration groups for rollback")

							return nil
						}
						fmt.Printf("rolled back %s\n", group)

						return nil
					})
				}),
			},
			{
				Name:    "lock",
				Usage:   "lock migrations",
				Aliases: []string{"l"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					return migrator.Lock(ctx.Context)
				}),
			},
			{
				Name:    "unlock",
				Usage:   "unlock migrations",
				Aliases: []string{"u"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					return migrator.Unlock(ctx.Context)
				}),
			},
			{
				Name:    "create",
				Usage:   "create a new migration",
				Aliases: []string{"c"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					name := strings.Join(ctx.Args().Slice(), "_")
					if name == "" {
						return errNoMigrationName
					}

					files, err := migrator.CreateTxSQLMigrations(ctx.Context, name)
					if err != nil {
						return err
					}

					for _, item := range files {
						fmt.Println(item.Path)
					}

					return nil
				}),
			},
			{
				Name:    "status",
				Usage:   "display migration status",
				Aliases: []string{"s"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					ms, err := migrator.MigrationsWithStatus(ctx.Context)
					if err != nil {
						return err
					}

					pending := ms.Unapplied()
					fmt.Printf("pending migration(s): %d\n", len(pending))
					fmt.Printf("database version: %s\n", ms.LastGroup())

					if len(pending) == 0 {
						fmt.Println("database is up-to-date")
					} else {
						fmt.Println("database is out-of-date")
					}

					return nil
				}),
			},
			{
				Name:    "applied",
				Usage:   "display the list of applied migrations",
				Aliases: []string{"a"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					ms, err := migrator.MigrationsWithStatus(ctx.Context)
					if err != nil {
						return err
					}

					return renderMigrations(ms.Applied())
				}),
			},
			{
				Name:    "pending",
				Usage:   "display the list of pending migrations",
				Aliases: []string{"p"},
				Action: withMigrator(func(ctx *cli.Context, migrator *migrate.Migrator) error {
					ms, err := migrator.MigrationsWithStatus(ctx.Context)
					if err != nil {
						return err
					}

					return renderMigrations(ms.Unapplied())
				}),
			},
		},
	}

	return cmd
}

// renderMigrations renders the given migrations as a table to stdout.
func renderMigrations(items migrate.MigrationSlice) error {
	if len(items) == 0 {
		return nil
	}

	return tabulateMigrations(items).Render()
}

// tabulateMigrations adds the given migration items to a table and returns it.
func tabulateMigrations(items migrate.MigrationSlice) *tablewriter.Table {
	headers := []string{
		"ID",
		"NAME",
		"COMMENT",
		"GROUP-ID",
		"MIGRATED-AT",
	}
	table := newTableWriter(os.Stdout, headers)

	for _, item := range items {
		id := na
		groupID := na
		migratedAt := na

		if item.ID > 0 {
			id = strconv.FormatInt(item.ID, 10)
		}

		if item.GroupID > 0 {
			groupID = strconv.FormatInt(item.GroupID, 10)
		}

		if !item.MigratedAt.IsZero() {
			migratedAt = item.MigratedAt.String()
		}

		row := []string{
			id,
			item.Name,
			item.Comment,
			groupID,
			migratedAt,
		}
		_ = table.Append(row)
	}

	return table
}
