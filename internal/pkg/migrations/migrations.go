// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package migrations provides the schema of the housekeeping tables.
package migrations

import (
	"embed"
	"os"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var bundled embed.FS

// Migrations are the bundled migrations for the housekeeping_path,
// housekeeping_metadata and housekeeping_audit tables.
var Migrations = migrate.NewMigrations()

// Load returns the migrations discovered in dir, or the bundled
// [Migrations] when dir is empty.
func Load(dir string) (*migrate.Migrations, error) {
	if dir == "" {
		return Migrations, nil
	}

	m := migrate.NewMigrations(migrate.WithMigrationsDirectory(dir))
	if err := m.Discover(os.DirFS(dir)); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMigrator returns a [migrate.Migrator] for the migrations in dir. See
// [Load] for details.
func NewMigrator(db *bun.DB, dir string) (*migrate.Migrator, error) {
	m, err := Load(dir)
	if err != nil {
		return nil, err
	}

	return migrate.NewMigrator(db, m), nil
}

func init() {
	if err := Migrations.Discover(bundled); err != nil {
		panic(err)
	}
}
