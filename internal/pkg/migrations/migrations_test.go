// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package migrations_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gardener/housekeeping/internal/pkg/migrations"
)

func TestMigrationsDiscovered(t *testing.T) {
	items := migrations.Migrations.Sorted()
	if len(items) != 3 {
		t.Fatalf("want 3 migrations, got %d", len(items))
	}

	for _, item := range items {
		if item.Up == nil || item.Down == nil {
			t.Fatalf("migration %s is missing up or down", item.Name)
		}
	}
}

func TestLoadBundled(t *testing.T) {
	m, err := migrations.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if m != migrations.Migrations {
		t.Fatal("want bundled migrations for empty directory")
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20250701000000_add_index.up.sql":   "SELECT 1;",
		"20250701000000_add_index.down.sql": "SELECT 1;",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("cannot write migration: %s", err)
		}
	}

	m, err := migrations.Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	items := m.Sorted()
	if len(items) != 1 || items[0].Name != "20250701000000" {
		t.Fatalf("want single migration 20250701000000, got %v", items)
	}
}
