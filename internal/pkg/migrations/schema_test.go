// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"strings"
	"testing"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()

	data, err := bundled.ReadFile(name)
	if err != nil {
		t.Fatalf("cannot read %s: %s", name, err)
	}

	return strings.Join(strings.Fields(string(data)), " ")
}

func TestMetadataActiveKeyIndex(t *testing.T) {
	sql := readMigration(t, "20250601000001_create_housekeeping_metadata.tx.up.sql")

	want := `CREATE UNIQUE INDEX IF NOT EXISTS "housekeeping_metadata_active_key" ` +
		`ON "housekeeping_metadata" ("database_name", "table_name", COALESCE("partition_name", '')) ` +
		`WHERE "status" IN ('SCHEDULED', 'FAILED');`
	if !strings.Contains(sql, want) {
		t.Fatalf("missing active key index, got %s", sql)
	}
}

func TestPathActiveKeyIndex(t *testing.T) {
	sql := readMigration(t, "20250601000000_create_housekeeping_path.tx.up.sql")

	for _, want := range []string{"CREATE UNIQUE INDEX", `("database_name", "table_name", "path")`, `WHERE "status" IN ('SCHEDULED', 'FAILED')`} {
		if !strings.Contains(sql, want) {
			t.Fatalf("want %q in %s", want, sql)
		}
	}
}
