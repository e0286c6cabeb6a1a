// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/gardener/housekeeping/pkg/core/config"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	dbutils "github.com/gardener/housekeeping/pkg/utils/db"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// newTestDB returns a Postgres [bun.DB], which is never connected. It is
// only used for rendering queries.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := dbutils.NewFromConfig(config.DatabaseConfig{DSN: "postgres://housekeeping@localhost:5432/housekeeping?sslmode=disable"}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestLockTableQuery(t *testing.T) {
	db := newTestDB(t)

	got := db.Formatter().FormatQuery(lockTableQuery, lockKey("db", "tbl"))
	assert.Equal(t, "SELECT pg_advisory_xact_lock(hashtext('db.tbl'))", got)
}

func TestDueQuery(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got := db.NewSelect().
		Model((*models.MetadataRecord)(nil)).
		Apply(dueRecords(now)).
		Apply(paged(Page{Number: 2, Size: 10})).
		String()

	assert.Contains(t, got, `FROM "housekeeping_metadata"`)
	assert.Contains(t, got, "(status IN ('SCHEDULED', 'FAILED'))")
	assert.Contains(t, got, "(cleanup_timestamp <= '2025-06-01")
	assert.Contains(t, got, "(modified_timestamp <= '2025-06-01")
	assert.Contains(t, got, "ORDER BY modified_timestamp ASC, id ASC")
	assert.Contains(t, got, "LIMIT 10 OFFSET 20")
}

func TestActiveKeyQuery(t *testing.T) {
	db := newTestDB(t)

	testCases := []struct {
		desc      string
		partition *string
		want      string
	}{
		{desc: "table-level record", partition: nil, want: "(partition_name IS NULL)"},
		{desc: "partition record", partition: ptr.To("p=1"), want: "(partition_name = 'p=1')"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := db.NewSelect().
				Model((*models.MetadataRecord)(nil)).
				Apply(activeKey("db", "tbl", tc.partition)).
				String()

			assert.Contains(t, got, "(status IN ('SCHEDULED', 'FAILED'))")
			assert.Contains(t, got, "(database_name = 'db')")
			assert.Contains(t, got, "(table_name = 'tbl')")
			assert.Contains(t, got, tc.want)
		})
	}
}

func TestMaxCleanupTimestampQuery(t *testing.T) {
	got := maxCleanupTimestampQuery(newTestDB(t), "db", "tbl").String()

	assert.Contains(t, got, "max(cleanup_timestamp)")
	assert.Contains(t, got, "(partition_name IS NOT NULL)")
	assert.Contains(t, got, "(status IN ('SCHEDULED', 'FAILED'))")
}

func TestDeletePendingPartitionsQuery(t *testing.T) {
	got := deletePendingPartitionsQuery(newTestDB(t), "db", "tbl").String()

	assert.Contains(t, got, `DELETE FROM "housekeeping_metadata"`)
	assert.Contains(t, got, "(partition_name IS NOT NULL)")
	assert.Contains(t, got, "(status IN ('SCHEDULED', 'FAILED'))")
	assert.NotContains(t, got, "DELETED")
}
