// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/gardener/housekeeping/pkg/housekeeping/models"
)

// BunStore is a [Store] backed by a Postgres database.
type BunStore struct {
	db *bun.DB
	bunTx
}

var _ Store = &BunStore{}

// New creates a new [BunStore] using the given database.
func New(db *bun.DB) *BunStore {
	return &BunStore{
		db:    db,
		bunTx: bunTx{idb: db},
	}
}

// RunInTx implements the [Store] interface.
func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &bunTx{idb: tx})
	})
}

// CountByStatus implements the [Store] interface.
func (s *BunStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	result := make([]StatusCount, 0)
	for _, model := range []any{(*models.MetadataRecord)(nil), (*models.PathRecord)(nil)} {
		items := make([]StatusCount, 0)
		err := s.db.NewSelect().
			Model(model).
			ColumnExpr("lifecycle_type").
			ColumnExpr("status").
			ColumnExpr("count(*) AS count").
			Group("lifecycle_type", "status").
			Scan(ctx, &items)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}

	return result, nil
}

type bunTx struct {
	idb bun.IDB
}

func (t *bunTx) Metadata() MetadataStore {
	return &bunMetadataStore{idb: t.idb}
}

func (t *bunTx) Paths() PathStore {
	return &bunPathStore{idb: t.idb}
}

func (t *bunTx) Audit() AuditStore {
	return &bunAuditStore{idb: t.idb}
}

// lockTableQuery takes a transaction-scoped advisory lock keyed by the table
// identity.
const lockTableQuery = "SELECT pg_advisory_xact_lock(hashtext(?))"

func lockKey(database, table string) string {
	return database + "." + table
}

func (t *bunTx) LockTable(ctx context.Context, database, table string) error {
	_, err := t.idb.ExecContext(ctx, lockTableQuery, lockKey(database, table))

	return err
}

// activeRecords restricts a query to records pending cleanup.
func activeRecords(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("status IN (?)", bun.In(models.ActiveStatuses))
}

// dueRecords restricts a query to records due for cleanup at now.
func dueRecords(now time.Time) func(q *bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Apply(activeRecords).
			Where("cleanup_timestamp <= ?", now).
			Where("modified_timestamp <= ?", now).
			Order("modified_timestamp ASC", "id ASC")
	}
}

func paged(page Page) func(q *bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(page.Size).Offset(page.Offset())
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	return err
}

type bunMetadataStore struct {
	idb bun.IDB
}

func (s *bunMetadataStore) FindDue(ctx context.Context, now time.Time, page Page) (Result[*models.MetadataRecord], error) {
	items := make([]*models.MetadataRecord, 0)
	total, err := s.idb.NewSelect().
		Model(&items).
		Apply(dueRecords(now)).
		Apply(paged(page)).
		ScanAndCount(ctx)

	return Result[*models.MetadataRecord]{Items: items, Page: page, Total: total}, err
}

// activeKey restricts a query to the active metadata record with the given
// key. A nil partition addresses the table-level record.
func activeKey(database, table string, partition *string) func(q *bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Apply(activeRecords).
			Where("database_name = ?", database).
			Where("table_name = ?", table)

		if partition == nil {
			return q.Where("partition_name IS NULL")
		}

		return q.Where("partition_name = ?", *partition)
	}
}

func (s *bunMetadataStore) FindActive(ctx context.Context, database, table string, partition *string) (*models.MetadataRecord, error) {
	rec := new(models.MetadataRecord)
	err := s.idb.NewSelect().
		Model(rec).
		Apply(activeKey(database, table, partition)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, notFound(err)
	}

	return rec, nil
}

func (s *bunMetadataStore) FindActiveByTable(ctx context.Context, database, table string) ([]*models.MetadataRecord, error) {
	items := make([]*models.MetadataRecord, 0)
	err := s.idb.NewSelect().
		Model(&items).
		Apply(activeRecords).
		Where("database_name = ?", database).
		Where("table_name = ?", table).
		Order("id ASC").
		Scan(ctx)

	return items, err
}

func maxCleanupTimestampQuery(idb bun.IDB, database, table string) *bun.SelectQuery {
	return idb.NewSelect().
		Model((*models.MetadataRecord)(nil)).
		ColumnExpr("max(cleanup_timestamp)").
		Apply(activeRecords).
		Where("database_name = ?", database).
		Where("table_name = ?", table).
		Where("partition_name IS NOT NULL")
}

func (s *bunMetadataStore) FindMaxCleanupTimestamp(ctx context.Context, database, table string) (time.Time, bool, error) {
	var ts bun.NullTime
	err := maxCleanupTimestampQuery(s.idb, database, table).Scan(ctx, &ts)

	if err != nil {
		return time.Time{}, false, err
	}

	return ts.Time, !ts.IsZero(), nil
}

func (s *bunMetadataStore) FindActiveTables(ctx context.Context) ([]*models.MetadataRecord, error) {
	items := make([]*models.MetadataRecord, 0)
	err := s.idb.NewSelect().
		Model(&items).
		Apply(activeRecords).
		Where("partition_name IS NULL").
		Order("id ASC").
		Scan(ctx)

	return items, err
}

func (s *bunMetadataStore) Save(ctx context.Context, rec *models.MetadataRecord) error {
	if rec.ID == 0 {
		_, err := s.idb.NewInsert().Model(rec).Returning("id").Exec(ctx)

		return err
	}

	_, err := s.idb.NewUpdate().Model(rec).WherePK().Exec(ctx)

	return err
}

func deletePendingPartitionsQuery(idb bun.IDB, database, table string) *bun.DeleteQuery {
	return idb.NewDelete().
		Model((*models.MetadataRecord)(nil)).
		Where("database_name = ?", database).
		Where("table_name = ?", table).
		Where("partition_name IS NOT NULL").
		Where("status IN (?)", bun.In(models.ActiveStatuses))
}

func (s *bunMetadataStore) DeletePendingPartitions(ctx context.Context, database, table string) (int, error) {
	res, err := deletePendingPartitionsQuery(s.idb, database, table).Exec(ctx)

	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()

	return int(count), err
}

type bunPathStore struct {
	idb bun.IDB
}

func (s *bunPathStore) FindDue(ctx context.Context, now time.Time, page Page) (Result[*models.PathRecord], error) {
	items := make([]*models.PathRecord, 0)
	total, err := s.idb.NewSelect().
		Model(&items).
		Apply(dueRecords(now)).
		Apply(paged(page)).
		ScanAndCount(ctx)

	return Result[*models.PathRecord]{Items: items, Page: page, Total: total}, err
}

func (s *bunPathStore) FindActive(ctx context.Context, database, table, path string) (*models.PathRecord, error) {
	rec := new(models.PathRecord)
	err := s.idb.NewSelect().
		Model(rec).
		Apply(activeRecords).
		Where("database_name = ?", database).
		Where("table_name = ?", table).
		Where("path = ?", path).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, notFound(err)
	}

	return rec, nil
}

func (s *bunPathStore) Save(ctx context.Context, rec *models.PathRecord) error {
	if rec.ID == 0 {
		_, err := s.idb.NewInsert().Model(rec).Returning("id").Exec(ctx)

		return err
	}

	_, err := s.idb.NewUpdate().Model(rec).WherePK().Exec(ctx)

	return err
}

type bunAuditStore struct {
	idb bun.IDB
}

func (s *bunAuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	_, err := s.idb.NewInsert().Model(entry).Returning("id").Exec(ctx)

	return err
}

func (s *bunAuditStore) DeleteOlderThan(ctx context.Context, ts time.Time) (int, error) {
	res, err := s.idb.NewDelete().
		Model((*models.AuditEntry)(nil)).
		Where("created_at < ?", ts).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()

	return int(count), err
}
