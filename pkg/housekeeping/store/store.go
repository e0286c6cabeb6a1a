// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package store provides the persistence layer for housekeeping records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gardener/housekeeping/pkg/housekeeping/models"
)

// ErrNotFound is returned when no active record matches a lookup.
var ErrNotFound = errors.New("record not found")

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 500

// Page addresses a bounded slice of a result set.
type Page struct {
	// Number is the zero-based page index.
	Number int

	// Size is the maximum number of items in the page.
	Size int
}

// FirstPage returns the first page of the given size.
func FirstPage(size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}

	return Page{Number: 0, Size: size}
}

// Next returns the page following p.
func (p Page) Next() Page {
	return Page{Number: p.Number + 1, Size: p.Size}
}

// Offset returns the number of items preceding the page.
func (p Page) Offset() int {
	return p.Number * p.Size
}

// Result is a single page of items.
type Result[T any] struct {
	Items []T
	Page  Page

	// Total is the number of items matching the query across all pages.
	Total int
}

// IsEmpty returns true, if the page contains no items.
func (r Result[T]) IsEmpty() bool {
	return len(r.Items) == 0
}

// HasNext returns true, if items exist past this page.
func (r Result[T]) HasNext() bool {
	return r.Page.Offset()+len(r.Items) < r.Total && !r.IsEmpty()
}

// StatusCount is the number of records of a lifecycle in a given status.
type StatusCount struct {
	LifecycleType models.LifecycleType `bun:"lifecycle_type"`
	Status        models.Status        `bun:"status"`
	Count         int                  `bun:"count"`
}

// MetadataStore persists [models.MetadataRecord] items.
type MetadataStore interface {
	// FindDue returns the page of active records due at now, ordered by
	// modification time.
	FindDue(ctx context.Context, now time.Time, page Page) (Result[*models.MetadataRecord], error)

	// FindActive returns the active record for the given key. A nil
	// partition name refers to the table-level record. Returns
	// [ErrNotFound] if there is no such record.
	FindActive(ctx context.Context, database, table string, partition *string) (*models.MetadataRecord, error)

	// FindActiveByTable returns the active table-level and partition
	// records of the table.
	FindActiveByTable(ctx context.Context, database, table string) ([]*models.MetadataRecord, error)

	// FindMaxCleanupTimestamp returns the latest cleanup timestamp of the
	// active partition records of the table. The boolean result is false,
	// if the table has no active partition records.
	FindMaxCleanupTimestamp(ctx context.Context, database, table string) (time.Time, bool, error)

	// FindActiveTables returns all active table-level records.
	FindActiveTables(ctx context.Context) ([]*models.MetadataRecord, error)

	// Save inserts the record when it has no ID yet, or updates it
	// otherwise.
	Save(ctx context.Context, rec *models.MetadataRecord) error

	// DeletePendingPartitions deletes the active partition records of the
	// table and returns the number of deleted records.
	DeletePendingPartitions(ctx context.Context, database, table string) (int, error)
}

// PathStore persists [models.PathRecord] items.
type PathStore interface {
	// FindDue returns the page of active records due at now, ordered by
	// modification time.
	FindDue(ctx context.Context, now time.Time, page Page) (Result[*models.PathRecord], error)

	// FindActive returns the active record for the given path of a table.
	// Returns [ErrNotFound] if there is no such record.
	FindActive(ctx context.Context, database, table, path string) (*models.PathRecord, error)

	// Save inserts the record when it has no ID yet, or updates it
	// otherwise.
	Save(ctx context.Context, rec *models.PathRecord) error
}

// AuditStore persists the audit trail.
type AuditStore interface {
	// Append adds a new entry to the audit trail.
	Append(ctx context.Context, entry *models.AuditEntry) error

	// DeleteOlderThan deletes entries created before ts and returns the
	// number of deleted entries.
	DeleteOlderThan(ctx context.Context, ts time.Time) (int, error)
}

// Tx provides access to the stores within a transaction.
type Tx interface {
	Metadata() MetadataStore
	Paths() PathStore
	Audit() AuditStore

	// LockTable serializes transactions working on the same table. The
	// lock is held until the transaction ends.
	LockTable(ctx context.Context, database, table string) error
}

// Store provides access to the housekeeping records.
type Store interface {
	Tx

	// RunInTx runs fn in a transaction, which is committed when fn
	// returns nil and rolled back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// CountByStatus returns the number of records per lifecycle and status.
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}
