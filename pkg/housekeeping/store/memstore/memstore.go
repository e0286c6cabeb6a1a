// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package memstore provides an in-memory implementation of the housekeeping
// record store.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// SaveHook is invoked before a record is saved. A non-nil error aborts the
// save.
type SaveHook func(rec models.Record) error

// Store is an in-memory [store.Store]. Transactions are serialized and
// rolled back by restoring a snapshot of the data.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID   int64
	metadata map[int64]*models.MetadataRecord
	paths    map[int64]*models.PathRecord
	audit    []*models.AuditEntry

	saveHook SaveHook
	clock    func() time.Time
}

var _ store.Store = &Store{}

// New creates a new empty [Store].
func New() *Store {
	return &Store{
		metadata: make(map[int64]*models.MetadataRecord),
		paths:    make(map[int64]*models.PathRecord),
		audit:    make([]*models.AuditEntry, 0),
		clock:    time.Now,
	}
}

// SetSaveHook configures a hook, which is invoked before each record save.
func (s *Store) SetSaveHook(hook SaveHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveHook = hook
}

// SetClock configures the clock used for stamping audit entries.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// MetadataRecords returns copies of all metadata records ordered by ID.
func (s *Store) MetadataRecords() []*models.MetadataRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedClones(s.metadata, cloneMetadata)
}

// PathRecords returns copies of all path records ordered by ID.
func (s *Store) PathRecords() []*models.PathRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedClones(s.paths, clonePath)
}

// AuditEntries returns copies of all audit entries in insertion order.
func (s *Store) AuditEntries() []*models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.AuditEntry, 0, len(s.audit))
	for _, entry := range s.audit {
		result = append(result, cloneAudit(entry))
	}

	return result
}

// Metadata implements the [store.Tx] interface.
func (s *Store) Metadata() store.MetadataStore {
	return &metadataStore{s: s}
}

// Paths implements the [store.Tx] interface.
func (s *Store) Paths() store.PathStore {
	return &pathStore{s: s}
}

// Audit implements the [store.Tx] interface.
func (s *Store) Audit() store.AuditStore {
	return &auditStore{s: s}
}

// LockTable implements the [store.Tx] interface. Transactions are already
// serialized, so this is a no-op.
func (s *Store) LockTable(context.Context, string, string) error {
	return nil
}

// RunInTx implements the [store.Store] interface.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snap)

		return err
	}

	return nil
}

// CountByStatus implements the [store.Store] interface.
func (s *Store) CountByStatus(context.Context) ([]store.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		lifecycle models.LifecycleType
		status    models.Status
	}
	counts := make(map[key]int)
	for _, rec := range s.metadata {
		counts[key{rec.LifecycleType, rec.Status}]++
	}
	for _, rec := range s.paths {
		counts[key{rec.LifecycleType, rec.Status}]++
	}

	result := make([]store.StatusCount, 0, len(counts))
	for k, v := range counts {
		result = append(result, store.StatusCount{LifecycleType: k.lifecycle, Status: k.status, Count: v})
	}
	slices.SortFunc(result, func(a, b store.StatusCount) int {
		return cmp.Or(cmp.Compare(a.LifecycleType, b.LifecycleType), cmp.Compare(a.Status, b.Status))
	})

	return result, nil
}

type snapshot struct {
	nextID   int64
	metadata map[int64]*models.MetadataRecord
	paths    map[int64]*models.PathRecord
	audit    []*models.AuditEntry
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		nextID:   s.nextID,
		metadata: make(map[int64]*models.MetadataRecord, len(s.metadata)),
		paths:    make(map[int64]*models.PathRecord, len(s.paths)),
		audit:    slices.Clone(s.audit),
	}
	for id, rec := range s.metadata {
		snap.metadata[id] = cloneMetadata(rec)
	}
	for id, rec := range s.paths {
		snap.paths[id] = clonePath(rec)
	}

	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = snap.nextID
	s.metadata = snap.metadata
	s.paths = snap.paths
	s.audit = snap.audit
}

func (s *Store) allocateID() int64 {
	s.nextID++

	return s.nextID
}

func cloneMetadata(rec *models.MetadataRecord) *models.MetadataRecord {
	return rec.Clone()
}

func clonePath(rec *models.PathRecord) *models.PathRecord {
	out := *rec

	return &out
}

func cloneAudit(entry *models.AuditEntry) *models.AuditEntry {
	out := *entry
	out.PartitionName = ptr.Clone(entry.PartitionName)

	return &out
}

func sortedClones[T any](items map[int64]T, clone func(T) T) []T {
	result := make([]T, 0, len(items))
	for _, id := range slices.Sorted(maps.Keys(items)) {
		result = append(result, clone(items[id]))
	}

	return result
}

// findDue selects the due items and returns the requested page.
func findDue[T models.Record](items []T, now time.Time, page store.Page) store.Result[T] {
	due := make([]T, 0)
	for _, item := range items {
		if item.Entity().IsDue(now) {
			due = append(due, item)
		}
	}
	slices.SortFunc(due, func(a, b T) int {
		ea, eb := a.Entity(), b.Entity()

		return cmp.Or(ea.ModifiedTimestamp.Compare(eb.ModifiedTimestamp), cmp.Compare(ea.ID, eb.ID))
	})

	result := store.Result[T]{Page: page, Total: len(due), Items: make([]T, 0)}
	start := min(page.Offset(), len(due))
	end := min(start+page.Size, len(due))
	result.Items = append(result.Items, due[start:end]...)

	return result
}

type metadataStore struct {
	s *Store
}

func (m *metadataStore) FindDue(_ context.Context, now time.Time, page store.Page) (store.Result[*models.MetadataRecord], error) {
	return findDue(m.s.MetadataRecords(), now, page), nil
}

func (m *metadataStore) FindActive(_ context.Context, database, table string, partition *string) (*models.MetadataRecord, error) {
	key := &models.MetadataRecord{
		Housekeeping:  models.Housekeeping{DatabaseName: database, TableName: table},
		PartitionName: partition,
	}
	for _, rec := range m.s.MetadataRecords() {
		if rec.Status.IsActive() && rec.SameKey(key) {
			return rec, nil
		}
	}

	return nil, store.ErrNotFound
}

func (m *metadataStore) FindActiveByTable(_ context.Context, database, table string) ([]*models.MetadataRecord, error) {
	result := make([]*models.MetadataRecord, 0)
	for _, rec := range m.s.MetadataRecords() {
		if rec.Status.IsActive() && rec.DatabaseName == database && rec.TableName == table {
			result = append(result, rec)
		}
	}

	return result, nil
}

func (m *metadataStore) FindMaxCleanupTimestamp(ctx context.Context, database, table string) (time.Time, bool, error) {
	items, _ := m.FindActiveByTable(ctx, database, table)
	var (
		maxTs time.Time
		found bool
	)
	for _, rec := range items {
		if !rec.IsPartition() {
			continue
		}
		if !found || rec.CleanupTimestamp.After(maxTs) {
			maxTs = rec.CleanupTimestamp
			found = true
		}
	}

	return maxTs, found, nil
}

func (m *metadataStore) FindActiveTables(context.Context) ([]*models.MetadataRecord, error) {
	result := make([]*models.MetadataRecord, 0)
	for _, rec := range m.s.MetadataRecords() {
		if rec.Status.IsActive() && !rec.IsPartition() {
			result = append(result, rec)
		}
	}

	return result, nil
}

func (m *metadataStore) Save(_ context.Context, rec *models.MetadataRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if m.s.saveHook != nil {
		if err := m.s.saveHook(rec); err != nil {
			return err
		}
	}

	if rec.ID == 0 {
		rec.ID = m.s.allocateID()
	}
	m.s.metadata[rec.ID] = cloneMetadata(rec)

	return nil
}

func (m *metadataStore) DeletePendingPartitions(_ context.Context, database, table string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	count := 0
	for id, rec := range m.s.metadata {
		if rec.IsPartition() && rec.Status.IsActive() && rec.DatabaseName == database && rec.TableName == table {
			delete(m.s.metadata, id)
			count++
		}
	}

	return count, nil
}

type pathStore struct {
	s *Store
}

func (p *pathStore) FindDue(_ context.Context, now time.Time, page store.Page) (store.Result[*models.PathRecord], error) {
	return findDue(p.s.PathRecords(), now, page), nil
}

func (p *pathStore) FindActive(_ context.Context, database, table, path string) (*models.PathRecord, error) {
	for _, rec := range p.s.PathRecords() {
		if rec.Status.IsActive() && rec.DatabaseName == database && rec.TableName == table && rec.Path == path {
			return rec, nil
		}
	}

	return nil, store.ErrNotFound
}

func (p *pathStore) Save(_ context.Context, rec *models.PathRecord) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if p.s.saveHook != nil {
		if err := p.s.saveHook(rec); err != nil {
			return err
		}
	}

	if rec.ID == 0 {
		rec.ID = p.s.allocateID()
	}
	p.s.paths[rec.ID] = clonePath(rec)

	return nil
}

type auditStore struct {
	s *Store
}

func (a *auditStore) Append(_ context.Context, entry *models.AuditEntry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	entry.ID = a.s.allocateID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.s.clock().UTC()
	}
	a.s.audit = append(a.s.audit, cloneAudit(entry))

	return nil
}

func (a *auditStore) DeleteOlderThan(_ context.Context, ts time.Time) (int, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	before := len(a.s.audit)
	a.s.audit = slices.DeleteFunc(a.s.audit, func(entry *models.AuditEntry) bool {
		return entry.CreatedAt.Before(ts)
	})

	return before - len(a.s.audit), nil
}
