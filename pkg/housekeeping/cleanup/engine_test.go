// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cleanup_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/clients/objectstore"
	"github.com/gardener/housekeeping/pkg/housekeeping/cleanup"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/pathcleanup"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	"github.com/gardener/housekeeping/pkg/housekeeping/store/memstore"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countingHandler counts the page fetches of the wrapped handler.
type countingHandler struct {
	cleanup.Handler
	fetches []int
}

func (h *countingHandler) FindDue(ctx context.Context, tx store.Tx, ts time.Time, page store.Page) (store.Result[models.Record], error) {
	h.fetches = append(h.fetches, page.Number)

	return h.Handler.FindDue(ctx, tx, ts, page)
}

type fixture struct {
	store   *memstore.Store
	objects *objectstore.MemoryClient
	catalog *catalog.MemoryClient
}

func newFixture() *fixture {
	return &fixture{
		store:   memstore.New(),
		objects: objectstore.NewMemoryClient(),
		catalog: catalog.NewMemoryClient(),
	}
}

func (f *fixture) objectFactory(context.Context) (objectstore.Client, error) {
	return f.objects, nil
}

func (f *fixture) catalogFactory(context.Context) (catalog.Client, error) {
	return f.catalog, nil
}

func (f *fixture) addPath(t *testing.T, path string, age time.Duration) *models.PathRecord {
	t.Helper()

	rec := models.NewPathRecord(models.Spec{
		Path:         path,
		DatabaseName: "db",
		TableName:    "tbl",
		CleanupDelay: time.Hour,
		ClientID:     "test",
		CreatedAt:    now.Add(-age),
	})
	require.NoError(t, f.store.Paths().Save(context.Background(), rec))

	return rec
}

func (f *fixture) pathHandler() *countingHandler {
	return &countingHandler{
		Handler: cleanup.NewPathHandler(f.objectFactory, pathcleanup.New()),
	}
}

func (f *fixture) metadataHandler() *countingHandler {
	return &countingHandler{
		Handler: cleanup.NewMetadataHandler(f.catalogFactory, f.objectFactory, pathcleanup.New()),
	}
}

func clock() time.Time {
	return now.Add(time.Second)
}

func TestDryRunAdvancesPages(t *testing.T) {
	testCases := []struct {
		records  int
		pageSize int
		want     []int
	}{
		{records: 5, pageSize: 2, want: []int{0, 1, 2}},
		{records: 4, pageSize: 2, want: []int{0, 1}},
		{records: 1, pageSize: 10, want: []int{0}},
		{records: 0, pageSize: 3, want: []int{0}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d records in pages of %d", tc.records, tc.pageSize), func(t *testing.T) {
			f := newFixture()
			for i := range tc.records {
				f.addPath(t, fmt.Sprintf("s3://bucket/db/tbl/file-%d", i), 2*time.Hour)
				f.objects.Put("bucket", fmt.Sprintf("db/tbl/file-%d", i), 10)
			}
			before := f.store.PathRecords()

			handler := f.pathHandler()
			engine := cleanup.NewEngine(
				f.store,
				cleanup.WithHandlers(handler),
				cleanup.WithPageSize(tc.pageSize),
				cleanup.WithDryRun(true),
				cleanup.WithClock(clock),
			)

			report, err := engine.CleanUp(context.Background(), now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, handler.fetches)
			require.Len(t, report.Handlers, 1)
			assert.Equal(t, tc.records, report.Handlers[0].Deleted)
			assert.Equal(t, int64(10*tc.records), report.Handlers[0].Bytes)

			assert.Equal(t, before, f.store.PathRecords())
			assert.Empty(t, f.store.AuditEntries())
			assert.Len(t, f.objects.Keys("bucket"), tc.records)
		})
	}
}

func TestRealRunRequeriesFirstPage(t *testing.T) {
	f := newFixture()
	for i := range 5 {
		f.addPath(t, fmt.Sprintf("s3://bucket/db/tbl/file-%d", i), 2*time.Hour)
		f.objects.Put("bucket", fmt.Sprintf("db/tbl/file-%d", i), 10)
	}
	// Not due yet
	f.addPath(t, "s3://bucket/db/tbl/fresh", 0)

	handler := f.pathHandler()
	engine := cleanup.NewEngine(
		f.store,
		cleanup.WithHandlers(handler),
		cleanup.WithPageSize(2),
		cleanup.WithClock(clock),
	)

	report, err := engine.CleanUp(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, handler.fetches)
	assert.Equal(t, 5, report.Handlers[0].Processed)
	assert.Equal(t, 5, report.Handlers[0].Deleted)

	for _, rec := range f.store.PathRecords() {
		if rec.Path == "s3://bucket/db/tbl/fresh" {
			assert.Equal(t, models.StatusScheduled, rec.Status)

			continue
		}
		assert.Equal(t, models.StatusDeleted, rec.Status)
		assert.Equal(t, 1, rec.CleanupAttempts)
		assert.Equal(t, clock(), rec.ModifiedTimestamp)
	}

	entries := f.store.AuditEntries()
	require.Len(t, entries, 5)
	for _, entry := range entries {
		assert.Equal(t, "DELETED", entry.Status)
		assert.Equal(t, report.RunID, entry.RunID)
	}
	assert.Empty(t, f.objects.Keys("bucket"))
}

func TestFailuresAreIsolated(t *testing.T) {
	f := newFixture()
	invalid := f.addPath(t, "s3://bucket/toplevel", 4*time.Hour)
	broken := f.addPath(t, "s3://bucket/db/tbl/broken", 3*time.Hour)
	healthy := f.addPath(t, "s3://bucket/db/tbl/healthy", 2*time.Hour)

	f.objects.Put("bucket", "db/tbl/broken/part-0", 10)
	f.objects.Put("bucket", "db/tbl/healthy/part-0", 10)
	f.objects.FailBatch = func(_ string, keys []string) error {
		if keys[0] == "db/tbl/broken/part-0" {
			return errors.New("access denied")
		}

		return nil
	}

	engine := cleanup.NewEngine(
		f.store,
		cleanup.WithHandlers(f.pathHandler()),
		cleanup.WithClock(clock),
	)

	report, err := engine.CleanUp(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Handlers[0].Deleted)
	assert.Equal(t, 1, report.Handlers[0].Failed)
	assert.Equal(t, 1, report.Handlers[0].Skipped)

	records := f.store.PathRecords()
	byID := make(map[int64]*models.PathRecord)
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	assert.Equal(t, models.StatusSkipped, byID[invalid.ID].Status)
	assert.Equal(t, 0, byID[invalid.ID].CleanupAttempts)
	assert.Equal(t, models.StatusFailed, byID[broken.ID].Status)
	assert.Equal(t, 1, byID[broken.ID].CleanupAttempts)
	assert.Equal(t, models.StatusDeleted, byID[healthy.ID].Status)
	assert.Equal(t, 1, byID[healthy.ID].CleanupAttempts)

	statuses := make([]string, 0)
	for _, entry := range f.store.AuditEntries() {
		statuses = append(statuses, entry.Status)
	}
	assert.Equal(t, []string{"SKIPPED", "FAILED", "DELETED"}, statuses)

	// The failed record is retried on the next tick
	f.objects.FailBatch = nil
	_, err = engine.CleanUp(context.Background(), clock().Add(time.Minute))
	require.NoError(t, err)
	rec := f.store.PathRecords()[1]
	assert.Equal(t, models.StatusDeleted, rec.Status)
	assert.Equal(t, 2, rec.CleanupAttempts)
}

func TestPartialDeletionFailsRecord(t *testing.T) {
	f := newFixture()
	rec := f.addPath(t, "s3://bucket/db/tbl/dir", 2*time.Hour)
	for i := range 1500 {
		f.objects.Put("bucket", fmt.Sprintf("db/tbl/dir/f-%04d", i), 1)
	}
	calls := 0
	f.objects.FailBatch = func(string, []string) error {
		calls++
		if calls == 2 {
			return errors.New("internal error")
		}

		return nil
	}

	engine := cleanup.NewEngine(f.store, cleanup.WithHandlers(f.pathHandler()), cleanup.WithClock(clock))
	report, err := engine.CleanUp(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Handlers[0].Failed)
	assert.Equal(t, int64(1000), report.Handlers[0].Bytes)

	got := f.store.PathRecords()[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Len(t, f.objects.Keys("bucket"), 500)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Details, "500 of 1500 objects not deleted")
}

func TestSaveFailureDoesNotLoop(t *testing.T) {
	f := newFixture()
	stuck := f.addPath(t, "s3://bucket/db/tbl/stuck", 3*time.Hour)
	f.addPath(t, "s3://bucket/db/tbl/ok", 2*time.Hour)
	f.store.SetSaveHook(func(rec models.Record) error {
		if rec.Entity().ID == stuck.ID {
			return errors.New("connection reset")
		}

		return nil
	})

	handler := f.pathHandler()
	engine := cleanup.NewEngine(
		f.store,
		cleanup.WithHandlers(handler),
		cleanup.WithPageSize(1),
		cleanup.WithClock(func() time.Time { return now }),
	)

	report, err := engine.CleanUp(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Handlers[0].Processed)
	assert.Equal(t, 1, report.Handlers[0].SaveErrors)
	assert.Equal(t, []int{0, 0, 1, 0}, handler.fetches)
	assert.Equal(t, models.StatusScheduled, f.store.PathRecords()[0].Status)
	assert.Len(t, f.store.AuditEntries(), 1)
}

func TestMetadataCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.catalog.AddTable("db", "tbl", map[string]string{catalog.PropertyManaged: "true"},
		catalog.Partition{Name: "dt=1", Path: "s3://bucket/db/tbl/dt=1"},
		catalog.Partition{Name: "dt=2", Path: "s3://bucket/db/tbl/dt=2"},
	)
	f.catalog.AddTable("db", "ice", map[string]string{catalog.PropertyTableType: "ICEBERG"})
	f.objects.Put("bucket", "db/tbl/dt=1/part-0", 100)
	f.objects.Put("bucket", "db/tbl/dt=1_$folder$", 0)
	f.objects.Put("bucket", "db/tbl/dt=2/part-0", 100)
	f.objects.Put("bucket", "db/tbl_$folder$", 0)

	spec := models.Spec{
		Path:         "s3://bucket/db/tbl/dt=1",
		DatabaseName: "db",
		TableName:    "tbl",
		CleanupDelay: time.Hour,
		CreatedAt:    now.Add(-2 * time.Hour),
	}
	partition := models.NewMetadataRecord(spec, ptr.To("dt=1"))
	require.NoError(t, f.store.Metadata().Save(ctx, partition))

	spec.Path = "s3://bucket/db/ice"
	spec.TableName = "ice"
	iceberg := models.NewMetadataRecord(spec, nil)
	require.NoError(t, f.store.Metadata().Save(ctx, iceberg))

	spec.Path = "s3://bucket/db/gone"
	spec.TableName = "gone"
	gone := models.NewMetadataRecord(spec, nil)
	require.NoError(t, f.store.Metadata().Save(ctx, gone))

	engine := cleanup.NewEngine(f.store, cleanup.WithHandlers(f.metadataHandler()), cleanup.WithClock(clock))
	report, err := engine.CleanUp(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Handlers[0].Deleted)
	assert.Equal(t, 1, report.Handlers[0].Skipped)

	assert.Equal(t, []string{"db.tbl/dt=1"}, f.catalog.DroppedPartitions())
	assert.Empty(t, f.catalog.DroppedTables())
	assert.Equal(t, []string{"db/tbl/dt=2/part-0", "db/tbl_$folder$"}, f.objects.Keys("bucket"))

	statuses := make(map[int64]models.Status)
	for _, rec := range f.store.MetadataRecords() {
		statuses[rec.ID] = rec.Status
	}
	assert.Equal(t, models.StatusDeleted, statuses[partition.ID])
	assert.Equal(t, models.StatusSkipped, statuses[iceberg.ID])
	assert.Equal(t, models.StatusDeleted, statuses[gone.ID])
}

func TestMetadataCleanupDropsTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.catalog.AddTable("db", "tbl", map[string]string{catalog.PropertyManaged: "true"})
	f.objects.Put("bucket", "db/tbl/part-0", 100)
	f.objects.Put("bucket", "db/tbl_$folder$", 0)
	f.objects.Put("bucket", "db_$folder$", 0)

	table := models.NewMetadataRecord(models.Spec{
		Path:         "s3://bucket/db/tbl",
		DatabaseName: "db",
		TableName:    "tbl",
		CleanupDelay: time.Hour,
		CreatedAt:    now.Add(-2 * time.Hour),
	}, nil)
	require.NoError(t, f.store.Metadata().Save(ctx, table))

	catalogErr := errors.New("metastore timeout")
	f.catalog.Err = func(op, _, _ string) error {
		if op == "DropTable" {
			return catalogErr
		}

		return nil
	}

	engine := cleanup.NewEngine(f.store, cleanup.WithHandlers(f.metadataHandler()), cleanup.WithClock(clock))
	_, err := engine.CleanUp(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, f.store.MetadataRecords()[0].Status)
	assert.Len(t, f.objects.Keys("bucket"), 3)

	f.catalog.Err = nil
	_, err = engine.CleanUp(ctx, clock().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, f.store.MetadataRecords()[0].Status)
	assert.Equal(t, 2, f.store.MetadataRecords()[0].CleanupAttempts)
	assert.Equal(t, []string{"db.tbl"}, f.catalog.DroppedTables())
	assert.Equal(t, []string{"db_$folder$"}, f.objects.Keys("bucket"))
}

func TestFetchErrorIsReported(t *testing.T) {
	handler := &failingHandler{PathHandler: cleanup.NewPathHandler(nil, nil)}
	engine := cleanup.NewEngine(memstore.New(), cleanup.WithHandlers(handler))
	_, err := engine.CleanUp(context.Background(), now)
	assert.ErrorContains(t, err, "UNREFERENCED: cannot fetch due records")
}

type failingHandler struct {
	*cleanup.PathHandler
}

func (*failingHandler) FindDue(context.Context, store.Tx, time.Time, store.Page) (store.Result[models.Record], error) {
	return store.Result[models.Record]{}, errors.New("database unavailable")
}
