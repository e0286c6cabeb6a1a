// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/schedule"
	"github.com/gardener/housekeeping/pkg/housekeeping/store/memstore"
)

type failureRecorder struct {
	failures map[string]int
}

func (r *failureRecorder) RecordScheduleFailure(lifecycle string) {
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[lifecycle]++
}

func newService(s *memstore.Store, opts ...schedule.Option) *schedule.Service {
	opts = append([]schedule.Option{schedule.WithClock(func() time.Time { return now })}, opts...)

	return schedule.NewService(s, opts...)
}

func findMetadata(records []*models.MetadataRecord, partition string) *models.MetadataRecord {
	for _, rec := range records {
		switch {
		case partition == "" && !rec.IsPartition():
			return rec
		case rec.IsPartition() && *rec.PartitionName == partition:
			return rec
		}
	}

	return nil
}

func TestScheduleTableAndPartitions(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newService(s)

	t1 := now.Add(time.Hour)
	t2 := now.Add(2 * time.Hour)

	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))
	require.NoError(t, svc.Schedule(ctx, newPartition("p=1", t1, threeDays)))
	require.NoError(t, svc.Schedule(ctx, newPartition("p=2", t2, threeDays)))

	records := s.MetadataRecords()
	require.Len(t, records, 3)

	table := findMetadata(records, "")
	require.NotNil(t, table)
	assert.Equal(t, t2.Add(threeDays), table.CleanupTimestamp)
	assert.Equal(t, table.CreationTimestamp.Add(table.CleanupDelay), table.CleanupTimestamp)

	for _, rec := range records {
		if rec.IsPartition() {
			assert.False(t, rec.CleanupTimestamp.After(table.CleanupTimestamp))
		}
	}
}

func TestSchedulePartitionRaisesLaggingTable(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newService(s)

	// The table record lags behind a partition record written before it
	late := newPartition("p=9", now.Add(5*time.Hour), threeDays)
	require.NoError(t, s.Metadata().Save(ctx, late))
	require.NoError(t, s.Metadata().Save(ctx, newTable(now, threeDays)))

	require.NoError(t, svc.Schedule(ctx, newPartition("p=1", now.Add(time.Hour), threeDays)))

	table := findMetadata(s.MetadataRecords(), "")
	require.NotNil(t, table)
	assert.Equal(t, late.CleanupTimestamp, table.CleanupTimestamp)
	assert.Equal(t, table.CreationTimestamp.Add(table.CleanupDelay), table.CleanupTimestamp)
}

func TestScheduleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newService(s)

	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))
	require.NoError(t, svc.Schedule(ctx, newPartition("p=1", now, threeDays)))
	audits := len(s.AuditEntries())

	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))
	require.NoError(t, svc.Schedule(ctx, newPartition("p=1", now, threeDays)))

	assert.Len(t, s.MetadataRecords(), 2)
	assert.Len(t, s.AuditEntries(), audits)
}

func TestScheduleTableWithCatalogPartitions(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := catalog.NewMemoryClient()
	created := now.Add(-10 * 24 * time.Hour)
	client.AddTable("db", "tbl", map[string]string{catalog.PropertyManaged: "true"},
		catalog.Partition{Name: "p=old", CreatedAt: &created},
		catalog.Partition{Name: "p=new"},
	)
	factory := func(context.Context) (catalog.Client, error) {
		return client, nil
	}

	svc := newService(s, schedule.WithCatalog(factory))
	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))

	records := s.MetadataRecords()
	require.Len(t, records, 3)

	old := findMetadata(records, "p=old")
	require.NotNil(t, old)
	assert.Equal(t, created.Add(threeDays), old.CleanupTimestamp)
	assert.Equal(t, "s3://bucket/db/tbl/p=old", old.Path)

	fresh := findMetadata(records, "p=new")
	require.NotNil(t, fresh)
	assert.Equal(t, now.Add(threeDays), fresh.CleanupTimestamp)

	// Scheduling again does not duplicate the catalog partitions
	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))
	assert.Len(t, s.MetadataRecords(), 3)
}

func TestScheduleTableMissingInCatalog(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := catalog.NewMemoryClient()
	factory := func(context.Context) (catalog.Client, error) {
		return client, nil
	}

	svc := newService(s, schedule.WithCatalog(factory))
	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))
	assert.Len(t, s.MetadataRecords(), 1)
}

func TestScheduleDelayChangePropagates(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newService(s)
	fiveDays := 5 * 24 * time.Hour

	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))
	require.NoError(t, svc.Schedule(ctx, newPartition("p=1", now, threeDays)))
	require.NoError(t, svc.Schedule(ctx, newPartition("p=2", now, threeDays)))
	before := len(s.AuditEntries())

	require.NoError(t, svc.Schedule(ctx, newTable(now, fiveDays)))

	for _, rec := range s.MetadataRecords() {
		assert.Equal(t, fiveDays, rec.CleanupDelay)
		assert.Equal(t, now.Add(fiveDays), rec.CleanupTimestamp)
	}

	entries := s.AuditEntries()[before:]
	changed := 0
	for _, entry := range entries {
		if entry.PartitionName != nil {
			assert.Contains(t, entry.Details, "cleanup delay changed")
			changed++
		}
	}
	assert.Equal(t, 2, changed)
}

func TestSchedulePath(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newService(s)

	candidate := models.NewPathRecord(models.Spec{
		Path:         "s3://bucket/db/tbl/file.parquet",
		DatabaseName: "db",
		TableName:    "tbl",
		CleanupDelay: time.Hour,
		ClientID:     "test",
		CreatedAt:    now,
	})
	require.NoError(t, svc.Schedule(ctx, candidate))
	require.NoError(t, svc.Schedule(ctx, candidate))
	require.Len(t, s.PathRecords(), 1)
	require.Len(t, s.AuditEntries(), 1)

	updated := *candidate
	updated.SetCleanupDelay(2 * time.Hour)
	require.NoError(t, svc.Schedule(ctx, &updated))

	records := s.PathRecords()
	require.Len(t, records, 1)
	assert.Equal(t, now.Add(2*time.Hour), records[0].CleanupTimestamp)
	assert.Len(t, s.AuditEntries(), 2)
}

func TestScheduleInvalidCandidate(t *testing.T) {
	s := memstore.New()
	svc := newService(s)

	candidate := newTable(now, threeDays)
	candidate.DatabaseName = ""

	err := svc.Schedule(context.Background(), candidate)
	require.ErrorIs(t, err, models.ErrInvalidRecord)
	assert.Empty(t, s.AuditEntries())
}

func TestScheduleFailureIsAudited(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	recorder := &failureRecorder{}
	svc := newService(s, schedule.WithRecorder(recorder))

	errBroken := errors.New("broken")
	s.SetSaveHook(func(models.Record) error {
		return errBroken
	})

	err := svc.Schedule(ctx, newPartition("p=1", now, threeDays))
	require.ErrorIs(t, err, schedule.ErrScheduleFailed)
	require.ErrorIs(t, err, errBroken)

	var scheduleErr *schedule.Error
	require.ErrorAs(t, err, &scheduleErr)
	assert.Equal(t, "p=1", *scheduleErr.PartitionName)

	assert.Empty(t, s.MetadataRecords())
	entries := s.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditStatusScheduleFailed, entries[0].Status)
	assert.Contains(t, entries[0].Details, "broken")
	assert.Equal(t, 1, recorder.failures[string(models.LifecycleExpired)])
}

func TestScheduleFailureRollsBackTable(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newService(s)

	require.NoError(t, svc.Schedule(ctx, newTable(now, threeDays)))

	// Fail the save of the raised table record after the partition was saved
	s.SetSaveHook(func(rec models.Record) error {
		if m, ok := rec.(*models.MetadataRecord); ok && !m.IsPartition() {
			return errors.New("table locked")
		}

		return nil
	})

	err := svc.Schedule(ctx, newPartition("p=1", now.Add(time.Hour), threeDays))
	require.ErrorIs(t, err, schedule.ErrScheduleFailed)
	assert.Len(t, s.MetadataRecords(), 1)
}
