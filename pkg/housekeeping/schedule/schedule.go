// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package schedule registers housekeeping intents and keeps the cleanup
// timestamps of tables and their partitions consistent.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// ErrScheduleFailed is matched by all errors returned by
// [Service.Schedule] for candidates, which could not be persisted.
var ErrScheduleFailed = errors.New("cannot schedule for housekeeping")

// Error is returned when a candidate could not be persisted.
type Error struct {
	DatabaseName  string
	TableName     string
	PartitionName *string
	Path          string
	Err           error
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	target := e.DatabaseName + "." + e.TableName
	if e.PartitionName != nil {
		target += "/" + *e.PartitionName
	}

	return fmt.Sprintf("%s: %s (%s): %s", ErrScheduleFailed, target, e.Path, e.Err)
}

// Unwrap returns the underlying errors.
func (e *Error) Unwrap() []error {
	return []error{ErrScheduleFailed, e.Err}
}

// Recorder records scheduling failures.
type Recorder interface {
	RecordScheduleFailure(lifecycle string)
}

// Service schedules candidates for housekeeping.
type Service struct {
	store    store.Store
	catalog  catalog.Factory
	clock    func() time.Time
	recorder Recorder
}

// Option is a function, which configures the [Service].
type Option func(s *Service)

// WithCatalog is an [Option], which configures the catalog used for
// enumerating the partitions of tables.
func WithCatalog(factory catalog.Factory) Option {
	opt := func(s *Service) {
		s.catalog = factory
	}

	return opt
}

// WithClock is an [Option], which configures the clock of the [Service].
func WithClock(clock func() time.Time) Option {
	opt := func(s *Service) {
		s.clock = clock
	}

	return opt
}

// WithRecorder is an [Option], which configures the [Recorder] of the
// [Service].
func WithRecorder(r Recorder) Option {
	opt := func(s *Service) {
		s.recorder = r
	}

	return opt
}

// NewService creates a new [Service] with the given options.
func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{
		store: s,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Schedule registers the candidate for housekeeping. All changes for the
// table of the candidate are persisted in a single transaction. When they
// cannot be persisted, the failure is recorded in the audit trail and
// returned as [*Error].
func (s *Service) Schedule(ctx context.Context, candidate models.Record) error {
	if err := candidate.Validate(); err != nil {
		return err
	}

	entity := candidate.Entity()
	now := s.clock().UTC()
	logger := asynqutils.GetLogger(ctx).With(
		"database", entity.DatabaseName,
		"table", entity.TableName,
		"path", entity.Path,
	)

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockTable(ctx, entity.DatabaseName, entity.TableName); err != nil {
			return fmt.Errorf("cannot lock table: %w", err)
		}

		switch c := candidate.(type) {
		case *models.PathRecord:
			return s.schedulePath(ctx, tx, c, now)
		case *models.MetadataRecord:
			return s.scheduleMetadata(ctx, tx, c, now)
		default:
			return fmt.Errorf("unexpected candidate %T", candidate)
		}
	})

	if err == nil {
		return nil
	}

	logger.Error("cannot schedule for housekeeping", "reason", err)
	if s.recorder != nil {
		s.recorder.RecordScheduleFailure(string(entity.LifecycleType))
	}

	entry := models.NewAuditEntry(candidate, models.AuditStatusScheduleFailed, err.Error())
	if auditErr := s.store.Audit().Append(ctx, entry); auditErr != nil {
		logger.Error("cannot record scheduling failure", "reason", auditErr)
	}

	scheduleErr := &Error{
		DatabaseName: entity.DatabaseName,
		TableName:    entity.TableName,
		Path:         entity.Path,
		Err:          err,
	}
	if m, ok := candidate.(*models.MetadataRecord); ok {
		scheduleErr.PartitionName = ptr.Clone(m.PartitionName)
	}

	return scheduleErr
}

func (s *Service) schedulePath(ctx context.Context, tx store.Tx, candidate *models.PathRecord, now time.Time) error {
	existing, err := tx.Paths().FindActive(ctx, candidate.DatabaseName, candidate.TableName, candidate.Path)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec := *candidate
		rec.ID = 0
		rec.Status = models.StatusScheduled
		rec.CleanupAttempts = 0
		rec.ModifiedTimestamp = now
		if rec.CreationTimestamp.IsZero() {
			rec.SetCreationTimestamp(now)
		}

		if err := tx.Paths().Save(ctx, &rec); err != nil {
			return err
		}

		return tx.Audit().Append(ctx, models.NewAuditEntry(&rec, string(rec.Status), "scheduled"))
	case err != nil:
		return err
	}

	if existing.CleanupDelay == candidate.CleanupDelay &&
		existing.ClientID == candidate.ClientID &&
		existing.Status == models.StatusScheduled {
		return nil
	}

	existing.Status = models.StatusScheduled
	existing.ClientID = candidate.ClientID
	existing.SetCleanupDelay(candidate.CleanupDelay)
	existing.ModifiedTimestamp = now
	if err := tx.Paths().Save(ctx, existing); err != nil {
		return err
	}

	return tx.Audit().Append(ctx, models.NewAuditEntry(existing, string(existing.Status), "updated"))
}

func (s *Service) scheduleMetadata(ctx context.Context, tx store.Tx, candidate *models.MetadataRecord, now time.Time) error {
	existing, err := tx.Metadata().FindActive(ctx, candidate.DatabaseName, candidate.TableName, candidate.PartitionName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	state := State{Existing: existing, Now: now}
	if candidate.IsPartition() {
		table, err := tx.Metadata().FindActive(ctx, candidate.DatabaseName, candidate.TableName, nil)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		state.Table = table

		if table != nil {
			maxTs, ok, err := tx.Metadata().FindMaxCleanupTimestamp(ctx, candidate.DatabaseName, candidate.TableName)
			if err != nil {
				return err
			}
			if ok {
				state.PartitionMax = maxTs
			}
		}
	} else {
		if err := s.loadTableState(ctx, tx, candidate, &state); err != nil {
			return err
		}
	}

	plan := Reconcile(candidate, state)
	for _, change := range plan.Changes {
		if err := tx.Metadata().Save(ctx, change.Record); err != nil {
			return err
		}

		entry := models.NewAuditEntry(change.Record, string(change.Record.Status), change.Details)
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

// loadTableState loads the active partition records of the table and its
// partitions known to the catalog.
func (s *Service) loadTableState(ctx context.Context, tx store.Tx, candidate *models.MetadataRecord, state *State) error {
	records, err := tx.Metadata().FindActiveByTable(ctx, candidate.DatabaseName, candidate.TableName)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.IsPartition() {
			state.Siblings = append(state.Siblings, rec)
		}
	}

	if s.catalog == nil {
		return nil
	}

	return catalog.With(ctx, s.catalog, func(client catalog.Client) error {
		partitions, err := client.ListPartitions(ctx, candidate.DatabaseName, candidate.TableName)
		switch {
		case errors.Is(err, catalog.ErrTableNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("cannot list partitions: %w", err)
		}
		state.Partitions = partitions

		return nil
	})
}
