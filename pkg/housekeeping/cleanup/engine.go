// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package cleanup provides the periodic sweep, which deletes the data and
// metadata of due housekeeping records.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
)

// ErrSkip is returned by handlers for records, which are intentionally left
// undeleted.
var ErrSkip = errors.New("skipped")

// Skip wraps err with [ErrSkip].
func Skip(err error) error {
	return fmt.Errorf("%w: %w", ErrSkip, err)
}

// Handler cleans up the records of a single lifecycle.
type Handler interface {
	// LifecycleType returns the lifecycle handled by the handler.
	LifecycleType() models.LifecycleType

	// FindDue returns the page of records due at now.
	FindDue(ctx context.Context, tx store.Tx, now time.Time, page store.Page) (store.Result[models.Record], error)

	// CleanupOne deletes the data of the record and returns the number of
	// bytes freed. Errors wrapping [ErrSkip] mark the record as skipped.
	CleanupOne(ctx context.Context, rec models.Record, dryRun bool) (int64, error)

	// Save persists the record.
	Save(ctx context.Context, tx store.Tx, rec models.Record) error
}

// Recorder records the outcome of cleanup runs.
type Recorder interface {
	RecordOutcome(lifecycle, status string, dryRun bool)
	RecordRecords(lifecycle, status string, count int)
}

// Stats summarizes the cleanup of a single lifecycle.
type Stats struct {
	LifecycleType models.LifecycleType
	Fetches       int
	Processed     int
	Deleted       int
	Failed        int
	Skipped       int
	SaveErrors    int
	Bytes         int64
}

// Report summarizes a cleanup run.
type Report struct {
	RunID    uuid.UUID
	DryRun   bool
	Handlers []Stats
}

// Engine runs the cleanup sweep over the registered handlers.
type Engine struct {
	store    store.Store
	handlers []Handler
	pageSize int
	dryRun   bool
	clock    func() time.Time
	recorder Recorder
	catalog  catalog.Factory
}

// Option is a function, which configures the [Engine].
type Option func(e *Engine)

// WithPageSize is an [Option], which configures the number of records
// fetched per page.
func WithPageSize(size int) Option {
	opt := func(e *Engine) {
		e.pageSize = size
	}

	return opt
}

// WithDryRun is an [Option], which configures the [Engine] to only plan the
// cleanup without mutating anything.
func WithDryRun(dryRun bool) Option {
	opt := func(e *Engine) {
		e.dryRun = dryRun
	}

	return opt
}

// WithClock is an [Option], which configures the clock used for stamping
// modified records.
func WithClock(clock func() time.Time) Option {
	opt := func(e *Engine) {
		e.clock = clock
	}

	return opt
}

// WithRecorder is an [Option], which configures the [Recorder] of the
// [Engine].
func WithRecorder(r Recorder) Option {
	opt := func(e *Engine) {
		e.recorder = r
	}

	return opt
}

// WithCatalog is an [Option], which configures the catalog used by
// [Engine.Disable].
func WithCatalog(factory catalog.Factory) Option {
	opt := func(e *Engine) {
		e.catalog = factory
	}

	return opt
}

// WithHandlers is an [Option], which registers the given handlers. Handlers
// run in registration order.
func WithHandlers(handlers ...Handler) Option {
	opt := func(e *Engine) {
		e.handlers = append(e.handlers, handlers...)
	}

	return opt
}

// NewEngine creates a new [Engine] with the given options.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		handlers: make([]Handler, 0),
		pageSize: store.DefaultPageSize,
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CleanUp processes the records due at the given reference time. Handlers
// and pages are processed sequentially. A failure of a single record never
// stops the run.
func (e *Engine) CleanUp(ctx context.Context, referenceTime time.Time) (Report, error) {
	report := Report{
		RunID:    uuid.New(),
		DryRun:   e.dryRun,
		Handlers: make([]Stats, 0, len(e.handlers)),
	}

	logger := asynqutils.GetLogger(ctx).With("run_id", report.RunID.String(), "dry_run", e.dryRun)
	ctx = asynqutils.WithLogger(ctx, logger)

	var errs error
	for _, h := range e.handlers {
		stats, err := e.run(ctx, h, report.RunID, referenceTime)
		report.Handlers = append(report.Handlers, stats)
		logger.Info(
			"cleanup finished",
			"lifecycle_type", h.LifecycleType(),
			"fetches", stats.Fetches,
			"processed", stats.Processed,
			"deleted", stats.Deleted,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"bytes", stats.Bytes,
		)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", h.LifecycleType(), err))
		}
	}

	e.refreshRecordCounts(ctx)

	return report, errs
}

// run runs the paging loop for a single handler.
//
// In a real run processed records leave the selection, so the first page is
// queried again until it is empty. In a dry run nothing is mutated, so the
// page index is advanced instead.
func (e *Engine) run(ctx context.Context, h Handler, runID uuid.UUID, now time.Time) (Stats, error) {
	stats := Stats{LifecycleType: h.LifecycleType()}
	first := store.FirstPage(e.pageSize)
	page := first
	seen := make(map[int64]struct{})

	for {
		result, err := h.FindDue(ctx, e.store, now, page)
		if err != nil {
			return stats, fmt.Errorf("cannot fetch due records: %w", err)
		}
		stats.Fetches++
		if result.IsEmpty() {
			return stats, nil
		}

		progressed := false
		for _, rec := range result.Items {
			id := rec.Entity().ID
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			progressed = true
			e.processOne(ctx, h, runID, rec, &stats)
		}

		switch {
		case e.dryRun || !progressed:
			// Records which could not be saved stay in the selection
			if !result.HasNext() {
				return stats, nil
			}
			page = page.Next()
		default:
			page = first
		}
	}
}

// processOne cleans up a single record and persists its new status along
// with an audit entry.
func (e *Engine) processOne(ctx context.Context, h Handler, runID uuid.UUID, rec models.Record, stats *Stats) {
	entity := rec.Entity()
	logger := asynqutils.GetLogger(ctx).With(
		"id", entity.ID,
		"database", entity.DatabaseName,
		"table", entity.TableName,
		"path", entity.Path,
	)

	bytes, err := h.CleanupOne(ctx, rec, e.dryRun)
	stats.Processed++

	var (
		status  models.Status
		details string
		attempt bool
	)

	switch {
	case err == nil:
		status = models.StatusDeleted
		details = fmt.Sprintf("deleted %d bytes", bytes)
		attempt = true
		stats.Deleted++
		stats.Bytes += bytes
		logger.Info("record cleaned up", "bytes", bytes)
	case errors.Is(err, ErrSkip):
		status = models.StatusSkipped
		details = err.Error()
		stats.Skipped++
		logger.Info("record skipped", "reason", err)
	default:
		status = models.StatusFailed
		details = err.Error()
		attempt = true
		stats.Failed++
		stats.Bytes += bytes
		logger.Error("record cleanup failed", "attempts", entity.CleanupAttempts+1, "reason", err)
	}

	if e.recorder != nil {
		e.recorder.RecordOutcome(string(entity.LifecycleType), string(status), e.dryRun)
	}

	if e.dryRun {
		return
	}

	if attempt {
		entity.CleanupAttempts++
	}
	entity.Status = status
	entity.ModifiedTimestamp = e.clock().UTC()

	entry := models.NewAuditEntry(rec, string(status), details)
	entry.RunID = runID
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := h.Save(ctx, tx, rec); err != nil {
			return err
		}

		return tx.Audit().Append(ctx, entry)
	})

	if err != nil {
		stats.SaveErrors++
		logger.Error("cannot save record", "status", status, "reason", err)
	}
}

// refreshRecordCounts reports the number of records per lifecycle and
// status.
func (e *Engine) refreshRecordCounts(ctx context.Context) {
	if e.recorder == nil {
		return
	}

	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		asynqutils.GetLogger(ctx).Warn("cannot count records", "reason", err)

		return
	}

	for _, item := range counts {
		e.recorder.RecordRecords(string(item.LifecycleType), string(item.Status), item.Count)
	}
}
