// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package tasks provides the asynq task handlers, which drive the
// housekeeping ticks and ingest housekeeping intents.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gardener/housekeeping/pkg/core/registry"
	"github.com/gardener/housekeeping/pkg/housekeeping/audit"
	"github.com/gardener/housekeeping/pkg/housekeeping/cleanup"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/schedule"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
	"github.com/gardener/housekeeping/pkg/utils/period"
)

const (
	// CleanupTaskType is the name of the task, which runs a cleanup tick.
	CleanupTaskType = "hk:task:cleanup"

	// DisableTaskType is the name of the task, which disables the
	// housekeeping of tables no longer marked as managed.
	DisableTaskType = "hk:task:disable"

	// ScheduleTaskType is the name of the task, which schedules a single
	// candidate for housekeeping.
	ScheduleTaskType = "hk:task:schedule"

	// PurgeAuditTaskType is the name of the task, which purges old audit
	// entries.
	PurgeAuditTaskType = "hk:task:purge-audit"
)

// TaskTypes returns the names of all housekeeping tasks.
func TaskTypes() []string {
	return []string{
		CleanupTaskType,
		DisableTaskType,
		PurgeAuditTaskType,
		ScheduleTaskType,
	}
}

// ScheduleMaxRetry is the max number of retries of a schedule task.
const ScheduleMaxRetry = 5

// TickUniqueTTL bounds how long a periodic tick holds its uniqueness lock.
// The lock is released as soon as the tick completes or is archived.
const TickUniqueTTL = time.Hour

// TickOptions returns the options of periodic tasks. A failed tick is not
// retried, since the next tick picks up the remaining records. The cleanup
// and disable ticks are unique, so that a slow tick is never overlapped by
// the next one.
func TickOptions(taskType, queue string) []asynq.Option {
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(0)}
	switch taskType {
	case CleanupTaskType, DisableTaskType:
		opts = append(opts, asynq.Unique(TickUniqueTTL))
	}

	return opts
}

// ErrInvalidPayload is returned when a task payload is malformed.
var ErrInvalidPayload = errors.New("invalid task payload")

// CleanupPayload represents the payload of the cleanup task.
type CleanupPayload struct {
	// ReferenceTime is the time at which records are considered due.
	// Defaults to the time of processing.
	ReferenceTime *time.Time `yaml:"reference_time" json:"reference_time,omitempty"`
}

// PurgeAuditPayload represents the payload of the audit purge task.
type PurgeAuditPayload struct {
	// Retention overrides the configured retention of audit entries.
	Retention string `yaml:"retention" json:"retention,omitempty"`
}

// SchedulePayload represents a housekeeping intent.
type SchedulePayload struct {
	LifecycleType models.LifecycleType `yaml:"lifecycle_type" json:"lifecycle_type"`
	Path          string               `yaml:"path" json:"path"`
	DatabaseName  string               `yaml:"database_name" json:"database_name"`
	TableName     string               `yaml:"table_name" json:"table_name"`
	PartitionName *string              `yaml:"partition_name" json:"partition_name,omitempty"`

	// CleanupDelay is either an ISO-8601 duration or a Go duration.
	CleanupDelay string `yaml:"cleanup_delay" json:"cleanup_delay"`

	ClientID  string     `yaml:"client_id" json:"client_id"`
	CreatedAt *time.Time `yaml:"created_at" json:"created_at,omitempty"`
}

// Candidate converts the payload into a candidate record. The creation time
// defaults to now.
func (p SchedulePayload) Candidate(now time.Time) (models.Record, error) {
	delay, err := period.Parse(p.CleanupDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	createdAt := now
	if p.CreatedAt != nil {
		createdAt = *p.CreatedAt
	}

	spec := models.Spec{
		Path:         p.Path,
		DatabaseName: p.DatabaseName,
		TableName:    p.TableName,
		CleanupDelay: delay,
		ClientID:     p.ClientID,
		CreatedAt:    createdAt,
	}

	var rec models.Record
	switch p.LifecycleType {
	case models.LifecycleUnreferenced:
		if p.PartitionName != nil {
			return nil, fmt.Errorf("%w: partition name given for path intent", ErrInvalidPayload)
		}
		rec = models.NewPathRecord(spec)
	case models.LifecycleExpired:
		rec = models.NewMetadataRecord(spec, p.PartitionName)
	default:
		return nil, fmt.Errorf("%w: unknown lifecycle type %q", ErrInvalidPayload, p.LifecycleType)
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	return rec, nil
}

// NewScheduleTask creates a new task for the given intent, which is retried
// up to [ScheduleMaxRetry] times.
func NewScheduleTask(payload SchedulePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(ScheduleTaskType, data, asynq.MaxRetry(ScheduleMaxRetry)), nil
}

// Runtime provides the housekeeping components used by the task handlers.
type Runtime struct {
	Engine         *cleanup.Engine
	Scheduler      *schedule.Service
	Purger         *audit.Purger
	AuditRetention time.Duration
	Clock          func() time.Time
}

func (r *Runtime) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}

	return r.Clock()
}

// unmarshal decodes the optional payload of the task.
func unmarshal(task *asynq.Task, v any) error {
	data := task.Payload()
	if len(data) == 0 {
		return nil
	}

	if err := asynqutils.Unmarshal(data, v); err != nil {
		return asynqutils.SkipRetry(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}

	return nil
}

// writeResult stores the given result with the task, if supported.
func writeResult(task *asynq.Task, v any) {
	w := task.ResultWriter()
	if w == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}

// HandleCleanupTask runs a single cleanup tick.
func (r *Runtime) HandleCleanupTask(ctx context.Context, task *asynq.Task) error {
	var payload CleanupPayload
	if err := unmarshal(task, &payload); err != nil {
		return err
	}

	referenceTime := r.now()
	if payload.ReferenceTime != nil {
		referenceTime = *payload.ReferenceTime
	}

	report, err := r.Engine.CleanUp(ctx, referenceTime)
	writeResult(task, report)

	return err
}

// HandleDisableTask disables the housekeeping of tables, which are no longer
// marked as managed in the catalog.
func (r *Runtime) HandleDisableTask(ctx context.Context, _ *asynq.Task) error {
	count, err := r.Engine.Disable(ctx)
	if errors.Is(err, cleanup.ErrNoCatalog) {
		return asynqutils.SkipRetry(err)
	}
	asynqutils.GetLogger(ctx).Info("disable sweep finished", "tables", count)

	return err
}

// HandleScheduleTask schedules the candidate from the task payload.
// Malformed intents are not retried.
func (r *Runtime) HandleScheduleTask(ctx context.Context, task *asynq.Task) error {
	var payload SchedulePayload
	if err := asynqutils.Unmarshal(task.Payload(), &payload); err != nil {
		return asynqutils.SkipRetry(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}

	candidate, err := payload.Candidate(r.now())
	if err != nil {
		return asynqutils.SkipRetry(err)
	}

	return r.Scheduler.Schedule(ctx, candidate)
}

// HandlePurgeAuditTask deletes audit entries older than the retention.
func (r *Runtime) HandlePurgeAuditTask(ctx context.Context, task *asynq.Task) error {
	var payload PurgeAuditPayload
	if err := unmarshal(task, &payload); err != nil {
		return err
	}

	retention := r.AuditRetention
	if payload.Retention != "" {
		d, err := period.Parse(payload.Retention)
		if err != nil {
			return asynqutils.SkipRetry(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		}
		retention = d
	}

	_, err := r.Purger.Purge(ctx, retention)
	if errors.Is(err, audit.ErrInvalidRetention) {
		return asynqutils.SkipRetry(err)
	}

	return err
}

// RegisterHandlers registers the task handlers of the runtime with the
// given registry.
func RegisterHandlers(reg *registry.Registry[string, asynq.Handler], r *Runtime) error {
	handlers := map[string]asynq.HandlerFunc{
		CleanupTaskType:    r.HandleCleanupTask,
		DisableTaskType:    r.HandleDisableTask,
		ScheduleTaskType:   r.HandleScheduleTask,
		PurgeAuditTaskType: r.HandlePurgeAuditTask,
	}

	for name, handler := range handlers {
		if err := reg.Register(name, handler); err != nil {
			return fmt.Errorf("cannot register %s: %w", name, err)
		}
	}

	return nil
}
