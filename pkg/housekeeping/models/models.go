// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package models provides the persisted housekeeping records and their state
// machine.
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/bun"

	"github.com/gardener/housekeeping/pkg/core/registry"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// ErrInvalidRecord is returned when a housekeeping record is missing required
// fields.
var ErrInvalidRecord = errors.New("invalid housekeeping record")

// LifecycleType represents the kind of housekeeping performed for a record.
type LifecycleType string

const (
	// LifecycleUnreferenced is the lifecycle of orphaned storage paths,
	// which are no longer referenced by the catalog.
	LifecycleUnreferenced LifecycleType = "UNREFERENCED"

	// LifecycleExpired is the lifecycle of catalog tables and partitions,
	// which have expired.
	LifecycleExpired LifecycleType = "EXPIRED"
)

// Status represents the status of a housekeeping record.
type Status string

const (
	// StatusScheduled is the status of records awaiting cleanup.
	StatusScheduled Status = "SCHEDULED"

	// StatusFailed is the status of records whose last cleanup attempt
	// failed. Such records are retried on the next tick.
	StatusFailed Status = "FAILED"

	// StatusDeleted is the status of records which were cleaned up.
	StatusDeleted Status = "DELETED"

	// StatusSkipped is the status of records which were intentionally left
	// undeleted.
	StatusSkipped Status = "SKIPPED"

	// StatusDisabled is the status of records whose table is no longer
	// managed by housekeeping.
	StatusDisabled Status = "DISABLED"
)

// ActiveStatuses are the statuses of records, which are still pending
// cleanup.
var ActiveStatuses = []Status{StatusScheduled, StatusFailed}

// IsActive returns true, if the status is one of [ActiveStatuses].
func (s Status) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

// IsValid returns true, if s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusFailed, StatusDeleted, StatusSkipped, StatusDisabled:
		return true
	}

	return false
}

// Housekeeping contains the fields shared by all housekeeping records.
//
// CleanupTimestamp is derived and always equals CreationTimestamp plus
// CleanupDelay. Use [Housekeeping.SetCreationTimestamp] and
// [Housekeeping.SetCleanupDelay] for changing the inputs.
type Housekeeping struct {
	ID                int64         `bun:"id,pk,autoincrement" json:"id"`
	Path              string        `bun:"path,notnull" json:"path"`
	DatabaseName      string        `bun:"database_name,notnull" json:"database_name"`
	TableName         string        `bun:"table_name,notnull" json:"table_name"`
	LifecycleType     LifecycleType `bun:"lifecycle_type,notnull" json:"lifecycle_type"`
	Status            Status        `bun:"status,notnull" json:"status"`
	CleanupDelay      time.Duration `bun:"cleanup_delay,notnull" json:"cleanup_delay"`
	CreationTimestamp time.Time     `bun:"creation_timestamp,notnull" json:"creation_timestamp"`
	ModifiedTimestamp time.Time     `bun:"modified_timestamp,notnull" json:"modified_timestamp"`
	CleanupTimestamp  time.Time     `bun:"cleanup_timestamp,notnull" json:"cleanup_timestamp"`
	CleanupAttempts   int           `bun:"cleanup_attempts,notnull,default:0" json:"cleanup_attempts"`
	ClientID          string        `bun:"client_id,notnull" json:"client_id"`
}

// Entity returns the shared housekeeping fields of the record.
func (h *Housekeeping) Entity() *Housekeeping {
	return h
}

// SetCreationTimestamp sets the creation timestamp and recomputes the
// cleanup timestamp.
func (h *Housekeeping) SetCreationTimestamp(ts time.Time) {
	h.CreationTimestamp = ts.UTC()
	h.recompute()
}

// SetCleanupDelay sets the cleanup delay and recomputes the cleanup
// timestamp.
func (h *Housekeeping) SetCleanupDelay(d time.Duration) {
	h.CleanupDelay = d
	h.recompute()
}

// ExtendCleanupTimestamp moves the cleanup timestamp to ts, if ts is later
// than the current one. The creation timestamp is advanced by the same
// amount, so that the cleanup timestamp stays derived from it. Returns true
// if the record was modified.
func (h *Housekeeping) ExtendCleanupTimestamp(ts time.Time) bool {
	if !ts.After(h.CleanupTimestamp) {
		return false
	}
	h.SetCreationTimestamp(ts.Add(-h.CleanupDelay))

	return true
}

// IsDue returns true, if the record is active and can be cleaned up at the
// given time.
func (h *Housekeeping) IsDue(now time.Time) bool {
	return h.Status.IsActive() &&
		!h.CleanupTimestamp.After(now) &&
		!h.ModifiedTimestamp.After(now)
}

// Identity returns the owning table identity of the record, which is used
// for tagging metrics.
func (h *Housekeeping) Identity() string {
	return h.DatabaseName + "." + h.TableName
}

func (h *Housekeeping) recompute() {
	h.CleanupTimestamp = h.CreationTimestamp.Add(h.CleanupDelay)
}

func (h *Housekeeping) validate() error {
	switch {
	case h.DatabaseName == "":
		return fmt.Errorf("%w: no database name", ErrInvalidRecord)
	case h.TableName == "":
		return fmt.Errorf("%w: no table name", ErrInvalidRecord)
	case h.Path == "":
		return fmt.Errorf("%w: no path", ErrInvalidRecord)
	case h.CleanupDelay < 0:
		return fmt.Errorf("%w: negative cleanup delay", ErrInvalidRecord)
	case !h.Status.IsValid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, h.Status)
	}

	return nil
}

// Record is implemented by [PathRecord] and [MetadataRecord].
type Record interface {
	// Entity returns the shared housekeeping fields of the record.
	Entity() *Housekeeping

	// Validate validates the record.
	Validate() error

	isRecord()
}

// PathRecord represents an unreferenced storage path scheduled for
// deletion.
type PathRecord struct {
	bun.BaseModel `bun:"table:housekeeping_path"`
	Housekeeping
}

func (*PathRecord) isRecord() {}

// Validate implements the [Record] interface.
func (p *PathRecord) Validate() error {
	if p.LifecycleType != LifecycleUnreferenced {
		return fmt.Errorf("%w: path record with lifecycle %q", ErrInvalidRecord, p.LifecycleType)
	}

	return p.validate()
}

// MetadataRecord represents an expired table, or when PartitionName is set,
// an expired partition of the table.
type MetadataRecord struct {
	bun.BaseModel `bun:"table:housekeeping_metadata"`
	Housekeeping

	// PartitionName is nil for table-level records.
	PartitionName *string `bun:"partition_name" json:"partition_name,omitempty"`
}

func (*MetadataRecord) isRecord() {}

// Validate implements the [Record] interface.
func (m *MetadataRecord) Validate() error {
	if m.LifecycleType != LifecycleExpired {
		return fmt.Errorf("%w: metadata record with lifecycle %q", ErrInvalidRecord, m.LifecycleType)
	}
	if m.PartitionName != nil && *m.PartitionName == "" {
		return fmt.Errorf("%w: empty partition name", ErrInvalidRecord)
	}

	return m.validate()
}

// IsPartition returns true, if the record refers to a single partition.
func (m *MetadataRecord) IsPartition() bool {
	return m.PartitionName != nil
}

// SameKey returns true, if both records refer to the same database, table
// and partition. A nil partition name is a distinct key value.
func (m *MetadataRecord) SameKey(other *MetadataRecord) bool {
	return m.DatabaseName == other.DatabaseName &&
		m.TableName == other.TableName &&
		ptr.Equal(m.PartitionName, other.PartitionName)
}

// Clone returns a deep copy of the record.
func (m *MetadataRecord) Clone() *MetadataRecord {
	out := *m
	out.PartitionName = ptr.Clone(m.PartitionName)

	return &out
}

// Spec is the set of attributes describing a new record.
type Spec struct {
	Path         string
	DatabaseName string
	TableName    string
	CleanupDelay time.Duration
	ClientID     string
	CreatedAt    time.Time
}

func (s Spec) housekeeping(lifecycle LifecycleType) Housekeeping {
	h := Housekeeping{
		Path:              s.Path,
		DatabaseName:      s.DatabaseName,
		TableName:         s.TableName,
		LifecycleType:     lifecycle,
		Status:            StatusScheduled,
		CleanupDelay:      s.CleanupDelay,
		ModifiedTimestamp: s.CreatedAt.UTC(),
		ClientID:          s.ClientID,
	}
	h.SetCreationTimestamp(s.CreatedAt)

	return h
}

// NewPathRecord creates a new scheduled [PathRecord].
func NewPathRecord(spec Spec) *PathRecord {
	return &PathRecord{Housekeeping: spec.housekeeping(LifecycleUnreferenced)}
}

// NewMetadataRecord creates a new scheduled [MetadataRecord]. The partition
// name is nil for table-level records.
func NewMetadataRecord(spec Spec, partitionName *string) *MetadataRecord {
	return &MetadataRecord{
		Housekeeping:  spec.housekeeping(LifecycleExpired),
		PartitionName: ptr.Clone(partitionName),
	}
}

func init() {
	registry.ModelRegistry.MustRegister("hk:model:path", &PathRecord{})
	registry.ModelRegistry.MustRegister("hk:model:metadata", &MetadataRecord{})
	registry.ModelRegistry.MustRegister("hk:model:audit", &AuditEntry{})
}
