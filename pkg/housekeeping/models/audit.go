// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	coremodels "github.com/gardener/housekeeping/pkg/core/models"
	"github.com/gardener/housekeeping/pkg/utils/ptr"
)

// AuditStatusScheduleFailed is the audit status of intents, which could not
// be persisted.
const AuditStatusScheduleFailed = "SCHEDULE_FAILED"

// AuditEntry represents a single entry in the audit trail. Each status
// transition of a housekeeping record is paired with one entry.
type AuditEntry struct {
	bun.BaseModel `bun:"table:housekeeping_audit"`
	coremodels.Model

	RunID             uuid.UUID     `bun:"run_id,type:uuid,nullzero"`
	RecordID          int64         `bun:"record_id,nullzero"`
	LifecycleType     LifecycleType `bun:"lifecycle_type,notnull"`
	DatabaseName      string        `bun:"database_name,notnull"`
	TableName         string        `bun:"table_name,notnull"`
	PartitionName     *string       `bun:"partition_name"`
	Path              string        `bun:"path,notnull"`
	Status            string        `bun:"status,notnull"`
	CleanupDelay      time.Duration `bun:"cleanup_delay,notnull"`
	CreationTimestamp time.Time     `bun:"creation_timestamp,notnull"`
	CleanupTimestamp  time.Time     `bun:"cleanup_timestamp,notnull"`
	CleanupAttempts   int           `bun:"cleanup_attempts,notnull"`
	ClientID          string        `bun:"client_id,notnull"`
	Details           string        `bun:"details,notnull"`
}

// NewAuditEntry creates a new [AuditEntry] from the current state of the
// given record.
func NewAuditEntry(rec Record, status, details string) *AuditEntry {
	h := rec.Entity()
	entry := &AuditEntry{
		RecordID:          h.ID,
		LifecycleType:     h.LifecycleType,
		DatabaseName:      h.DatabaseName,
		TableName:         h.TableName,
		Path:              h.Path,
		Status:            status,
		CleanupDelay:      h.CleanupDelay,
		CreationTimestamp: h.CreationTimestamp,
		CleanupTimestamp:  h.CleanupTimestamp,
		CleanupAttempts:   h.CleanupAttempts,
		ClientID:          h.ClientID,
		Details:           details,
	}

	if m, ok := rec.(*MetadataRecord); ok {
		entry.PartitionName = ptr.Clone(m.PartitionName)
	}

	return entry
}
