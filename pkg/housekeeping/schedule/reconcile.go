// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/utils/period"
)

// State is the persisted and catalog state relevant for scheduling a
// metadata candidate.
type State struct {
	// Existing is the active record with the key of the candidate, if any.
	Existing *models.MetadataRecord

	// Table is the active table-level record, if any. It is only relevant
	// for partition candidates.
	Table *models.MetadataRecord

	// PartitionMax is the latest cleanup timestamp of the active partition
	// records of the table, or zero if there are none. It is only relevant
	// for partition candidates.
	PartitionMax time.Time

	// Siblings are the active partition records of the table. They are
	// only relevant for table candidates.
	Siblings []*models.MetadataRecord

	// Partitions are the partitions of the table known to the catalog.
	// They are only relevant for table candidates.
	Partitions []catalog.Partition

	// Now is the time of scheduling.
	Now time.Time
}

// Change is a record to be saved, along with the reason of the change.
type Change struct {
	Record  *models.MetadataRecord
	Details string
}

// Plan is the ordered set of changes resulting from a reconciliation.
type Plan struct {
	Changes []Change
}

// IsEmpty returns true, if the plan has no changes.
func (p Plan) IsEmpty() bool {
	return len(p.Changes) == 0
}

func (p *Plan) add(rec *models.MetadataRecord, format string, args ...any) {
	p.Changes = append(p.Changes, Change{Record: rec, Details: fmt.Sprintf(format, args...)})
}

// Reconcile merges the candidate into the given state. The returned plan
// holds copies of the records to be saved; neither the candidate nor the
// state are modified.
//
// The plan keeps the cleanup timestamp of the table-level record at or
// after the cleanup timestamps of all active partition records of the
// table.
func Reconcile(candidate *models.MetadataRecord, state State) Plan {
	var plan Plan
	now := state.Now.UTC()

	if state.Existing == nil {
		rec := candidate.Clone()
		rec.ID = 0
		rec.Status = models.StatusScheduled
		rec.CleanupAttempts = 0
		rec.ModifiedTimestamp = now
		if rec.CreationTimestamp.IsZero() {
			rec.SetCreationTimestamp(now)
		} else {
			rec.SetCreationTimestamp(rec.CreationTimestamp)
		}
		plan.add(rec, "scheduled with cleanup delay %s", period.Format(rec.CleanupDelay))

		if rec.IsPartition() {
			extendTable(&plan, state.Table, latest(rec.CleanupTimestamp, state.PartitionMax), now)
		} else {
			reconcileTable(&plan, rec, state, false)
		}

		return plan
	}

	rec := state.Existing.Clone()
	oldDelay := rec.CleanupDelay
	changed := rec.Path != candidate.Path ||
		rec.Status != models.StatusScheduled ||
		rec.CleanupDelay != candidate.CleanupDelay ||
		rec.ClientID != candidate.ClientID

	rec.Path = candidate.Path
	rec.Status = models.StatusScheduled
	rec.ClientID = candidate.ClientID
	rec.SetCleanupDelay(candidate.CleanupDelay)

	if changed {
		rec.ModifiedTimestamp = now
		plan.add(rec, "updated with cleanup delay %s", period.Format(rec.CleanupDelay))
	}

	if rec.IsPartition() {
		extendTable(&plan, state.Table, latest(rec.CleanupTimestamp, state.PartitionMax), now)

		return plan
	}

	delayChanged := oldDelay != rec.CleanupDelay
	if !reconcileTable(&plan, rec, state, delayChanged) || changed {
		return plan
	}

	// The table record itself was not updated, but needs saving
	plan.add(rec, "cleanup timestamp raised to %s", rec.CleanupTimestamp.Format(time.RFC3339))

	return plan
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}

	return a
}

// extendTable raises the cleanup timestamp of the table record to ts.
func extendTable(plan *Plan, table *models.MetadataRecord, ts, now time.Time) {
	if table == nil {
		return
	}

	t := table.Clone()
	if t.ExtendCleanupTimestamp(ts) {
		t.ModifiedTimestamp = now
		plan.add(t, "cleanup timestamp raised to %s", ts.Format(time.RFC3339))
	}
}

// reconcileTable schedules the catalog partitions, which have no active
// record yet, propagates a changed delay to the existing partition records
// and raises the cleanup timestamp of the table record to the maximum of
// its partitions. The table record is modified in place. Returns true, if
// the cleanup timestamp of the table record was raised.
func reconcileTable(plan *Plan, table *models.MetadataRecord, state State, delayChanged bool) bool {
	now := state.Now.UTC()
	maxTs := table.CleanupTimestamp
	scheduled := make(map[string]struct{}, len(state.Siblings))

	for _, sibling := range state.Siblings {
		if !sibling.IsPartition() {
			continue
		}

		s := sibling.Clone()
		scheduled[*s.PartitionName] = struct{}{}
		if delayChanged && s.CleanupDelay != table.CleanupDelay {
			old := s.CleanupDelay
			s.SetCleanupDelay(table.CleanupDelay)
			s.ModifiedTimestamp = now
			plan.add(s, "cleanup delay changed from %s to %s", period.Format(old), period.Format(s.CleanupDelay))
		}

		if s.CleanupTimestamp.After(maxTs) {
			maxTs = s.CleanupTimestamp
		}
	}

	for _, partition := range state.Partitions {
		if _, ok := scheduled[partition.Name]; ok {
			continue
		}
		scheduled[partition.Name] = struct{}{}

		createdAt := now
		if partition.CreatedAt != nil {
			createdAt = *partition.CreatedAt
		}

		path := partition.Path
		if path == "" {
			path = strings.TrimSuffix(table.Path, "/") + "/" + partition.Name
		}

		name := partition.Name
		rec := models.NewMetadataRecord(models.Spec{
			Path:         path,
			DatabaseName: table.DatabaseName,
			TableName:    table.TableName,
			CleanupDelay: table.CleanupDelay,
			ClientID:     table.ClientID,
			CreatedAt:    createdAt,
		}, &name)
		rec.ModifiedTimestamp = now
		plan.add(rec, "scheduled with table cleanup delay %s", period.Format(rec.CleanupDelay))

		if rec.CleanupTimestamp.After(maxTs) {
			maxTs = rec.CleanupTimestamp
		}
	}

	if !table.ExtendCleanupTimestamp(maxTs) {
		return false
	}
	table.ModifiedTimestamp = now

	return true
}
