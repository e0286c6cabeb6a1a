// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
)

// ErrNoCatalog is returned by [Engine.Disable] when the [Engine] has no
// catalog configured.
var ErrNoCatalog = errors.New("no catalog configured")

// Disable checks every active table-level record against the live catalog
// table. When the table is no longer marked as managed, the pending
// partition records of the table are deleted and the table record is
// disabled. Returns the number of disabled tables.
func (e *Engine) Disable(ctx context.Context) (int, error) {
	if e.catalog == nil {
		return 0, ErrNoCatalog
	}

	logger := asynqutils.GetLogger(ctx).With("dry_run", e.dryRun)
	tables, err := e.store.Metadata().FindActiveTables(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot fetch active tables: %w", err)
	}

	if len(tables) == 0 {
		return 0, nil
	}

	disabled := 0
	var errs error
	err = catalog.With(ctx, e.catalog, func(client catalog.Client) error {
		for _, table := range tables {
			props, err := client.GetTableProperties(ctx, table.DatabaseName, table.TableName)
			switch {
			case errors.Is(err, catalog.ErrTableNotFound):
				continue
			case err != nil:
				logger.Error(
					"cannot get table properties",
					"database", table.DatabaseName,
					"table", table.TableName,
					"reason", err,
				)
				errs = errors.Join(errs, err)

				continue
			}

			if catalog.IsManaged(props) {
				continue
			}

			ok, err := e.disableTable(ctx, table)
			if err != nil {
				logger.Error(
					"cannot disable table",
					"database", table.DatabaseName,
					"table", table.TableName,
					"reason", err,
				)
				errs = errors.Join(errs, err)

				continue
			}
			if ok {
				disabled++
			}
		}

		return nil
	})

	return disabled, errors.Join(err, errs)
}

// disableTable disables the table and removes its pending partitions. The
// table record is re-read under the table lock, and tables which are no
// longer active are left untouched. Returns true if the table was disabled.
func (e *Engine) disableTable(ctx context.Context, table *models.MetadataRecord) (bool, error) {
	logger := asynqutils.GetLogger(ctx).With(
		"database", table.DatabaseName,
		"table", table.TableName,
		"dry_run", e.dryRun,
	)

	if e.dryRun {
		logger.Info("table would be disabled")

		return true, nil
	}

	now := e.clock().UTC()
	reason := fmt.Sprintf("table property %s removed", catalog.PropertyManaged)

	disabled := false
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockTable(ctx, table.DatabaseName, table.TableName); err != nil {
			return err
		}

		records, err := tx.Metadata().FindActiveByTable(ctx, table.DatabaseName, table.TableName)
		if err != nil {
			return err
		}

		var current *models.MetadataRecord
		for _, rec := range records {
			if !rec.IsPartition() {
				current = rec
			}
		}
		if current == nil {
			logger.Info("table is no longer active, not disabling")

			return nil
		}

		for _, rec := range records {
			if !rec.IsPartition() {
				continue
			}
			entry := models.NewAuditEntry(rec, string(models.StatusDisabled), reason+", pending partition removed")
			if err := tx.Audit().Append(ctx, entry); err != nil {
				return err
			}
		}

		count, err := tx.Metadata().DeletePendingPartitions(ctx, table.DatabaseName, table.TableName)
		if err != nil {
			return err
		}

		current.Status = models.StatusDisabled
		current.ModifiedTimestamp = now
		if err := tx.Metadata().Save(ctx, current); err != nil {
			return err
		}

		logger.Info("table disabled", "partitions", count)
		disabled = true

		return tx.Audit().Append(ctx, models.NewAuditEntry(current, string(models.StatusDisabled), reason))
	})

	return disabled, err
}
