// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/clients/objectstore"
	"github.com/gardener/housekeeping/pkg/housekeeping/models"
	"github.com/gardener/housekeeping/pkg/housekeeping/pathcleanup"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
)

// ErrUnexpectedRecord is returned when a handler receives a record of a
// different lifecycle.
var ErrUnexpectedRecord = errors.New("unexpected record type")

// toRecords converts a typed result into a result of [models.Record] items.
func toRecords[T models.Record](r store.Result[T]) store.Result[models.Record] {
	items := make([]models.Record, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, item)
	}

	return store.Result[models.Record]{Items: items, Page: r.Page, Total: r.Total}
}

// cleanPath runs the path cascade for the given record.
func cleanPath(
	ctx context.Context,
	factory objectstore.Factory,
	cleaner *pathcleanup.Cleaner,
	h *models.Housekeeping,
	dryRun bool,
) (int64, error) {
	var result pathcleanup.Result
	err := objectstore.With(ctx, factory, func(client objectstore.Client) error {
		var err error
		result, err = cleaner.Clean(ctx, client, pathcleanup.Target{
			Path:         h.Path,
			DatabaseName: h.DatabaseName,
			TableName:    h.TableName,
		}, dryRun)

		return err
	})

	return result.Bytes, err
}

// PathHandler cleans up unreferenced storage paths.
type PathHandler struct {
	objects objectstore.Factory
	cleaner *pathcleanup.Cleaner
}

var _ Handler = &PathHandler{}

// NewPathHandler creates a new [PathHandler].
func NewPathHandler(objects objectstore.Factory, cleaner *pathcleanup.Cleaner) *PathHandler {
	return &PathHandler{
		objects: objects,
		cleaner: cleaner,
	}
}

// LifecycleType implements the [Handler] interface.
func (h *PathHandler) LifecycleType() models.LifecycleType {
	return models.LifecycleUnreferenced
}

// FindDue implements the [Handler] interface.
func (h *PathHandler) FindDue(ctx context.Context, tx store.Tx, now time.Time, page store.Page) (store.Result[models.Record], error) {
	result, err := tx.Paths().FindDue(ctx, now, page)
	if err != nil {
		return store.Result[models.Record]{}, err
	}

	return toRecords(result), nil
}

// CleanupOne implements the [Handler] interface.
func (h *PathHandler) CleanupOne(ctx context.Context, rec models.Record, dryRun bool) (int64, error) {
	path, ok := rec.(*models.PathRecord)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
	}

	if _, err := pathcleanup.Resolve(path.Path); err != nil {
		return 0, Skip(err)
	}

	return cleanPath(ctx, h.objects, h.cleaner, &path.Housekeeping, dryRun)
}

// Save implements the [Handler] interface.
func (h *PathHandler) Save(ctx context.Context, tx store.Tx, rec models.Record) error {
	path, ok := rec.(*models.PathRecord)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
	}

	return tx.Paths().Save(ctx, path)
}

// MetadataHandler cleans up expired tables and partitions.
type MetadataHandler struct {
	catalog catalog.Factory
	objects objectstore.Factory
	cleaner *pathcleanup.Cleaner
}

var _ Handler = &MetadataHandler{}

// NewMetadataHandler creates a new [MetadataHandler].
func NewMetadataHandler(catalogFactory catalog.Factory, objects objectstore.Factory, cleaner *pathcleanup.Cleaner) *MetadataHandler {
	return &MetadataHandler{
		catalog: catalogFactory,
		objects: objects,
		cleaner: cleaner,
	}
}

// LifecycleType implements the [Handler] interface.
func (h *MetadataHandler) LifecycleType() models.LifecycleType {
	return models.LifecycleExpired
}

// FindDue implements the [Handler] interface.
func (h *MetadataHandler) FindDue(ctx context.Context, tx store.Tx, now time.Time, page store.Page) (store.Result[models.Record], error) {
	result, err := tx.Metadata().FindDue(ctx, now, page)
	if err != nil {
		return store.Result[models.Record]{}, err
	}

	return toRecords(result), nil
}

// CleanupOne implements the [Handler] interface. The table or partition is
// dropped from the catalog first, followed by its data.
func (h *MetadataHandler) CleanupOne(ctx context.Context, rec models.Record, dryRun bool) (int64, error) {
	meta, ok := rec.(*models.MetadataRecord)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
	}

	if _, err := pathcleanup.Resolve(meta.Path); err != nil {
		return 0, Skip(err)
	}

	err := catalog.With(ctx, h.catalog, func(client catalog.Client) error {
		return h.drop(ctx, client, meta, dryRun)
	})
	if err != nil {
		return 0, err
	}

	return cleanPath(ctx, h.objects, h.cleaner, &meta.Housekeeping, dryRun)
}

func (h *MetadataHandler) drop(ctx context.Context, client catalog.Client, meta *models.MetadataRecord, dryRun bool) error {
	logger := asynqutils.GetLogger(ctx)
	props, err := client.GetTableProperties(ctx, meta.DatabaseName, meta.TableName)
	switch {
	case errors.Is(err, catalog.ErrTableNotFound):
		logger.Info("table no longer exists", "database", meta.DatabaseName, "table", meta.TableName)

		return nil
	case err != nil:
		return fmt.Errorf("cannot get table properties: %w", err)
	}

	if catalog.IsIceberg(props) {
		return Skip(fmt.Errorf("%s.%s is an iceberg table", meta.DatabaseName, meta.TableName))
	}

	if dryRun {
		return nil
	}

	if meta.IsPartition() {
		if err := client.DropPartition(ctx, meta.DatabaseName, meta.TableName, *meta.PartitionName); err != nil {
			return fmt.Errorf("cannot drop partition %s: %w", *meta.PartitionName, err)
		}

		return nil
	}

	if err := client.DropTable(ctx, meta.DatabaseName, meta.TableName); err != nil && !errors.Is(err, catalog.ErrTableNotFound) {
		return fmt.Errorf("cannot drop table: %w", err)
	}

	return nil
}

// Save implements the [Handler] interface.
func (h *MetadataHandler) Save(ctx context.Context, tx store.Tx, rec models.Record) error {
	meta, ok := rec.(*models.MetadataRecord)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
	}

	return tx.Metadata().Save(ctx, meta)
}
