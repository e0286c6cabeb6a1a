// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package pathcleanup deletes housekept storage locations and prunes the
// directory placeholders left behind in the object store.
package pathcleanup

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gardener/housekeeping/pkg/clients/objectstore"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
)

// ErrInvalidPath is returned for paths, which do not address a table
// directory or a location below it.
var ErrInvalidPath = errors.New("invalid housekeeping path")

// PartialDeletionError is returned when some of the objects below a
// directory could not be deleted.
type PartialDeletionError struct {
	// Location is the directory being deleted.
	Location string

	// Listed is the number of objects found below the directory.
	Listed int

	// NotDeleted are the keys, which survived the deletion.
	NotDeleted []string
}

// Error implements the [error] interface.
func (e *PartialDeletionError) Error() string {
	return fmt.Sprintf(
		"partial deletion of %s: %d of %d objects not deleted",
		e.Location,
		len(e.NotDeleted),
		e.Listed,
	)
}

// BytesRecorder records the number of bytes deleted for a table.
type BytesRecorder interface {
	RecordBytes(database, table string, dryRun bool, bytes int64)
}

// Target is the location to delete along with its owning table.
type Target struct {
	Path         string
	DatabaseName string
	TableName    string
}

// Result summarizes a cleanup of a single location.
type Result struct {
	// Bytes is the total size of the objects confirmed deleted.
	Bytes int64

	// Objects is the number of objects confirmed deleted.
	Objects int

	// Sentinels is the number of placeholder objects deleted.
	Sentinels int
}

// Cleaner deletes storage locations along with their now empty parent
// directories.
type Cleaner struct {
	batchSize int
	recorder  BytesRecorder
}

// Option is a function, which configures the [Cleaner].
type Option func(c *Cleaner)

// WithBatchSize is an [Option], which configures the number of keys deleted
// per batch call. Values outside of (0, objectstore.MaxBatchSize] are
// ignored.
func WithBatchSize(size int) Option {
	opt := func(c *Cleaner) {
		if size > 0 && size <= objectstore.MaxBatchSize {
			c.batchSize = size
		}
	}

	return opt
}

// WithRecorder is an [Option], which configures the [BytesRecorder] used by
// the [Cleaner].
func WithRecorder(r BytesRecorder) Option {
	opt := func(c *Cleaner) {
		c.recorder = r
	}

	return opt
}

// New creates a new [Cleaner] with the given options.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{
		batchSize: objectstore.MaxBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Resolve resolves the path of the target and validates its shape. The key
// must have at least two segments, i.e. a database and a table directory.
func Resolve(path string) (objectstore.Location, error) {
	loc, err := objectstore.ParseLocation(path)
	if err != nil {
		return objectstore.Location{}, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	if len(loc.Segments()) < 2 {
		return objectstore.Location{}, fmt.Errorf("%w: %s has less than two key segments", ErrInvalidPath, path)
	}

	return loc, nil
}

// Clean deletes the target location using the given client. When the
// location addresses a single object, that object is deleted. Otherwise all
// objects below the location are deleted in batches, followed by the
// directory placeholder and any parent directories, which became empty.
//
// In dry run mode the same planning is performed, but nothing is deleted.
func (c *Cleaner) Clean(ctx context.Context, client objectstore.Client, target Target, dryRun bool) (Result, error) {
	var result Result
	loc, err := Resolve(target.Path)
	if err != nil {
		return result, err
	}

	logger := asynqutils.GetLogger(ctx).With(
		"database", target.DatabaseName,
		"table", target.TableName,
		"path", loc.String(),
		"dry_run", dryRun,
	)

	// Keys which are gone (or would be gone in dry run mode)
	removed := make(map[string]struct{})
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordBytes(target.DatabaseName, target.TableName, dryRun, result.Bytes)
		}
	}()

	exists, err := client.Exists(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return result, fmt.Errorf("cannot check %s: %w", loc, err)
	}

	if exists {
		// The size cannot be queried once the object is gone
		size, err := client.Size(ctx, loc.Bucket, loc.Key)
		if err != nil {
			return result, fmt.Errorf("cannot get size of %s: %w", loc, err)
		}

		if !dryRun {
			if err := client.Delete(ctx, loc.Bucket, loc.Key); err != nil {
				return result, fmt.Errorf("cannot delete %s: %w", loc, err)
			}
		}

		removed[loc.Key] = struct{}{}
		result.Bytes += size
		result.Objects++
		logger.Info("deleted object", "bytes", size)
	} else {
		if err := c.deleteDirectory(ctx, client, loc, dryRun, removed, &result); err != nil {
			return result, err
		}
		logger.Info("deleted directory", "objects", result.Objects, "bytes", result.Bytes)
		c.deleteSentinel(ctx, client, loc, dryRun, removed, &result)
	}

	c.pruneParents(ctx, client, loc, target.TableName, dryRun, removed, &result)

	return result, nil
}

// deleteDirectory deletes the objects below loc in batches.
func (c *Cleaner) deleteDirectory(
	ctx context.Context,
	client objectstore.Client,
	loc objectstore.Location,
	dryRun bool,
	removed map[string]struct{},
	result *Result,
) error {
	objects, err := client.List(ctx, loc.Bucket, loc.Prefix())
	if err != nil {
		return fmt.Errorf("cannot list %s: %w", loc, err)
	}

	sizes := make(map[string]int64, len(objects))
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		sizes[obj.Key] = obj.Size
		keys = append(keys, obj.Key)
	}

	logger := asynqutils.GetLogger(ctx)
	deleted := make(map[string]struct{}, len(keys))
	for chunk := range slices.Chunk(keys, c.batchSize) {
		if dryRun {
			for _, key := range chunk {
				deleted[key] = struct{}{}
			}

			continue
		}

		items, err := client.DeleteBatch(ctx, loc.Bucket, chunk)
		if err != nil {
			logger.Error(
				"batch delete failed",
				"path", loc.String(),
				"keys", len(chunk),
				"reason", err,
			)
		}
		for _, key := range items {
			if _, ok := sizes[key]; ok {
				deleted[key] = struct{}{}
			}
		}
	}

	for key := range deleted {
		removed[key] = struct{}{}
		result.Bytes += sizes[key]
		result.Objects++
	}

	if len(deleted) < len(keys) {
		notDeleted := make([]string, 0, len(keys)-len(deleted))
		for _, key := range keys {
			if _, ok := deleted[key]; !ok {
				notDeleted = append(notDeleted, key)
			}
		}
		slices.Sort(notDeleted)

		return &PartialDeletionError{
			Location:   loc.String(),
			Listed:     len(keys),
			NotDeleted: notDeleted,
		}
	}

	return nil
}

// deleteSentinel deletes the placeholder of the directory at loc. Failures
// are logged and otherwise ignored.
func (c *Cleaner) deleteSentinel(
	ctx context.Context,
	client objectstore.Client,
	loc objectstore.Location,
	dryRun bool,
	removed map[string]struct{},
	result *Result,
) {
	key := loc.SentinelKey()
	removed[key] = struct{}{}
	if dryRun {
		return
	}

	if err := client.Delete(ctx, loc.Bucket, key); err != nil {
		asynqutils.GetLogger(ctx).Warn(
			"cannot delete directory placeholder",
			"bucket", loc.Bucket,
			"key", key,
			"reason", err,
		)

		return
	}
	result.Sentinels++
}

// pruneParents walks up from loc and deletes the placeholders of parent
// directories, which became empty. The walk never leaves the directory tree
// of the owning table, and never touches the table root.
func (c *Cleaner) pruneParents(
	ctx context.Context,
	client objectstore.Client,
	loc objectstore.Location,
	table string,
	dryRun bool,
	removed map[string]struct{},
	result *Result,
) {
	logger := asynqutils.GetLogger(ctx)
	current := loc
	for {
		parent, ok := current.Parent()
		if !ok {
			return
		}

		segments := parent.Segments()
		if !slices.Contains(segments, table) || segments[len(segments)-1] == table {
			return
		}

		objects, err := client.List(ctx, parent.Bucket, parent.Prefix())
		if err != nil {
			logger.Warn("cannot list parent directory", "path", parent.String(), "reason", err)

			return
		}

		if !isEmpty(objects, removed) {
			return
		}

		logger.Debug("pruning empty parent directory", "path", parent.String())
		c.deleteSentinel(ctx, client, parent, dryRun, removed, result)
		current = parent
	}
}

// isEmpty returns true, if all of the objects are already removed.
func isEmpty(objects []objectstore.Object, removed map[string]struct{}) bool {
	for _, obj := range objects {
		if _, ok := removed[obj.Key]; !ok {
			return false
		}
	}

	return true
}
