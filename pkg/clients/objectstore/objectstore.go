// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package objectstore provides clients for the object stores holding the
// housekept data.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxBatchSize is the maximum number of keys deleted by a single batch call.
const MaxBatchSize = 1000

// SentinelSuffix is the suffix of the placeholder objects, which represent
// otherwise empty directories.
const SentinelSuffix = "_$folder$"

var (
	// ErrInvalidLocation is returned when a path cannot be resolved into a
	// bucket and key.
	ErrInvalidLocation = errors.New("invalid object store location")

	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Object describes a stored object.
type Object struct {
	Key  string
	Size int64
}

// Client is the interface for object store clients.
type Client interface {
	// Exists returns true, if an object with the given key exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Size returns the size of the object in bytes.
	Size(ctx context.Context, bucket, key string) (int64, error)

	// Delete deletes the object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, bucket, key string) error

	// List returns all objects with the given key prefix.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)

	// DeleteBatch deletes at most [MaxBatchSize] keys and returns the keys,
	// which were confirmed deleted. A non-nil error means that the call
	// failed as a whole.
	DeleteBatch(ctx context.Context, bucket string, keys []string) ([]string, error)

	// Close releases the resources of the client.
	Close() error
}

// Factory creates new [Client] instances.
type Factory func(ctx context.Context) (Client, error)

// With creates a new [Client] using the factory and invokes fn with it. The
// client is closed when fn returns.
func With(ctx context.Context, factory Factory, fn func(client Client) error) (err error) {
	client, err := factory(ctx)
	if err != nil {
		return fmt.Errorf("cannot create object store client: %w", err)
	}

	defer func() {
		err = errors.Join(err, client.Close())
	}()

	return fn(client)
}

// Location is a resolved object store path.
type Location struct {
	Scheme string
	Bucket string

	// Key has neither a leading nor a trailing slash.
	Key string
}

// ParseLocation resolves a path of the form scheme://bucket/key.
func ParseLocation(path string) (Location, error) {
	scheme, rest, ok := strings.Cut(path, "://")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidLocation, path)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidLocation, path)
	}

	loc := Location{
		Scheme: strings.ToLower(scheme),
		Bucket: bucket,
		Key:    strings.Trim(key, "/"),
	}

	return loc, nil
}

// String implements the [fmt.Stringer] interface.
func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// Segments returns the non-empty segments of the key.
func (l Location) Segments() []string {
	segments := make([]string, 0)
	for s := range strings.SplitSeq(l.Key, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	return segments
}

// Parent returns the location of the parent directory. The boolean result
// is false when the location is the bucket root.
func (l Location) Parent() (Location, bool) {
	if l.Key == "" {
		return l, false
	}

	idx := strings.LastIndex(l.Key, "/")
	parent := l
	if idx < 0 {
		parent.Key = ""
	} else {
		parent.Key = l.Key[:idx]
	}

	return parent, true
}

// Prefix returns the listing prefix for the objects below the location.
func (l Location) Prefix() string {
	if l.Key == "" {
		return ""
	}

	return l.Key + "/"
}

// SentinelKey returns the key of the placeholder object representing the
// location as a directory.
func (l Location) SentinelKey() string {
	return l.Key + SentinelSuffix
}
