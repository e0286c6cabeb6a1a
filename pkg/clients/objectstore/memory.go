// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryClient is an in-memory [Client]. It is meant for tests and dry
// runs against fixtures.
type MemoryClient struct {
	mu      sync.Mutex
	buckets map[string]map[string]int64

	// FailBatch, if set, is invoked before each batch delete. A non-nil
	// error fails the whole call.
	FailBatch func(bucket string, keys []string) error

	// FailDelete, if set, is invoked before each single-object delete.
	FailDelete func(bucket, key string) error

	batchCalls [][]string
	deletes    []string
}

var _ Client = &MemoryClient{}

// NewMemoryClient creates a new empty [MemoryClient].
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		buckets: make(map[string]map[string]int64),
	}
}

// Put stores an object of the given size.
func (c *MemoryClient) Put(bucket, key string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	objects, ok := c.buckets[bucket]
	if !ok {
		objects = make(map[string]int64)
		c.buckets[bucket] = objects
	}
	objects[key] = size
}

// Keys returns the sorted keys stored in the bucket.
func (c *MemoryClient) Keys(bucket string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Sorted(maps.Keys(c.buckets[bucket]))
}

// BatchCalls returns the keys of each batch delete call in call order.
func (c *MemoryClient) BatchCalls() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.batchCalls)
}

// Deletes returns the keys passed to single-object deletes in call order.
func (c *MemoryClient) Deletes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.deletes)
}

// Exists implements the [Client] interface.
func (c *MemoryClient) Exists(_ context.Context, bucket, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.buckets[bucket][key]

	return ok, nil
}

// Size implements the [Client] interface.
func (c *MemoryClient) Size(_ context.Context, bucket, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, ok := c.buckets[bucket][key]
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}

	return size, nil
}

// Delete implements the [Client] interface.
func (c *MemoryClient) Delete(_ context.Context, bucket, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletes = append(c.deletes, key)
	if c.FailDelete != nil {
		if err := c.FailDelete(bucket, key); err != nil {
			return err
		}
	}
	delete(c.buckets[bucket], key)

	return nil
}

// List implements the [Client] interface.
func (c *MemoryClient) List(_ context.Context, bucket, prefix string) ([]Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]Object, 0)
	for _, key := range slices.Sorted(maps.Keys(c.buckets[bucket])) {
		if strings.HasPrefix(key, prefix) {
			items = append(items, Object{Key: key, Size: c.buckets[bucket][key]})
		}
	}

	return items, nil
}

// DeleteBatch implements the [Client] interface.
func (c *MemoryClient) DeleteBatch(_ context.Context, bucket string, keys []string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batchCalls = append(c.batchCalls, slices.Clone(keys))
	if len(keys) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(keys), MaxBatchSize)
	}
	if c.FailBatch != nil {
		if err := c.FailBatch(bucket, keys); err != nil {
			return nil, err
		}
	}

	deleted := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := c.buckets[bucket][key]; ok {
			delete(c.buckets[bucket], key)
		}
		deleted = append(deleted, key)
	}

	return deleted, nil
}

// Close implements the [Client] interface.
func (c *MemoryClient) Close() error {
	return nil
}
