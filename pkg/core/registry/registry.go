// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package registry provides a generic keyed registry, which is used for task
// handlers, queryable models and metric samples.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrKeyAlreadyRegistered is returned when attempting to register a key, which
// is already present in the registry.
var ErrKeyAlreadyRegistered = errors.New("key is already registered")

// ErrStopIteration is an error, which is used to stop iterating over the
// registry.
var ErrStopIteration = errors.New("stop iteration")

// ErrContinue is a no-op error, which is used to signal [Registry.Range] to
// continue the iteration.
var ErrContinue = errors.New("continue iteration")

// Registry maps ordered keys to values and is safe for concurrent use.
type Registry[K cmp.Ordered, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New creates a new empty registry.
func New[K cmp.Ordered, V any]() *Registry[K, V] {
	r := &Registry[K, V]{
		items: make(map[K]V),
	}

	return r
}

// Register adds the key and value. It fails with [ErrKeyAlreadyRegistered]
// when the key is taken.
func (r *Registry[K, V]) Register(key K, val V) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists {
		return fmt.Errorf("%w: %v", ErrKeyAlreadyRegistered, key)
	}
	r.items[key] = val

	return nil
}

// MustRegister registers the key and value, or panics in case of errors.
func (r *Registry[K, V]) MustRegister(key K, val V) {
	if err := r.Register(key, val); err != nil {
		panic(err)
	}
}

// Unregister removes the key (if present) from the registry.
func (r *Registry[K, V]) Unregister(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, key)
}

// Overwrite sets the value of key, whether or not it is registered.
func (r *Registry[K, V]) Overwrite(key K, val V) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[key] = val
}

// Get returns the value of key and whether it is registered.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	val, ok := r.items[key]

	return val, ok
}

// Exists reports whether key is registered.
func (r *Registry[K, V]) Exists(key K) bool {
	_, ok := r.Get(key)

	return ok
}

// Length returns the number of items in the registry.
func (r *Registry[K, V]) Length() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// Keys returns the registered keys in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.items))
}

// RangeFunc is a function which is called when iterating over the registry
// items. In order to stop iteration callers should return [ErrStopIteration].
type RangeFunc[K cmp.Ordered, V any] func(key K, val V) error

// Range calls f for each item in the registry in ascending key order. If f
// returns an error, Range will stop the iteration.
//
// Range iterates over a snapshot of the registry, so f is free to register
// or unregister items.
func (r *Registry[K, V]) Range(f RangeFunc[K, V]) error {
	r.mu.RLock()
	snapshot := maps.Clone(r.items)
	r.mu.RUnlock()

	for _, k := range slices.Sorted(maps.Keys(snapshot)) {
		err := f(k, snapshot[k])
		switch {
		case err == nil, errors.Is(err, ErrContinue):
			continue
		case errors.Is(err, ErrStopIteration):
			return nil
		default:
			return err
		}
	}

	return nil
}
