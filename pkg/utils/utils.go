// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package utils provides generic helpers for slices and maps.
package utils

import (
	"cmp"
	"slices"
)

// GroupBy groups the items by the key returned from keyFunc. Items keep
// their relative order within each group.
func GroupBy[K comparable, V any](items []V, keyFunc func(item V) K) map[K][]V {
	result := make(map[K][]V)
	for _, item := range items {
		key := keyFunc(item)
		result[key] = append(result[key], item)
	}

	return result
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
