// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package ptr

// Value returns the value referenced by p, if p is non-nil, else it returns the
// default value def.
func Value[T any](p *T, def T) T {
	if p != nil {
		return *p
	}

	return def
}

// To returns a pointer to a copy of the given value.
// One use case of this is to circumvent UnadressableOperand errors.
func To[T any](v T) *T {
	return &v
}

// Equal reports whether a and b are both nil, or both non-nil and referencing
// equal values.
func Equal[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}

// Clone returns a pointer to a copy of the value referenced by p, or nil if p
// is nil.
func Clone[T any](p *T) *T {
	if p == nil {
		return nil
	}

	return To(*p)
}
