// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"slices"
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	registry := New[string, int]()

	if registry.Length() != 0 {
		t.Fatalf("new registry must have a length of 0")
	}

	if err := registry.Register("hk:task:cleanup", 42); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	got, ok := registry.Get("hk:task:cleanup")
	if !ok {
		t.Fatalf("no value found for registered key")
	}
	if got != 42 {
		t.Fatalf("want 42 got %d", got)
	}

	if !registry.Exists("hk:task:cleanup") {
		t.Fatalf("registered key reported as missing")
	}
}

func TestRegisterDuplicateKey(t *testing.T) {
	registry := New[string, int]()
	registry.MustRegister("key", 1)

	err := registry.Register("key", 2)
	if !errors.Is(err, ErrKeyAlreadyRegistered) {
		t.Fatalf("want ErrKeyAlreadyRegistered got %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustRegister did not panic when registering duplicate key")
		}
	}()
	registry.MustRegister("key", 3)
}

func TestUnregisterAndOverwrite(t *testing.T) {
	registry := New[string, int]()
	registry.MustRegister("a", 1)
	registry.Overwrite("a", 2)
	registry.Overwrite("b", 3)

	if v, _ := registry.Get("a"); v != 2 {
		t.Fatalf("overwrite did not replace value, got %d", v)
	}

	registry.Unregister("a")
	registry.Unregister("missing")
	if registry.Length() != 1 {
		t.Fatalf("want length 1 got %d", registry.Length())
	}
}

func TestKeysAreSorted(t *testing.T) {
	registry := New[string, int]()
	for _, k := range []string{"hk:task:schedule", "hk:task:cleanup", "hk:task:disable"} {
		registry.MustRegister(k, 0)
	}

	want := []string{"hk:task:cleanup", "hk:task:disable", "hk:task:schedule"}
	if got := registry.Keys(); !slices.Equal(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestRange(t *testing.T) {
	customErr := errors.New("custom error")

	testCases := []struct {
		desc    string
		fn      func(key string, val int) error
		wantErr error
		visits  int
	}{
		{
			desc:    "visits all items",
			fn:      func(string, int) error { return nil },
			wantErr: nil,
			visits:  3,
		},
		{
			desc:    "continue is not an error",
			fn:      func(string, int) error { return ErrContinue },
			wantErr: nil,
			visits:  3,
		},
		{
			desc:    "stop iteration",
			fn:      func(string, int) error { return ErrStopIteration },
			wantErr: nil,
			visits:  1,
		},
		{
			desc:    "custom error is passed through",
			fn:      func(string, int) error { return customErr },
			wantErr: customErr,
			visits:  1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			registry := New[string, int]()
			registry.MustRegister("a", 1)
			registry.MustRegister("b", 2)
			registry.MustRegister("c", 3)

			visits := 0
			err := registry.Range(func(k string, v int) error {
				visits++
				return tc.fn(k, v)
			})
			if err != tc.wantErr {
				t.Fatalf("want error %v got %v", tc.wantErr, err)
			}
			if visits != tc.visits {
				t.Fatalf("want %d visits got %d", tc.visits, visits)
			}
		})
	}
}

func TestRangeAllowsUnregister(t *testing.T) {
	registry := New[string, int]()
	registry.MustRegister("a", 1)
	registry.MustRegister("b", 2)

	err := registry.Range(func(k string, _ int) error {
		registry.Unregister(k)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if registry.Length() != 0 {
		t.Fatalf("want empty registry got %d items", registry.Length())
	}
}
