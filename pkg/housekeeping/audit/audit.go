// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package audit maintains the retention of the housekeeping audit trail.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	asynqutils "github.com/gardener/housekeeping/pkg/utils/asynq"
)

// ErrInvalidRetention is returned when the retention is not positive.
var ErrInvalidRetention = errors.New("invalid audit retention")

// Recorder records the number of purged audit entries.
type Recorder interface {
	RecordAuditPurged(count int)
}

// Purger deletes audit entries older than a retention window.
type Purger struct {
	store    store.AuditStore
	clock    func() time.Time
	recorder Recorder
}

// Option is a function, which configures the [Purger].
type Option func(p *Purger)

// WithClock is an [Option], which configures the clock of the [Purger].
func WithClock(clock func() time.Time) Option {
	opt := func(p *Purger) {
		p.clock = clock
	}

	return opt
}

// WithRecorder is an [Option], which configures the [Recorder] of the
// [Purger].
func WithRecorder(r Recorder) Option {
	opt := func(p *Purger) {
		p.recorder = r
	}

	return opt
}

// NewPurger creates a new [Purger] for the given audit store.
func NewPurger(s store.AuditStore, opts ...Option) *Purger {
	p := &Purger{
		store: s,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Purge deletes the audit entries, which were created before now minus the
// retention. Returns the number of deleted entries.
func (p *Purger) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRetention, retention)
	}

	logger := asynqutils.GetLogger(ctx)
	before := p.clock().UTC().Add(-retention)
	count, err := p.store.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("cannot purge audit entries: %w", err)
	}

	logger.Info("purged audit entries", "count", count, "before", before)
	if p.recorder != nil {
		p.recorder.RecordAuditPurged(count)
	}

	return count, nil
}
