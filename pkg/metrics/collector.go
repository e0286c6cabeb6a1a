// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gardener/housekeeping/pkg/core/registry"
)

// DefaultSnapshotTTL is the time after which a gauge, which was not
// refreshed, is no longer exposed by a [Collector].
const DefaultSnapshotTTL = 15 * time.Minute

// DefaultCollector is the default [Collector] for metrics.
var DefaultCollector = NewCollector()

// sample is a metric along with the time it was last reported.
type sample struct {
	metric    prometheus.Metric
	updatedAt time.Time
}

// Collector exposes snapshot gauges, such as the number of records per
// lifecycle and status, which are refreshed by cleanup runs.
//
// A [prometheus.GaugeVec] keeps reporting the last value of a label set
// forever. Once no record is left in a given status, the refresh no longer
// reports that status, so the [Collector] drops samples which were not
// refreshed within the configured TTL.
type Collector struct {
	mu      sync.Mutex
	descs   []*prometheus.Desc
	ttl     time.Duration
	clock   func() time.Time
	samples *registry.Registry[string, sample]
}

var _ prometheus.Collector = &Collector{}

// CollectorOption is a function, which configures the [Collector].
type CollectorOption func(c *Collector)

// WithSnapshotTTL is a [CollectorOption], which configures the TTL of
// samples.
func WithSnapshotTTL(ttl time.Duration) CollectorOption {
	opt := func(c *Collector) {
		c.ttl = ttl
	}

	return opt
}

// WithCollectorClock is a [CollectorOption], which configures the clock used
// for aging samples.
func WithCollectorClock(clock func() time.Time) CollectorOption {
	opt := func(c *Collector) {
		c.clock = clock
	}

	return opt
}

// NewCollector creates a new [Collector].
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		descs:   make([]*prometheus.Desc, 0),
		ttl:     DefaultSnapshotTTL,
		clock:   time.Now,
		samples: registry.New[string, sample](),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AddDesc adds the given descriptors to the [Collector].
func (c *Collector) AddDesc(items ...*prometheus.Desc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descs = append(c.descs, items...)
}

// AddMetric stores the metric under the given key, replacing any previous
// sample with the same key. Use [Key] for deriving the key from the label
// values.
func (c *Collector) AddMetric(key string, metric prometheus.Metric) {
	c.samples.Overwrite(key, sample{metric: metric, updatedAt: c.clock()})
}

// Describe implements the [prometheus.Collector] interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, desc := range c.descs {
		ch <- desc
	}
}

// Collect implements the [prometheus.Collector] interface. Expired samples
// are removed instead of being sent.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cutoff := c.clock().Add(-c.ttl)
	expired := make([]string, 0)
	_ = c.samples.Range(func(key string, s sample) error {
		if s.updatedAt.Before(cutoff) {
			expired = append(expired, key)

			return nil
		}
		ch <- s.metric

		return nil
	})

	for _, key := range expired {
		c.samples.Unregister(key)
	}
}

// Key joins the given items into a key suitable for [Collector.AddMetric].
func Key(item string, rest ...string) string {
	return strings.Join(append([]string{item}, rest...), "/")
}
