// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func collect(c *Collector) int {
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}

	return count
}

func gauge(status string, value float64) prometheus.Metric {
	return prometheus.MustNewConstMetric(RecordsDesc, prometheus.GaugeValue, value, "EXPIRED", status)
}

func TestCollectorKeepsLatestSample(t *testing.T) {
	c := NewCollector()
	c.AddDesc(RecordsDesc)

	for _, status := range []string{"SCHEDULED", "FAILED", "SCHEDULED"} {
		c.AddMetric(Key("records", "EXPIRED", status), gauge(status, 1))
	}

	if got := collect(c); got != 2 {
		t.Fatalf("want 2 metrics got %d", got)
	}

	// Samples survive repeated scrapes until they expire.
	if got := collect(c); got != 2 {
		t.Fatalf("want 2 metrics on second scrape got %d", got)
	}
}

func TestCollectorExpiresStaleSamples(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCollector(WithSnapshotTTL(time.Minute), WithCollectorClock(clock))

	c.AddMetric(Key("records", "EXPIRED", "FAILED"), gauge("FAILED", 3))
	now = now.Add(30 * time.Second)
	c.AddMetric(Key("records", "EXPIRED", "SCHEDULED"), gauge("SCHEDULED", 5))

	now = now.Add(45 * time.Second)
	if got := collect(c); got != 1 {
		t.Fatalf("want 1 metric got %d", got)
	}

	now = now.Add(time.Hour)
	if got := collect(c); got != 0 {
		t.Fatalf("want 0 metrics got %d", got)
	}
	if got := c.samples.Length(); got != 0 {
		t.Fatalf("want expired samples removed, got %d", got)
	}
}

func TestKey(t *testing.T) {
	if want, got := "records/EXPIRED/FAILED", Key("records", "EXPIRED", "FAILED"); want != got {
		t.Fatalf("want %s got %s", want, got)
	}
}
