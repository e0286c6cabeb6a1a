// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the namespace component of the fully qualified metric name
const Namespace = "housekeeping"

// DefaultRegistry is the default [prometheus.Registry] for metrics.
var DefaultRegistry = prometheus.NewPedanticRegistry()

var (
	// TaskSuccessfulTotal is a metric, which gets incremented each time a
	// task has completed successfully.
	TaskSuccessfulTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "task_successful_total",
			Help:      "Total number of times a task has completed successfully",
		},
		[]string{"task_name", "task_queue"},
	)

	// TaskFailedTotal is a metric, which gets incremented each time a task
	// has failed.
	TaskFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "task_failed_total",
			Help:      "Total number of times a task has failed",
		},
		[]string{"task_name", "task_queue"},
	)

	// TaskSkippedTotal is a metric, which gets incremented each time a
	// task has been skipped from being retried.
	TaskSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "task_skipped_total",
			Help:      "Total number of times a task has been skipped",
		},
		[]string{"task_name", "task_queue"},
	)

	// TaskDurationSeconds is a metric, which tracks the duration of
	// successfully completed tasks.
	TaskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of successfully completed tasks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"task_name", "task_queue"},
	)

	// BytesDeletedTotal is a metric, which tracks the number of bytes
	// deleted from the object store, per owning table.
	BytesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_deleted_total",
			Help:      "Total number of bytes deleted from the object store",
		},
		[]string{"database", "table", "dry_run"},
	)

	// RecordsProcessedTotal is a metric, which gets incremented each time a
	// record has been processed by a cleanup run.
	RecordsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_processed_total",
			Help:      "Total number of housekeeping records processed by cleanup runs",
		},
		[]string{"lifecycle_type", "status", "dry_run"},
	)

	// ScheduleFailedTotal is a metric, which gets incremented each time an
	// intent could not be persisted.
	ScheduleFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "schedule_failed_total",
			Help:      "Total number of intents, which could not be scheduled",
		},
		[]string{"lifecycle_type"},
	)

	// AuditPurgedTotal is a metric, which tracks the number of purged
	// audit entries.
	AuditPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_purged_total",
			Help:      "Total number of audit entries purged by retention",
		},
	)

	// RecordsDesc describes the gauge of records per lifecycle and status,
	// which is reported through the [DefaultCollector].
	RecordsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "", "records"),
		"Number of housekeeping records per lifecycle and status",
		[]string{"lifecycle_type", "status"},
		nil,
	)
)

// Recorder records the outcome of housekeeping operations.
type Recorder struct{}

// RecordBytes records bytes deleted for the given owning table.
func (Recorder) RecordBytes(database, table string, dryRun bool, bytes int64) {
	if bytes <= 0 {
		return
	}
	BytesDeletedTotal.WithLabelValues(database, table, strconv.FormatBool(dryRun)).Add(float64(bytes))
}

// RecordOutcome records the status, to which a record has transitioned.
func (Recorder) RecordOutcome(lifecycle, status string, dryRun bool) {
	RecordsProcessedTotal.WithLabelValues(lifecycle, status, strconv.FormatBool(dryRun)).Inc()
}

// RecordScheduleFailure records an intent, which could not be scheduled.
func (Recorder) RecordScheduleFailure(lifecycle string) {
	ScheduleFailedTotal.WithLabelValues(lifecycle).Inc()
}

// RecordAuditPurged records the number of purged audit entries.
func (Recorder) RecordAuditPurged(count int) {
	AuditPurgedTotal.Add(float64(count))
}

// RecordRecords reports the current number of records in the given status.
func (Recorder) RecordRecords(lifecycle, status string, count int) {
	metric := prometheus.MustNewConstMetric(
		RecordsDesc,
		prometheus.GaugeValue,
		float64(count),
		lifecycle,
		status,
	)
	DefaultCollector.AddMetric(Key("records", lifecycle, status), metric)
}

// NewServer returns a new [http.Server] which can serve the metrics from
// [DefaultRegistry] on the specified network address and HTTP path. Callers
// are responsible for starting up and shutting down the HTTP server.
func NewServer(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(
		path,
		promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{}),
	)

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: time.Second * 30,
		Handler:           mux,
	}

	return server
}

// init registers collectors with the [DefaultRegistry].
func init() {
	DefaultCollector.AddDesc(RecordsDesc)
	DefaultRegistry.MustRegister(
		// Housekeeping metrics
		TaskSuccessfulTotal,
		TaskFailedTotal,
		TaskSkippedTotal,
		TaskDurationSeconds,
		BytesDeletedTotal,
		RecordsProcessedTotal,
		ScheduleFailedTotal,
		AuditPurgedTotal,
		DefaultCollector,

		// Standard Go metrics
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}
