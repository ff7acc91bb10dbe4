// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Accounting metrics
	AuthEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authtally_events_recorded_total",
			Help: "Total number of authentication events accounted",
		},
		[]string{"scheme"},
	)

	AuthEventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authtally_events_rejected_total",
			Help: "Total number of authentication events rejected by validation",
		},
	)

	AuthRecordDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authtally_record_duration_seconds",
			Help:    "End-to-end duration of accounting one authentication event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Retention metrics
	RetentionRowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authtally_retention_rows_deleted_total",
			Help: "Total number of rows removed by retention sweeps",
		},
		[]string{"kind"}, // "activity", "counters"
	)

	RetentionSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authtally_retention_sweeps_total",
			Help: "Total number of completed retention sweeps",
		},
	)

	// Queue metrics
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authtally_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)

	JobsClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authtally_jobs_claimed_total",
			Help: "Total number of jobs successfully claimed by workers",
		},
		[]string{"type"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authtally_jobs_failed_total",
			Help: "Total number of jobs moved to the dead-letter table",
		},
		[]string{"type"},
	)

	DequeueContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authtally_dequeue_contention_total",
			Help: "Total number of dequeue attempts abandoned after losing every claim race",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "authtally_queue_depth",
			Help: "Current number of pending jobs",
		},
		[]string{"type"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authtally_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authtally_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authtally_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)
)

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
