// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

/*
Package metrics provides Prometheus metrics for the accounting pipeline, the
job queue, retention sweeps, and the HTTP API.

Metrics are registered with the default registry via promauto and exposed at
the /metrics endpoint in Prometheus text format:

	curl http://localhost:8464/metrics

Naming follows the Prometheus conventions: underscore separation, unit
suffixes, _total for counters. Labels are kept low-cardinality; user hashes
and entity ids never appear as label values.

Example PromQL queries:

	# Events accounted per second, by scheme
	rate(authtally_events_recorded_total[5m])

	# p95 API latency
	histogram_quantile(0.95, rate(authtally_http_request_duration_seconds_bucket[5m]))

	# Dequeue contention ratio
	rate(authtally_dequeue_contention_total[5m]) / rate(authtally_jobs_claimed_total[5m])
*/
package metrics
