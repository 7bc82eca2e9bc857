// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package metrics holds the Prometheus collectors for Greeting.
//
// Collectors are registered on the default registry through promauto and
// exposed on /metrics by the api package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter store metrics
	CountersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_counters",
			Help: "Current number of counters held in memory",
		},
	)

	CounterOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greeting_counter_operations_total",
			Help: "Counter store operations by kind and result",
		},
		[]string{"operation", "result"}, // operation: increment, create, delete, read
	)

	CounterSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "greeting_counter_sweeps_total",
			Help: "Number of capacity sweeps started",
		},
	)

	CounterSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "greeting_counter_swept_total",
			Help: "Number of counters removed by capacity sweeps",
		},
	)

	// Write-behind metrics
	PersistMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greeting_persist_messages_total",
			Help: "Persist messages by outcome",
		},
		[]string{"outcome"}, // queued, dropped_full, dropped_not_ready, written, failed
	)

	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_persist_queue_depth",
			Help: "Current number of persist messages waiting in the write-behind channel",
		},
	)

	SinkWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greeting_sink_write_duration_seconds",
			Help:    "Duration of durable sink writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	// Profile cache metrics
	ProfileCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greeting_profile_cache_lookups_total",
			Help: "Profile cache lookups by result",
		},
		[]string{"result"}, // fresh, stale, miss, pending, unauthorized
	)

	ProfileCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_profile_cache_entries",
			Help: "Current number of profile cache slots",
		},
	)

	ProfileCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "greeting_profile_cache_evictions_total",
			Help: "Profile cache entries removed by TTL retention sweeps",
		},
	)

	RefreshQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_refresh_queue_length",
			Help: "Current number of items in the profile refresh queue",
		},
	)

	// Upstream metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greeting_upstream_request_duration_seconds",
			Help:    "Duration of upstream API calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"document"}, // user, summary
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greeting_upstream_errors_total",
			Help: "Upstream API errors by kind",
		},
		[]string{"kind"}, // transport, status, decode, discourse, breaker
	)

	UpstreamFetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_upstream_fetches_in_flight",
			Help: "Number of profile fetches currently running",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Background task metrics
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_background_tasks_running",
			Help: "Number of background tasks currently running",
		},
	)

	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greeting_background_tasks_started_total",
			Help: "Background tasks started by name",
		},
		[]string{"task"},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greeting_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greeting_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greeting_http_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// RecordAPIRequest records an HTTP request metric.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCounterOperation records a counter store operation.
func RecordCounterOperation(operation string, ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	CounterOperations.WithLabelValues(operation, result).Inc()
}

// RecordSinkWrite records the duration of a durable sink write.
func RecordSinkWrite(driver, operation string, duration time.Duration, err error) {
	SinkWriteDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
	if err != nil {
		PersistMessages.WithLabelValues("failed").Inc()
		return
	}
	PersistMessages.WithLabelValues("written").Inc()
}

// RecordUpstreamRequest records one upstream API call.
func RecordUpstreamRequest(document string, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(document).Observe(duration.Seconds())
}
