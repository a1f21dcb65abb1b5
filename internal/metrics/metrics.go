// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package metrics provides Prometheus instrumentation for Watchgate:
//   - Event ingestion throughput and drops
//   - Identifier resolution cache efficiency
//   - Watchlist state transitions
//   - Mirror store propagation
//   - Realtime fanout connections and messages
//   - Database query performance (DuckDB)
//   - API endpoint latency and throughput
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total number of detection pipeline events processed",
		},
		[]string{"subject"}, // "incidents.detected", "incidents.updated"
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_dropped_total",
			Help: "Total number of events dropped after a processing failure",
		},
		[]string{"subject", "reason"}, // reason: "validation", "resolution", "database", "handler"
	)

	IngestHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_handler_duration_seconds",
			Help:    "Duration of event handler execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Resolver Metrics
	ResolverCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_cache_hits_total",
			Help: "Total number of identifier resolution cache hits",
		},
	)

	ResolverCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_cache_misses_total",
			Help: "Total number of identifier resolution cache misses",
		},
	)

	ResolverDirectoryCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_directory_calls_total",
			Help: "Total number of directory service lookups",
		},
		[]string{"lookup", "outcome"}, // lookup: "company_branch", "camera", ...; outcome: "ok", "error"
	)

	// Watchlist Metrics
	WatchlistAdds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_adds_total",
			Help: "Total number of watchlist additions",
		},
		[]string{"origin"}, // "ingest", "api", "analyst"
	)

	WatchlistRemoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_removes_total",
			Help: "Total number of watchlist removals",
		},
		[]string{"kind"}, // "incident", "customer"
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_status_transitions_total",
			Help: "Total number of incident status transitions",
		},
		[]string{"status"},
	)

	// Mirror Propagation Metrics
	MirrorPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_pushes_total",
			Help: "Total number of documents pushed to the mirror store",
		},
		[]string{"kind"}, // "incident", "customer"
	)

	MirrorPulls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_pulls_total",
			Help: "Total number of documents removed from the mirror store",
		},
	)

	MirrorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_failures_total",
			Help: "Total number of mirror store operations that failed (and were swallowed)",
		},
		[]string{"operation"}, // "push", "pull"
	)

	ReplayRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_replay_requests_total",
			Help: "Total number of delivery-log replay requests",
		},
	)

	// Fanout Metrics
	FanoutConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fanout_connections",
			Help: "Current number of active fanout websocket connections",
		},
		[]string{"channel"}, // "user", "branch"
	)

	FanoutMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_messages_published_total",
			Help: "Total number of watchlist messages published to NATS",
		},
		[]string{"channel"},
	)

	FanoutMessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_messages_delivered_total",
			Help: "Total number of messages delivered to websocket clients",
		},
	)

	FanoutDisplacements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_branch_displacements_total",
			Help: "Total number of branch connections displaced by a newer socket",
		},
	)

	// Alerting Metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_sent_total",
			Help: "Total number of analyst notifications sent",
		},
		[]string{"kind", "outcome"}, // kind: "watchlist", "sensitive", "queue"
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records the duration and outcome of a database query.
func RecordDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordEventDrop records a dropped event with its failure class.
func RecordEventDrop(subject, reason string) {
	EventsDropped.WithLabelValues(subject, reason).Inc()
}

// RecordDirectoryCall records a directory service lookup outcome.
func RecordDirectoryCall(lookup string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ResolverDirectoryCalls.WithLabelValues(lookup, outcome).Inc()
}

// RecordMirrorFailure records a swallowed mirror store failure.
func RecordMirrorFailure(operation string) {
	MirrorFailures.WithLabelValues(operation).Inc()
}

// RecordAlert records an outbound notification attempt.
func RecordAlert(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AlertsSent.WithLabelValues(kind, outcome).Inc()
}
