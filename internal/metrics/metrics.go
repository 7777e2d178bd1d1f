// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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
		[]string{"operation", "table", "error_type"},
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

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Broadcast Hub Metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Current number of live stream subscribers",
		},
	)

	StreamEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_published_total",
			Help: "Total number of events published to the hub",
		},
		[]string{"event"},
	)

	StreamSubscribersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_subscribers_dropped_total",
			Help: "Total number of subscribers removed by the hub",
		},
		[]string{"reason"}, // "queue_full", "closed"
	)

	StreamCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_cache_entries",
			Help: "Current number of items in the replay cache",
		},
	)

	StreamBacklogItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stream_backlog_items",
			Help:    "Number of cached items replayed to a new subscriber",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Poller Metrics
	PollerSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_steps_total",
			Help: "Total number of poll steps by outcome",
		},
		[]string{"poller", "result"}, // result: "success", "error", "panic"
	)

	PollerStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poller_step_duration_seconds",
			Help:    "Duration of a single poll step",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"poller"},
	)

	PollerRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poller_running",
			Help: "Whether a poller loop is running (1) or idle (0)",
		},
		[]string{"poller"},
	)

	IngestItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_total",
			Help: "Items passing through each ingestion stage",
		},
		[]string{"poller", "stage"}, // stage: "fetched", "new", "enriched", "stored", "published", "failed"
	)

	HousekeepingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "housekeeping_runs_total",
			Help: "Total number of housekeeping runs",
		},
		[]string{"result"},
	)

	HousekeepingRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "housekeeping_rows_total",
			Help: "Rows affected by housekeeping",
		},
		[]string{"action"}, // "deleted", "demoted"
	)

	// Enrichment Metrics
	EnrichmentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_requests_total",
			Help: "Total number of enrichment attempts by outcome",
		},
		[]string{"result"}, // "enriched", "unchanged", "error", "rejected"
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Duration of enrichment calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Circuit Breaker Metrics
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
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table, classifyError(err)).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordPollStep records the outcome of one poll step.
func RecordPollStep(poller, result string, duration time.Duration) {
	PollerSteps.WithLabelValues(poller, result).Inc()
	PollerStepDuration.WithLabelValues(poller).Observe(duration.Seconds())
}

// SetPollerRunning flags a poller loop as running or idle.
func SetPollerRunning(poller string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	PollerRunning.WithLabelValues(poller).Set(v)
}

// RecordIngest adds n items to an ingestion stage counter.
func RecordIngest(poller, stage string, n int) {
	if n <= 0 {
		return
	}
	IngestItems.WithLabelValues(poller, stage).Add(float64(n))
}

// RecordHousekeeping records a housekeeping run and the rows it touched.
func RecordHousekeeping(deleted, demoted int64, err error) {
	if err != nil {
		HousekeepingRuns.WithLabelValues("error").Inc()
	} else {
		HousekeepingRuns.WithLabelValues("success").Inc()
	}
	HousekeepingRows.WithLabelValues("deleted").Add(float64(deleted))
	HousekeepingRows.WithLabelValues("demoted").Add(float64(demoted))
}

// RecordEnrichment records one enrichment attempt.
func RecordEnrichment(result string, duration time.Duration) {
	EnrichmentRequests.WithLabelValues(result).Inc()
	EnrichmentDuration.Observe(duration.Seconds())
}

// RecordPublish records an event accepted by the hub.
func RecordPublish(event string) {
	StreamEventsPublished.WithLabelValues(event).Inc()
}

// RecordSubscriberDropped records a subscriber removed by the hub.
func RecordSubscriberDropped(reason string) {
	StreamSubscribersDropped.WithLabelValues(reason).Inc()
}

// classifyError maps an error to a low-cardinality label value.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Conflict"), strings.Contains(msg, "conflict"):
		return "conflict"
	case strings.Contains(msg, "Constraint"), strings.Contains(msg, "constraint"):
		return "constraint"
	case strings.Contains(msg, "closed"):
		return "closed"
	default:
		return "other"
	}
}
