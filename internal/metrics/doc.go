// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

/*
Package metrics exposes Prometheus instrumentation for Intelstream.

All collectors are registered with the default registry through promauto and
served by the /metrics endpoint:

	curl http://localhost:8080/metrics

Metric families:

  - duckdb_query_duration_seconds, duckdb_query_errors_total: store operations
  - api_requests_total, api_request_duration_seconds, api_active_requests: HTTP
  - stream_subscribers, stream_events_published_total, stream_subscribers_dropped_total,
    stream_cache_entries, stream_backlog_items: the broadcast hub
  - websocket_connections, websocket_messages_sent_total, websocket_errors_total
  - poller_steps_total, poller_step_duration_seconds, poller_running, ingest_items_total
  - housekeeping_runs_total, housekeeping_rows_total
  - enrichment_requests_total, enrichment_duration_seconds
  - circuit_breaker_state, circuit_breaker_requests_total, circuit_breaker_state_transitions_total

Callers use the Record* helpers rather than touching collectors directly so
label values stay consistent.
*/
package metrics
