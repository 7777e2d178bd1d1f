// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package api

import (
	"net/http"
	"time"
)

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status            string         `json:"status"`
	DatabaseConnected bool           `json:"database_connected"`
	StreamSubscribers int            `json:"stream_subscribers"`
	CachedItems       int            `json:"cached_items"`
	Pollers           []PollerHealth `json:"pollers"`
	UptimeSeconds     float64        `json:"uptime_seconds"`
	Timestamp         time.Time      `json:"timestamp"`
}

// PollerHealth reports one poller's state.
type PollerHealth struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Health handles GET /api/health. It answers 503 when the store is
// unreachable; a stopped poller alone does not make the service unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	pollers := make([]PollerHealth, 0, len(h.pollers))
	for _, p := range h.pollers {
		pollers = append(pollers, PollerHealth{Name: p.Name(), State: p.State().String()})
	}

	health := HealthStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		StreamSubscribers: h.hub.SubscriberCount(),
		CachedItems:       h.hub.CacheLen(),
		Pollers:           pollers,
		UptimeSeconds:     time.Since(h.startTime).Seconds(),
		Timestamp:         time.Now().UTC(),
	}

	status := http.StatusOK
	if !dbConnected {
		health.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}
