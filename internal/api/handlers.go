// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package api

import (
	"context"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/database"
	"github.com/tomtom215/intelstream/internal/models"
	"github.com/tomtom215/intelstream/internal/poller"
	"github.com/tomtom215/intelstream/internal/websocket"
)

// Store is the subset of the upsert store the handlers read and write.
// *database.DB implements it.
type Store interface {
	QueryFiltered(ctx context.Context, filter database.IntelFilter) (*models.IntelListResponse, error)
	ListFavorites(ctx context.Context, filter database.IntelFilter) (*models.IntelListResponse, error)
	GetByID(ctx context.Context, id string) (*models.IntelItem, error)
	ToggleFavorite(ctx context.Context, id string, favorited bool) (*models.IntelItem, error)
	EnsureItem(ctx context.Context, item *models.IntelItem) error
	Ping(ctx context.Context) error
}

// PollerStatus is what the health endpoint reports per poller.
// *poller.Poller implements it.
type PollerStatus interface {
	Name() string
	State() poller.State
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_intel.go: list, favorites, detail and favorite toggling
//   - handlers_stream.go: SSE and WebSocket streams
//   - handlers_health.go: health endpoint
type Handler struct {
	store     Store
	hub       *broadcast.Hub
	pollers   []PollerStatus
	upgrader  *gorillaws.Upgrader
	startTime time.Time
}

// NewHandler creates an API handler. The WebSocket upgrader accepts the
// configured CORS origins.
func NewHandler(store Store, hub *broadcast.Hub, cfg *config.ServerConfig, pollers ...PollerStatus) *Handler {
	var origins []string
	if cfg != nil {
		origins = cfg.CORSOrigins
	}
	return &Handler{
		store:     store,
		hub:       hub,
		pollers:   pollers,
		upgrader:  websocket.NewUpgrader(origins),
		startTime: time.Now(),
	}
}
