// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package main is the entry point for the Intelstream server.
//
// Intelstream polls upstream sources (a Payload CMS collection, a sequential
// article API, RSS/Atom feeds, or a synthetic generator), enriches each new
// document, upserts it into DuckDB and pushes it to every connected stream
// client over server-sent events or WebSocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional config.yaml, environment (Koanf v2)
//  2. Logging: zerolog, plus an slog bridge for the supervisor
//  3. Database: DuckDB upsert store
//  4. Broadcast hub: replay cache seeded from the newest hot items
//  5. Enrichment: model-backed when an API key is configured, pass-through otherwise
//  6. Pollers: one per enabled source, sharing one housekeeper
//  7. HTTP server: REST, stream endpoints and /metrics
//
// Everything long-running is a suture service under one supervisor tree:
//
//	intelstream
//	├── data-layer    broadcast hub
//	├── ingest-layer  pollers
//	└── api-layer     HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The tree then shuts the HTTP
// server down gracefully and stops every poller, cancelling any in-flight
// step. Stream subscriptions are closed before the database is.
//
// # Example Usage
//
//	export PAYLOAD_ENABLED=true
//	export PAYLOAD_URL=https://cms.example.com
//	export PAYLOAD_COLLECTION=intel
//	export PAYLOAD_EMAIL=ingest@example.com
//	export PAYLOAD_PASSWORD=...
//	./intelstream
//
// Demo mode without any upstream:
//
//	MOCK_ENABLED=true ./intelstream
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/intelstream/internal/api"
	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/database"
	"github.com/tomtom215/intelstream/internal/enrich"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/supervisor"
	"github.com/tomtom215/intelstream/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("payload", cfg.Payload.Enabled).
		Bool("article", cfg.Article.Enabled).
		Bool("feeds", cfg.Feeds.Enabled).
		Bool("mock", cfg.Mock.Enabled).
		Bool("enrichment", cfg.Enrichment.Enabled).
		Msg("Starting Intelstream")

	if !cfg.AnySourceEnabled() {
		logging.Warn().Msg("No source enabled; the stream will only replay stored items")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub(broadcast.Config{
		CacheCapacity: cfg.Stream.CacheCapacity,
		ChunkSize:     cfg.Stream.ChunkSize,
		KeepAlive:     cfg.Stream.KeepAlive,
		QueueSize:     cfg.Stream.QueueSize,
		BackfillLimit: cfg.Stream.BackfillLimit,
	})
	if n, err := hub.Backfill(ctx, db); err != nil {
		// The cache fills from live ingestion instead.
		logging.Warn().Err(err).Msg("Failed to backfill stream cache")
	} else {
		logging.Info().Int("items", n).Msg("Stream cache backfilled")
	}

	enricher, err := enrich.New(ctx, &cfg.Enrichment)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to initialize enrichment, ingesting without it")
		enricher = enrich.Noop{}
	}

	pollers := buildPollers(cfg, db, hub, enricher)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewHubService(hub))

	statuses := make([]api.PollerStatus, 0, len(pollers))
	for _, p := range pollers {
		tree.AddIngestService(services.NewPollerService(p))
		statuses = append(statuses, p)
	}

	handler := api.NewHandler(db, hub, &cfg.Server, statuses...)
	router := api.NewRouter(handler, api.NewChiMiddlewareFromServerConfig(&cfg.Server))

	// No write timeout: stream responses stay open indefinitely.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", server.Addr).
		Int("pollers", len(pollers)).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// ServeBackground delivers exactly one result, after the whole tree stopped.
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Intelstream stopped gracefully")
}
