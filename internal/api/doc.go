// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

/*
Package api provides the HTTP layer for Intelstream.

Routes:

	GET  /api/health                   store and hub status
	GET  /api/intel                    filtered list: type, q, range, limit, offset
	GET  /api/intel/favorites          favorited items: q, limit, offset
	GET  /api/intel/stream             server-sent events: after_ts, after_id, Last-Event-ID
	GET  /api/intel/ws                 WebSocket stream with the same resume parameters
	GET  /api/intel/{id}               one item, from the store or the hub cache
	POST /api/intel/{id}/favorite      {"favorited": true|false}
	GET  /metrics                      Prometheus exposition

List and detail endpoints return plain JSON bodies. Errors use a common
envelope:

	{"error": {"code": "NOT_FOUND", "message": "intel item not found", "request_id": "..."}}

Every route gets a request id, real-IP extraction, panic recovery and CORS.
Everything except the two stream endpoints is rate limited per client IP,
since streams are long-lived and reconnect on their own schedule.

Usage:

	handler := api.NewHandler(db, hub, &cfg.Server, pollers...)
	router := api.NewRouter(handler, api.NewChiMiddlewareFromServerConfig(&cfg.Server))
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: router.SetupChi()}
*/
package api
