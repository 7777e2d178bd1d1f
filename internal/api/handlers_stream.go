// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/websocket"
)

// lastEventIDHeader is sent by EventSource clients when they reconnect.
const lastEventIDHeader = "Last-Event-ID"

// parseResume reads the resume parameters. An explicit after_id wins over
// the Last-Event-ID header.
func parseResume(r *http.Request) (broadcast.ResumeOptions, error) {
	q := r.URL.Query()
	opts := broadcast.ResumeOptions{AfterID: q.Get("after_id")}
	if opts.AfterID == "" {
		opts.AfterID = r.Header.Get(lastEventIDHeader)
	}

	if raw := q.Get("after_ts"); raw != "" {
		ts, err := strconv.ParseFloat(raw, 64)
		if err != nil || ts < 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
			return opts, fmt.Errorf("after_ts must be a non-negative number of seconds")
		}
		opts.AfterTimestamp = ts
	}
	return opts, nil
}

// StreamIntel handles GET /api/intel/stream as server-sent events. The
// backlog goes out as initial_batch events, followed by live new_intel
// events and keep-alive comments, until the client disconnects.
func (h *Handler) StreamIntel(w http.ResponseWriter, r *http.Request) {
	opts, err := parseResume(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe(opts)
	logger := logging.Ctx(r.Context()).With().
		Str("subscriber_id", sub.ID()).
		Str("transport", "sse").
		Logger()
	logger.Debug().
		Int("backlog", sub.Backlog()).
		Str("after_id", opts.AfterID).
		Float64("after_ts", opts.AfterTimestamp).
		Msg("Stream subscribed")

	err = sub.Stream(r.Context(), broadcast.NewSSEWriter(w))
	switch {
	case err == nil:
		logger.Debug().Msg("Stream closed")
	case errors.Is(err, broadcast.ErrSubscriberDropped):
		logger.Warn().Msg("Stream dropped: subscriber fell behind")
	default:
		logger.Debug().Err(err).Msg("Stream ended")
	}
}

// StreamIntelWS handles GET /api/intel/ws. Events are delivered as JSON
// frames {"type", "id", "data"}.
func (h *Handler) StreamIntelWS(w http.ResponseWriter, r *http.Request) {
	opts, err := parseResume(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(opts)
	logger := logging.Ctx(r.Context()).With().
		Str("subscriber_id", sub.ID()).
		Str("transport", "websocket").
		Logger()
	logger.Debug().Int("backlog", sub.Backlog()).Msg("Stream subscribed")

	if err := websocket.Serve(r.Context(), conn, sub); err != nil && !errors.Is(err, broadcast.ErrSubscriberDropped) {
		logger.Debug().Err(err).Msg("WebSocket stream ended")
		return
	}
	logger.Debug().Msg("WebSocket stream closed")
}
