// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/database"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/models"
	"github.com/tomtom215/intelstream/internal/validation"
)

const maxFavoriteBodyBytes = 4 << 10

// listQuery holds the query parameters of the list endpoints.
type listQuery struct {
	Type   string `query:"type" validate:"omitempty,oneof=hot history all"`
	Query  string `query:"q" validate:"max=200"`
	Range  string `query:"range" validate:"omitempty,oneof=all 3h 6h 12h 24h 7d 30d"`
	Limit  int    `query:"limit" validate:"min=0,max=100"`
	Offset int    `query:"offset" validate:"min=0"`
}

// favoriteRequest is the body of POST /api/intel/{id}/favorite.
type favoriteRequest struct {
	Favorited *bool `json:"favorited" validate:"required"`
}

// parseIntParam parses an optional non-empty integer query parameter.
func parseIntParam(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

// parseListQuery reads and validates the list parameters. It writes the
// error response itself and returns false when the request is invalid.
func parseListQuery(w http.ResponseWriter, r *http.Request) (database.IntelFilter, bool) {
	q := listQuery{
		Type:  r.URL.Query().Get("type"),
		Query: r.URL.Query().Get("q"),
		Range: r.URL.Query().Get("range"),
	}

	var err error
	if q.Limit, err = parseIntParam(r, "limit", 0); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return database.IntelFilter{}, false
	}
	if q.Offset, err = parseIntParam(r, "offset", 0); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return database.IntelFilter{}, false
	}
	if verr := validation.ValidateStruct(q); verr != nil {
		respondValidationError(w, r, verr)
		return database.IntelFilter{}, false
	}

	// The list endpoint shows everything unless asked otherwise.
	if q.Type == "" {
		q.Type = string(models.ItemTypeAll)
	}
	itemType, err := models.ParseItemType(q.Type)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return database.IntelFilter{}, false
	}
	timeRange, err := models.ParseTimeRange(q.Range)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return database.IntelFilter{}, false
	}

	return database.IntelFilter{
		Type:   itemType,
		Query:  q.Query,
		Range:  timeRange,
		Limit:  q.Limit,
		Offset: q.Offset,
	}, true
}

// ListIntel handles GET /api/intel.
func (h *Handler) ListIntel(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseListQuery(w, r)
	if !ok {
		return
	}

	resp, err := h.store.QueryFiltered(r.Context(), filter)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListFavorites handles GET /api/intel/favorites. The type parameter is
// accepted but ignored.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseListQuery(w, r)
	if !ok {
		return
	}

	resp, err := h.store.ListFavorites(r.Context(), filter)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetIntel handles GET /api/intel/{id}. Items still only in the hub cache are
// served from there and persisted on the way out, so later favorite and
// detail calls find them in the store.
func (h *Handler) GetIntel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.store.GetByID(r.Context(), id)
	if err == nil {
		respondJSON(w, http.StatusOK, item)
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		respondDatabaseError(w, r, err)
		return
	}

	cached, ok := h.hub.GetCached(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "intel item not found")
		return
	}
	if err := h.store.EnsureItem(r.Context(), cached); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("item_id", id).Msg("Failed to persist cached item")
	}
	respondJSON(w, http.StatusOK, cached)
}

// ToggleFavorite handles POST /api/intel/{id}/favorite.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req favoriteRequest
	body := http.MaxBytesReader(w, r.Body, maxFavoriteBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}
	favorited := *req.Favorited

	item, err := h.store.ToggleFavorite(r.Context(), id, favorited)
	if err == nil {
		respondJSON(w, http.StatusOK, item)
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		respondDatabaseError(w, r, err)
		return
	}

	cached, ok := h.hub.GetCached(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "intel item not found")
		return
	}
	if err := h.store.EnsureItem(r.Context(), cached.WithFavorited(favorited)); err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	item, err = h.store.ToggleFavorite(r.Context(), id, favorited)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Debug().Str("item_id", id).Bool("favorited", favorited).Msg("Favorited cached item")
	respondJSON(w, http.StatusOK, item)
}
