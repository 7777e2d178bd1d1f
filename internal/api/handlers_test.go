// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/database"
	"github.com/tomtom215/intelstream/internal/models"
	"github.com/tomtom215/intelstream/internal/poller"
)

// fakeStore is an in-memory Store. Items are kept in insertion order.
type fakeStore struct {
	mu       sync.Mutex
	items    map[string]*models.IntelItem
	order    []string
	filters  []database.IntelFilter
	ensured  []string
	pingErr  error
	queryErr error
}

func newFakeStore(items ...*models.IntelItem) *fakeStore {
	s := &fakeStore{items: make(map[string]*models.IntelItem)}
	for _, item := range items {
		s.items[item.ID] = item.Clone()
		s.order = append(s.order, item.ID)
	}
	return s
}

func (s *fakeStore) list(filter database.IntelFilter, favoritesOnly bool) (*models.IntelListResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, filter)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	resp := &models.IntelListResponse{Items: []*models.IntelItem{}}
	for _, id := range s.order {
		item := s.items[id]
		if favoritesOnly && !item.Favorited {
			continue
		}
		if filter.Query != "" && !strings.Contains(item.Title, filter.Query) {
			continue
		}
		resp.Items = append(resp.Items, item.Clone())
	}
	resp.Total = len(resp.Items)
	return resp, nil
}

func (s *fakeStore) QueryFiltered(_ context.Context, filter database.IntelFilter) (*models.IntelListResponse, error) {
	return s.list(filter, false)
}

func (s *fakeStore) ListFavorites(_ context.Context, filter database.IntelFilter) (*models.IntelListResponse, error) {
	return s.list(filter, true)
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.IntelItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return item.Clone(), nil
}

func (s *fakeStore) ToggleFavorite(_ context.Context, id string, favorited bool) (*models.IntelItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	item.Favorited = favorited
	return item.Clone(), nil
}

func (s *fakeStore) EnsureItem(_ context.Context, item *models.IntelItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, item.ID)
	if _, ok := s.items[item.ID]; !ok {
		s.items[item.ID] = item.Clone()
		s.order = append(s.order, item.ID)
	}
	return nil
}

func (s *fakeStore) Ping(context.Context) error {
	return s.pingErr
}

func (s *fakeStore) lastFilter(t *testing.T) database.IntelFilter {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.filters) == 0 {
		t.Fatal("store was not queried")
	}
	return s.filters[len(s.filters)-1]
}

type staticPoller struct {
	name  string
	state poller.State
}

func (p staticPoller) Name() string        { return p.name }
func (p staticPoller) State() poller.State { return p.state }

func testItem(id, title string, ts float64) *models.IntelItem {
	return &models.IntelItem{
		ID:        id,
		Title:     title,
		Summary:   "summary of " + title,
		Content:   "body of " + title,
		Source:    "test",
		Timestamp: ts,
		Tags:      []models.Tag{},
		IsHot:     true,
	}
}

// setupTestRouter builds the full router over store and a fresh hub.
func setupTestRouter(t *testing.T, store *fakeStore, pollers ...PollerStatus) (http.Handler, *broadcast.Hub) {
	t.Helper()
	hub := broadcast.NewHub(broadcast.DefaultConfig())
	t.Cleanup(hub.Close)

	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true
	handler := NewHandler(store, hub, &config.ServerConfig{}, pollers...)
	return NewRouter(handler, NewChiMiddleware(mwCfg)).SetupChi(), hub
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestListIntel(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		testItem("a", "alpha report", 1),
		testItem("b", "beta report", 2),
	)
	router, _ := setupTestRouter(t, store)

	rec := doRequest(t, router, http.MethodGet, "/api/intel?type=hot&q=alpha&range=3h&limit=5&offset=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[models.IntelListResponse](t, rec)
	if resp.Total != 1 || len(resp.Items) != 1 || resp.Items[0].ID != "a" {
		t.Errorf("response = %+v, want only item a", resp)
	}

	filter := store.lastFilter(t)
	want := database.IntelFilter{
		Type:   models.ItemTypeHot,
		Query:  "alpha",
		Range:  models.Range3h,
		Limit:  5,
		Offset: 2,
	}
	if filter != want {
		t.Errorf("filter = %+v, want %+v", filter, want)
	}
}

func TestListIntel_Defaults(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router, _ := setupTestRouter(t, store)

	rec := doRequest(t, router, http.MethodGet, "/api/intel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("empty list should encode as [], got %s", rec.Body.String())
	}

	filter := store.lastFilter(t)
	if filter.Type != models.ItemTypeAll || filter.Range != models.RangeAll {
		t.Errorf("defaults = %s/%s, want all/all", filter.Type, filter.Range)
	}
}

func TestListIntel_InvalidParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		code  string
		field string
	}{
		{"bad type", "type=archived", ErrCodeValidationFailed, "type"},
		{"bad range", "range=2d", ErrCodeValidationFailed, "range"},
		{"limit too high", "limit=500", ErrCodeValidationFailed, "limit"},
		{"negative offset", "offset=-1", ErrCodeValidationFailed, "offset"},
		{"non-numeric limit", "limit=ten", ErrCodeBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore()
			router, _ := setupTestRouter(t, store)

			rec := doRequest(t, router, http.MethodGet, "/api/intel?"+tt.query, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}

			var resp struct {
				Error struct {
					Code      string       `json:"code"`
					RequestID string       `json:"request_id"`
					Details   []FieldError `json:"details"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.code)
			}
			if resp.Error.RequestID == "" {
				t.Error("error response has no request id")
			}
			if tt.field != "" && (len(resp.Error.Details) != 1 || resp.Error.Details[0].Field != tt.field) {
				t.Errorf("details = %+v, want field %s", resp.Error.Details, tt.field)
			}
			if len(store.filters) != 0 {
				t.Error("store was queried for an invalid request")
			}
		})
	}
}

func TestListIntel_StoreError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.queryErr = errors.New("disk on fire")
	router, _ := setupTestRouter(t, store)

	rec := doRequest(t, router, http.MethodGet, "/api/intel", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Error("internal error text leaked to the client")
	}
}

func TestListFavorites(t *testing.T) {
	t.Parallel()

	fav := testItem("a", "alpha", 1)
	fav.Favorited = true
	store := newFakeStore(fav, testItem("b", "beta", 2))
	router, _ := setupTestRouter(t, store)

	rec := doRequest(t, router, http.MethodGet, "/api/intel/favorites?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[models.IntelListResponse](t, rec)
	if resp.Total != 1 || resp.Items[0].ID != "a" {
		t.Errorf("favorites = %+v, want only a", resp.Items)
	}
}

func TestGetIntel(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testItem("stored", "stored item", 1))
	router, hub := setupTestRouter(t, store)
	hub.Publish(broadcast.EventNewIntel, testItem("cached", "cached item", 2))

	t.Run("from store", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/intel/stored", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		item := decodeBody[models.IntelItem](t, rec)
		if item.Title != "stored item" || item.Content != "body of stored item" {
			t.Errorf("item = %+v", item)
		}
	})

	t.Run("from hub cache", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/intel/cached", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		item := decodeBody[models.IntelItem](t, rec)
		if item.ID != "cached" || item.Content != "body of cached item" {
			t.Errorf("item = %+v, want the cached item with content", item)
		}
		if _, err := store.GetByID(context.Background(), "cached"); err != nil {
			t.Errorf("cached item was not persisted: %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/intel/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		resp := decodeBody[ErrorResponse](t, rec)
		if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
			t.Errorf("error = %+v", resp.Error)
		}
	})
}

func TestToggleFavorite(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testItem("stored", "stored item", 1))
	router, hub := setupTestRouter(t, store)
	hub.Publish(broadcast.EventNewIntel, testItem("cached", "cached item", 2))

	t.Run("stored item", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/api/intel/stored/favorite", `{"favorited":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if item := decodeBody[models.IntelItem](t, rec); !item.Favorited {
			t.Error("item was not favorited")
		}

		rec = doRequest(t, router, http.MethodPost, "/api/intel/stored/favorite", `{"favorited":false}`)
		if item := decodeBody[models.IntelItem](t, rec); item.Favorited {
			t.Error("item was not unfavorited")
		}
	})

	t.Run("cache-only item is persisted first", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/api/intel/cached/favorite", `{"favorited":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		stored, err := store.GetByID(context.Background(), "cached")
		if err != nil {
			t.Fatalf("cached item was not persisted: %v", err)
		}
		if !stored.Favorited {
			t.Error("persisted item is not favorited")
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/api/intel/nope/favorite", `{"favorited":true}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("invalid bodies", func(t *testing.T) {
		for _, body := range []string{`{"favorited":`, `{}`, `{"favorited":"yes"}`} {
			rec := doRequest(t, router, http.MethodPost, "/api/intel/stored/favorite", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("body %s: status = %d, want 400", body, rec.Code)
			}
		}
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	pollers := []PollerStatus{
		staticPoller{name: "payload", state: poller.StateRunning},
		staticPoller{name: "mock", state: poller.StateIdle},
	}

	t.Run("healthy", func(t *testing.T) {
		router, hub := setupTestRouter(t, newFakeStore(), pollers...)
		hub.Publish(broadcast.EventNewIntel, testItem("a", "alpha", 1))

		rec := doRequest(t, router, http.MethodGet, "/api/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		health := decodeBody[HealthStatus](t, rec)
		if health.Status != "healthy" || !health.DatabaseConnected {
			t.Errorf("health = %+v", health)
		}
		if health.CachedItems != 1 {
			t.Errorf("cached_items = %d, want 1", health.CachedItems)
		}
		if len(health.Pollers) != 2 || health.Pollers[0].State != poller.StateRunning.String() {
			t.Errorf("pollers = %+v", health.Pollers)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("security headers missing")
		}
	})

	t.Run("degraded", func(t *testing.T) {
		store := newFakeStore()
		store.pingErr = errors.New("connection refused")
		router, _ := setupTestRouter(t, store)

		rec := doRequest(t, router, http.MethodGet, "/api/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		if health := decodeBody[HealthStatus](t, rec); health.Status != "degraded" {
			t.Errorf("status = %s, want degraded", health.Status)
		}
	})
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	router, _ := setupTestRouter(t, newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want trace-42", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	router, _ := setupTestRouter(t, newFakeStore())
	doRequest(t, router, http.MethodGet, "/api/health", "")

	rec := doRequest(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `api_requests_total{endpoint="/api/health"`) {
		t.Error("/metrics does not expose the labelled request counter")
	}
}
