// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/models"
)

// fakeCMS serves a login endpoint and one collection.
type fakeCMS struct {
	t *testing.T

	logins  atomic.Int32
	fetches atomic.Int32

	mu        sync.Mutex
	token     string
	rejectN   int // number of upcoming collection requests answered with 401
	lastQuery string
	docs      []map[string]any
}

func newFakeCMS(t *testing.T, docs []map[string]any) (*fakeCMS, *httptest.Server) {
	cms := &fakeCMS{t: t, docs: docs}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/login", cms.handleLogin)
	mux.HandleFunc("GET /api/intel", cms.handleCollection)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return cms, srv
}

func (c *fakeCMS) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email != "analyst@example.com" || body.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	n := c.logins.Add(1)
	c.mu.Lock()
	c.token = fmt.Sprintf("token-%d-abcdefghijkl", n)
	token := c.token
	c.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (c *fakeCMS) handleCollection(w http.ResponseWriter, r *http.Request) {
	c.fetches.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastQuery = r.URL.RawQuery

	if c.rejectN > 0 {
		c.rejectN--
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Header.Get("Authorization") != "JWT "+c.token {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"docs": c.docs})
}

func payloadDocs(n int) []map[string]any {
	docs := make([]map[string]any, n)
	for i := range docs {
		docs[i] = map[string]any{
			"id":          fmt.Sprintf("p%d", i+1),
			"title":       fmt.Sprintf("Payload report %d", i+1),
			"description": "Short description",
			"original":    "Full original text",
			"createdAt":   "2026-03-01T10:00:00.000Z",
		}
	}
	return docs
}

func testPayloadConfig(url string) config.PayloadConfig {
	return config.PayloadConfig{
		Enabled:        true,
		URL:            url,
		Collection:     "intel",
		UserCollection: "users",
		Email:          "analyst@example.com",
		Password:       "secret",
		PageSize:       25,
		Interval:       time.Minute,
		RequestTimeout: 5 * time.Second,
	}
}

func TestPayloadSource_PollStepPublishesNewDocuments(t *testing.T) {
	cms, srv := newFakeCMS(t, payloadDocs(5))
	hub := broadcast.NewHub(broadcast.DefaultConfig())
	events := subscribeHub(t, hub)

	src := NewPayloadSource(testPayloadConfig(srv.URL), NewIngestor("payload", &memoryStore{}, hub, nil, testIngestConfig()))
	defer src.Close()

	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("PollStep() error = %v", err)
	}

	ids := collectIDs(t, events, 5)
	for i, id := range ids {
		if want := fmt.Sprintf("p%d", i+1); id != want {
			t.Errorf("event %d id = %q, want %q", i, id, want)
		}
	}
	if got := cms.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
	cms.mu.Lock()
	query := cms.lastQuery
	cms.mu.Unlock()
	if !strings.Contains(query, "sort=-createdAt") || !strings.Contains(query, "limit=25") {
		t.Errorf("collection query = %q, want newest-first page of 25", query)
	}

	// The token is reused and already seen documents are not republished.
	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("second PollStep() error = %v", err)
	}
	if got := cms.logins.Load(); got != 1 {
		t.Errorf("logins after second step = %d, want 1", got)
	}
	if got := hub.CacheLen(); got != 5 {
		t.Errorf("hub cache = %d, want 5", got)
	}
}

func TestPayloadSource_RelogsInOnceOnRejectedToken(t *testing.T) {
	cms, srv := newFakeCMS(t, payloadDocs(2))
	pub := &recordingPublisher{}
	src := NewPayloadSource(testPayloadConfig(srv.URL), NewIngestor("payload", &memoryStore{}, pub, nil, testIngestConfig()))
	defer src.Close()

	cms.mu.Lock()
	cms.rejectN = 1
	cms.mu.Unlock()

	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("PollStep() error = %v", err)
	}
	if got := cms.logins.Load(); got != 2 {
		t.Errorf("logins = %d, want 2", got)
	}
	if got := cms.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
	if got := len(pub.snapshot()); got != 2 {
		t.Errorf("published %d, want 2", got)
	}
}

func TestPayloadSource_GivesUpAfterSecondRejection(t *testing.T) {
	cms, srv := newFakeCMS(t, payloadDocs(2))
	pub := &recordingPublisher{}
	src := NewPayloadSource(testPayloadConfig(srv.URL), NewIngestor("payload", &memoryStore{}, pub, nil, testIngestConfig()))
	defer src.Close()

	cms.mu.Lock()
	cms.rejectN = 5
	cms.mu.Unlock()

	err := src.PollStep(context.Background())
	if !errors.Is(err, errUnauthorized) {
		t.Fatalf("PollStep() error = %v, want errUnauthorized", err)
	}
	if got := cms.logins.Load(); got != 2 {
		t.Errorf("logins = %d, want 2", got)
	}
	if got := cms.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2 (one retry per step)", got)
	}
	if got := len(pub.snapshot()); got != 0 {
		t.Errorf("published %d, want 0", got)
	}
}

func TestPayloadSource_LoginFailure(t *testing.T) {
	_, srv := newFakeCMS(t, payloadDocs(1))
	cfg := testPayloadConfig(srv.URL)
	cfg.Password = "wrong"
	src := NewPayloadSource(cfg, NewIngestor("payload", &memoryStore{}, &recordingPublisher{}, nil, testIngestConfig()))
	defer src.Close()

	err := src.PollStep(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("PollStep() error = %v, want login status 401", err)
	}
}

func TestPayloadSource_ConfigureThroughPoller(t *testing.T) {
	src := NewPayloadSource(config.PayloadConfig{}, NewIngestor("payload", &memoryStore{}, &recordingPublisher{}, nil, testIngestConfig()))
	p := New(src, Options{Interval: time.Minute})

	if err := p.Start(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Start() error = %v, want ErrNotConfigured", err)
	}
	if err := p.Configure(func() error { return src.Configure(config.PayloadConfig{URL: "::bad"}) }); err == nil {
		t.Error("Configure() with invalid url succeeded")
	}
	if err := p.Configure(func() error { return src.Configure(testPayloadConfig("http://cms.example")) }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if !src.IsConfigured() {
		t.Error("IsConfigured() = false after Configure")
	}
}

func TestPayloadDoc_ToRaw(t *testing.T) {
	const body = `{
		"id": 17,
		"title": "Tanker seized",
		"summary": "",
		"content": "Body text from the content field",
		"publishDate": "2026-03-02T08:30:00Z",
		"createdAt": "2026-03-01T00:00:00Z",
		"author": {"name": "Desk"},
		"regional_country": [{"name": "Iran"}, "Oman"],
		"domain": "Maritime",
		"topicType": "Seizure, Shipping"
	}`

	var doc payloadDoc
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	raw := doc.toRaw(testPayloadConfig("http://cms.example/"))

	if raw.SourceID != "17" || raw.NativeID != "17" {
		t.Errorf("ids = %q/%q, want 17/17", raw.SourceID, raw.NativeID)
	}
	if raw.URL != "http://cms.example/admin/collections/intel/17" {
		t.Errorf("URL = %q", raw.URL)
	}
	if raw.Summary != "Body text from the content field" {
		t.Errorf("Summary = %q, want derived from content", raw.Summary)
	}
	if raw.Source != "Desk" {
		t.Errorf("Source = %q, want Desk", raw.Source)
	}
	if want := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC); !raw.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", raw.PublishedAt, want)
	}

	want := []models.Tag{
		{Label: "Iran", Color: models.TagRed},
		{Label: "Oman", Color: models.TagRed},
		{Label: "Maritime", Color: models.TagBlue},
		{Label: "Seizure", Color: models.TagGray},
		{Label: "Shipping", Color: models.TagGray},
	}
	if len(raw.Tags) != len(want) {
		t.Fatalf("Tags = %+v, want %+v", raw.Tags, want)
	}
	for i := range want {
		if raw.Tags[i] != want[i] {
			t.Errorf("Tags[%d] = %+v, want %+v", i, raw.Tags[i], want[i])
		}
	}
}

func TestPayloadDoc_Defaults(t *testing.T) {
	var doc payloadDoc
	if err := json.Unmarshal([]byte(`{"id": "abc", "content": {"root": {"children": []}}}`), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	raw := doc.toRaw(testPayloadConfig("http://cms.example"))
	if raw.Source != defaultPayloadAuthor {
		t.Errorf("Source = %q, want %q", raw.Source, defaultPayloadAuthor)
	}
	if raw.Content != "" {
		t.Errorf("rich text content decoded to %q, want empty", raw.Content)
	}
	if !raw.PublishedAt.IsZero() {
		t.Errorf("PublishedAt = %v, want zero", raw.PublishedAt)
	}
	item := models.NewIntelItem("abc", raw, time.Now())
	if item.Title != "Untitled" {
		t.Errorf("Title = %q, want Untitled", item.Title)
	}
}
