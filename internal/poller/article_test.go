// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/models"
)

// fakeArticleAPI serves articles 1..published; later ids are 404.
type fakeArticleAPI struct {
	mu        sync.Mutex
	published int
	failAt    int
	requested []int
}

func (a *fakeArticleAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/articles/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("depth") != "2" || r.URL.Query().Get("draft") != "false" {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.requested = append(a.requested, id)
	published, failAt := a.published, a.failAt
	a.mu.Unlock()

	switch {
	case failAt != 0 && id == failAt:
		http.Error(w, "boom", http.StatusInternalServerError)
	case id > published:
		http.NotFound(w, r)
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":               id,
			"title":            fmt.Sprintf("Article title %d", id),
			"original":         strings.Repeat("x", 250),
			"regional_country": []any{map[string]string{"name": "Taiwan"}},
			"domain":           []string{"Cyber"},
			"publishDate":      "2026-03-01T10:00:00Z",
		})
	}
}

func (a *fakeArticleAPI) set(published, failAt int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.published = published
	a.failAt = failAt
}

func newArticleSource(t *testing.T, api *fakeArticleAPI, pub *recordingPublisher) *ArticleSource {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	src := NewArticleSource(config.ArticleConfig{
		Enabled:        true,
		BaseURL:        srv.URL + "/",
		StartID:        1,
		Interval:       time.Minute,
		RequestTimeout: 5 * time.Second,
	}, NewIngestor("article", &memoryStore{}, pub, nil, testIngestConfig()))
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestArticleSource_WalksUntilMissing(t *testing.T) {
	api := &fakeArticleAPI{}
	api.set(3, 0)
	pub := &recordingPublisher{}
	src := newArticleSource(t, api, pub)

	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("PollStep() error = %v", err)
	}
	if got := articleCursor(src); got != 4 {
		t.Errorf("cursor = %d, want 4", got)
	}
	if got := len(pub.snapshot()); got != 3 {
		t.Fatalf("published %d, want 3", got)
	}

	// Nothing new: the cursor waits on the missing id.
	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("idle PollStep() error = %v", err)
	}
	if got := articleCursor(src); got != 4 {
		t.Errorf("cursor after idle step = %d, want 4", got)
	}

	api.set(4, 0)
	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("PollStep() error = %v", err)
	}
	if got := articleCursor(src); got != 5 {
		t.Errorf("cursor = %d, want 5", got)
	}
	if got := len(pub.snapshot()); got != 4 {
		t.Errorf("published %d, want 4", got)
	}
}

func TestArticleSource_StopsAtServerError(t *testing.T) {
	api := &fakeArticleAPI{}
	api.set(5, 3)
	pub := &recordingPublisher{}
	src := newArticleSource(t, api, pub)

	if err := src.PollStep(context.Background()); err == nil {
		t.Fatal("PollStep() error = nil, want status 500")
	}
	// Articles before the failure are kept.
	if got := articleCursor(src); got != 3 {
		t.Errorf("cursor = %d, want 3", got)
	}
	if got := len(pub.snapshot()); got != 2 {
		t.Errorf("published %d, want 2", got)
	}
}

func TestArticleSource_BoundsStepSize(t *testing.T) {
	api := &fakeArticleAPI{}
	api.set(maxArticlesPerStep+5, 0)
	src := newArticleSource(t, api, &recordingPublisher{})

	if err := src.PollStep(context.Background()); err != nil {
		t.Fatalf("PollStep() error = %v", err)
	}
	if got := articleCursor(src); got != maxArticlesPerStep+1 {
		t.Errorf("cursor = %d, want %d", got, maxArticlesPerStep+1)
	}
}

func TestArticleDoc_ToRaw(t *testing.T) {
	var doc articleDoc
	body := `{"summary": "", "content": "short body", "regional_country": ["Sudan"], "domain": [{"name": "Politics"}]}`
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	raw := doc.toRaw("http://cms.example", 9)

	if raw.Title != "Article 9" {
		t.Errorf("Title = %q, want Article 9", raw.Title)
	}
	if raw.Summary != "short body" {
		t.Errorf("Summary = %q, want short body", raw.Summary)
	}
	if raw.Source != defaultArticleAuthor {
		t.Errorf("Source = %q, want %q", raw.Source, defaultArticleAuthor)
	}
	if raw.URL != "http://cms.example/api/articles/9" {
		t.Errorf("URL = %q", raw.URL)
	}
	if raw.SourceID != "article:9" || raw.NativeID != "" {
		t.Errorf("ids = %q/%q", raw.SourceID, raw.NativeID)
	}
	want := []models.Tag{{Label: "Sudan", Color: models.TagRed}, {Label: "Politics", Color: models.TagBlue}}
	if len(raw.Tags) != 2 || raw.Tags[0] != want[0] || raw.Tags[1] != want[1] {
		t.Errorf("Tags = %+v, want %+v", raw.Tags, want)
	}
}

func TestArticleDoc_SummaryFromOriginal(t *testing.T) {
	doc := articleDoc{Original: flexString(strings.Repeat("é", 300))}
	raw := doc.toRaw("http://cms.example", 1)
	if got := len([]rune(raw.Summary)); got != summaryRunes {
		t.Errorf("summary has %d runes, want %d", got, summaryRunes)
	}
	if len([]rune(raw.Content)) != 300 {
		t.Error("content should carry the full original text")
	}
}

func articleCursor(s *ArticleSource) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}
