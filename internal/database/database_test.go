// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/models"
)

// testDBSemaphore serializes DuckDB usage across tests; concurrent CGO calls
// from parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB opens an in-memory database. The semaphore is held until the
// test completes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   1,
	}

	type result struct {
		db  *DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := New(cfg)
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("Failed to close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("Timed out creating test database")
		return nil
	}
}

func newTestItem(id string, published time.Time) *models.IntelItem {
	return &models.IntelItem{
		ID:          id,
		Title:       "Title " + id,
		Summary:     "Summary " + id,
		Content:     "Content " + id,
		Source:      "Test",
		URL:         "https://example.com/" + id,
		PublishedAt: published.Format(models.DisplayTimeLayout),
		Timestamp:   models.EpochSeconds(published),
		Tags:        []models.Tag{{Label: "EU", Color: models.TagRed}},
		IsHot:       true,
	}
}

func TestUpsertOne_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	stored, err := db.UpsertOne(ctx, newTestItem("a", now))
	if err != nil {
		t.Fatalf("UpsertOne() error = %v", err)
	}
	if stored.ID != "a" {
		t.Errorf("stored.ID = %q, want a", stored.ID)
	}

	got, err := db.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Title a" || got.Content != "Content a" {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0].Color != models.TagRed {
		t.Errorf("Tags = %+v, want one red tag", got.Tags)
	}
	if !got.IsHot || got.Favorited {
		t.Errorf("IsHot = %v, Favorited = %v", got.IsHot, got.Favorited)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpsert_PreservesFavorited(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	first := newTestItem("a", now)
	first.Favorited = true
	if _, err := db.UpsertOne(ctx, first); err != nil {
		t.Fatalf("UpsertOne() error = %v", err)
	}

	second := newTestItem("a", now)
	second.Title = "Updated"
	second.Favorited = false
	stored, err := db.UpsertOne(ctx, second)
	if err != nil {
		t.Fatalf("UpsertOne() error = %v", err)
	}
	if !stored.Favorited {
		t.Error("returned record lost favorited flag")
	}

	got, err := db.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Updated" {
		t.Errorf("Title = %q, want Updated", got.Title)
	}
	if !got.Favorited {
		t.Error("stored row lost favorited flag")
	}
}

func TestUpsert_EmptyContentKeepsStored(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertOne(ctx, newTestItem("a", time.Now())); err != nil {
		t.Fatal(err)
	}
	update := newTestItem("a", time.Now())
	update.Content = ""
	stored, err := db.UpsertOne(ctx, update)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Content != "Content a" {
		t.Errorf("Content = %q, want stored content kept", stored.Content)
	}
}

func TestUpsert_MatchesByExternalID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	original := newTestItem("first-id", time.Now())
	original.ExternalID = "cms-42"
	if _, err := db.UpsertOne(ctx, original); err != nil {
		t.Fatal(err)
	}

	again := newTestItem("other-id", time.Now())
	again.ExternalID = "cms-42"
	again.Title = "Renamed"
	stored, err := db.UpsertOne(ctx, again)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID != "first-id" {
		t.Errorf("stored.ID = %q, want first-id", stored.ID)
	}

	resp, err := db.QueryFiltered(ctx, IntelFilter{Type: models.ItemTypeAll})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("Total = %d, want 1", resp.Total)
	}
	if resp.Items[0].Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", resp.Items[0].Title)
	}
}

func TestUpsertBatch_OrderAndCollapse(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	dup := newTestItem("a", now)
	dup.Title = "Second a"
	stored, err := db.UpsertBatch(context.Background(), []*models.IntelItem{
		newTestItem("a", now),
		newTestItem("b", now),
		dup,
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("len(stored) = %d, want 2", len(stored))
	}
	if stored[0].ID != "a" || stored[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", stored[0].ID, stored[1].ID)
	}
	if stored[0].Title != "Second a" {
		t.Errorf("Title = %q, want last duplicate to win", stored[0].Title)
	}
}

func TestUpsertBatch_Empty(t *testing.T) {
	db := setupTestDB(t)

	stored, err := db.UpsertBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Errorf("len(stored) = %d, want 0", len(stored))
	}
}

func TestToggleFavorite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertOne(ctx, newTestItem("a", time.Now())); err != nil {
		t.Fatal(err)
	}

	item, err := db.ToggleFavorite(ctx, "a", true)
	if err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}
	if !item.Favorited {
		t.Error("Favorited = false after toggle")
	}

	favs, err := db.ListFavorites(ctx, IntelFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if favs.Total != 1 || len(favs.Items) != 1 || favs.Items[0].ID != "a" {
		t.Errorf("ListFavorites() = %+v", favs)
	}

	if _, err := db.ToggleFavorite(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleFavorite(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEnsureItem_DoesNotOverwrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertOne(ctx, newTestItem("a", time.Now())); err != nil {
		t.Fatal(err)
	}
	other := newTestItem("a", time.Now())
	other.Title = "From cache"
	if err := db.EnsureItem(ctx, other); err != nil {
		t.Fatalf("EnsureItem() error = %v", err)
	}
	got, err := db.GetByID(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Title a" {
		t.Errorf("Title = %q, EnsureItem must not overwrite", got.Title)
	}

	if err := db.EnsureItem(ctx, newTestItem("b", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetByID(ctx, "b"); err != nil {
		t.Errorf("GetByID(b) error = %v", err)
	}
}

func TestQueryFiltered(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	recent := newTestItem("recent", now.Add(-time.Hour))
	recent.Title = "Border 50% closure"
	older := newTestItem("older", now.Add(-5*time.Hour))
	cold := newTestItem("cold", now.Add(-10*time.Hour))
	cold.IsHot = false
	if _, err := db.UpsertBatch(ctx, []*models.IntelItem{recent, older, cold}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		filter  IntelFilter
		wantIDs []string
		total   int
	}{
		{"hot default", IntelFilter{Now: now}, []string{"recent", "older"}, 2},
		{"all", IntelFilter{Type: models.ItemTypeAll, Now: now}, []string{"recent", "older", "cold"}, 3},
		{"history", IntelFilter{Type: models.ItemTypeHistory, Now: now}, []string{"recent", "older", "cold"}, 3},
		{"range 3h", IntelFilter{Type: models.ItemTypeAll, Range: models.Range3h, Now: now}, []string{"recent"}, 1},
		{"range 6h", IntelFilter{Type: models.ItemTypeAll, Range: models.Range6h, Now: now}, []string{"recent", "older"}, 2},
		{"query", IntelFilter{Type: models.ItemTypeAll, Query: "border", Now: now}, []string{"recent"}, 1},
		{"literal percent", IntelFilter{Type: models.ItemTypeAll, Query: "50%", Now: now}, []string{"recent"}, 1},
		{"page", IntelFilter{Type: models.ItemTypeAll, Limit: 1, Offset: 1, Now: now}, []string{"older"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := db.QueryFiltered(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryFiltered() error = %v", err)
			}
			if resp.Total != tt.total {
				t.Errorf("Total = %d, want %d", resp.Total, tt.total)
			}
			if len(resp.Items) != len(tt.wantIDs) {
				t.Fatalf("len(Items) = %d, want %d", len(resp.Items), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resp.Items[i].ID != id {
					t.Errorf("Items[%d].ID = %q, want %q", i, resp.Items[i].ID, id)
				}
			}
		})
	}
}

func TestGetPaginationDefaults(t *testing.T) {
	tests := []struct {
		limit, offset   int
		wantL, wantOffs int
	}{
		{0, 0, defaultPageSize, 0},
		{500, -3, maxPageSize, 0},
		{10, 20, 10, 20},
	}
	for _, tt := range tests {
		f := IntelFilter{Limit: tt.limit, Offset: tt.offset}
		l, o := f.getPaginationDefaults()
		if l != tt.wantL || o != tt.wantOffs {
			t.Errorf("getPaginationDefaults(%d, %d) = (%d, %d), want (%d, %d)",
				tt.limit, tt.offset, l, o, tt.wantL, tt.wantOffs)
		}
	}
}

func TestLatestHot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	cold := newTestItem("cold", now)
	cold.IsHot = false
	if _, err := db.UpsertBatch(ctx, []*models.IntelItem{
		newTestItem("old", now.Add(-2*time.Hour)),
		newTestItem("new", now.Add(-time.Hour)),
		cold,
	}); err != nil {
		t.Fatal(err)
	}

	items, err := db.LatestHot(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != "new" || items[1].ID != "old" {
		t.Errorf("LatestHot() = %v, want [new old]", items)
	}
}

func TestRetention(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	ancient := newTestItem("ancient", now.Add(-40*24*time.Hour))
	kept := newTestItem("kept", now.Add(-40*24*time.Hour))
	kept.Favorited = true
	yesterday := newTestItem("yesterday", now.Add(-30*time.Hour))
	fresh := newTestItem("fresh", now.Add(-time.Hour))
	if _, err := db.UpsertBatch(ctx, []*models.IntelItem{ancient, kept, yesterday, fresh}); err != nil {
		t.Fatal(err)
	}

	deleted, err := db.DeleteOlderThan(ctx, 30)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := db.GetByID(ctx, "kept"); err != nil {
		t.Errorf("favorited item was deleted: %v", err)
	}

	demoted, err := db.DemoteHotOlderThan(ctx, 24)
	if err != nil {
		t.Fatalf("DemoteHotOlderThan() error = %v", err)
	}
	// kept and yesterday
	if demoted != 2 {
		t.Errorf("demoted = %d, want 2", demoted)
	}
	got, err := db.GetByID(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsHot {
		t.Error("fresh item was demoted")
	}
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestIsTransactionConflict(t *testing.T) {
	if isTransactionConflict(nil) {
		t.Error("nil is not a conflict")
	}
	if !isTransactionConflict(errors.New("TransactionContext Error: Conflict on update!")) {
		t.Error("expected conflict")
	}
	if isTransactionConflict(errors.New("syntax error")) {
		t.Error("syntax error is not a conflict")
	}
}
