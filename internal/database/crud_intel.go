// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/models"
)

const itemColumns = `id, external_id, title, summary, content, source, url,
	publish_time_str, timestamp, tags, is_hot, favorited`

// maxConflictRetries bounds retries of a batch that lost a DuckDB write conflict.
const maxConflictRetries = 3

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(s rowScanner) (*models.IntelItem, error) {
	var (
		item       models.IntelItem
		externalID sql.NullString
		tagsJSON   string
	)
	err := s.Scan(
		&item.ID, &externalID, &item.Title, &item.Summary, &item.Content,
		&item.Source, &item.URL, &item.PublishedAt, &item.Timestamp,
		&tagsJSON, &item.IsHot, &item.Favorited,
	)
	if err != nil {
		return nil, err
	}
	item.ExternalID = externalID.String
	item.Tags = decodeTags(tagsJSON)
	return &item, nil
}

func encodeTags(tags []models.Tag) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

// decodeTags tolerates malformed rows by returning no tags.
func decodeTags(s string) []models.Tag {
	var tags []models.Tag
	if s != "" {
		if err := json.Unmarshal([]byte(s), &tags); err != nil {
			return []models.Tag{}
		}
	}
	return models.SanitizeTags(tags)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// UpsertOne stores a single item. See UpsertBatch.
func (db *DB) UpsertOne(ctx context.Context, item *models.IntelItem) (*models.IntelItem, error) {
	stored, err := db.UpsertBatch(ctx, []*models.IntelItem{item})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// UpsertBatch stores items in a single transaction and returns the records as
// persisted, in input order.
//
// An incoming item matches an existing row by id, or failing that by
// external_id. A match updates the mutable fields and keeps the row's id and
// favorited flag; an empty incoming content keeps the stored content. Items
// sharing an id within the batch collapse into one record, the last one winning.
// On any failure nothing from the batch is stored.
func (db *DB) UpsertBatch(ctx context.Context, items []*models.IntelItem) (stored []*models.IntelItem, err error) {
	if len(items) == 0 {
		return []*models.IntelItem{}, nil
	}
	start := time.Now()
	defer func() { observe("upsert_batch", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	batch := collapseByID(items)
	for attempt := 0; ; attempt++ {
		stored, err = db.upsertBatchOnce(ctx, batch)
		if err == nil || !isTransactionConflict(err) || attempt >= maxConflictRetries-1 {
			break
		}
		// 1ms, 2ms, 4ms
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * time.Millisecond):
		}
	}
	return stored, err
}

func collapseByID(items []*models.IntelItem) []*models.IntelItem {
	index := make(map[string]int, len(items))
	out := make([]*models.IntelItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

func (db *DB) upsertBatchOnce(ctx context.Context, items []*models.IntelItem) ([]*models.IntelItem, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stored := make([]*models.IntelItem, 0, len(items))
	for _, item := range items {
		rec, err := upsertTx(ctx, tx, item)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
		}
		stored = append(stored, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}
	committed = true
	return stored, nil
}

type existingRow struct {
	id        string
	content   string
	favorited bool
}

func findExisting(ctx context.Context, tx *sql.Tx, item *models.IntelItem) (*existingRow, error) {
	var row existingRow
	err := tx.QueryRowContext(ctx,
		`SELECT id, content, favorited FROM intel_items WHERE id = ?`, item.ID,
	).Scan(&row.id, &row.content, &row.favorited)
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if item.ExternalID == "" {
		return nil, nil
	}

	err = tx.QueryRowContext(ctx,
		`SELECT id, content, favorited FROM intel_items WHERE external_id = ? ORDER BY created_at LIMIT 1`,
		item.ExternalID,
	).Scan(&row.id, &row.content, &row.favorited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, item *models.IntelItem) (*models.IntelItem, error) {
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return nil, err
	}
	existing, err := findExisting(ctx, tx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing item: %w", err)
	}

	rec := item.Clone()
	rec.Tags = models.SanitizeTags(rec.Tags)

	if existing == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO intel_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, nullable(rec.ExternalID), rec.Title, rec.Summary, rec.Content,
			rec.Source, rec.URL, rec.PublishedAt, rec.Timestamp, tags, rec.IsHot, rec.Favorited,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert item: %w", err)
		}
		return rec, nil
	}

	rec.ID = existing.id
	rec.Favorited = existing.favorited
	if rec.Content == "" {
		rec.Content = existing.content
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE intel_items SET
			external_id = COALESCE(CAST(? AS VARCHAR), external_id),
			title = ?, summary = ?, content = ?, source = ?, url = ?,
			publish_time_str = ?, timestamp = ?, tags = ?, is_hot = ?,
			updated_at = current_timestamp
		WHERE id = ?`,
		nullable(rec.ExternalID), rec.Title, rec.Summary, rec.Content, rec.Source, rec.URL,
		rec.PublishedAt, rec.Timestamp, tags, rec.IsHot, rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return rec, nil
}

// EnsureItem inserts item unless a row with its id already exists. It is used
// to persist a cached item before favoriting it.
func (db *DB) EnsureItem(ctx context.Context, item *models.IntelItem) (err error) {
	start := time.Now()
	defer func() { observe("ensure_item", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO intel_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		item.ID, nullable(item.ExternalID), item.Title, item.Summary, item.Content,
		item.Source, item.URL, item.PublishedAt, item.Timestamp, tags, item.IsHot, item.Favorited,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure item %s: %w", item.ID, err)
	}
	return nil
}

// GetByID returns the item with the given id, or ErrNotFound.
func (db *DB) GetByID(ctx context.Context, id string) (item *models.IntelItem, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			observe("get_by_id", start, nil)
			return
		}
		observe("get_by_id", start, err)
	}()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM intel_items WHERE id = ?`, id)
	item, err = scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return item, nil
}

// ToggleFavorite sets the favorited flag and returns the updated item.
func (db *DB) ToggleFavorite(ctx context.Context, id string, favorited bool) (*models.IntelItem, error) {
	start := time.Now()
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE intel_items SET favorited = ?, updated_at = current_timestamp WHERE id = ?`,
		favorited, id,
	)
	observe("toggle_favorite", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle favorite for %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return db.GetByID(ctx, id)
}

func scanItems(rows *sql.Rows) ([]*models.IntelItem, error) {
	items := make([]*models.IntelItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}
