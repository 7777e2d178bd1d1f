// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/intelstream/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// IntelFilter selects a page of items.
type IntelFilter struct {
	Type   models.ItemType
	Query  string
	Range  models.TimeRange
	Limit  int
	Offset int

	// FavoritesOnly selects favorited items regardless of Type.
	FavoritesOnly bool

	// Now anchors the time range; zero means the current time.
	Now time.Time
}

// buildWhereClause creates the WHERE clause and its arguments for the filter.
func (f *IntelFilter) buildWhereClause() (string, []interface{}) {
	var conditions []string
	var args []interface{}

	switch {
	case f.FavoritesOnly:
		conditions = append(conditions, "favorited = true")
	case f.Type == models.ItemTypeHot || f.Type == "":
		conditions = append(conditions, "is_hot = true")
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		conditions = append(conditions,
			`(title ILIKE ? ESCAPE '\' OR summary ILIKE ? ESCAPE '\' OR content ILIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	if cutoff, ok := f.Range.Cutoff(now); ok {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, cutoff)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// getPaginationDefaults returns limit and offset with defaults and bounds applied.
func (f *IntelFilter) getPaginationDefaults() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// QueryFiltered returns one page of items, newest first, and the total
// number of items matching the filter.
func (db *DB) QueryFiltered(ctx context.Context, filter IntelFilter) (resp *models.IntelListResponse, err error) {
	start := time.Now()
	defer func() { observe("query_filtered", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	whereClause, args := filter.buildWhereClause()
	limit, offset := filter.getPaginationDefaults()

	var total int
	countQuery := "SELECT COUNT(*) FROM intel_items " + whereClause
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM intel_items %s
		ORDER BY timestamp DESC, id
		LIMIT ? OFFSET ?`, itemColumns, whereClause)
	queryArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer closeWithLog(rows, "rows")

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	return &models.IntelListResponse{Items: items, Total: total}, nil
}

// ListFavorites returns a page of favorited items, newest first. Type is ignored.
func (db *DB) ListFavorites(ctx context.Context, filter IntelFilter) (*models.IntelListResponse, error) {
	filter.FavoritesOnly = true
	return db.QueryFiltered(ctx, filter)
}

// LatestHot returns up to limit hot items, newest first. It seeds the
// broadcast cache at startup.
func (db *DB) LatestHot(ctx context.Context, limit int) (items []*models.IntelItem, err error) {
	start := time.Now()
	defer func() { observe("latest_hot", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM intel_items WHERE is_hot = true ORDER BY timestamp DESC, id LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hot items: %w", err)
	}
	defer closeWithLog(rows, "rows")
	return scanItems(rows)
}
