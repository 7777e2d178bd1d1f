// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/intelstream/internal/models"
)

// DeleteOlderThan removes non-favorited items published more than days ago
// and returns the number of rows removed.
func (db *DB) DeleteOlderThan(ctx context.Context, days int) (deleted int64, err error) {
	start := time.Now()
	defer func() { observe("delete_older_than", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	cutoff := models.EpochSeconds(db.now().Add(-time.Duration(days) * 24 * time.Hour))
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM intel_items WHERE favorited = false AND timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old items: %w", err)
	}
	deleted, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count: %w", err)
	}
	return deleted, nil
}

// DemoteHotOlderThan clears the hot flag on items published more than
// hours ago and returns the number of rows changed.
func (db *DB) DemoteHotOlderThan(ctx context.Context, hours int) (demoted int64, err error) {
	start := time.Now()
	defer func() { observe("demote_hot", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	cutoff := models.EpochSeconds(db.now().Add(-time.Duration(hours) * time.Hour))
	result, err := db.conn.ExecContext(ctx,
		`UPDATE intel_items SET is_hot = false, updated_at = current_timestamp
		WHERE is_hot = true AND timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to demote hot items: %w", err)
	}
	demoted, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read demoted row count: %w", err)
	}
	return demoted, nil
}
