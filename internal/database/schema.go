// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package database

import (
	"context"
	"fmt"
)

// intel_items has no secondary indexes: DuckDB rewrites updates of indexed
// columns as delete plus insert, which trips unique checks inside a transaction.
// The table stays small enough (retention-bounded) for scans on external_id
// and timestamp.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS intel_items (
	id               VARCHAR PRIMARY KEY,
	external_id      VARCHAR,
	title            VARCHAR NOT NULL,
	summary          VARCHAR NOT NULL DEFAULT '',
	content          VARCHAR NOT NULL DEFAULT '',
	source           VARCHAR NOT NULL DEFAULT '',
	url              VARCHAR NOT NULL DEFAULT '',
	publish_time_str VARCHAR NOT NULL DEFAULT '',
	timestamp        DOUBLE NOT NULL,
	tags             VARCHAR NOT NULL DEFAULT '[]',
	is_hot           BOOLEAN NOT NULL DEFAULT true,
	favorited        BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMP NOT NULL DEFAULT current_timestamp,
	updated_at       TIMESTAMP NOT NULL DEFAULT current_timestamp
)`

func (db *DB) createSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create intel_items table: %w", err)
	}
	return nil
}
