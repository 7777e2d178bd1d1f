// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package broadcast

import (
	"context"
	"fmt"

	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
	"github.com/tomtom215/intelstream/internal/models"
)

// BackfillStore supplies persisted hot items, newest first.
type BackfillStore interface {
	LatestHot(ctx context.Context, limit int) ([]*models.IntelItem, error)
}

// Backfill seeds the cache with the most recent persisted hot items in
// chronological order. Items already in the cache are kept after the seeded
// ones and seeded items whose id is already cached are skipped. It returns the
// number of items added. The store is queried without holding the hub lock.
func (h *Hub) Backfill(ctx context.Context, store BackfillStore) (int, error) {
	items, err := store.LatestHot(ctx, h.cfg.BackfillLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load hot items for backfill: %w", err)
	}

	h.mu.Lock()
	cached := make(map[string]struct{}, len(h.cache))
	for _, item := range h.cache {
		cached[item.ID] = struct{}{}
	}
	seeded := make([]*models.IntelItem, 0, len(items)+len(h.cache))
	for i := len(items) - 1; i >= 0; i-- {
		if _, ok := cached[items[i].ID]; ok {
			continue
		}
		seeded = append(seeded, items[i].Clone())
	}
	added := len(seeded)
	h.cache = append(seeded, h.cache...)
	h.evictLocked()
	cacheLen := len(h.cache)
	h.mu.Unlock()

	metrics.StreamCacheEntries.Set(float64(cacheLen))
	logging.Info().Int("items", added).Int("cache_size", cacheLen).Msg("Backfilled broadcast cache")
	return added, nil
}
