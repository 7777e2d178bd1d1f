// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
)

// RetentionStore is the part of the store housekeeping needs.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
	DemoteHotOlderThan(ctx context.Context, hours int) (int64, error)
}

// Housekeeper applies retention and hot-to-history demotion at most once per
// interval. A single Housekeeper is shared by all pollers; whichever step
// reaches it first after the interval has elapsed does the work.
type Housekeeper struct {
	store         RetentionStore
	interval      time.Duration
	retentionDays int
	hotHours      int
	now           func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewHousekeeper creates a housekeeper. It first runs on the first step after startup.
func NewHousekeeper(store RetentionStore, cfg config.HousekeepingConfig) *Housekeeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Housekeeper{
		store:         store,
		interval:      interval,
		retentionDays: cfg.RetentionDays,
		hotHours:      cfg.HotHours,
		now:           time.Now,
	}
}

// MaybeRun runs housekeeping if the interval has elapsed since the last run and
// reports whether it did. A failed run still counts as a run; it is retried on
// the next interval.
func (h *Housekeeper) MaybeRun(ctx context.Context) bool {
	h.mu.Lock()
	now := h.now()
	if !h.lastRun.IsZero() && now.Sub(h.lastRun) < h.interval {
		h.mu.Unlock()
		return false
	}
	h.lastRun = now
	h.mu.Unlock()

	deleted, demoted, err := h.run(ctx)
	metrics.RecordHousekeeping(deleted, demoted, err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Housekeeping failed")
		return true
	}
	logging.Ctx(ctx).Info().
		Int64("deleted", deleted).
		Int64("demoted", demoted).
		Int("retention_days", h.retentionDays).
		Int("hot_hours", h.hotHours).
		Msg("Housekeeping completed")
	return true
}

func (h *Housekeeper) run(ctx context.Context) (deleted, demoted int64, err error) {
	var errs []error
	if h.retentionDays > 0 {
		n, derr := h.store.DeleteOlderThan(ctx, h.retentionDays)
		if derr != nil {
			errs = append(errs, fmt.Errorf("failed to delete expired items: %w", derr))
		}
		deleted = n
	}
	if h.hotHours > 0 {
		n, derr := h.store.DemoteHotOlderThan(ctx, h.hotHours)
		if derr != nil {
			errs = append(errs, fmt.Errorf("failed to demote hot items: %w", derr))
		}
		demoted = n
	}
	return deleted, demoted, errors.Join(errs...)
}
