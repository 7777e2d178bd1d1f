// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package models

import (
	"fmt"
	"time"
)

// ItemType selects which lifecycle state a list query returns.
type ItemType string

const (
	// ItemTypeHot lists items still flagged hot.
	ItemTypeHot ItemType = "hot"
	// ItemTypeHistory lists the whole archive, hot items included.
	ItemTypeHistory ItemType = "history"
	// ItemTypeAll lists every item.
	ItemTypeAll ItemType = "all"
)

// ParseItemType parses s, defaulting to hot for an empty string.
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case "":
		return ItemTypeHot, nil
	case ItemTypeHot, ItemTypeHistory, ItemTypeAll:
		return ItemType(s), nil
	}
	return "", fmt.Errorf("invalid item type %q", s)
}

// TimeRange limits a list query to recent items.
type TimeRange string

// Supported ranges.
const (
	RangeAll TimeRange = "all"
	Range3h  TimeRange = "3h"
	Range6h  TimeRange = "6h"
	Range12h TimeRange = "12h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

var rangeDurations = map[TimeRange]time.Duration{
	Range3h:  3 * time.Hour,
	Range6h:  6 * time.Hour,
	Range12h: 12 * time.Hour,
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
}

// ParseTimeRange parses s, defaulting to all for an empty string.
func ParseTimeRange(s string) (TimeRange, error) {
	r := TimeRange(s)
	if r == "" || r == RangeAll {
		return RangeAll, nil
	}
	if _, ok := rangeDurations[r]; ok {
		return r, nil
	}
	return "", fmt.Errorf("invalid time range %q", s)
}

// Cutoff returns the earliest epoch timestamp inside the range, and false
// for RangeAll.
func (r TimeRange) Cutoff(now time.Time) (float64, bool) {
	d, ok := rangeDurations[r]
	if !ok {
		return 0, false
	}
	return EpochSeconds(now.Add(-d)), true
}
