// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package models

import (
	"strings"
	"time"
)

// DisplayTimeLayout is the format of IntelItem.PublishedAt.
const DisplayTimeLayout = "2006/01/02 15:04"

const (
	defaultTitle  = "Untitled"
	defaultSource = "Unknown"
)

// IntelItem is one piece of intelligence.
//
// ID is assigned once by the identity resolver and never changes after the
// record is persisted. ExternalID, when set, is the upstream identifier used as
// a secondary match key on upsert. Timestamp (epoch seconds) drives ordering and
// filtering; PublishedAt is only for display. Favorited is owned by the user:
// ingestion never overwrites a stored value.
type IntelItem struct {
	ID          string  `json:"id"`
	ExternalID  string  `json:"external_id,omitempty"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Content     string  `json:"content,omitempty"`
	Source      string  `json:"source"`
	URL         string  `json:"url,omitempty"`
	PublishedAt string  `json:"time"`
	Timestamp   float64 `json:"timestamp"`
	Tags        []Tag   `json:"tags"`
	IsHot       bool    `json:"is_hot"`
	Favorited   bool    `json:"favorited"`
}

// NewIntelItem builds a hot, unfavorited item with the given id from a raw
// document. now is used when the document carries no publish time.
func NewIntelItem(id string, raw RawDocument, now time.Time) *IntelItem {
	published := raw.PublishedAt
	if published.IsZero() {
		published = now
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = defaultTitle
	}
	source := strings.TrimSpace(raw.Source)
	if source == "" {
		source = defaultSource
	}

	return &IntelItem{
		ID:          id,
		ExternalID:  raw.NativeID,
		Title:       title,
		Summary:     strings.TrimSpace(raw.Summary),
		Content:     raw.Content,
		Source:      source,
		URL:         strings.TrimSpace(raw.URL),
		PublishedAt: published.Local().Format(DisplayTimeLayout),
		Timestamp:   EpochSeconds(published),
		Tags:        SanitizeTags(raw.Tags),
		IsHot:       true,
	}
}

// Clone returns a copy that shares nothing mutable with item.
func (item *IntelItem) Clone() *IntelItem {
	c := *item
	c.Tags = append(make([]Tag, 0, len(item.Tags)), item.Tags...)
	return &c
}

// WithoutContent returns a copy with the full body removed. Stream payloads
// carry this form; readers fetch the body from the detail endpoint.
func (item *IntelItem) WithoutContent() *IntelItem {
	c := item.Clone()
	c.Content = ""
	return c
}

// WithFavorited returns a copy with Favorited set.
func (item *IntelItem) WithFavorited(favorited bool) *IntelItem {
	c := item.Clone()
	c.Favorited = favorited
	return c
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// IntelListResponse is the body of list endpoints.
type IntelListResponse struct {
	Items []*IntelItem `json:"items"`
	Total int          `json:"total"`
}
