// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package models

import "time"

// RawDocument is an item as fetched from an upstream source.
//
// SourceID is the identifier the source uses to recognise documents it has
// already delivered; pollers use it for their seen-set. NativeID is a stable
// identifier suitable for use as the item id (a CMS thing id, for example) and
// may be empty. Tags hold what the source itself knows (country, domain,
// topic); enrichment may add more.
type RawDocument struct {
	SourceID    string
	NativeID    string
	URL         string
	Title       string
	Summary     string
	Content     string
	Source      string
	PublishedAt time.Time
	Tags        []Tag
}
