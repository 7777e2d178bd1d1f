// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

/*
Package models defines the data structures shared by every Intelstream component.

Key Components:

  - IntelItem: one piece of intelligence as stored, cached and streamed
  - Tag / TagColor: labelled badges restricted to a closed color set
  - RawDocument: an item as fetched from an upstream source, before identity
    resolution and enrichment
  - ItemType / TimeRange: list filters accepted by the HTTP API and the store

An IntelItem is treated as immutable once constructed. Components that need a
variation (the stream strips Content, the store overwrites Favorited) build a
copy rather than mutating a shared pointer; the broadcast cache and every
subscriber may be holding the same value.
*/
package models
