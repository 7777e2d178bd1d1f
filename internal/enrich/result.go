// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package enrich refines raw documents with a language model before they
// are stored: titles, summaries and content are rewritten in the configured
// language and tags are extracted.
//
// Enrichment is best effort. An Enricher never returns an error; any failure
// yields Unchanged and the document is ingested as fetched.
package enrich

import "github.com/tomtom215/intelstream/internal/models"

// Fields are the values enrichment may replace. Empty strings leave the
// original value in place.
type Fields struct {
	Title   string
	Summary string
	Content string
	Tags    []models.Tag
}

// Result is either Enriched with new fields or Unchanged.
type Result struct {
	fields   Fields
	enriched bool
}

// Enriched returns a result carrying f.
func Enriched(f Fields) Result {
	return Result{fields: f, enriched: true}
}

// Unchanged returns a result that leaves the document as is.
func Unchanged() Result {
	return Result{}
}

// IsEnriched reports whether the result carries fields.
func (r Result) IsEnriched() bool {
	return r.enriched
}

// Apply returns raw with the enriched fields applied. Enrichment tags come
// first, followed by the source's own tags; duplicates are dropped.
func (r Result) Apply(raw models.RawDocument) models.RawDocument {
	if !r.enriched {
		return raw
	}
	out := raw
	if r.fields.Title != "" {
		out.Title = r.fields.Title
	}
	if r.fields.Summary != "" {
		out.Summary = r.fields.Summary
	}
	if r.fields.Content != "" {
		out.Content = r.fields.Content
	}
	tags := make([]models.Tag, 0, len(r.fields.Tags)+len(raw.Tags))
	tags = append(tags, r.fields.Tags...)
	tags = append(tags, raw.Tags...)
	out.Tags = models.SanitizeTags(tags)
	return out
}
