// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package models

import (
	"fmt"
	"strings"
)

// TagColor is the display color of a tag. Colors carry meaning, so the set is closed.
type TagColor string

const (
	// TagRed marks a country or region.
	TagRed TagColor = "red"
	// TagBlue marks a domain such as "Cyber" or "Maritime".
	TagBlue TagColor = "blue"
	// TagGray marks a free keyword.
	TagGray TagColor = "gray"
	// TagPurple marks an analyst highlight.
	TagPurple TagColor = "purple"
)

// Valid reports whether c belongs to the closed color set.
func (c TagColor) Valid() bool {
	switch c {
	case TagRed, TagBlue, TagGray, TagPurple:
		return true
	}
	return false
}

// Tag is a labelled badge attached to an item.
type Tag struct {
	Label string   `json:"label" validate:"required"`
	Color TagColor `json:"color" validate:"tagcolor"`
}

// NewTag returns a tag after trimming the label and checking the color.
func NewTag(label string, color TagColor) (Tag, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Tag{}, fmt.Errorf("tag label is empty")
	}
	if !color.Valid() {
		return Tag{}, fmt.Errorf("invalid tag color %q for label %q", color, label)
	}
	return Tag{Label: label, Color: color}, nil
}

// SanitizeTags returns the valid tags in order, dropping empty labels,
// unknown colors and exact duplicates. The result is never nil.
func SanitizeTags(tags []Tag) []Tag {
	out := make([]Tag, 0, len(tags))
	seen := make(map[Tag]struct{}, len(tags))
	for _, t := range tags {
		tag, err := NewTag(t.Label, t.Color)
		if err != nil {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
