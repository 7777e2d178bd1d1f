// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package identity assigns stable ids to raw documents so that repeated polls
// of the same upstream content collapse to one stored record.
//
// Resolution order:
//
//  1. the source-native identifier, used verbatim
//  2. a name-based UUID (version 5) of the canonical URL, identical across
//     processes and restarts
//  3. a random UUID, which cannot deduplicate across polls
package identity

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/intelstream/internal/models"
)

// Kind records which rule produced an id.
type Kind int

const (
	// KindNative means the source-native identifier was used.
	KindNative Kind = iota
	// KindURL means the id was derived from the canonical URL.
	KindURL
	// KindRandom means no stable key was available.
	KindRandom
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindURL:
		return "url"
	default:
		return "random"
	}
}

// Stable reports whether the same document will resolve to the same id again.
func (k Kind) Stable() bool {
	return k != KindRandom
}

// Resolve returns the id for raw and the rule that produced it.
func Resolve(raw models.RawDocument) (string, Kind) {
	if id := strings.TrimSpace(raw.NativeID); id != "" {
		return id, KindNative
	}
	if canonical := CanonicalURL(raw.URL); canonical != "" {
		return FromURL(canonical), KindURL
	}
	return uuid.NewString(), KindRandom
}

// FromURL derives the id for an already canonical URL.
func FromURL(canonical string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonical)).String()
}

// CanonicalURL normalises raw so trivially different spellings of the same
// link hash alike: surrounding space is trimmed, scheme and host are
// lower-cased and the fragment is dropped. Unparseable input is returned
// trimmed; an empty string means there is no URL.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
