// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package identity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/intelstream/internal/models"
)

func TestResolvePrefersNativeID(t *testing.T) {
	t.Parallel()

	id, kind := Resolve(models.RawDocument{NativeID: " thing-42 ", URL: "https://example.com/a"})
	if id != "thing-42" {
		t.Errorf("expected native id, got %q", id)
	}
	if kind != KindNative || !kind.Stable() {
		t.Errorf("expected stable native kind, got %v", kind)
	}
}

func TestResolveURLIsDeterministic(t *testing.T) {
	t.Parallel()

	first, kind := Resolve(models.RawDocument{URL: "https://Example.com/report?id=7#section"})
	second, _ := Resolve(models.RawDocument{URL: "  https://example.com/report?id=7 "})

	if kind != KindURL {
		t.Fatalf("expected url kind, got %v", kind)
	}
	if first != second {
		t.Errorf("expected equal ids for equivalent URLs, got %q and %q", first, second)
	}

	// Pinned value: ids must survive process restarts and library upgrades.
	want := uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://example.com/report?id=7")).String()
	if first != want {
		t.Errorf("Resolve() = %q, want %q", first, want)
	}

	other, _ := Resolve(models.RawDocument{URL: "https://example.com/report?id=8"})
	if other == first {
		t.Error("different URLs produced the same id")
	}
}

func TestResolveRandomFallback(t *testing.T) {
	t.Parallel()

	a, kind := Resolve(models.RawDocument{Title: "no keys"})
	b, _ := Resolve(models.RawDocument{Title: "no keys"})

	if kind != KindRandom || kind.Stable() {
		t.Errorf("expected unstable random kind, got %v", kind)
	}
	if a == b {
		t.Error("random ids should differ")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected UUID, got %q: %v", a, err)
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"HTTPS://NEWS.Example.org/Path#top", "https://news.example.org/Path"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	if KindNative.String() != "native" || KindURL.String() != "url" || KindRandom.String() != "random" {
		t.Error("unexpected kind names")
	}
}
