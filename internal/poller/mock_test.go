// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"strings"
	"testing"

	"github.com/tomtom215/intelstream/internal/models"
)

func TestMockSource_PollStep(t *testing.T) {
	pub := &recordingPublisher{}
	src := NewMockSource(NewIngestor("mock", &memoryStore{}, pub, nil, testIngestConfig()))

	for i := 0; i < 3; i++ {
		if err := src.PollStep(context.Background()); err != nil {
			t.Fatalf("PollStep() error = %v", err)
		}
	}

	events := pub.snapshot()
	if len(events) != 3 {
		t.Fatalf("published %d items, want 3", len(events))
	}
	ids := map[string]bool{}
	for _, ev := range events {
		item := ev.item
		ids[item.ID] = true
		if !strings.HasPrefix(item.Title, "[MOCK] ") {
			t.Errorf("Title = %q, want [MOCK] prefix", item.Title)
		}
		last := item.Tags[len(item.Tags)-1]
		if last != (models.Tag{Label: "MockData", Color: models.TagGray}) {
			t.Errorf("last tag = %+v, want MockData", last)
		}
	}
	if len(ids) != 3 {
		t.Errorf("got %d distinct ids, want 3", len(ids))
	}
}
