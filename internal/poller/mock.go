// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/intelstream/internal/models"
)

const mockSourceName = "mock"

var (
	mockTitles = []string{
		"Naval exercise reported near disputed shipping lane",
		"Ransomware group claims breach of regional port operator",
		"Central bank signals emergency rate decision",
		"Satellite imagery shows new construction at border crossing",
		"Energy ministry announces pipeline maintenance shutdown",
		"Election commission postpones provincial vote",
		"Undersea cable fault disrupts connectivity across the strait",
		"Drone sightings close airport for three hours",
	}
	mockSources   = []string{"Reuters", "AP", "BBC", "CNN", "Al Jazeera", "TechCrunch"}
	mockCountries = []string{"Ukraine", "Taiwan", "Iran", "Israel", "Venezuela", "Sudan", "North Korea"}
	mockDomains   = []string{"Maritime", "Cyber", "Economy", "Energy", "Politics"}
)

// MockSource produces one synthetic item per step for demos and local
// development. Every item gets a fresh id, so nothing deduplicates.
type MockSource struct {
	ingest *Ingestor

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewMockSource creates a mock source.
func NewMockSource(ingest *Ingestor) *MockSource {
	seed := uint64(time.Now().UnixNano())
	return &MockSource{
		ingest: ingest,
		rng:    rand.New(rand.NewPCG(seed, seed>>1)),
		now:    time.Now,
	}
}

// Name implements Source.
func (s *MockSource) Name() string { return mockSourceName }

// IsConfigured implements Source.
func (s *MockSource) IsConfigured() bool { return true }

// PollStep implements Source.
func (s *MockSource) PollStep(ctx context.Context) error {
	_, err := s.ingest.Ingest(ctx, []models.RawDocument{s.generate()})
	return err
}

func (s *MockSource) generate() models.RawDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	title := mockTitles[s.rng.IntN(len(mockTitles))]
	source := mockSources[s.rng.IntN(len(mockSources))]

	var tags []models.Tag
	if s.rng.IntN(2) == 0 {
		tags = append(tags, models.Tag{Label: mockCountries[s.rng.IntN(len(mockCountries))], Color: models.TagRed})
	}
	tags = append(tags,
		models.Tag{Label: mockDomains[s.rng.IntN(len(mockDomains))], Color: models.TagBlue},
		models.Tag{Label: "MockData", Color: models.TagGray},
	)

	return models.RawDocument{
		SourceID:    id,
		NativeID:    id,
		URL:         "http://localhost:5173/#" + id,
		Title:       "[MOCK] " + title,
		Summary:     fmt.Sprintf("Synthetic report from %s generated at %s.", source, s.now().UTC().Format(time.RFC3339)),
		Content:     fmt.Sprintf("This is a generated item for testing the stream.\n\n%s.", title),
		Source:      source,
		PublishedAt: s.now(),
		Tags:        tags,
	}
}
