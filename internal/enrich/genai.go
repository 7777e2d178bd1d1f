// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package enrich

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/tomtom215/intelstream/internal/config"
)

// GenAIGenerator implements TextGenerator with the Gemini API.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator creates a Gemini client for model.
func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

// GenerateJSON implements TextGenerator.
func (g *GenAIGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("GenAI returned an empty response")
	}
	return text, nil
}

// New returns the enricher cfg asks for: a Gemini-backed ModelEnricher when
// enrichment is enabled, Noop otherwise.
func New(ctx context.Context, cfg *config.EnrichmentConfig) (Enricher, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	gen, err := NewGenAIGenerator(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return NewModelEnricher(gen, cfg), nil
}
