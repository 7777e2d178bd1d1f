// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
	"github.com/tomtom215/intelstream/internal/models"
	"github.com/tomtom215/intelstream/internal/validation"
)

const (
	breakerName = "enrichment"

	// maxPromptContent bounds the original text sent to the model, in runes.
	maxPromptContent = 12000
)

// Enricher refines a raw document. Implementations must not fail: on any
// error they return Unchanged.
type Enricher interface {
	Enrich(ctx context.Context, raw models.RawDocument) Result
}

// TextGenerator produces a JSON text completion for a prompt.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Noop never changes documents. It is used when enrichment is disabled.
type Noop struct{}

// Enrich implements Enricher.
func (Noop) Enrich(context.Context, models.RawDocument) Result {
	return Unchanged()
}

// ModelEnricher asks a TextGenerator to refine documents. Calls are rate
// limited, time bounded and go through a circuit breaker so an unavailable
// model is skipped quickly.
type ModelEnricher struct {
	gen      TextGenerator
	language string
	timeout  time.Duration
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[string]
}

// NewModelEnricher creates an enricher from cfg.
func NewModelEnricher(gen TextGenerator, cfg *config.EnrichmentConfig) *ModelEnricher {
	e := &ModelEnricher{
		gen:      gen,
		language: cfg.Language,
		timeout:  cfg.Timeout,
	}
	if e.timeout <= 0 {
		e.timeout = 45 * time.Second
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	failures := cfg.BreakerFailures
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	e.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return e
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Enrich implements Enricher.
func (e *ModelEnricher) Enrich(ctx context.Context, raw models.RawDocument) (res Result) {
	start := time.Now()
	log := logging.Ctx(ctx).With().Str("source_id", raw.SourceID).Logger()

	// gobreaker counts a panicking call as a failure and then re-panics.
	defer func() {
		if r := recover(); r != nil {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
			metrics.RecordEnrichment("error", time.Since(start))
			log.Error().Interface("panic", r).Msg("Enrichment panicked, keeping original")
			res = Unchanged()
		}
	}()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			metrics.RecordEnrichment("rejected", time.Since(start))
			return Unchanged()
		}
	}

	text, err := e.cb.Execute(func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.gen.GenerateJSON(callCtx, buildPrompt(raw, e.language))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			metrics.RecordEnrichment("rejected", time.Since(start))
			log.Debug().Msg("Enrichment skipped, circuit open")
			return Unchanged()
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		metrics.RecordEnrichment("error", time.Since(start))
		log.Warn().Err(err).Msg("Enrichment call failed, keeping original")
		return Unchanged()
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	fields, err := parseFields(text)
	if err != nil {
		metrics.RecordEnrichment("error", time.Since(start))
		log.Warn().Err(err).Msg("Enrichment response unusable, keeping original")
		return Unchanged()
	}
	if fields.Title == "" && fields.Summary == "" && fields.Content == "" && len(fields.Tags) == 0 {
		metrics.RecordEnrichment("unchanged", time.Since(start))
		return Unchanged()
	}

	metrics.RecordEnrichment("enriched", time.Since(start))
	return Enriched(fields)
}

func buildPrompt(raw models.RawDocument, language string) string {
	content := raw.Content
	if utf8.RuneCountInString(content) > maxPromptContent {
		content = string([]rune(content)[:maxPromptContent])
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are an intelligence analyst refining a single raw intelligence item.

1. Title: translate the title into %[1]s.
2. Summary: translate the given summary into %[1]s. Do not summarize the original text.
3. Content: translate the entire original text into %[1]s, keeping its length, tone and details.
4. Tags: extract relevant tags. Countries and regions use color "red", domains such as
   military or diplomacy use color "blue", other keywords use color "gray".

Respond with JSON only:
{"title": "...", "summary": "...", "content": "...", "tags": [{"label": "...", "color": "red"}]}

`, language)
	fmt.Fprintf(&b, "Title: %s\nSummary: %s\nOriginal Text Snippet:\n%s\n", raw.Title, raw.Summary, content)
	return b.String()
}

type modelResponse struct {
	Title   string            `json:"title"`
	Summary string            `json:"summary"`
	Content string            `json:"content"`
	Tags    []json.RawMessage `json:"tags"`
}

// parseFields decodes a model response. Tags may be objects or bare strings;
// bare strings and objects without a color become gray, unknown colors are dropped.
func parseFields(text string) (Fields, error) {
	text = stripCodeFence(text)

	var resp modelResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Fields{}, fmt.Errorf("failed to decode model response: %w", err)
	}

	tags := make([]models.Tag, 0, len(resp.Tags))
	for _, rawTag := range resp.Tags {
		var label string
		if err := json.Unmarshal(rawTag, &label); err == nil {
			if tag, err := models.NewTag(label, models.TagGray); err == nil {
				tags = append(tags, tag)
			}
			continue
		}
		var obj struct {
			Label string `json:"label"`
			Color string `json:"color"`
		}
		if err := json.Unmarshal(rawTag, &obj); err != nil {
			continue
		}
		tag := models.Tag{
			Label: strings.TrimSpace(obj.Label),
			Color: models.TagColor(strings.ToLower(strings.TrimSpace(obj.Color))),
		}
		if tag.Color == "" {
			tag.Color = models.TagGray
		}
		if verr := validation.ValidateStruct(tag); verr != nil {
			logging.Debug().Strs("fields", verr.Fields()).Msg("Dropping invalid enrichment tag")
			continue
		}
		tags = append(tags, tag)
	}

	return Fields{
		Title:   strings.TrimSpace(resp.Title),
		Summary: strings.TrimSpace(resp.Summary),
		Content: strings.TrimSpace(resp.Content),
		Tags:    models.SanitizeTags(tags),
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
