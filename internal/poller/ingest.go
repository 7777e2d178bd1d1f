// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package poller

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/cache"
	"github.com/tomtom215/intelstream/internal/config"
	"github.com/tomtom215/intelstream/internal/enrich"
	"github.com/tomtom215/intelstream/internal/identity"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
	"github.com/tomtom215/intelstream/internal/models"
)

// Store persists ingested items.
type Store interface {
	UpsertBatch(ctx context.Context, items []*models.IntelItem) ([]*models.IntelItem, error)
}

// Publisher fans stored items out to stream subscribers.
type Publisher interface {
	Publish(eventName string, item *models.IntelItem)
}

// Ingestor is the pipeline shared by every source: seen filtering, enrichment,
// identity resolution, persistence and publication.
//
// Each source owns one Ingestor so seen-sets are not shared between upstreams.
type Ingestor struct {
	name        string
	store       Store
	hub         Publisher
	enricher    enrich.Enricher
	seen        *cache.RecentSet
	concurrency int
	now         func() time.Time
}

// NewIngestor creates the pipeline for the source called name.
// A nil enricher disables enrichment.
func NewIngestor(name string, store Store, hub Publisher, enricher enrich.Enricher, cfg config.IngestConfig) *Ingestor {
	if enricher == nil {
		enricher = enrich.Noop{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Ingestor{
		name:        name,
		store:       store,
		hub:         hub,
		enricher:    enricher,
		seen:        cache.NewRecentSet(cfg.SeenCapacity, cfg.SeenRetain),
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Ingest runs docs through the pipeline and returns how many items were stored
// and published. Documents already seen by this ingestor are skipped. When the
// batch cannot be persisted its documents are forgotten so the next poll
// retries them.
func (in *Ingestor) Ingest(ctx context.Context, docs []models.RawDocument) (int, error) {
	metrics.RecordIngest(in.name, "fetched", len(docs))

	fresh, keys := in.filterSeen(docs)
	if len(fresh) == 0 {
		return 0, nil
	}
	metrics.RecordIngest(in.name, "new", len(fresh))

	enriched := in.enrichAll(ctx, fresh)
	if err := ctx.Err(); err != nil {
		in.forget(keys)
		return 0, err
	}

	now := in.now()
	items := make([]*models.IntelItem, 0, len(enriched))
	for _, raw := range enriched {
		id, kind := identity.Resolve(raw)
		if !kind.Stable() {
			logging.Ctx(ctx).Debug().
				Str("poller", in.name).
				Str("title", raw.Title).
				Msg("Document has no stable key, assigned a random id")
		}
		items = append(items, models.NewIntelItem(id, raw, now))
	}

	stored, err := in.store.UpsertBatch(ctx, items)
	if err != nil {
		in.forget(keys)
		metrics.RecordIngest(in.name, "failed", len(items))
		return 0, fmt.Errorf("failed to persist %d items: %w", len(items), err)
	}
	metrics.RecordIngest(in.name, "stored", len(stored))

	for _, item := range stored {
		in.hub.Publish(broadcast.EventNewIntel, item)
	}
	metrics.RecordIngest(in.name, "published", len(stored))

	logging.Ctx(ctx).Info().
		Str("poller", in.name).
		Int("fetched", len(docs)).
		Int("items", len(stored)).
		Msg("Ingested new items")

	return len(stored), nil
}

// seenKey is the key a document is remembered by. Documents without any
// identifying field cannot be recognised again and are always treated as new.
func seenKey(raw models.RawDocument) string {
	if raw.SourceID != "" {
		return raw.SourceID
	}
	return identity.CanonicalURL(raw.URL)
}

func (in *Ingestor) filterSeen(docs []models.RawDocument) ([]models.RawDocument, []string) {
	fresh := make([]models.RawDocument, 0, len(docs))
	keys := make([]string, 0, len(docs))
	for _, raw := range docs {
		key := seenKey(raw)
		if key == "" {
			fresh = append(fresh, raw)
			continue
		}
		if !in.seen.AddIfAbsent(key) {
			continue
		}
		fresh = append(fresh, raw)
		keys = append(keys, key)
	}
	return fresh, keys
}

func (in *Ingestor) forget(keys []string) {
	for _, key := range keys {
		in.seen.Remove(key)
	}
}

// enrichAll enriches docs concurrently, bounded by the configured limit. The
// result keeps the input order. Enrichment failures leave a document unchanged.
func (in *Ingestor) enrichAll(ctx context.Context, docs []models.RawDocument) []models.RawDocument {
	out := make([]models.RawDocument, len(docs))
	enrichedFlags := make([]bool, len(docs))

	var g errgroup.Group
	g.SetLimit(in.concurrency)
	for i := range docs {
		g.Go(func() error {
			res := in.safeEnrich(ctx, docs[i])
			out[i] = res.Apply(docs[i])
			enrichedFlags[i] = res.IsEnriched()
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range enrichedFlags {
		if ok {
			n++
		}
	}
	if n > 0 {
		metrics.RecordIngest(in.name, "enriched", n)
	}
	return out
}

// safeEnrich runs the enricher on an errgroup goroutine, where a panic would
// escape the poller's recover.
func (in *Ingestor) safeEnrich(ctx context.Context, raw models.RawDocument) (res enrich.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordEnrichment("error", time.Since(start))
			logging.Ctx(ctx).Error().
				Str("source", in.name).
				Str("source_id", raw.SourceID).
				Interface("panic", r).
				Msg("Enricher panicked, keeping original")
			res = enrich.Unchanged()
		}
	}()
	return in.enricher.Enrich(ctx, raw)
}

// Seen reports whether raw was already ingested. Sources use it to skip
// expensive per-document work such as full-text extraction.
func (in *Ingestor) Seen(raw models.RawDocument) bool {
	key := seenKey(raw)
	return key != "" && in.seen.Contains(key)
}
