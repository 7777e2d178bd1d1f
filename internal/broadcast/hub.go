// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package broadcast implements the in-process fan-out of ingested items.
//
// The Hub keeps a bounded, insertion-ordered cache of recently published
// items and a set of live subscriptions. A single mutex guards both, so a new
// subscriber either finds an item in its backlog snapshot or receives it as a
// live event, never both and never neither. Publishing never blocks: each
// subscription owns a bounded queue and a subscription whose queue cannot
// accept an event is dropped.
//
// Resuming:
//
//   - AfterID: the backlog is the cache suffix strictly after the item with
//     that id, or the whole cache when the id has aged out.
//   - AfterID and AfterTimestamp: that suffix, keeping items with
//     timestamp >= AfterTimestamp (inclusive, ties after the anchor are kept).
//   - AfterTimestamp alone: the whole cache, keeping items with
//     timestamp > AfterTimestamp (strict, there is no anchor to break ties).
//   - Neither: the whole cache.
//
// The backlog is delivered as initial_batch events of at most ChunkSize items,
// then live events follow in publish order.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
	"github.com/tomtom215/intelstream/internal/models"
)

// ErrSubscriberDropped is returned by Stream when the hub removed the
// subscription because its queue overflowed.
var ErrSubscriberDropped = errors.New("subscriber dropped: delivery queue full")

// Config holds hub settings.
type Config struct {
	CacheCapacity int
	ChunkSize     int
	KeepAlive     time.Duration
	QueueSize     int
	BackfillLimit int
}

// DefaultConfig returns the default hub settings.
func DefaultConfig() Config {
	return Config{
		CacheCapacity: 1000,
		ChunkSize:     50,
		KeepAlive:     25 * time.Second,
		QueueSize:     256,
		BackfillLimit: 200,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.BackfillLimit <= 0 {
		c.BackfillLimit = d.BackfillLimit
	}
	return c
}

// ResumeOptions tells Subscribe where a reconnecting client left off.
// Zero values mean absent.
type ResumeOptions struct {
	AfterID        string
	AfterTimestamp float64
}

// Hub is the broadcast hub. Create it with NewHub.
type Hub struct {
	cfg Config

	mu          sync.Mutex
	cache       []*models.IntelItem
	subscribers map[string]*Subscription
	closed      bool
}

// NewHub creates a hub with an empty cache.
func NewHub(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:         cfg,
		cache:       make([]*models.IntelItem, 0, cfg.CacheCapacity),
		subscribers: make(map[string]*Subscription),
	}
}

// Config returns the effective settings.
func (h *Hub) Config() Config {
	return h.cfg
}

// Publish delivers item to every live subscription. EventNewIntel items are
// also appended to the cache, evicting the oldest entry beyond capacity.
// The content field is never sent; the cached copy keeps it for GetCached.
// Publishing the same item twice caches it twice.
func (h *Hub) Publish(eventName string, item *models.IntelItem) {
	if item == nil {
		return
	}
	stored := item.Clone()
	data, err := json.Marshal(stored.WithoutContent())
	if err != nil {
		logging.Error().Err(err).Str("item_id", item.ID).Msg("Failed to encode event, not publishing")
		return
	}
	ev := Event{Name: eventName, Data: data}
	if eventName == EventNewIntel {
		ev.ID = stored.ID
	}

	h.mu.Lock()
	if eventName == EventNewIntel {
		h.cache = append(h.cache, stored)
		h.evictLocked()
	}
	// offer never blocks, so delivering under the lock keeps per-subscriber
	// order equal to publish order.
	for id, sub := range h.subscribers {
		if !sub.q.offer(ev) {
			delete(h.subscribers, id)
			sub.closeQueueLocked(closeReasonDropped)
			metrics.RecordSubscriberDropped("queue_full")
			logging.Warn().Str("subscriber_id", id).Msg("Subscriber queue full, dropping subscriber")
		}
	}
	cacheLen := len(h.cache)
	subCount := len(h.subscribers)
	h.mu.Unlock()

	metrics.RecordPublish(eventName)
	metrics.StreamCacheEntries.Set(float64(cacheLen))
	metrics.StreamSubscribers.Set(float64(subCount))
}

func (h *Hub) evictLocked() {
	for len(h.cache) > h.cfg.CacheCapacity {
		h.cache[0] = nil
		h.cache = h.cache[1:]
	}
}

// Subscribe registers a subscription and snapshots its backlog in the same
// critical section. The caller must Stream or Close it.
func (h *Hub) Subscribe(opts ResumeOptions) *Subscription {
	return h.subscribe(opts, newChanQueue(h.cfg.QueueSize))
}

func (h *Hub) subscribe(opts ResumeOptions, q queue) *Subscription {
	sub := &Subscription{
		id:  uuid.NewString(),
		hub: h,
		q:   q,
	}

	h.mu.Lock()
	sub.backlog = selectBacklog(h.cache, opts)
	if h.closed {
		sub.closeQueueLocked(closeReasonShutdown)
	} else {
		h.subscribers[sub.id] = sub
	}
	subCount := len(h.subscribers)
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(subCount))
	metrics.StreamBacklogItems.Observe(float64(len(sub.backlog)))
	logging.Debug().
		Str("subscriber_id", sub.id).
		Str("after_id", opts.AfterID).
		Float64("after_ts", opts.AfterTimestamp).
		Int("backlog", len(sub.backlog)).
		Msg("Subscriber registered")
	return sub
}

// selectBacklog returns a copy of the part of cache a resuming client has not seen.
func selectBacklog(cache []*models.IntelItem, opts ResumeOptions) []*models.IntelItem {
	start := 0
	if opts.AfterID != "" {
		for i, item := range cache {
			if item.ID == opts.AfterID {
				start = i + 1
				break
			}
		}
	}

	var out []*models.IntelItem
	switch {
	case opts.AfterID != "" && opts.AfterTimestamp != 0:
		for _, item := range cache[start:] {
			if item.Timestamp >= opts.AfterTimestamp {
				out = append(out, item)
			}
		}
	case opts.AfterTimestamp != 0:
		for _, item := range cache {
			if item.Timestamp > opts.AfterTimestamp {
				out = append(out, item)
			}
		}
	default:
		out = append(out, cache[start:]...)
	}
	return out
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		sub.closeQueueLocked(closeReasonClosed)
	}
	subCount := len(h.subscribers)
	h.mu.Unlock()
	metrics.StreamSubscribers.Set(float64(subCount))
}

// GetCached returns a copy of the most recently published cached item with
// the given id.
func (h *Hub) GetCached(id string) (*models.IntelItem, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.cache) - 1; i >= 0; i-- {
		if h.cache[i].ID == id {
			return h.cache[i].Clone(), true
		}
	}
	return nil, false
}

// CacheLen returns the number of cached items.
func (h *Hub) CacheLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cache)
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close ends every subscription. Streams return nil. Subscriptions created
// after Close end right after their backlog.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	n := len(h.subscribers)
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		sub.closeQueueLocked(closeReasonShutdown)
	}
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(0)
	logging.Info().Str("component", "broadcast-hub").Int("subscribers_closed", n).Msg("Broadcast hub closed")
}

// RunWithContext reopens the hub, blocks until ctx is done, then closes every
// subscription. It lets a supervisor own the hub's lifetime.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()

	<-ctx.Done()
	h.Close()
	return ctx.Err()
}
