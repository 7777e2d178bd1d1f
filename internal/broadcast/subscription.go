// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intelstream/internal/models"
)

type closeReason int32

const (
	closeReasonNone closeReason = iota
	closeReasonClosed
	closeReasonDropped
	closeReasonShutdown
)

// queue is a subscription's delivery queue. offer must never block.
type queue interface {
	offer(ev Event) bool
	events() <-chan Event
	close()
}

type chanQueue struct {
	ch chan Event
}

func newChanQueue(size int) *chanQueue {
	return &chanQueue{ch: make(chan Event, size)}
}

func (q *chanQueue) offer(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

func (q *chanQueue) events() <-chan Event { return q.ch }

func (q *chanQueue) close() { close(q.ch) }

// Subscription is one consumer of the hub. It holds the backlog computed at
// subscribe time and a queue of live events.
type Subscription struct {
	id      string
	hub     *Hub
	q       queue
	backlog []*models.IntelItem

	reason    atomic.Int32
	closeOnce sync.Once
}

// ID returns the subscription id used in logs.
func (s *Subscription) ID() string {
	return s.id
}

// Backlog returns the number of items that precede live events.
func (s *Subscription) Backlog() int {
	return len(s.backlog)
}

// closeQueueLocked must be called with the hub mutex held and at most once,
// which the hub guarantees by removing the subscription from its set first.
func (s *Subscription) closeQueueLocked(reason closeReason) {
	s.reason.Store(int32(reason))
	s.q.close()
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Stream writes the backlog as initial_batch chunks, then forwards live
// events until ctx is done, the hub closes, or the writer fails. A keep-alive
// is written whenever no event arrived within the hub's KeepAlive interval.
// The subscription is closed on return.
func (s *Subscription) Stream(ctx context.Context, w EventWriter) error {
	defer s.Close()

	cfg := s.hub.cfg
	for start := 0; start < len(s.backlog); start += cfg.ChunkSize {
		end := min(start+cfg.ChunkSize, len(s.backlog))
		ev, err := encodeBatch(s.backlog[start:end])
		if err != nil {
			return err
		}
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	s.backlog = nil

	keepAlive := time.NewTimer(cfg.KeepAlive)
	defer keepAlive.Stop()

	events := s.q.events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if closeReason(s.reason.Load()) == closeReasonDropped {
					return ErrSubscriberDropped
				}
				return nil
			}
			if err := w.WriteEvent(ev); err != nil {
				return err
			}
		case <-keepAlive.C:
			if err := w.WriteKeepAlive(); err != nil {
				return err
			}
		}
		keepAlive.Reset(cfg.KeepAlive)
	}
}

func encodeBatch(items []*models.IntelItem) (Event, error) {
	stripped := make([]*models.IntelItem, len(items))
	for i, item := range items {
		stripped[i] = item.WithoutContent()
	}
	data, err := json.Marshal(stripped)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode backlog: %w", err)
	}
	return Event{
		ID:   items[len(items)-1].ID,
		Name: EventInitialBatch,
		Data: data,
	}, nil
}
