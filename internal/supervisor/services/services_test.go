// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/poller"
)

var (
	_ suture.Service = (*PollerService)(nil)
	_ suture.Service = (*HubService)(nil)
)

type countingSource struct {
	configured bool
	steps      atomic.Int32
	closes     atomic.Int32
}

func (s *countingSource) Name() string       { return "counting" }
func (s *countingSource) IsConfigured() bool { return s.configured }
func (s *countingSource) PollStep(context.Context) error {
	s.steps.Add(1)
	return nil
}
func (s *countingSource) Close() error {
	s.closes.Add(1)
	return nil
}

func TestPollerService_Serve(t *testing.T) {
	src := &countingSource{configured: true}
	p := poller.New(src, poller.Options{Interval: 5 * time.Millisecond})
	svc := NewPollerService(p)

	if got := svc.String(); got != "poller-counting" {
		t.Errorf("String() = %q, want poller-counting", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for src.steps.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poller did not step")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if p.State() != poller.StateIdle {
		t.Errorf("poller state = %v, want idle", p.State())
	}
	if src.closes.Load() != 1 {
		t.Errorf("source closed %d times, want 1", src.closes.Load())
	}
}

func TestPollerService_UnconfiguredIsNotRestarted(t *testing.T) {
	p := poller.New(&countingSource{}, poller.Options{})
	err := NewPollerService(p).Serve(context.Background())
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() error = %v, want ErrDoNotRestart", err)
	}
}

func TestHubService_ClosesSubscriptionsOnShutdown(t *testing.T) {
	hub := broadcast.NewHub(broadcast.DefaultConfig())
	svc := NewHubService(hub)
	if svc.String() != "broadcast-hub" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	sub := hub.Subscribe(broadcast.ResumeOptions{})
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() after shutdown = %d, want 0", hub.SubscriberCount())
	}
	sub.Close()
}
