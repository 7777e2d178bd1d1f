// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package poller runs the ingestion side of the service.
//
// A Poller is a small state machine (Idle, Running, Stopping) that drives one
// Source on a fixed interval. Sources fetch raw documents from an upstream and
// hand them to an Ingestor, which filters already seen documents, resolves
// identities, enriches, persists and publishes them.
//
// A failing step is logged and retried on the next tick. There is no backoff
// escalation: a permanently broken upstream shows up as a steady stream of
// errors in the logs and in the poller_steps_total metric.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
)

var (
	// ErrNotConfigured is returned by Start when the source is missing required settings.
	ErrNotConfigured = errors.New("poller source is not configured")

	// ErrRunning is returned when an operation requires an idle poller.
	ErrRunning = errors.New("poller is running")
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 30 * time.Second

// State is the lifecycle state of a Poller.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Source is the capability a concrete upstream provides to the poll loop.
//
// PollStep performs one fetch-and-ingest cycle. It must honour ctx so that
// Stop can cancel an in-flight step. A Source that also implements io.Closer
// is closed when the poller stops, releasing tokens and idle connections.
type Source interface {
	Name() string
	IsConfigured() bool
	PollStep(ctx context.Context) error
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration

	// Housekeeper, when set, is given a chance to run at the top of every step.
	Housekeeper *Housekeeper
}

// Poller drives a Source on a fixed interval.
type Poller struct {
	source      Source
	interval    time.Duration
	housekeeper *Housekeeper
	logger      zerolog.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{} // closed when the loop goroutine exits
	stopped chan struct{} // closed when Stop has returned the poller to idle
}

// New creates an idle poller for source.
func New(source Source, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:      source,
		interval:    interval,
		housekeeper: opts.Housekeeper,
		logger:      logging.WithComponent("poller").With().Str("poller", source.Name()).Logger(),
	}
}

// Name returns the source name.
func (p *Poller) Name() string {
	return p.source.Name()
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Configure runs fn while the poller is guaranteed to stay idle. Sources are
// reconfigured this way so a running loop never observes a half-applied change.
func (p *Poller) Configure(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return ErrRunning
	}
	return fn()
}

// Start launches the poll loop. Starting a running poller logs a warning and
// does nothing. The loop stops when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateRunning:
		p.logger.Warn().Msg("Poller is already running")
		return nil
	case StateStopping:
		return ErrRunning
	}

	if !p.source.IsConfigured() {
		return ErrNotConfigured
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.stopped = make(chan struct{})
	p.state = StateRunning

	go p.loop(loopCtx, p.done)
	return nil
}

// Stop cancels the in-flight step, waits for the loop to exit and releases the
// source's resources. Stopping an idle poller is a no-op. Concurrent callers
// all return once the poller is idle again.
func (p *Poller) Stop() error {
	p.mu.Lock()
	switch p.state {
	case StateIdle:
		p.mu.Unlock()
		return nil
	case StateStopping:
		stopped := p.stopped
		p.mu.Unlock()
		<-stopped
		return nil
	}

	p.state = StateStopping
	cancel, done, stopped := p.cancel, p.done, p.stopped
	p.mu.Unlock()

	cancel()
	<-done

	var err error
	if closer, ok := p.source.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			err = fmt.Errorf("failed to release %s source: %w", p.source.Name(), cerr)
		}
	}

	p.mu.Lock()
	p.state = StateIdle
	p.cancel = nil
	p.mu.Unlock()
	close(stopped)

	p.logger.Info().Msg("Poller stopped")
	return err
}

func (p *Poller) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	name := p.source.Name()
	metrics.SetPollerRunning(name, true)
	defer metrics.SetPollerRunning(name, false)

	p.logger.Info().Dur("interval", p.interval).Msg("Poller started")

	for {
		p.step(ctx)

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// step runs housekeeping and one PollStep. Panics are recovered so a single
// bad document cannot take the loop down.
func (p *Poller) step(ctx context.Context) {
	start := time.Now()
	result := "success"

	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			p.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Poll step panicked")
		}
		metrics.RecordPollStep(p.source.Name(), result, time.Since(start))
	}()

	if p.housekeeper != nil {
		p.housekeeper.MaybeRun(ctx)
	}

	if err := p.source.PollStep(ctx); err != nil {
		result = "error"
		if ctx.Err() != nil {
			p.logger.Debug().Err(err).Msg("Poll step cancelled")
			return
		}
		p.logger.Warn().Err(err).Msg("Poll step failed")
	}
}
