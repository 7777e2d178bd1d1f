// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package services adapts Intelstream components to suture.Service.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/intelstream/internal/poller"
)

// PollerLifecycle matches *poller.Poller.
type PollerLifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// PollerService runs a poller under supervision:
//
//  1. Start(ctx) launches the poll loop
//  2. Serve blocks until ctx is cancelled
//  3. Stop() cancels the in-flight step and releases the source
//
// A poller whose source is not configured is not restarted.
type PollerService struct {
	poller PollerLifecycle
	name   string
}

// NewPollerService wraps p.
func NewPollerService(p PollerLifecycle) *PollerService {
	return &PollerService{
		poller: p,
		name:   "poller-" + p.Name(),
	}
}

// Serve implements suture.Service.
func (s *PollerService) Serve(ctx context.Context) error {
	if err := s.poller.Start(ctx); err != nil {
		if errors.Is(err, poller.ErrNotConfigured) {
			return fmt.Errorf("%w: %s: %v", suture.ErrDoNotRestart, s.name, err)
		}
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.poller.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *PollerService) String() string {
	return s.name
}
