// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package services

import "context"

// ContextRunner matches *broadcast.Hub's RunWithContext method.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the broadcast hub. RunWithContext already blocks
// until ctx is cancelled and closes every subscription on the way out.
type HubService struct {
	hub  ContextRunner
	name string
}

// NewHubService wraps hub.
func NewHubService(hub ContextRunner) *HubService {
	return &HubService{
		hub:  hub,
		name: "broadcast-hub",
	}
}

// Serve implements suture.Service.
func (h *HubService) Serve(ctx context.Context) error {
	return h.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (h *HubService) String() string {
	return h.name
}
