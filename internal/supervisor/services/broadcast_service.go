// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import "context"

// BroadcastHub is the subset of broadcast.Hub's lifecycle this wrapper
// depends on, kept as a consumer-side interface so this package never
// imports internal/broadcast directly.
type BroadcastHub interface {
	Run(ctx context.Context) error
}

// BroadcastService adapts a BroadcastHub to suture.Service for the
// messaging layer of the supervisor tree.
type BroadcastService struct {
	hub  BroadcastHub
	name string
}

// NewBroadcastService wraps hub for supervision.
func NewBroadcastService(hub BroadcastHub) *BroadcastService {
	return &BroadcastService{hub: hub, name: "broadcast-hub"}
}

func (s *BroadcastService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

func (s *BroadcastService) String() string {
	return s.name
}
