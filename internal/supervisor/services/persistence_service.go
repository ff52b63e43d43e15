// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import "context"

// BatchFlusher is the subset of persistence.Engine's lifecycle this wrapper
// depends on, kept as a consumer-side interface so this package never
// imports internal/persistence directly.
type BatchFlusher interface {
	RunFlushLoop(ctx context.Context) error
}

// PersistenceService adapts a BatchFlusher to suture.Service for the data
// layer of the supervisor tree.
type PersistenceService struct {
	engine BatchFlusher
	name   string
}

// NewPersistenceService wraps engine for supervision.
func NewPersistenceService(engine BatchFlusher) *PersistenceService {
	return &PersistenceService{engine: engine, name: "persistence-engine"}
}

func (s *PersistenceService) Serve(ctx context.Context) error {
	return s.engine.RunFlushLoop(ctx)
}

func (s *PersistenceService) String() string {
	return s.name
}
