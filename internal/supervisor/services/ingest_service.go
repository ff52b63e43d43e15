// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import "context"

// IngestPipeline is the subset of ingest.Pipeline's lifecycle this wrapper
// depends on, kept as a consumer-side interface so this package never
// imports internal/ingest directly.
type IngestPipeline interface {
	Start(ctx context.Context) error
}

// IngestService adapts an IngestPipeline to suture.Service for the data
// layer of the supervisor tree.
type IngestService struct {
	pipeline IngestPipeline
	name     string
}

// NewIngestService wraps pipeline for supervision.
func NewIngestService(pipeline IngestPipeline) *IngestService {
	return &IngestService{pipeline: pipeline, name: "ingest-pipeline"}
}

func (s *IngestService) Serve(ctx context.Context) error {
	return s.pipeline.Start(ctx)
}

func (s *IngestService) String() string {
	return s.name
}
