// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import "context"

// PartitionScheduler is the subset of partition.Scheduler's lifecycle this
// wrapper depends on, kept as a consumer-side interface so this package
// never imports internal/partition directly.
type PartitionScheduler interface {
	Run(ctx context.Context) error
}

// PartitionSchedulerService adapts a PartitionScheduler to suture.Service
// for the data layer of the supervisor tree.
type PartitionSchedulerService struct {
	scheduler PartitionScheduler
	name      string
}

// NewPartitionSchedulerService wraps scheduler for supervision.
func NewPartitionSchedulerService(scheduler PartitionScheduler) *PartitionSchedulerService {
	return &PartitionSchedulerService{scheduler: scheduler, name: "partition-scheduler"}
}

func (s *PartitionSchedulerService) Serve(ctx context.Context) error {
	return s.scheduler.Run(ctx)
}

func (s *PartitionSchedulerService) String() string {
	return s.name
}
