// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package partition

import (
	"context"
	"fmt"
	"time"
)

// Job names the scheduled partition maintenance duties (spec §4.2): daily
// ensures current/future months exist, weekly runs maintenance over open
// partitions, cleanup drops retired ones. All three are independently
// triggerable through the admin surface.
type Job string

const (
	JobDaily   Job = "daily"
	JobWeekly  Job = "weekly"
	JobCleanup Job = "cleanup"
	JobAll     Job = "all"
)

// Scheduler runs the Manager's duties on a fixed cadence and exposes a
// manual Trigger for the admin HTTP surface.
type Scheduler struct {
	mgr *Manager
	cfg Config
}

// NewScheduler constructs a Scheduler bound to mgr.
func NewScheduler(mgr *Manager, cfg Config) *Scheduler {
	return &Scheduler{mgr: mgr, cfg: cfg}
}

// Run drives the daily/weekly schedule until ctx is canceled. Suitable as
// a suture.Service body.
func (s *Scheduler) Run(ctx context.Context) error {
	daily := time.NewTicker(24 * time.Hour)
	weekly := time.NewTicker(7 * 24 * time.Hour)
	defer daily.Stop()
	defer weekly.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-daily.C:
			_ = s.Trigger(ctx, JobDaily, false)
		case <-weekly.C:
			_ = s.Trigger(ctx, JobWeekly, false)
		}
	}
}

// Trigger runs one named job immediately; confirmAll gates the cleanup job
// (dropping partitions is irreversible) per the admin surface's
// `?confirmAll=bool` contract (spec §6.3).
func (s *Scheduler) Trigger(ctx context.Context, job Job, confirmAll bool) error {
	switch job {
	case JobDaily:
		return s.mgr.EnsureCurrentAndFuture(ctx, s.cfg.FutureMonths)
	case JobWeekly:
		return s.mgr.Maintain(ctx)
	case JobCleanup:
		if !confirmAll {
			return &Error{Kind: Permission, Name: "cleanup", Err: fmt.Errorf("cleanup requires confirmAll=true")}
		}
		_, err := s.mgr.Cleanup(ctx, s.cfg.RetentionMonths, false)
		return err
	case JobAll:
		if err := s.Trigger(ctx, JobDaily, confirmAll); err != nil {
			return err
		}
		if err := s.Trigger(ctx, JobWeekly, confirmAll); err != nil {
			return err
		}
		return s.Trigger(ctx, JobCleanup, confirmAll)
	default:
		return fmt.Errorf("partition: unknown scheduler job %q", job)
	}
}
