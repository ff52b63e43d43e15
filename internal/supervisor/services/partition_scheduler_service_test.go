// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/thejerf/suture/v4"
)

type mockPartitionScheduler struct {
	runErr   error
	runCount atomic.Int32
}

func (m *mockPartitionScheduler) Run(ctx context.Context) error {
	m.runCount.Add(1)
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestPartitionSchedulerService_Interface(t *testing.T) {
	var _ suture.Service = (*PartitionSchedulerService)(nil)
}

func TestPartitionSchedulerService_Serve(t *testing.T) {
	t.Run("returns context error on cancellation", func(t *testing.T) {
		scheduler := &mockPartitionScheduler{}
		svc := NewPartitionSchedulerService(scheduler)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("propagates scheduler errors", func(t *testing.T) {
		expectedErr := errors.New("scheduler run error")
		scheduler := &mockPartitionScheduler{runErr: expectedErr}
		svc := NewPartitionSchedulerService(scheduler)

		if err := svc.Serve(context.Background()); !errors.Is(err, expectedErr) {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
	})
}

func TestPartitionSchedulerService_String(t *testing.T) {
	svc := NewPartitionSchedulerService(&mockPartitionScheduler{})
	if svc.String() != "partition-scheduler" {
		t.Errorf("expected 'partition-scheduler', got %q", svc.String())
	}
}
