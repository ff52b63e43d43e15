// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import "context"

// HealthMonitor is the subset of health.Monitor's lifecycle this wrapper
// depends on, kept as a consumer-side interface so this package never
// imports internal/health directly.
type HealthMonitor interface {
	Run(ctx context.Context) error
}

// HealthService adapts a HealthMonitor to suture.Service for the API layer
// of the supervisor tree.
type HealthService struct {
	monitor HealthMonitor
	name    string
}

// NewHealthService wraps monitor for supervision.
func NewHealthService(monitor HealthMonitor) *HealthService {
	return &HealthService{monitor: monitor, name: "health-monitor"}
}

func (s *HealthService) Serve(ctx context.Context) error {
	return s.monitor.Run(ctx)
}

func (s *HealthService) String() string {
	return s.name
}
