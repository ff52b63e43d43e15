// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package services

import "context"

// BrokerPool is the subset of broker.Pool's lifecycle this wrapper depends
// on, kept as a consumer-side interface so this package never imports
// internal/broker directly.
type BrokerPool interface {
	Start(ctx context.Context) error
}

// BrokerPoolService adapts a BrokerPool to suture.Service for the data layer
// of the supervisor tree.
type BrokerPoolService struct {
	pool BrokerPool
	name string
}

// NewBrokerPoolService wraps pool for supervision.
func NewBrokerPoolService(pool BrokerPool) *BrokerPoolService {
	return &BrokerPoolService{pool: pool, name: "broker-pool"}
}

func (s *BrokerPoolService) Serve(ctx context.Context) error {
	return s.pool.Start(ctx)
}

func (s *BrokerPoolService) String() string {
	return s.name
}
