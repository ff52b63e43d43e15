// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

/*
Package services provides suture.Service wrappers for gpstracker components.

This package adapts existing application components to the suture v4 supervision
model, translating various lifecycle patterns (Start/Stop, Run, ListenAndServe)
into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation (Start/Run to Serve pattern)
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

Every wrapper depends on a small consumer-side interface (BrokerPool,
IngestPipeline, BatchFlusher, BroadcastHub, PartitionScheduler,
HealthMonitor, HTTPServer, WALStartStopper) rather than the concrete type
from the owning package, so this package never imports internal/broker,
internal/ingest, internal/persistence, internal/broadcast,
internal/partition, or internal/health directly.

# Available Services

Broker Pool (BrokerPoolService):
  - Wraps broker.Pool's device connection listener
  - Converts its Start(ctx) lifecycle to Serve

Ingest Pipeline (IngestService):
  - Wraps ingest.Pipeline's dedup/validate/enqueue stages
  - Converts its Start(ctx) lifecycle to Serve

Persistence Engine (PersistenceService):
  - Wraps persistence.Engine's batch flush loop
  - Converts its RunFlushLoop(ctx) lifecycle to Serve

Broadcast Hub (BroadcastService):
  - Wraps broadcast.Hub's websocket session/topic fan-out loop
  - Converts its Run(ctx) lifecycle to Serve

Partition Scheduler (PartitionSchedulerService):
  - Wraps partition.Scheduler's create-ahead/retention loop
  - Converts its Run(ctx) lifecycle to Serve

Health Monitor (HealthService):
  - Wraps health.Monitor's periodic probe/aggregate/publish loop
  - Converts its Run(ctx) lifecycle to Serve

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

WAL Services (WALRetryLoopService, WALCompactorService):
  - Wraps wal.RetryLoop and wal.Compactor
  - Handles BadgerDB lifecycle management
  - Build tag: wal (disabled by default)

# Usage Example

Creating and registering services:

	import (
	    "net/http"
	    "time"

	    "github.com/jothiesh/gpstracker/internal/supervisor"
	    "github.com/jothiesh/gpstracker/internal/supervisor/services"
	)

	func setupSupervisor(server *http.Server, pool *broker.Pool, hub *broadcast.Hub) {
	    tree, _ := supervisor.NewSupervisorTree(logger, config)

	    // HTTP server with 30s shutdown timeout
	    httpSvc := services.NewHTTPServerService(server, 30*time.Second)
	    tree.AddAPIService(httpSvc)

	    // Broker pool
	    brokerSvc := services.NewBrokerPoolService(pool)
	    tree.AddDataService(brokerSvc)

	    // Broadcast hub
	    broadcastSvc := services.NewBroadcastService(hub)
	    tree.AddMessagingService(broadcastSvc)

	    // Start supervision
	    tree.Serve(ctx)
	}

# Lifecycle Patterns

The package handles two common lifecycle patterns:

Start/Run Pattern (blocks until ctx is canceled, returns ctx.Err()):

	type Starter interface {
	    Start(ctx context.Context) error
	}

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    return s.component.Start(ctx)
	}

ListenAndServe Pattern:

	type Listener interface {
	    ListenAndServe() error
	    Shutdown(ctx context.Context) error
	}

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    go s.server.ListenAndServe()
	    <-ctx.Done()
	    return s.server.Shutdown(shutdownCtx)
	}

# Error Handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination

# Service Identification

All services implement fmt.Stringer for logging:

	func (s *HTTPServerService) String() string {
	    return "http-server"
	}

Suture uses this for log messages:

	INFO http-server: starting
	INFO http-server: stopped
	ERROR http-server: restarting after failure

# Testing

Services can be tested with mock components implementing the small
consumer-side interface each wrapper depends on:

	type mockHealthMonitor struct{ runCount atomic.Int32 }

	func (m *mockHealthMonitor) Run(ctx context.Context) error {
	    m.runCount.Add(1)
	    <-ctx.Done()
	    return ctx.Err()
	}

	func TestHealthService(t *testing.T) {
	    mock := &mockHealthMonitor{}
	    svc := services.NewHealthService(mock)

	    ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	    defer cancel()

	    svc.Serve(ctx)

	    if mock.runCount.Load() != 1 { t.Error("monitor not run") }
	}

# Thread Safety

All service wrappers are safe for concurrent use:
  - State is protected by mutexes where needed
  - Context cancellation is handled atomically
  - Multiple Serve calls are not supported (undefined behavior)

# See Also

  - internal/supervisor: SupervisorTree that manages these services
  - github.com/thejerf/suture/v4: Underlying supervision library
*/
package services
