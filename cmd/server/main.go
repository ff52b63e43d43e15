// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package main is the entry point for the gpstracker server.
//
// gpstracker ingests device GPS telemetry off a NATS JetStream broker,
// dedups and routes it through a worker pool, persists it into a
// monthly-partitioned DuckDB datastore, maintains a last-known-location
// cache, and fans accepted samples out to role-scoped websocket
// subscribers — alongside the administrative HTTP surface for partition
// management, history queries, and operator test endpoints.
//
// # Build tags
//
//	go build -tags wal ./cmd/server   # durable BadgerDB write-ahead log
//
// Without the wal tag, the persistence engine runs against a no-op WAL:
// flush attempts are not replayed across a crash.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/jothiesh/gpstracker/internal/api"
	"github.com/jothiesh/gpstracker/internal/authz"
	"github.com/jothiesh/gpstracker/internal/broadcast"
	"github.com/jothiesh/gpstracker/internal/broker"
	"github.com/jothiesh/gpstracker/internal/config"
	"github.com/jothiesh/gpstracker/internal/dedup"
	"github.com/jothiesh/gpstracker/internal/health"
	"github.com/jothiesh/gpstracker/internal/ingest"
	"github.com/jothiesh/gpstracker/internal/lastlocation"
	"github.com/jothiesh/gpstracker/internal/logging"
	"github.com/jothiesh/gpstracker/internal/middleware"
	"github.com/jothiesh/gpstracker/internal/partition"
	"github.com/jothiesh/gpstracker/internal/persistence"
	"github.com/jothiesh/gpstracker/internal/storage"
	"github.com/jothiesh/gpstracker/internal/supervisor"
	"github.com/jothiesh/gpstracker/internal/supervisor/services"
	"github.com/jothiesh/gpstracker/internal/wal"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("starting gpstracker")

	store, err := storage.Open(storage.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open datastore")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing datastore")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	partitionCfg := partition.Config{
		Thresholds:      partition.DefaultThresholds(),
		FutureMonths:    3,
		RetentionMonths: cfg.Partition.RetentionMonths,
	}
	partitionMgr := partition.NewManager(store, partitionCfg, logging.Logger())
	if err := partitionMgr.EnsureCurrentAndFuture(ctx, partitionCfg.FutureMonths); err != nil {
		logging.Fatal().Err(err).Msg("failed to ensure current/future partitions")
	}
	partitionScheduler := partition.NewScheduler(partitionMgr, partitionCfg)
	tree.AddDataService(services.NewPartitionSchedulerService(partitionScheduler))

	enforcer, err := authz.NewEnforcer(ctx, &authz.EnforcerConfig{
		ModelPath:  cfg.Security.Casbin.ModelPath,
		PolicyPath: cfg.Security.Casbin.PolicyPath,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize authorization enforcer")
	}
	defer enforcer.Close()
	auditLogger := authz.NewAuditLogger(authz.DefaultAuditLoggerConfig())
	defer auditLogger.Close()
	authMiddleware := authz.NewMiddleware(enforcer)
	casbinAuthorizer := authz.NewCasbinAuthorizer(enforcer, auditLogger)

	broadcastHub := broadcast.NewHub(broadcast.Config{
		RateLimit:      cfg.Broadcast.RateLimit,
		AlertsPerHour:  cfg.Alert.PerHourLimit,
		SessionTimeout: cfg.Broadcast.SessionTimeout,
		SweepInterval:  cfg.Broadcast.SweepInterval,
	}, casbinAuthorizer, logging.Logger())
	tree.AddMessagingService(services.NewBroadcastService(broadcastHub))

	llCache := lastlocation.New(cfg.Cache.MaxEntries, store, logging.Logger())

	probes := []health.Probe{
		health.MemoryProbe(cfg.Health.MemoryWarnPercent, cfg.Health.MemoryCriticalPercent),
		health.CPUProbe(cfg.Health.CPUWarnPercent, cfg.Health.CPUCriticalPercent),
	}
	healthMonitor := health.NewMonitor(health.Config{
		Interval:     cfg.Health.ProbeInterval,
		StatsCadence: cfg.Health.StatsCadence,
	}, probes, broadcastHub, logging.Logger())
	tree.AddMessagingService(services.NewHealthService(healthMonitor))

	walCfg := wal.LoadConfig()
	w, err := wal.Open(&walCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open write-ahead log")
	}

	persistCfg := persistence.DefaultConfig()
	persistCfg.MaxQueueSize = cfg.Batch.MaxQueueSize
	persistCfg.BatchInterval = cfg.Batch.FlushInterval
	persistCfg.Retries = cfg.Batch.MaxRetries
	persistEngine := persistence.New(persistCfg, store, partitionMgr, w, broadcastHub, logging.Logger())
	tree.AddDataService(services.NewPersistenceService(persistEngine))

	dedupGate := dedup.New(dedup.DefaultConfig())

	ingestPipeline := ingest.New(ingest.Config{Workers: cfg.Ingest.Workers}, store, dedupGate, persistEngine, broadcastHub, llCache, logging.Logger())
	tree.AddMessagingService(services.NewIngestService(ingestPipeline))

	brokerCfg := broker.DefaultConfig()
	brokerCfg.URL = cfg.Broker.URL
	brokerCfg.DevicePublishTopic = cfg.Broker.DevicePublishTopic
	brokerCfg.QueueGroup = cfg.Broker.QueueGroup
	brokerCfg.DurableName = cfg.Broker.DurableNamePrefix
	if cfg.Pool.MinSessions > 0 {
		brokerCfg.Initial = cfg.Pool.MinSessions
	}
	if cfg.Pool.ReconnectBaseDelay > 0 {
		brokerCfg.InitialBackoff = cfg.Pool.ReconnectBaseDelay
	}
	if cfg.Pool.ReconnectMaxDelay > 0 {
		brokerCfg.MaxBackoff = cfg.Pool.ReconnectMaxDelay
	}
	brokerPool := broker.New(brokerCfg, logging.Logger(), broker.NewNATSSubscriberConstructor(brokerCfg, logging.Logger()))
	brokerPool.SetHandler(func(ctx context.Context, msg *message.Message) error {
		_, err := ingestPipeline.Ingest(ctx, msg.Payload)
		return err
	})
	tree.AddMessagingService(services.NewBrokerPoolService(brokerPool))

	perfMonitor := middleware.NewPerformanceMonitor(1000)
	partitionHandler := api.NewPartitionHandler(partitionMgr, partitionScheduler, logging.Logger())
	vehicleHandler := api.NewVehicleHandler(store, llCache, broadcastHub, ingestPipeline, logging.Logger())
	testHandler := api.NewTestHandler(brokerPool, healthMonitor, perfMonitor, logging.Logger())

	chiCfg := api.DefaultChiMiddlewareConfig()
	if len(cfg.Security.CORSOrigins) > 0 {
		chiCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	}
	if cfg.Security.RateLimitReqs > 0 {
		chiCfg.RateLimitRequests = cfg.Security.RateLimitReqs
		chiCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	}
	router := api.NewRouter(partitionHandler, vehicleHandler, testHandler, chiCfg, authMiddleware, perfMonitor)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("gpstracker stopped gracefully")
}
