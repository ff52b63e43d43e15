// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package health

import (
	"context"
	"database/sql"
)

// BrokerPoolStats is the minimal view the broker-pool probe needs; broker.Pool
// satisfies it directly.
type BrokerPoolStats interface {
	ConnectedSummary() (active int, expected int)
}

// BrokerPoolProbe is healthy once every expected session is Active, degraded
// while some are still connecting, and unhealthy if none are.
func BrokerPoolProbe(pool BrokerPoolStats) Probe {
	return NewProbeFunc("broker_pool", func(ctx context.Context) Result {
		active, expected := pool.ConnectedSummary()
		status := StatusHealthy
		switch {
		case active == 0 && expected > 0:
			status = StatusDown
		case active < expected:
			status = StatusDegraded
		}
		return Result{Status: status, Metrics: map[string]interface{}{"active": active, "expected": expected}}
	})
}

// DatastoreProbe pings the sql.DB connection pool backing the persistence
// store.
func DatastoreProbe(db *sql.DB) Probe {
	return NewProbeFunc("datastore", func(ctx context.Context) Result {
		if err := db.PingContext(ctx); err != nil {
			return Result{Status: StatusDown, Detail: err.Error()}
		}
		stats := db.Stats()
		status := StatusHealthy
		if stats.OpenConnections >= stats.MaxOpenConnections && stats.MaxOpenConnections > 0 {
			status = StatusDegraded
		}
		return Result{
			Status:  status,
			Metrics: map[string]interface{}{"open_connections": stats.OpenConnections, "in_use": stats.InUse},
		}
	})
}

// BatchEngineStats is the minimal view the persistence-engine probe needs.
type BatchEngineStats interface {
	QueueSize() int
}

// BatchEngineProbe reports degraded once the queue crosses warnDepth and
// unhealthy once it crosses criticalDepth (mirrors the engine's own 90%/100%
// backpressure thresholds).
func BatchEngineProbe(engine BatchEngineStats, warnDepth, criticalDepth int) Probe {
	return NewProbeFunc("batch_engine", func(ctx context.Context) Result {
		depth := engine.QueueSize()
		status := StatusHealthy
		switch {
		case depth >= criticalDepth:
			status = StatusDown
		case depth >= warnDepth:
			status = StatusDegraded
		}
		return Result{Status: status, Metrics: map[string]interface{}{"queue_depth": depth}}
	})
}

// CacheStats is the minimal view the last-location cache probe needs.
type CacheStats interface {
	CacheHitRate() float64
}

// CacheProbe is degraded when the hit rate falls below minHitRate, which
// usually indicates cold-start or undersized capacity rather than an
// outright failure.
func CacheProbe(cache CacheStats, minHitRate float64) Probe {
	return NewProbeFunc("cache", func(ctx context.Context) Result {
		rate := cache.CacheHitRate()
		status := StatusHealthy
		if rate < minHitRate {
			status = StatusDegraded
		}
		return Result{Status: status, Metrics: map[string]interface{}{"hit_rate": rate}}
	})
}
