// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments every pipeline stage named in the component design: the
ingestion pipeline, the dedup gate, the broker connection pool, the persistence
engine and its circuit breaker, the partition manager, the last-location cache, the
broadcast fabric, and the periodic health probes.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Ingestion:
  - ingest_samples_total: samples successfully parsed (counter)
  - ingest_parse_errors_total: rejected payloads (counter), labeled by reason
  - ingest_lane_depth: queued samples per worker lane (gauge)

Dedup gate:
  - dedup_duplicates_total, dedup_stale_rejected_total, dedup_tracked_devices

Broker pool:
  - broker_sessions_active, broker_sessions_by_state, broker_messages_consumed_total,
    broker_reconnects_total

Persistence:
  - persistence_queue_depth, persistence_flush_duration_seconds,
    persistence_batch_size, persistence_flush_errors_total,
    persistence_dead_lettered_total

Circuit breaker:
  - circuit_breaker_state, circuit_breaker_state_transitions_total

Partitions:
  - partition_row_count, partition_size_bytes, partition_splits_total,
    partition_drops_total

Last-location cache:
  - lastlocation_cache_hits_total, lastlocation_cache_misses_total,
    lastlocation_cache_entries

Broadcast fabric:
  - broadcast_sessions_active, broadcast_messages_total, broadcast_errors_total,
    broadcast_rate_limited_total, alerts_raised_total, alerts_throttled_total

Health:
  - health_probe_status, app_info, app_uptime_seconds
*/
package metrics
