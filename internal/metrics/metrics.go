// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion pipeline (C4)
	IngestSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_samples_total",
			Help: "Total number of location samples successfully parsed from broker payloads",
		},
	)

	IngestParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_parse_errors_total",
			Help: "Total number of payloads that failed to parse",
		},
		[]string{"reason"},
	)

	IngestLaneDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_lane_depth",
			Help: "Current number of queued samples per worker lane",
		},
		[]string{"lane"},
	)

	// Dedup gate (C1)
	DedupDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_duplicates_total",
			Help: "Total number of samples rejected as duplicates",
		},
	)

	DedupStaleRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_stale_rejected_total",
			Help: "Total number of samples rejected for exceeding the clock-skew tolerance",
		},
	)

	DedupDeviceCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_tracked_devices",
			Help: "Current number of devices with an active fingerprint window",
		},
	)

	// Broker connection pool (C3)
	BrokerSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_sessions_active",
			Help: "Current number of pooled broker sessions in the Active state",
		},
	)

	BrokerSessionsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_sessions_by_state",
			Help: "Current number of pooled broker sessions by state",
		},
		[]string{"state"},
	)

	BrokerMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_messages_consumed_total",
			Help: "Total number of messages consumed across all pooled sessions",
		},
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Total number of session reconnect attempts",
		},
	)

	// Persistence engine (C5)
	PersistenceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "persistence_queue_depth",
			Help: "Current number of samples buffered for the next flush",
		},
	)

	PersistenceFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persistence_flush_duration_seconds",
			Help:    "Duration of a batch flush to the datastore",
			Buckets: prometheus.DefBuckets,
		},
	)

	PersistenceBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persistence_batch_size",
			Help:    "Number of samples in each flushed batch",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	PersistenceFlushErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_flush_errors_total",
			Help: "Total number of failed flush attempts",
		},
		[]string{"kind"},
	)

	PersistenceDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persistence_dead_lettered_total",
			Help: "Total number of samples written to the dead-letter log after retry exhaustion",
		},
	)

	// Circuit breaker (sony/gobreaker), wrapping the persistence store
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Partition manager (C2)
	PartitionRowCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partition_row_count",
			Help: "Current row count per history partition",
		},
		[]string{"partition"},
	)

	PartitionSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partition_size_bytes",
			Help: "Approximate size in bytes per history partition",
		},
		[]string{"partition"},
	)

	PartitionSplitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partition_splits_total",
			Help: "Total number of partition split operations",
		},
	)

	PartitionDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partition_drops_total",
			Help: "Total number of partition drop operations",
		},
	)

	// Last-location cache (C6)
	LastLocationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lastlocation_cache_hits_total",
			Help: "Total number of last-location cache hits",
		},
	)

	LastLocationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lastlocation_cache_misses_total",
			Help: "Total number of last-location cache misses",
		},
	)

	LastLocationCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastlocation_cache_entries",
			Help: "Current number of entries in the last-location cache",
		},
	)

	// Broadcast fabric (C7)
	BroadcastSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_sessions_active",
			Help: "Current number of connected broadcast sessions",
		},
	)

	BroadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Total number of messages delivered to broadcast sessions",
		},
		[]string{"topic_kind"}, // "location", "device", "role", "alert", "stats"
	)

	BroadcastErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_errors_total",
			Help: "Total number of failed session deliveries",
		},
	)

	BroadcastRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_rate_limited_total",
			Help: "Total number of samples dropped by the per-device broadcast rate limit",
		},
	)

	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Total number of alerts raised, by kind",
		},
		[]string{"kind"},
	)

	AlertsThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_throttled_total",
			Help: "Total number of alerts suppressed by the per-kind throttle",
		},
		[]string{"kind"},
	)

	// Health probes (C8)
	HealthProbeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "health_probe_status",
			Help: "Health probe status (0=healthy, 1=degraded, 2=unhealthy)",
		},
		[]string{"probe"},
	)

	// HTTP surface (internal/api, internal/middleware)
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// System
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordIngestParseError records a rejected payload by reason ("malformed",
// "missing_device_id", "truncated").
func RecordIngestParseError(reason string) {
	IngestParseErrors.WithLabelValues(reason).Inc()
}

// RecordFlush records one persistence flush attempt's duration and batch
// size.
func RecordFlush(duration time.Duration, batchSize int) {
	PersistenceFlushDuration.Observe(duration.Seconds())
	PersistenceBatchSize.Observe(float64(batchSize))
}

// RecordFlushError records a failed flush, categorized by error kind.
func RecordFlushError(kind string) {
	PersistenceFlushErrors.WithLabelValues(kind).Inc()
}

// RecordCircuitBreakerTransition records a named breaker's state change.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// SetCircuitBreakerState sets the current numeric state for a named breaker.
func SetCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// UpdatePartitionStats sets the row-count and size gauges for one partition.
func UpdatePartitionStats(partition string, rows, bytes int64) {
	PartitionRowCount.WithLabelValues(partition).Set(float64(rows))
	PartitionSizeBytes.WithLabelValues(partition).Set(float64(bytes))
}

// RecordBroadcast records one successful delivery of a given topic kind.
func RecordBroadcast(topicKind string) {
	BroadcastMessagesTotal.WithLabelValues(topicKind).Inc()
}

// RecordAlert records an alert raised or throttled for kind.
func RecordAlert(kind string, throttled bool) {
	if throttled {
		AlertsThrottledTotal.WithLabelValues(kind).Inc()
		return
	}
	AlertsRaisedTotal.WithLabelValues(kind).Inc()
}

// SetHealthProbeStatus records a probe's numeric status (0 healthy, 1
// degraded, 2 unhealthy).
func SetHealthProbeStatus(probe string, status float64) {
	HealthProbeStatus.WithLabelValues(probe).Set(status)
}

// RecordAPIRequest records one completed HTTP request's outcome and latency.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
