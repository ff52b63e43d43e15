// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package persistence implements the batch persistence engine (C5):
// a bounded queue, size/interval flush, idempotent upsert with retry, a
// write-ahead log guarding flush attempts against crash loss, and
// partition-straddle batch splitting.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/jothiesh/gpstracker/internal/models"
	"github.com/jothiesh/gpstracker/internal/wal"
)

// Kind enumerates PersistenceError kinds (spec §7).
type Kind string

const (
	Deadlock            Kind = "Deadlock"
	ConstraintViolation  Kind = "ConstraintViolation"
	Timeout              Kind = "Timeout"
	Unavailable          Kind = "Unavailable"
)

// Retryable reports whether a PersistenceError kind is retried up to R
// attempts (spec §7: all except ConstraintViolation).
func (k Kind) Retryable() bool { return k != ConstraintViolation }

// Error is the typed PersistenceError.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("persistence: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// PartitionRouter resolves the physical partition table a sample's
// timestamp lands in, creating it on demand (C2).
type PartitionRouter interface {
	TargetPartition(ctx context.Context, ts time.Time) (string, error)
}

// Store is the subset of storage.Store the engine writes batches through.
type Store interface {
	UpsertHistoryBatch(ctx context.Context, table string, samples []models.LocationSample) error
	RecordDeadLetter(ctx context.Context, id int64, batchJSON, lastError string, attempts int, firstSeen, lastAttempt time.Time) error
}

// AlertSink receives Critical BATCH_FAILED alerts (spec §4.5).
type AlertSink interface {
	Raise(alert models.Alert)
}

// Config configures the engine (spec §4.5 and §6.4 batch.*).
type Config struct {
	MaxQueueSize int
	BatchSize    int
	BatchInterval time.Duration
	Retries      int
	Backoff      []time.Duration
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:  5000,
		BatchSize:     500,
		BatchInterval: time.Second,
		Retries:       3,
		Backoff:       []time.Duration{250 * time.Millisecond, time.Second, 4 * time.Second},
	}
}

// Engine is the C5 batch persistence engine.
type Engine struct {
	cfg      Config
	store    Store
	router   PartitionRouter
	wal      wal.WAL
	alerts   AlertSink
	breaker  *gobreaker.CircuitBreaker[interface{}]
	log      zerolog.Logger

	mu       sync.Mutex
	queue    []models.LocationSample

	sheddingFloor time.Duration
	lastByDevice  map[string]time.Time

	deadLetterSeq int64
}

// New constructs an Engine.
func New(cfg Config, store Store, router PartitionRouter, w wal.WAL, alerts AlertSink, log zerolog.Logger) *Engine {
	breakerSettings := gobreaker.Settings{
		Name:    "persistence-flush",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Engine{
		cfg:          cfg,
		store:        store,
		router:       router,
		wal:          w,
		alerts:       alerts,
		breaker:      gobreaker.NewCircuitBreaker[interface{}](breakerSettings),
		log:          log,
		lastByDevice: make(map[string]time.Time),
		sheddingFloor: 50 * time.Millisecond,
	}
}

// Submit implements ingest.Sink: enqueues an accepted sample, applying the
// backpressure rules in spec §4.5.
func (e *Engine) Submit(ctx context.Context, sample models.LocationSample) {
	e.mu.Lock()
	occupancy := float64(len(e.queue)) / float64(e.cfg.MaxQueueSize)

	if occupancy >= 1.0 {
		e.mu.Unlock()
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return
		}
		e.mu.Lock()
		if len(e.queue) > 0 {
			// Drop the oldest queued sample for the affected device.
			e.dropOldestForDeviceLocked(sample.DeviceID)
		}
	} else if occupancy >= 0.9 {
		last, seen := e.lastByDevice[sample.DeviceID]
		if seen && sample.Timestamp.Sub(last) < e.sheddingFloor {
			e.mu.Unlock()
			return // shed: below the per-device interval floor
		}
	}

	e.queue = append(e.queue, sample)
	e.lastByDevice[sample.DeviceID] = sample.Timestamp
	shouldFlush := len(e.queue) >= e.cfg.BatchSize
	e.mu.Unlock()

	if shouldFlush {
		e.Flush(ctx)
	}
}

func (e *Engine) dropOldestForDeviceLocked(deviceID string) {
	for i, s := range e.queue {
		if s.DeviceID == deviceID {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}

// QueueSize reports current occupancy, for the health probe (spec §4.8).
func (e *Engine) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// RunFlushLoop flushes on cfg.BatchInterval until ctx is canceled. Suitable
// as a suture.Service body.
func (e *Engine) RunFlushLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Flush(context.Background()) // force-flush on shutdown (spec §5)
			return ctx.Err()
		case <-ticker.C:
			e.Flush(ctx)
		}
	}
}

// Flush drains the queue and writes it through, splitting across partition
// boundaries first (spec §4.5).
func (e *Engine) Flush(ctx context.Context) {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	batch := e.queue
	e.queue = nil
	e.mu.Unlock()

	byPartition := make(map[string][]models.LocationSample)
	for _, sample := range batch {
		table, err := e.router.TargetPartition(ctx, sample.Timestamp)
		if err != nil {
			e.log.Error().Err(err).Str("device", sample.DeviceID).Msg("failed to resolve partition for sample")
			continue
		}
		byPartition[table] = append(byPartition[table], sample)
	}

	for table, samples := range byPartition {
		e.flushSubBatch(ctx, table, samples)
	}
}

func (e *Engine) flushSubBatch(ctx context.Context, table string, samples []models.LocationSample) {
	var entryID string
	if e.wal != nil {
		id, err := e.wal.Write(ctx, samples)
		if err != nil {
			e.log.Error().Err(err).Msg("WAL write failed before flush attempt")
		} else {
			entryID = id
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		_, err := e.breaker.Execute(func() (interface{}, error) {
			return nil, e.store.UpsertHistoryBatch(ctx, table, samples)
		})
		if err == nil {
			if entryID != "" {
				_ = e.wal.Confirm(ctx, entryID)
			}
			return
		}
		lastErr = err
		if attempt < len(e.cfg.Backoff) {
			select {
			case <-time.After(e.cfg.Backoff[attempt]):
			case <-ctx.Done():
				return
			}
		}
	}

	e.onBatchFailed(ctx, table, samples, lastErr)
}

// onBatchFailed implements the retry-exhaustion path: the batch is written
// to the dead-letter log, dropped from the queue (it already was), and a
// Critical BATCH_FAILED alert is raised (spec §4.5).
func (e *Engine) onBatchFailed(ctx context.Context, table string, samples []models.LocationSample, err error) {
	e.deadLetterSeq++
	payload, marshalErr := json.Marshal(samples)
	if marshalErr != nil {
		e.log.Error().Err(marshalErr).Msg("failed to marshal dead-letter payload")
	}
	now := time.Now()
	if dlErr := e.store.RecordDeadLetter(ctx, e.deadLetterSeq, string(payload), err.Error(), e.cfg.Retries+1, now, now); dlErr != nil {
		e.log.Error().Err(dlErr).Msg("failed to persist dead-letter entry")
	}
	e.log.Error().
		Err(err).
		Str("partition", table).
		Int("batchSize", len(samples)).
		Int64("deadLetterID", e.deadLetterSeq).
		Msg("batch exhausted retries, writing to dead-letter log")

	if e.alerts != nil {
		e.alerts.Raise(models.Alert{
			Level:   models.AlertCritical,
			Kind:    models.AlertBatchFailed,
			Message: fmt.Sprintf("batch of %d samples failed to persist into %s after %d attempts", len(samples), table, e.cfg.Retries),
			Details: map[string]interface{}{"partition": table, "batchSize": len(samples)},
			Timestamp: time.Now(),
		})
	}
}

// RecoverPending replays unconfirmed WAL entries on startup (spec §5 and
// SPEC_FULL.md §4.5): a crash mid-flush is recovered by retrying the
// recorded batch.
func (e *Engine) RecoverPending(ctx context.Context) (int, error) {
	if e.wal == nil {
		return 0, nil
	}
	pending, err := e.wal.GetPending(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range pending {
		var samples []models.LocationSample
		if err := entry.UnmarshalPayload(&samples); err != nil {
			continue
		}
		byPartition := make(map[string][]models.LocationSample)
		for _, s := range samples {
			table, err := e.router.TargetPartition(ctx, s.Timestamp)
			if err != nil {
				continue
			}
			byPartition[table] = append(byPartition[table], s)
		}
		for table, batch := range byPartition {
			if err := e.store.UpsertHistoryBatch(ctx, table, batch); err == nil {
				_ = e.wal.Confirm(ctx, entry.ID)
			}
		}
	}
	return len(pending), nil
}
