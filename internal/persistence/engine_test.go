// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/models"
)

type fakeRouter struct{}

func (fakeRouter) TargetPartition(ctx context.Context, ts time.Time) (string, error) {
	return "history_p_" + ts.UTC().Format("200601"), nil
}

type fakeStore struct {
	mu         sync.Mutex
	batches    map[string][]models.LocationSample
	failN      int // fail the next N calls
	deadLetter []string
}

func (f *fakeStore) UpsertHistoryBatch(ctx context.Context, table string, samples []models.LocationSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("simulated store failure")
	}
	if f.batches == nil {
		f.batches = make(map[string][]models.LocationSample)
	}
	f.batches[table] = append(f.batches[table], samples...)
	return nil
}

func (f *fakeStore) RecordDeadLetter(ctx context.Context, id int64, batchJSON, lastError string, attempts int, firstSeen, lastAttempt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetter = append(f.deadLetter, batchJSON)
	return nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (f *fakeAlerts) Raise(a models.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func TestEngine_FlushWritesBatch(t *testing.T) {
	store := &fakeStore{}
	e := New(DefaultConfig(), store, fakeRouter{}, nil, nil, zerolog.Nop())

	ts := time.Date(2025, 7, 9, 8, 15, 31, 0, time.UTC)
	e.Submit(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: ts})
	e.Flush(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.batches["history_p_202507"]) != 1 {
		t.Fatalf("expected 1 row flushed into history_p_202507, got %d", len(store.batches["history_p_202507"]))
	}
}

func TestEngine_PartitionStraddleSplitsSubBatches(t *testing.T) {
	store := &fakeStore{}
	e := New(DefaultConfig(), store, fakeRouter{}, nil, nil, zerolog.Nop())

	t1 := time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC)
	t2 := time.Date(2025, 8, 1, 0, 0, 1, 0, time.UTC)
	e.Submit(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: t1})
	e.Submit(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: t2})
	e.Flush(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.batches["history_p_202507"]) != 1 {
		t.Errorf("expected 1 row in history_p_202507, got %d", len(store.batches["history_p_202507"]))
	}
	if len(store.batches["history_p_202508"]) != 1 {
		t.Errorf("expected 1 row in history_p_202508, got %d", len(store.batches["history_p_202508"]))
	}
}

func TestEngine_RetryExhaustionRaisesBatchFailedAlert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retries = 2
	cfg.Backoff = []time.Duration{time.Millisecond, time.Millisecond}

	store := &fakeStore{failN: 100} // always fails
	alerts := &fakeAlerts{}
	e := New(cfg, store, fakeRouter{}, nil, alerts, zerolog.Nop())

	e.Submit(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: time.Now()})
	e.Flush(context.Background())

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	if len(alerts.alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts.alerts))
	}
	if alerts.alerts[0].Kind != models.AlertBatchFailed || alerts.alerts[0].Level != models.AlertCritical {
		t.Errorf("expected a Critical BATCH_FAILED alert, got %+v", alerts.alerts[0])
	}
}

func TestEngine_BatchSizeTriggersFlush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	store := &fakeStore{}
	e := New(cfg, store, fakeRouter{}, nil, nil, zerolog.Nop())

	ts := time.Date(2025, 7, 9, 8, 0, 0, 0, time.UTC)
	e.Submit(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: ts})
	if e.QueueSize() != 1 {
		t.Fatalf("expected queue size 1 before threshold, got %d", e.QueueSize())
	}
	e.Submit(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: ts.Add(time.Second)})

	// Flush is synchronous inside Submit once the threshold is reached.
	if e.QueueSize() != 0 {
		t.Fatalf("expected queue to be flushed at batch size threshold, got size %d", e.QueueSize())
	}
}
