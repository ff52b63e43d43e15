// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package lastlocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]models.LastLocation
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]models.LastLocation)} }

func (f *fakeStore) UpsertLastLocation(ctx context.Context, loc models.LastLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[loc.DeviceID] = loc
	return nil
}

func TestCache_AcceptsNewerRejectsOlder(t *testing.T) {
	store := newFakeStore()
	c := New(10, store, zerolog.Nop())

	newer := time.Date(2025, 7, 9, 8, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	if !c.Accept(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: newer}) {
		t.Fatal("expected first sample to be accepted")
	}
	if c.Accept(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: older}) {
		t.Fatal("expected an older sample to be rejected")
	}

	got, ok := c.Get("D1")
	if !ok || !got.Timestamp.Equal(newer) {
		t.Fatalf("expected cached timestamp %v, got %v", newer, got.Timestamp)
	}
}

func TestCache_WriteThroughOnAccept(t *testing.T) {
	store := newFakeStore()
	c := New(10, store, zerolog.Nop())

	ts := time.Now()
	c.Accept(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: ts})

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.rows["D1"]; !ok {
		t.Fatal("expected durable write-through on accept")
	}
}

func TestCache_EvictionDoesNotLoseDurableRow(t *testing.T) {
	store := newFakeStore()
	c := New(1, store, zerolog.Nop())

	ts := time.Now()
	c.Accept(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: ts})
	c.Accept(context.Background(), models.LocationSample{DeviceID: "D2", Timestamp: ts})

	// D1 evicted from the size-1 cache, but its durable row remains.
	if _, ok := c.Get("D1"); ok {
		t.Fatal("expected D1 to be evicted from the in-memory cache")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.rows["D1"]; !ok {
		t.Fatal("expected D1's durable row to survive cache eviction")
	}
	if evictions := c.Stats().Evictions; evictions != 1 {
		t.Fatalf("expected 1 eviction recorded, got %d", evictions)
	}
}

func TestCache_StatsHitRate(t *testing.T) {
	store := newFakeStore()
	c := New(10, store, zerolog.Nop())

	c.Accept(context.Background(), models.LocationSample{DeviceID: "D1", Timestamp: time.Now()})
	c.Get("D1")        // hit
	c.Get("D1")        // hit
	c.Get("nonexist")  // miss

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("expected 2 hits/1 miss, got %+v", stats)
	}
}
