// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package dedup implements the per-device fingerprint/dedup gate (C1):
// a bounded, sharded LRU over recently accepted (timestamp, sequence
// number) pairs, skew-tolerant against late re-arrivals.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/jothiesh/gpstracker/internal/models"
)

const (
	// defaultPerDeviceCapacity bounds the number of recent fingerprints
	// remembered for a single device.
	defaultPerDeviceCapacity = 64

	// defaultSkew is how far behind the newest accepted timestamp a
	// sample may be before it is rejected as stale, per spec §4.1.
	defaultSkew = 24 * time.Hour
)

type fingerprint struct {
	timestamp time.Time
	sequence  string
}

// deviceState is the per-device gate: the newest accepted timestamp plus a
// bounded LRU of recently seen (timestamp, sequence) fingerprints.
type deviceState struct {
	mu        sync.Mutex
	newest    time.Time
	seen      map[string]fingerprint // fingerprint key -> fingerprint
	order     []string               // insertion order, oldest first, for eviction
	capacity  int
}

func newDeviceState(capacity int) *deviceState {
	return &deviceState{
		seen:     make(map[string]fingerprint, capacity),
		capacity: capacity,
	}
}

// Gate is the C1 fingerprint/dedup filter. One Gate instance serves the
// whole ingestion pipeline; state is sharded per device-id so one noisy
// device cannot evict another's recency window.
type Gate struct {
	mu      sync.RWMutex
	devices map[string]*deviceState

	perDeviceCapacity int
	skew              time.Duration
}

// Config configures Gate.
type Config struct {
	PerDeviceCapacity int
	Skew              time.Duration
}

// DefaultConfig returns the spec's default thresholds (§4.1).
func DefaultConfig() Config {
	return Config{PerDeviceCapacity: defaultPerDeviceCapacity, Skew: defaultSkew}
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	if cfg.PerDeviceCapacity <= 0 {
		cfg.PerDeviceCapacity = defaultPerDeviceCapacity
	}
	if cfg.Skew <= 0 {
		cfg.Skew = defaultSkew
	}
	return &Gate{
		devices:           make(map[string]*deviceState),
		perDeviceCapacity: cfg.PerDeviceCapacity,
		skew:              cfg.Skew,
	}
}

func fingerprintKey(ts time.Time, seq string) string {
	return fmt.Sprintf("%d|%s", ts.UnixNano(), seq)
}

// Accept applies the dedup rule to a sample, returning false iff the
// (timestamp, sequence-number) pair has already been seen for this device,
// or the timestamp is older than the newest accepted sample for the device
// by more than the configured skew. A timestamp tie with a differing,
// present sequence-number is never discarded here — it is resolved later by
// "last writer wins" in the persistence upsert (spec §4.5).
func (g *Gate) Accept(sample models.LocationSample) bool {
	seq := ""
	if sample.SequenceNumber != nil {
		seq = *sample.SequenceNumber
	}

	state := g.deviceStateFor(sample.DeviceID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.newest.IsZero() && sample.Timestamp.Before(state.newest.Add(-g.skew)) {
		return false
	}

	key := fingerprintKey(sample.Timestamp, seq)
	if _, exists := state.seen[key]; exists {
		return false
	}

	state.seen[key] = fingerprint{timestamp: sample.Timestamp, sequence: seq}
	state.order = append(state.order, key)
	for len(state.order) > state.capacity {
		evict := state.order[0]
		state.order = state.order[1:]
		delete(state.seen, evict)
	}

	if sample.Timestamp.After(state.newest) {
		state.newest = sample.Timestamp
	}
	return true
}

func (g *Gate) deviceStateFor(deviceID string) *deviceState {
	g.mu.RLock()
	state, ok := g.devices[deviceID]
	g.mu.RUnlock()
	if ok {
		return state
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if state, ok := g.devices[deviceID]; ok {
		return state
	}
	state = newDeviceState(g.perDeviceCapacity)
	g.devices[deviceID] = state
	return state
}

// DeviceCount reports how many distinct devices the gate currently tracks
// state for.
func (g *Gate) DeviceCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.devices)
}
