// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package lastlocation implements the last-known-location cache (C6): a
// process-wide, size-bounded LRU map from device-id to its most recent
// sample, write-through to the durable last-location row.
package lastlocation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/cache"
	"github.com/jothiesh/gpstracker/internal/models"
)

const defaultMaxEntries = 100_000

// Store is the write-through target: the durable last-location table.
type Store interface {
	UpsertLastLocation(ctx context.Context, loc models.LastLocation) error
}

// Cache is the C6 last-location cache.
type Cache struct {
	lru   *cache.LRUCache
	store Store
	log   zerolog.Logger

	mu sync.Mutex // guards per-device accept decisions; LRU itself is safe for concurrent use
}

// New constructs a Cache bounded at maxEntries (0 selects the spec default
// of 100k). ttl is 0: eviction here is purely size-bounded, since an
// eviction never loses data — the durable row remains the source of truth
// (spec §4.6).
func New(maxEntries int, store Store, log zerolog.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{lru: cache.NewLRUCache(maxEntries, 0), store: store, log: log}
}

// Accept applies the idempotent-by-timestamp write rule: the incoming
// sample replaces the cached one (and is written through) iff its
// timestamp is strictly newer (spec §4.6).
func (c *Cache) Accept(ctx context.Context, sample models.LocationSample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.lru.Peek(sample.DeviceID); ok {
		existing := cur.(models.LastLocation)
		if !sample.Timestamp.After(existing.LocationSample.Timestamp) {
			return false
		}
	}

	loc := models.LastLocation{LocationSample: sample, UpdatedAt: time.Now()}
	c.lru.Add(sample.DeviceID, loc)

	if err := c.store.UpsertLastLocation(ctx, loc); err != nil {
		c.log.Error().Err(err).Str("device", sample.DeviceID).Msg("last-location write-through failed")
	}
	return true
}

// Submit implements ingest.Sink.
func (c *Cache) Submit(ctx context.Context, sample models.LocationSample) {
	c.Accept(ctx, sample)
}

// Get returns the cached last location for a device-id, if present.
func (c *Cache) Get(deviceID string) (models.LastLocation, bool) {
	v, ok := c.lru.Get(deviceID)
	if !ok {
		return models.LastLocation{}, false
	}
	return v.(models.LastLocation), true
}

// Stats reports size/hit/miss/eviction/hit-rate (spec §4.6).
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// CacheHitRate implements health.CacheStats.
func (c *Cache) CacheHitRate() float64 {
	return c.Stats().HitRate
}

// Stats returns a snapshot of cache performance.
func (c *Cache) Stats() Stats {
	hits, misses, evictions, size := c.lru.Stats()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Size: size, Hits: hits, Misses: misses, Evictions: evictions, HitRate: rate}
}
