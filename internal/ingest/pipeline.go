// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package ingest

import (
	"context"
	"hash/fnv"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/models"
)

// VehicleLookup resolves owner references for a device-id (spec §4.4 step
// 4). A miss is not fatal: the sample is still persisted and broadcast on
// the generic topic only (VehicleNotFound, spec §7).
type VehicleLookup interface {
	VehicleByDeviceID(ctx context.Context, deviceID string) (models.Vehicle, error)
}

// Gate is the C1 dedup gate's contract from the ingestion pipeline's point
// of view.
type Gate interface {
	Accept(sample models.LocationSample) bool
}

// Sink receives an accepted sample. The pipeline calls the persistence,
// broadcast, and last-location sinks for every accepted sample as three
// independent submissions (spec §4.4 step 6, §2 data flow C4→C6).
type Sink interface {
	Submit(ctx context.Context, sample models.LocationSample)
}

// Config configures the pipeline's concurrency.
type Config struct {
	Workers int // 0 selects min(2*cores, 32), per spec §4.4
}

func (c Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := 2 * runtime.NumCPU()
	if n > 32 {
		n = 32
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pipeline is the C4 ingestion pipeline: a worker pool sharded by
// hash(device-id) mod W so per-device order is preserved end-to-end into
// persistence and into /topic/device/{id} (spec §4.4, §5).
type Pipeline struct {
	workers      int
	lanes        []chan models.LocationSample
	vehicles     VehicleLookup
	gate         Gate
	persist      Sink
	broadcast    Sink
	lastLocation Sink
	log          zerolog.Logger

	laneCapacity int
}

// New constructs a Pipeline. Call Start to launch the worker goroutines.
// lastLocation is the C6 write-through sink (spec §2 data flow C4→C6,
// §4.6) — every accepted sample updates the per-device last-known-location
// cache and its durable row alongside persistence and broadcast.
func New(cfg Config, vehicles VehicleLookup, gate Gate, persist, broadcast, lastLocation Sink, log zerolog.Logger) *Pipeline {
	workers := cfg.workerCount()
	lanes := make([]chan models.LocationSample, workers)
	for i := range lanes {
		lanes[i] = make(chan models.LocationSample, 256)
	}
	return &Pipeline{
		workers:      workers,
		lanes:        lanes,
		vehicles:     vehicles,
		gate:         gate,
		persist:      persist,
		broadcast:    broadcast,
		lastLocation: lastLocation,
		log:          log,
		laneCapacity: 256,
	}
}

// Start launches one goroutine per worker lane; returns when ctx is
// canceled and every lane has drained.
func (p *Pipeline) Start(ctx context.Context) error {
	done := make(chan struct{}, p.workers)
	for i := 0; i < p.workers; i++ {
		go func(lane chan models.LocationSample) {
			defer func() { done <- struct{}{} }()
			p.runLane(ctx, lane)
		}(p.lanes[i])
	}

	<-ctx.Done()
	for i := 0; i < p.workers; i++ {
		<-done
	}
	return ctx.Err()
}

func (p *Pipeline) runLane(ctx context.Context, lane chan models.LocationSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-lane:
			if !ok {
				return
			}
			p.process(ctx, sample)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, sample models.LocationSample) {
	if vehicle, err := p.vehicles.VehicleByDeviceID(ctx, sample.DeviceID); err == nil {
		sample.Owners = vehicle.Owners
	}
	// A vehicle-lookup miss is not fatal: sample.Owners stays zero-value
	// and downstream broadcast falls back to the generic topic only.

	if !p.gate.Accept(sample) {
		return
	}

	p.persist.Submit(ctx, sample)
	p.broadcast.Submit(ctx, sample)
	p.lastLocation.Submit(ctx, sample)
}

// laneFor hashes a device-id onto one of the W worker lanes, so every
// sample for one device is processed by the same goroutine in arrival
// order.
func (p *Pipeline) laneFor(deviceID string) chan models.LocationSample {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return p.lanes[int(h.Sum32())%p.workers]
}

// Ingest decodes a raw broker payload and submits every resulting sample to
// its device's lane. Blocks if the target lane is full, providing natural
// backpressure into the broker receive path.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte) (int, error) {
	samples, err := ParseConcatenated(payload)
	if err != nil {
		return 0, err
	}

	for _, s := range samples {
		lane := p.laneFor(s.DeviceID)
		select {
		case lane <- s:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return len(samples), nil
}
