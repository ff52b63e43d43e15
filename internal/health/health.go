// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

// Package health implements the health-probe table (C8): six independent
// probes polled on a fixed cadence, aggregated into an overall status, and
// published as a periodic snapshot to the broadcast fabric's /topic/stats.
package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jothiesh/gpstracker/internal/metrics"
)

// Status is a probe's or the aggregate's health classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "unhealthy"
)

func (s Status) rank() float64 {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Probe reports the current status of one subsystem. Implementations are
// provided by the components being probed (broker pool, datastore, batch
// engine, cache); Probe keeps health decoupled from their concrete types.
type Probe interface {
	Name() string
	Check(ctx context.Context) Result
}

// Result is one probe invocation's outcome.
type Result struct {
	Status  Status
	Detail  string
	Metrics map[string]interface{}
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc struct {
	name string
	fn   func(ctx context.Context) Result
}

// NewProbeFunc constructs a Probe from a name and check function.
func NewProbeFunc(name string, fn func(ctx context.Context) Result) Probe {
	return ProbeFunc{name: name, fn: fn}
}

func (p ProbeFunc) Name() string                        { return p.name }
func (p ProbeFunc) Check(ctx context.Context) Result     { return p.fn(ctx) }

// Config configures the health monitor's polling cadence.
type Config struct {
	Interval     time.Duration // probe poll cadence, default 15s
	StatsCadence time.Duration // /topic/stats publish cadence, default 30s
}

// DefaultConfig returns the spec defaults.
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Second, StatsCadence: 30 * time.Second}
}

// StatsPublisher receives periodic snapshots for delivery to /topic/stats
// (implemented by broadcast.Hub).
type StatsPublisher interface {
	PublishStats(snapshot interface{})
}

// Monitor runs the six health probes on a cadence and aggregates their
// results.
type Monitor struct {
	cfg    Config
	log    zerolog.Logger
	probes []Probe
	pub    StatsPublisher

	mu      sync.RWMutex
	results map[string]Result
}

// NewMonitor constructs a Monitor over the given probes. pub may be nil to
// disable the periodic stats broadcast (used in tests).
func NewMonitor(cfg Config, probes []Probe, pub StatsPublisher, log zerolog.Logger) *Monitor {
	return &Monitor{cfg: cfg, log: log, probes: probes, pub: pub, results: make(map[string]Result)}
}

// Run polls every probe on cfg.Interval and publishes an aggregate snapshot
// on cfg.StatsCadence, until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	probeTicker := time.NewTicker(m.cfg.Interval)
	defer probeTicker.Stop()
	statsTicker := time.NewTicker(m.cfg.StatsCadence)
	defer statsTicker.Stop()

	m.pollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-probeTicker.C:
			m.pollAll(ctx)
		case <-statsTicker.C:
			if m.pub != nil {
				m.pub.PublishStats(m.Snapshot())
			}
		}
	}
}

func (m *Monitor) pollAll(ctx context.Context) {
	for _, p := range m.probes {
		res := p.Check(ctx)
		metrics.SetHealthProbeStatus(p.Name(), res.Status.rank())

		m.mu.Lock()
		m.results[p.Name()] = res
		m.mu.Unlock()

		if res.Status != StatusHealthy {
			m.log.Warn().Str("probe", p.Name()).Str("status", string(res.Status)).Str("detail", res.Detail).Msg("health probe degraded")
		}
	}
}

// Snapshot is the JSON shape published to /topic/stats.
type Snapshot struct {
	Overall Status            `json:"overall"`
	Probes  map[string]Result `json:"probes"`
}

// Snapshot returns the current aggregate status: the worst of any probe's
// individual status.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Result, len(m.results))
	overall := StatusHealthy
	for name, res := range m.results {
		out[name] = res
		if res.Status.rank() > overall.rank() {
			overall = res.Status
		}
	}
	return Snapshot{Overall: overall, Probes: out}
}

// MemoryProbe reports process/system memory pressure via gopsutil.
func MemoryProbe(warnPercent, criticalPercent float64) Probe {
	return NewProbeFunc("memory", func(ctx context.Context) Result {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return Result{Status: StatusDown, Detail: err.Error()}
		}
		status := StatusHealthy
		if vm.UsedPercent >= criticalPercent {
			status = StatusDown
		} else if vm.UsedPercent >= warnPercent {
			status = StatusDegraded
		}
		return Result{
			Status:  status,
			Metrics: map[string]interface{}{"used_percent": vm.UsedPercent, "total_bytes": vm.Total},
		}
	})
}

// CPUProbe reports recent CPU utilization via gopsutil.
func CPUProbe(warnPercent, criticalPercent float64) Probe {
	return NewProbeFunc("cpu", func(ctx context.Context) Result {
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil || len(percents) == 0 {
			if err == nil {
				err = errNoSample
			}
			return Result{Status: StatusDown, Detail: err.Error()}
		}
		used := percents[0]
		status := StatusHealthy
		if used >= criticalPercent {
			status = StatusDown
		} else if used >= warnPercent {
			status = StatusDegraded
		}
		return Result{
			Status:  status,
			Metrics: map[string]interface{}{"used_percent": used, "num_cpu": runtime.NumCPU()},
		}
	})
}

var errNoSample = errEmptySample{}

type errEmptySample struct{}

func (errEmptySample) Error() string { return "health: cpu.Percent returned no sample" }
