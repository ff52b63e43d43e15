// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/health"
	appmiddleware "github.com/jothiesh/gpstracker/internal/middleware"
	"github.com/jothiesh/gpstracker/internal/models"
)

// BrokerPool is the subset of broker.Pool the test surface drives and
// inspects (spec §6.3's capacity/scale-up/stats trio).
type BrokerPool interface {
	CanServe(n int) bool
	ForceScale(ctx context.Context, n int) error
	Snapshot() []models.BrokerSession
	ConnectedSummary() (active, expected int)
}

// HealthMonitor is the subset of health.Monitor the test surface exposes.
type HealthMonitor interface {
	Snapshot() health.Snapshot
}

// TestHandler exposes operator/load-test endpoints over the broker pool
// and health monitor (spec §6.3). These are not part of the device-facing
// contract — they exist for capacity testing and smoke checks.
type TestHandler struct {
	broker BrokerPool
	health HealthMonitor
	perf   *appmiddleware.PerformanceMonitor
	log    zerolog.Logger
}

// NewTestHandler constructs a TestHandler. perf is the same monitor instance
// wired into the router's middleware stack, so PerfStats reports on every
// request the process has actually served.
func NewTestHandler(broker BrokerPool, health HealthMonitor, perf *appmiddleware.PerformanceMonitor, log zerolog.Logger) *TestHandler {
	return &TestHandler{broker: broker, health: health, perf: perf, log: log}
}

// Capacity reports whether the broker pool can currently serve n devices.
func (h *TestHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		rw.BadRequest("n must be a non-negative integer")
		return
	}
	rw.Success(map[string]any{"requestedDevices": n, "canServe": h.broker.CanServe(n)})
}

// Stats returns a snapshot of every pooled broker session.
func (h *TestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	active, expected := h.broker.ConnectedSummary()
	rw.Success(map[string]any{
		"sessions": h.broker.Snapshot(),
		"active":   active,
		"expected": expected,
	})
}

// ScaleUp forces the broker pool to scale to exactly target sessions.
func (h *TestHandler) ScaleUp(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	target, err := strconv.Atoi(chi.URLParam(r, "target"))
	if err != nil || target < 0 {
		rw.BadRequest("target must be a non-negative integer")
		return
	}
	if err := h.broker.ForceScale(r.Context(), target); err != nil {
		rw.InternalError(err.Error())
		return
	}
	rw.Success(map[string]any{"target": target})
}

// Health returns the aggregate health snapshot.
func (h *TestHandler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.health.Snapshot())
}

// PerfStats returns per-endpoint latency percentiles gathered from live
// traffic by the router's performance-monitoring middleware.
func (h *TestHandler) PerfStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]any{"endpoints": h.perf.GetStats()})
}
