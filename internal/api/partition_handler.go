// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/partition"
)

// PartitionHandler exposes the partition Manager/Scheduler over HTTP
// (spec §6.3).
type PartitionHandler struct {
	mgr   *partition.Manager
	sched *partition.Scheduler
	log   zerolog.Logger
}

// NewPartitionHandler constructs a PartitionHandler.
func NewPartitionHandler(mgr *partition.Manager, sched *partition.Scheduler, log zerolog.Logger) *PartitionHandler {
	return &PartitionHandler{mgr: mgr, sched: sched, log: log}
}

// partitionErrorStatus maps a partition.Error's Kind to an HTTP status.
func partitionErrorStatus(err error) (int, string) {
	var pe *partition.Error
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError, ErrCodeInternalError
	}
	switch pe.Kind {
	case partition.NotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case partition.AlreadyExists:
		return http.StatusConflict, ErrCodeConflict
	case partition.InvalidName:
		return http.StatusBadRequest, ErrCodeBadRequest
	case partition.TooRecent, partition.Permission:
		return http.StatusForbidden, ErrCodeForbidden
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

func (h *PartitionHandler) writePartitionError(rw *ResponseWriter, err error) {
	status, code := partitionErrorStatus(err)
	rw.Error(status, code, err.Error())
}

// List returns every open partition name (spec §6.3).
func (h *PartitionHandler) List(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.mgr.List())
}

// Info returns a partition's metadata view.
func (h *PartitionHandler) Info(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")
	info, err := h.mgr.Info(r.Context(), name)
	if err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(info)
}

// Health returns just a partition's health classification.
func (h *PartitionHandler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")
	info, err := h.mgr.Info(r.Context(), name)
	if err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"name": info.Name, "health": info.Health})
}

// Metrics returns a partition's size/row-count figures.
func (h *PartitionHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")
	info, err := h.mgr.Info(r.Context(), name)
	if err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"name": info.Name, "sizeBytes": info.SizeBytes, "rowCount": info.RowCount})
}

// Create ensures the partition for the given year/month exists.
func (h *PartitionHandler) Create(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	year, err1 := strconv.Atoi(r.URL.Query().Get("year"))
	month, err2 := strconv.Atoi(r.URL.Query().Get("month"))
	if err1 != nil || err2 != nil || month < 1 || month > 12 {
		rw.BadRequest("year and month query parameters are required")
		return
	}
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	name, err := h.mgr.EnsureMonth(r.Context(), t)
	if err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Created(map[string]any{"name": name})
}

// CreateCurrent ensures the current month's partition exists.
func (h *PartitionHandler) CreateCurrent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name, err := h.mgr.EnsureMonth(r.Context(), time.Now())
	if err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Created(map[string]any{"name": name})
}

// CreateFuture ensures the current and next N months' partitions exist.
func (h *PartitionHandler) CreateFuture(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	months, err := strconv.Atoi(r.URL.Query().Get("months"))
	if err != nil || months < 0 {
		rw.BadRequest("months query parameter must be a non-negative integer")
		return
	}
	if err := h.mgr.EnsureCurrentAndFuture(r.Context(), months); err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(h.mgr.List())
}

// Optimize runs ANALYZE + PRAGMA optimize over one partition.
func (h *PartitionHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")
	if err := h.mgr.Optimize(r.Context(), name); err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"name": name, "optimized": true})
}

// Analyze refreshes a partition's cardinality statistics.
func (h *PartitionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")
	if err := h.mgr.Analyze(r.Context(), name); err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"name": name, "analyzed": true})
}

// Maintain runs the weekly classify-and-split duty over every open
// partition immediately.
func (h *PartitionHandler) Maintain(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.mgr.Maintain(r.Context()); err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"maintained": true})
}

// Drop removes one partition; force bypasses the too-recent guard.
func (h *PartitionHandler) Drop(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")
	force := r.URL.Query().Get("force") == "true"
	retentionMonths, _ := strconv.Atoi(r.URL.Query().Get("retentionMonths"))
	if retentionMonths <= 0 {
		retentionMonths = h.mgr.Config().RetentionMonths
	}
	if err := h.mgr.Drop(r.Context(), name, retentionMonths, force); err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.NoContent()
}

// Cleanup drops every partition older than retentionMonths.
func (h *PartitionHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	retentionMonths, err := strconv.Atoi(r.URL.Query().Get("retentionMonths"))
	if err != nil || retentionMonths <= 0 {
		retentionMonths = h.mgr.Config().RetentionMonths
	}
	force := r.URL.Query().Get("force") == "true"
	dropped, err := h.mgr.Cleanup(r.Context(), retentionMonths, force)
	if err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"dropped": dropped})
}

// SchedulerConfig returns the manager's retention/future-month policy.
func (h *PartitionHandler) SchedulerConfig(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.mgr.Config())
}

// SchedulerStatus returns a snapshot of the current open partitions, the
// closest thing to a running scheduler's state this admin surface exposes.
func (h *PartitionHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]any{"partitions": h.mgr.List(), "config": h.mgr.Config()})
}

// SchedulerTrigger runs one named job (daily/weekly/cleanup/all)
// immediately; cleanup (and all, which includes it) require confirmAll=true.
func (h *PartitionHandler) SchedulerTrigger(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	job := partition.Job(chi.URLParam(r, "job"))
	confirmAll := r.URL.Query().Get("confirmAll") == "true"
	if err := h.sched.Trigger(r.Context(), job, confirmAll); err != nil {
		h.writePartitionError(rw, err)
		return
	}
	rw.Success(map[string]any{"job": job, "triggered": true})
}
