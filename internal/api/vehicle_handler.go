// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package api

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jothiesh/gpstracker/internal/models"
	"github.com/jothiesh/gpstracker/internal/storage"
	"github.com/jothiesh/gpstracker/internal/validation"
)

const (
	maxUnpaginatedHistoryRows = 20_000
	maxPaginatedHistoryRows   = 50_000
	defaultChunkSize          = 5_000
)

// HistoryStore is the read surface vehicle handlers query.
type HistoryStore interface {
	QueryHistory(ctx context.Context, deviceID string, from, to time.Time, limit, offset int) ([]models.LocationSample, error)
	HistoryStatsByDevice(ctx context.Context, deviceID string, from, to time.Time) (storage.HistoryStats, error)
	LastLocationByDeviceID(ctx context.Context, deviceID string) (models.LastLocation, error)
}

// LiveLocationSink accepts a live-location update into the last-location
// cache's write-through path.
type LiveLocationSink interface {
	Accept(ctx context.Context, sample models.LocationSample) bool
}

// BroadcastSink fans an accepted sample out to its subscribed topics and
// runs alert evaluation (spec §4.5/§7).
type BroadcastSink interface {
	Submit(ctx context.Context, sample models.LocationSample)
}

// Ingester decodes and routes a raw GPS payload into the ingestion
// pipeline (spec §4.4).
type Ingester interface {
	Ingest(ctx context.Context, payload []byte) (int, error)
}

// VehicleHandler implements the vehicle GPS/history/location HTTP surface
// (spec §6.3).
type VehicleHandler struct {
	history   HistoryStore
	live      LiveLocationSink
	broadcast BroadcastSink
	ingest    Ingester
	log       zerolog.Logger
}

// NewVehicleHandler constructs a VehicleHandler.
func NewVehicleHandler(history HistoryStore, live LiveLocationSink, broadcast BroadcastSink, ingest Ingester, log zerolog.Logger) *VehicleHandler {
	return &VehicleHandler{history: history, live: live, broadcast: broadcast, ingest: ingest, log: log}
}

func parseTimeRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	to = time.Now().UTC()
	from = to.AddDate(0, 0, -1)

	if v := q.Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
	}
	return from, to, nil
}

// HistoryStream returns up to 20,000 raw samples for a device over a time
// range.
func (h *VehicleHandler) HistoryStream(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	from, to, err := parseTimeRange(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	maxRecords := maxUnpaginatedHistoryRows
	if v := r.URL.Query().Get("maxRecords"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			rw.BadRequest("maxRecords must be a positive integer")
			return
		}
		if n > maxUnpaginatedHistoryRows {
			rw.PayloadTooLarge("maxRecords exceeds the 20,000-row limit for this endpoint; use the paginated or chunked endpoint instead")
			return
		}
		maxRecords = n
	}

	samples, err := h.history.QueryHistory(r.Context(), deviceID, from, to, maxRecords, 0)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(samples)
}

// HistoryStats returns count/avg-speed/max-speed over a time range.
func (h *VehicleHandler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	from, to, err := parseTimeRange(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	stats, err := h.history.HistoryStatsByDevice(r.Context(), deviceID, from, to)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(stats)
}

// HistoryPaginated returns one page (limit/offset) of up to 50,000 rows.
func (h *VehicleHandler) HistoryPaginated(w http.ResponseWriter, r *http.Request) {
	h.historyPage(w, r, maxPaginatedHistoryRows)
}

// HistoryChunked returns one fixed-size chunk (defaultChunkSize rows unless
// limit overrides it, still capped at 50,000), meant to be called
// repeatedly by an offset-walking client.
func (h *VehicleHandler) HistoryChunked(w http.ResponseWriter, r *http.Request) {
	h.historyPage(w, r, maxPaginatedHistoryRows)
}

func (h *VehicleHandler) historyPage(w http.ResponseWriter, r *http.Request, maxLimit int) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	from, to, err := parseTimeRange(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	limit := defaultChunkSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
		if n > maxLimit {
			rw.PayloadTooLarge("limit exceeds the 50,000-row page cap")
			return
		}
		limit = n
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	samples, err := h.history.QueryHistory(r.Context(), deviceID, from, to, limit+1, offset)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	hasMore := len(samples) > limit
	if hasMore {
		samples = samples[:limit]
	}
	rw.SuccessWithPagination(samples, &PaginationMeta{
		Count:   len(samples),
		Offset:  offset,
		Limit:   limit,
		HasMore: hasMore,
	})
}

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6_371_000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// DistanceStream sums the great-circle distance between consecutive
// located samples over a time range.
func (h *VehicleHandler) DistanceStream(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	from, to, err := parseTimeRange(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	samples, err := h.history.QueryHistory(r.Context(), deviceID, from, to, maxUnpaginatedHistoryRows, 0)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	var totalMeters float64
	havePrev := false
	var prevLat, prevLon float64
	for _, s := range samples {
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		if havePrev {
			totalMeters += haversineMeters(prevLat, prevLon, *s.Latitude, *s.Longitude)
		}
		prevLat, prevLon = *s.Latitude, *s.Longitude
		havePrev = true
	}

	rw.Success(map[string]any{
		"deviceID":       deviceID,
		"samples":        len(samples),
		"distanceMeters": totalMeters,
		"distanceKm":     totalMeters / 1000,
	})
}

// LatestLocation returns the cached/durable last-known location for a
// device.
func (h *VehicleHandler) LatestLocation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")
	loc, err := h.history.LastLocationByDeviceID(r.Context(), deviceID)
	if err != nil {
		rw.NotFound("no location recorded for this device")
		return
	}
	rw.Success(loc)
}

// liveLocationRequest is validated before a LiveLocation update is accepted.
type liveLocationRequest struct {
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
	Speed     float64 `validate:"omitempty,min=0"`
}

// LiveLocation accepts a single ad-hoc location update for a device,
// bypassing the broker ingestion path — used by test harnesses and manual
// corrections (spec §6.3).
func (h *VehicleHandler) LiveLocation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deviceID := chi.URLParam(r, "deviceId")

	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		rw.BadRequest("latitude is required and must be numeric")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		rw.BadRequest("longitude is required and must be numeric")
		return
	}
	var speed float64
	if v := q.Get("speed"); v != "" {
		speed, err = strconv.ParseFloat(v, 64)
		if err != nil {
			rw.BadRequest("speed must be numeric")
			return
		}
	}

	if verr := validation.ValidateStruct(&liveLocationRequest{Latitude: lat, Longitude: lon, Speed: speed}); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	sample := models.LocationSample{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Latitude:  &lat,
		Longitude: &lon,
	}
	if q.Get("speed") != "" {
		sample.Speed = &speed
	}

	accepted := h.live.Accept(r.Context(), sample)
	if accepted {
		h.broadcast.Submit(r.Context(), sample)
	}
	rw.Success(map[string]any{"accepted": accepted})
}

// GPSUpsert accepts one or more concatenated JSON location samples over
// HTTP, an alternate path into the same ingestion pipeline the broker
// feeds (spec §4.4).
func (h *VehicleHandler) GPSUpsert(w http.ResponseWriter, r *http.Request) {
	h.ingestBody(w, r)
}

// GPSBatchUpsert is identical to GPSUpsert; the distinction is purely in
// the client's intent (spec §6.3 names both).
func (h *VehicleHandler) GPSBatchUpsert(w http.ResponseWriter, r *http.Request) {
	h.ingestBody(w, r)
}

func (h *VehicleHandler) ingestBody(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		rw.BadRequest("failed to read request body")
		return
	}
	n, err := h.ingest.Ingest(r.Context(), body)
	if err != nil {
		rw.ValidationError("failed to parse location payload", err.Error())
		return
	}
	rw.Success(map[string]any{"accepted": n})
}
