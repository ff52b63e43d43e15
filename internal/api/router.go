// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/jothiesh/gpstracker/internal/authz"
	appmiddleware "github.com/jothiesh/gpstracker/internal/middleware"
)

// Router owns the administrative HTTP surface (spec §6.3): partition
// management, vehicle history/distance queries, live-location ingestion,
// GPS upsert, and operator test endpoints.
type Router struct {
	partitions *PartitionHandler
	vehicles   *VehicleHandler
	test       *TestHandler

	chi  *ChiMiddleware
	auth *authz.Middleware
	perf *appmiddleware.PerformanceMonitor
}

// NewRouter wires the handler groups behind the shared middleware stack.
// perf is shared with the TestHandler passed to NewTestHandler so that
// GET /api/test/perf reports on the same requests this router served.
func NewRouter(partitions *PartitionHandler, vehicles *VehicleHandler, test *TestHandler, chiCfg ChiMiddlewareConfig, auth *authz.Middleware, perf *appmiddleware.PerformanceMonitor) *Router {
	return &Router{
		partitions: partitions,
		vehicles:   vehicles,
		test:       test,
		chi:        NewChiMiddleware(chiCfg),
		auth:       auth,
		perf:       perf,
	}
}

// Handler builds the full chi.Router mux.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(appmiddleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.chi.CORS())
	r.Use(SecurityHeaders())
	r.Use(chiMiddleware(appmiddleware.PrometheusMetrics))
	r.Use(rt.perf.Middleware)
	r.Use(chiMiddleware(appmiddleware.Compression))

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1/partitions", func(r chi.Router) {
		r.Use(chiMiddleware(rt.auth.AuthorizeRequest))
		r.Get("/", rt.partitions.List)
		r.Post("/", rt.partitions.Create)
		r.Post("/create-current", rt.partitions.CreateCurrent)
		r.Post("/create-future", rt.partitions.CreateFuture)
		r.Post("/maintenance", rt.partitions.Maintain)
		r.Post("/cleanup", rt.partitions.Cleanup)
		r.Get("/scheduler/config", rt.partitions.SchedulerConfig)
		r.Get("/scheduler/status", rt.partitions.SchedulerStatus)
		r.Post("/scheduler/trigger/{job}", rt.partitions.SchedulerTrigger)
		r.Get("/{name}/info", rt.partitions.Info)
		r.Get("/{name}/health", rt.partitions.Health)
		r.Get("/{name}/metrics", rt.partitions.Metrics)
		r.Post("/{name}/optimize", rt.partitions.Optimize)
		r.Post("/{name}/analyze", rt.partitions.Analyze)
		r.Delete("/{name}", rt.partitions.Drop)
	})

	r.Route("/api/vehicle", func(r chi.Router) {
		r.Use(chiMiddleware(rt.auth.AuthorizeRequest))

		r.Group(func(r chi.Router) {
			r.Use(rt.chi.RateLimitGPSIngest())
			r.Post("/gps/upsert", rt.vehicles.GPSUpsert)
			r.Post("/gps/batch-upsert", rt.vehicles.GPSBatchUpsert)
		})

		r.Get("/history/{deviceId}/stream", rt.vehicles.HistoryStream)
		r.Get("/history/{deviceId}/stats", rt.vehicles.HistoryStats)
		r.Get("/history/{deviceId}/paginated", rt.vehicles.HistoryPaginated)
		r.Get("/history/{deviceId}/chunked", rt.vehicles.HistoryChunked)
		r.Get("/distance/{deviceId}/stream", rt.vehicles.DistanceStream)
		r.Get("/latest-location/{deviceId}", rt.vehicles.LatestLocation)
		r.Post("/live-location/{deviceId}", rt.vehicles.LiveLocation)
	})

	r.Route("/api/test", func(r chi.Router) {
		r.Use(chiMiddleware(rt.auth.AuthorizeRequest))
		r.Get("/capacity/{n}", rt.test.Capacity)
		r.Get("/stats", rt.test.Stats)
		r.Post("/scale-up/{target}", rt.test.ScaleUp)
		r.Get("/health", rt.test.Health)
		r.Get("/perf", rt.test.PerfStats)
	})

	return r
}
