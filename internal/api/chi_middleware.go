// gpstracker - fleet GPS telemetry ingestion & broadcast platform
// Copyright 2026 jothiesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jothiesh/gpstracker

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// chiMiddleware adapts the codebase's func(http.HandlerFunc) http.HandlerFunc
// middleware convention (middleware.RequestID, authz.Middleware.AuthorizeRequest)
// to Chi's func(http.Handler) http.Handler so it can be passed to r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// ChiMiddlewareConfig holds CORS and rate-limit configuration for the
// administrative HTTP surface.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int // seconds

	// GPSIngestRequests/GPSIngestWindow rate-limit `/api/vehicle/gps/*`
	// per-IP, per spec SPEC_FULL.md §6.3.
	GPSIngestRequests int
	GPSIngestWindow   time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DefaultChiMiddlewareConfig returns a secure default: no CORS origins
// permitted until explicitly configured, and a moderate default rate limit.
func DefaultChiMiddlewareConfig() ChiMiddlewareConfig {
	return ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization"},
		CORSMaxAge:         86400,

		GPSIngestRequests: 600,
		GPSIngestWindow:   time.Minute,

		RateLimitRequests: 300,
		RateLimitWindow:   time.Minute,
	}
}

// ChiMiddleware provides Chi-compatible middleware factories built on
// go-chi/cors and go-chi/httprate.
type ChiMiddleware struct {
	cfg  ChiMiddlewareConfig
	cors func(http.Handler) http.Handler
}

// NewChiMiddleware builds the CORS handler once from cfg.
func NewChiMiddleware(cfg ChiMiddlewareConfig) *ChiMiddleware {
	return &ChiMiddleware{
		cfg: cfg,
		cors: cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: cfg.CORSAllowedMethods,
			AllowedHeaders: cfg.CORSAllowedHeaders,
			MaxAge:         cfg.CORSMaxAge,
		}),
	}
}

// CORS returns the shared CORS middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler { return m.cors }

// RateLimit applies the default per-IP request budget.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return httprate.LimitByIP(m.cfg.RateLimitRequests, m.cfg.RateLimitWindow)
}

// RateLimitGPSIngest applies the ingest-adjacent budget to
// `/api/vehicle/gps/*`, guarding the datastore from a runaway device feed
// reaching it through the HTTP surface instead of the broker (spec §6.3).
func (m *ChiMiddleware) RateLimitGPSIngest() func(http.Handler) http.Handler {
	return httprate.LimitByIP(m.cfg.GPSIngestRequests, m.cfg.GPSIngestWindow)
}

// SecurityHeaders adds the standard set of response headers for a JSON API
// surface (no CSP — this isn't serving HTML).
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
