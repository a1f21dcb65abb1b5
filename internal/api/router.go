// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the chi route tree from a Handler and the middleware
// factory.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router. A nil middleware config falls back to the
// secure defaults.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: mw}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS()) // global so OPTIONS preflight is always answered

	// Operational endpoints stay outside the rate limit so probes and
	// scrapes are never shed.
	r.Get("/health", router.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Websocket upgrades bypass the JSON rate limiter; the hub enforces
	// its own per-branch policy.
	r.Get("/ws", router.handler.WebSocketUser)
	r.Get("/ws/branches", router.handler.WebSocketBranch)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())

		r.Route("/watchlist", func(r chi.Router) {
			r.Post("/", router.handler.AddWatchlist)
			r.Delete("/{incidentID}", router.handler.RemoveWatchlist)
			r.Post("/analyst", router.handler.AnalystOverride)
			r.Post("/hardware-sync", router.handler.HardwareSync)
			r.Post("/mirror/{incidentID}", router.handler.MirrorRepush)
		})

		r.Get("/incidents/{incidentID}", router.handler.IncidentDetail)

		r.Route("/listener", func(r chi.Router) {
			r.Post("/start", router.handler.ListenerStart)
			r.Post("/stop", router.handler.ListenerStop)
			r.Get("/status", router.handler.ListenerStatus)
		})
	})

	return r
}
