// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package api

import (
	"net/http"

	"github.com/vigilant-labs/watchgate/internal/logging"
)

// requireListener answers 503 when no ingest listener is wired in.
func (h *Handler) requireListener(w http.ResponseWriter) bool {
	if h.listener == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "ingest listener is not configured")
		return false
	}
	return true
}

// ListenerStart starts the ingest listener. Starting an already-running
// listener is a no-op and still answers 200.
//
// Method: POST
// Path: /api/v1/listener/start
func (h *Handler) ListenerStart(w http.ResponseWriter, r *http.Request) {
	if !h.requireListener(w) {
		return
	}

	if err := h.listener.Start(r.Context()); err != nil {
		respondAppError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().Msg("Ingest listener started via API")
	respondData(w, http.StatusOK, map[string]any{"running": true})
}

// ListenerStop stops the ingest listener, draining in-flight handlers.
//
// Method: POST
// Path: /api/v1/listener/stop
func (h *Handler) ListenerStop(w http.ResponseWriter, r *http.Request) {
	if !h.requireListener(w) {
		return
	}

	h.listener.Stop()
	logging.Ctx(r.Context()).Info().Msg("Ingest listener stopped via API")
	respondData(w, http.StatusOK, map[string]any{"running": false})
}

// ListenerStatus reports whether the ingest listener is consuming.
//
// Method: GET
// Path: /api/v1/listener/status
func (h *Handler) ListenerStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireListener(w) {
		return
	}
	respondData(w, http.StatusOK, map[string]any{"running": h.listener.Running()})
}

// Health reports process liveness plus database reachability and listener
// state. Database failure degrades the response to 503 so load balancers
// stop routing here.
//
// Method: GET
// Path: /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbOK := true
	if err := h.db.Ping(r.Context()); err != nil {
		logging.CtxErr(r.Context(), err).Msg("Health check database ping failed")
		dbOK = false
		status = http.StatusServiceUnavailable
	}

	listenerRunning := false
	if h.listener != nil {
		listenerRunning = h.listener.Running()
	}

	respondData(w, status, map[string]any{
		"database": dbOK,
		"listener": listenerRunning,
	})
}
