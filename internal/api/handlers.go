// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package api exposes the Watchgate HTTP surface: watchlist mutations,
// reconciliation replay, incident lookups, listener control and the
// websocket fanout edge. Routing uses chi with the cors/httprate ecosystem
// middleware.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/fanout"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/reconcile"
)

// WatchlistService is the slice of the watchlist state machine the API
// drives directly.
type WatchlistService interface {
	Add(ctx context.Context, incidentID int64, status models.IncidentStatus, comment *string, userID *int64) (*models.WatchlistEntry, error)
	Remove(ctx context.Context, incidentID int64, comment *string, userID *int64) (models.RemovalResult, error)
	AnalystOverride(ctx context.Context, incidentUUID string, watchlisted bool, comment *string, userID *int64) error
}

// Replayer rebuilds mirror state from the delivery log.
type Replayer interface {
	Replay(ctx context.Context, companyUUID, branchUUID string, window time.Duration) (*reconcile.Result, error)
}

// Mirror re-pushes a watchlist entry's document to the mirror store.
type Mirror interface {
	Push(ctx context.Context, entryID int64)
}

// Listener is the ingest pipeline's lifecycle surface.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// Handler implements all HTTP endpoints. Optional collaborators (mirror,
// listener, hub) may be nil; their endpoints then answer 503.
type Handler struct {
	db        *database.DB
	watchlist WatchlistService
	replayer  Replayer
	mirror    Mirror
	listener  Listener
	hub       *fanout.Hub
	fanoutCfg *config.FanoutConfig
	allowed   []string
	validate  *validator.Validate
}

// NewHandler wires the endpoint collaborators together. allowedOrigins
// bounds websocket upgrades the same way CORS bounds the JSON endpoints.
func NewHandler(db *database.DB, wl WatchlistService, replayer Replayer, mirror Mirror, listener Listener, hub *fanout.Hub, fanoutCfg *config.FanoutConfig, allowedOrigins []string) *Handler {
	return &Handler{
		db:        db,
		watchlist: wl,
		replayer:  replayer,
		mirror:    mirror,
		listener:  listener,
		hub:       hub,
		fanoutCfg: fanoutCfg,
		allowed:   allowedOrigins,
		validate:  validator.New(),
	}
}

// AddWatchlistRequest is the body of POST /api/v1/watchlist.
type AddWatchlistRequest struct {
	IncidentID int64   `json:"incident_id" validate:"required,gt=0"`
	Status     *int16  `json:"status,omitempty"`
	Comment    *string `json:"comment,omitempty"`
	UserID     *int64  `json:"user_id,omitempty"`
}

// AnalystOverrideRequest is the body of POST /api/v1/watchlist/analyst.
type AnalystOverrideRequest struct {
	IncidentUUID string  `json:"incident_uuid" validate:"required"`
	Watchlisted  *bool   `json:"watchlisted" validate:"required"`
	Comment      *string `json:"comment,omitempty"`
	UserID       *int64  `json:"user_id,omitempty"`
}

// HardwareSyncRequest is the body of POST /api/v1/watchlist/hardware-sync.
type HardwareSyncRequest struct {
	CompanyUUID   string `json:"company_uuid" validate:"required"`
	BranchUUID    string `json:"branch_uuid" validate:"required"`
	WindowSeconds int64  `json:"window_seconds,omitempty" validate:"gte=0"`
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

func urlParamInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequestf("invalid %s %q", name, raw)
	}
	return id, nil
}

// AddWatchlist places an incident on the watchlist.
//
// Method: POST
// Path: /api/v1/watchlist
func (h *Handler) AddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req AddWatchlistRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	status := models.StatusWatchlisted
	if req.Status != nil {
		status = models.IncidentStatus(*req.Status)
	}

	entry, err := h.watchlist.Add(r.Context(), req.IncidentID, status, req.Comment, req.UserID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("incident_id", req.IncidentID).
		Int64("entry_id", entry.ID).
		Msg("Watchlist add via API")
	respondData(w, http.StatusCreated, entry)
}

// RemoveWatchlist takes an incident off the watchlist. For reentry
// incidents the removal lands on the linked previous incident or customer;
// the response reports what was actually removed. Comment and user id ride
// on query parameters since DELETE bodies are not reliably forwarded.
//
// Method: DELETE
// Path: /api/v1/watchlist/{incidentID}
func (h *Handler) RemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	incidentID, err := urlParamInt64(r, "incidentID")
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	var comment *string
	if c := r.URL.Query().Get("comment"); c != "" {
		comment = &c
	}
	var userID *int64
	if u := r.URL.Query().Get("user_id"); u != "" {
		id, err := strconv.ParseInt(u, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid user_id")
			return
		}
		userID = &id
	}

	result, err := h.watchlist.Remove(r.Context(), incidentID, comment, userID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("incident_id", incidentID).
		Int("removal_kind", int(result.Kind)).
		Msg("Watchlist remove via API")
	respondData(w, http.StatusOK, result)
}

// AnalystOverride records the analyst ruling on a pending reentry incident.
//
// Method: POST
// Path: /api/v1/watchlist/analyst
func (h *Handler) AnalystOverride(w http.ResponseWriter, r *http.Request) {
	var req AnalystOverrideRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.watchlist.AnalystOverride(r.Context(), req.IncidentUUID, *req.Watchlisted, req.Comment, req.UserID); err != nil {
		respondAppError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("incident_uuid", req.IncidentUUID).
		Bool("watchlisted", *req.Watchlisted).
		Msg("Analyst override via API")
	respondData(w, http.StatusOK, map[string]any{
		"incident_uuid": req.IncidentUUID,
		"watchlisted":   *req.Watchlisted,
	})
}

// HardwareSync replays the delivery log for one branch so downstream
// hardware can repair mirror drift. The window is clamped server-side to
// the configured lookback.
//
// Method: POST
// Path: /api/v1/watchlist/hardware-sync
func (h *Handler) HardwareSync(w http.ResponseWriter, r *http.Request) {
	var req HardwareSyncRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.replayer.Replay(r.Context(), req.CompanyUUID, req.BranchUUID, time.Duration(req.WindowSeconds)*time.Second)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("company_uuid", req.CompanyUUID).
		Str("branch_uuid", req.BranchUUID).
		Int("adds", len(result.Add)).
		Int("removes", len(result.Remove)).
		Msg("Hardware sync replay")
	respondJSON(w, http.StatusOK, &Response{
		Status: "success",
		Data:   result,
		Metadata: Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// MirrorRepush rebuilds and re-pushes the mirror document for a
// watchlisted incident.
//
// Method: POST
// Path: /api/v1/watchlist/mirror/{incidentID}
func (h *Handler) MirrorRepush(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "mirror propagation is disabled")
		return
	}

	incidentID, err := urlParamInt64(r, "incidentID")
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	entry, err := h.db.GetEntryByIncident(r.Context(), nil, incidentID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	h.mirror.Push(r.Context(), entry.ID)
	respondData(w, http.StatusAccepted, map[string]any{
		"incident_id": incidentID,
		"entry_id":    entry.ID,
	})
}

// IncidentDetail returns one incident with its audit trail.
//
// Method: GET
// Path: /api/v1/incidents/{incidentID}
func (h *Handler) IncidentDetail(w http.ResponseWriter, r *http.Request) {
	incidentID, err := urlParamInt64(r, "incidentID")
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	inc, err := h.db.GetIncidentByID(r.Context(), nil, incidentID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	audit, err := h.db.ListIncidentAudit(r.Context(), incidentID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"incident": inc,
		"audit":    audit,
	})
}
