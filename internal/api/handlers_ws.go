// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/fanout"
	"github.com/vigilant-labs/watchgate/internal/logging"
)

// closeDeadline bounds the close-frame write for rejected registrations.
func closeDeadline(cfg *config.FanoutConfig) time.Time {
	wait := 10 * time.Second
	if cfg != nil && cfg.WriteTimeout > 0 {
		wait = cfg.WriteTimeout
	}
	return time.Now().Add(wait)
}

// upgrader builds the websocket upgrader. Non-browser clients (branch
// hardware) send no Origin header and are always admitted; browser clients
// must match the configured CORS origins or the request host.
func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkWebsocketOrigin,
	}
}

func (h *Handler) checkWebsocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	for _, allowed := range h.allowed {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// WebSocketUser streams a user's fanout channel over a websocket.
//
// Method: GET
// Path: /ws?user_id={id}
func (h *Handler) WebSocketUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "user_id query parameter is required")
		return
	}
	h.serveWebsocket(w, r, fanout.SubjectUser(userID), fanout.ChannelUser)
}

// WebSocketBranch streams a branch's fanout channel over a websocket. The
// per-branch connection policy (last-connect-wins or reject) is enforced at
// hub registration.
//
// Method: GET
// Path: /ws/branches?branch_uuid={uuid}
func (h *Handler) WebSocketBranch(w http.ResponseWriter, r *http.Request) {
	branchUUID := r.URL.Query().Get("branch_uuid")
	if branchUUID == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "branch_uuid query parameter is required")
		return
	}
	h.serveWebsocket(w, r, fanout.SubjectBranch(branchUUID), fanout.ChannelBranch)
}

func (h *Handler) serveWebsocket(w http.ResponseWriter, r *http.Request, subject string, kind fanout.ChannelKind) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "realtime fanout is disabled")
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("subject", subject).Msg("Websocket upgrade failed")
		return
	}

	client := fanout.NewClient(h.hub, conn, subject, kind, h.fanoutCfg)
	if err := h.hub.Register(client); err != nil {
		logging.CtxErr(r.Context(), err).Str("subject", subject).Msg("Websocket registration rejected")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			closeDeadline(h.fanoutCfg))
		_ = conn.Close()
		return
	}
	client.Start()
}
