// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/logging"
)

// Response is the envelope for every JSON body the API returns.
type Response struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Error    *APIError `json:"error,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// APIError carries a machine-readable code alongside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata is attached to every response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// sanitizeLogValue replaces control characters so request-supplied strings
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func respondJSON(w http.ResponseWriter, status int, response *Response) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &Response{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &Response{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now()},
		Error:    &APIError{Code: code, Message: message},
	})
}

// respondAppError maps the error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an internal error; its detail is logged but not
// echoed to the caller.
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperr.IsNotFound(err):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case apperr.IsBadRequest(err):
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case apperr.IsConflict(err):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	case apperr.IsUnavailable(err):
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		logging.CtxErr(r.Context(), err).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Msg("Unhandled API error")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
