// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package ingest

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/models"
)

// Pipeline subjects.
const (
	SubjectDetected  = "incidents.detected"
	SubjectUpdated   = "incidents.updated"
	SubjectCustomers = "customers.updated"
)

// Registry registers new detections and customer records.
type Registry interface {
	Register(ctx context.Context, ev *models.DetectionEvent) (*models.Incident, error)
	RegisterCustomer(ctx context.Context, ev *models.CustomerEvent) (*models.Customer, error)
}

// Updater applies inbound incident updates.
type Updater interface {
	HandleUpdate(ctx context.Context, ev *models.UpdateEvent) (string, error)
}

// Resetter clears a mirror document's watchlist flag after a reentry
// removal. Nil disables the reset.
type Resetter interface {
	ResetIncident(ctx context.Context, inc *models.Incident)
}

// Handlers holds the message handlers the listener registers. Every handler
// returns nil so the pipeline acks: a bad message is logged to the error log
// and dropped, never redelivered.
type Handlers struct {
	db       *database.DB
	registry Registry
	updater  Updater
	resetter Resetter
}

// NewHandlers wires the handler set.
func NewHandlers(db *database.DB, registry Registry, updater Updater, resetter Resetter) *Handlers {
	return &Handlers{db: db, registry: registry, updater: updater, resetter: resetter}
}

// HandleDetected processes incidents.detected messages.
func (h *Handlers) HandleDetected(msg *message.Message) error {
	start := time.Now()
	defer func() {
		metrics.IngestHandlerDuration.WithLabelValues(SubjectDetected).Observe(time.Since(start).Seconds())
	}()
	ctx := msg.Context()

	var ev models.DetectionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		h.dropUndecodable(ctx, SubjectDetected, msg, err)
		return nil
	}

	// Register drops internally on failure; either way the message is done.
	if _, err := h.registry.Register(ctx, &ev); err != nil {
		logging.CtxErr(ctx, err).Str("incident_uuid", ev.IncidentUUID).Msg("detection registration failed")
	}
	return nil
}

// HandleCustomer processes customers.updated messages.
func (h *Handlers) HandleCustomer(msg *message.Message) error {
	start := time.Now()
	defer func() {
		metrics.IngestHandlerDuration.WithLabelValues(SubjectCustomers).Observe(time.Since(start).Seconds())
	}()
	ctx := msg.Context()

	var ev models.CustomerEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		h.dropUndecodable(ctx, SubjectCustomers, msg, err)
		return nil
	}
	if _, err := h.registry.RegisterCustomer(ctx, &ev); err != nil {
		logging.CtxErr(ctx, err).Str("customer_uuid", ev.CustomerUUID).Msg("customer registration failed")
	}
	return nil
}

// HandleUpdated processes incidents.updated messages: status changes,
// watchlist adds and removals flowing back from operator apps.
func (h *Handlers) HandleUpdated(msg *message.Message) error {
	start := time.Now()
	defer func() {
		metrics.IngestHandlerDuration.WithLabelValues(SubjectUpdated).Observe(time.Since(start).Seconds())
	}()
	ctx := msg.Context()

	var ev models.UpdateEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		h.dropUndecodable(ctx, SubjectUpdated, msg, err)
		return nil
	}
	if ev.IncidentUUID == "" {
		h.dropUndecodable(ctx, SubjectUpdated, msg, errMissingIncidentUUID)
		return nil
	}

	resetUUID, err := h.updater.HandleUpdate(ctx, &ev)
	if err != nil {
		logging.CtxErr(ctx, err).Str("incident_uuid", ev.IncidentUUID).Msg("dropping update event")
		metrics.RecordEventDrop(SubjectUpdated, "handler")
		if logErr := h.db.InsertErrorLog(ctx, ev.IncidentUUID, err.Error()); logErr != nil {
			logging.CtxErr(ctx, logErr).Msg("failed to record error log")
		}
		return nil
	}
	metrics.EventsIngested.WithLabelValues(SubjectUpdated).Inc()

	if resetUUID != "" && h.resetter != nil {
		inc, err := h.db.GetIncidentByUUID(ctx, nil, resetUUID)
		if err != nil {
			logging.CtxErr(ctx, err).Str("incident_uuid", resetUUID).Msg("mirror reset skipped, incident load failed")
			return nil
		}
		h.resetter.ResetIncident(ctx, inc)
	}
	return nil
}

var errMissingIncidentUUID = missingFieldError("incident_uuid")

type missingFieldError string

func (e missingFieldError) Error() string { return "missing required field " + string(e) }

// dropUndecodable records a message that could not even be parsed. There is
// no external identifier to key the error log on, so the message UUID
// stands in.
func (h *Handlers) dropUndecodable(ctx context.Context, subject string, msg *message.Message, cause error) {
	logging.CtxErr(ctx, cause).
		Str("subject", subject).
		Str("message_uuid", msg.UUID).
		Msg("dropping undecodable pipeline message")
	metrics.RecordEventDrop(subject, "decode")
	if err := h.db.InsertErrorLog(ctx, msg.UUID, "decode: "+cause.Error()); err != nil {
		logging.CtxErr(ctx, err).Msg("failed to record error log")
	}
}
