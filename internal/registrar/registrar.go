// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package registrar turns detection-pipeline events into incident and
// customer rows. Registration is at-most-once: any resolution or persistence
// failure logs the event to the error log and drops it, the pipeline never
// redelivers.
package registrar

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"

	"github.com/vigilant-labs/watchgate/internal/alerting"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/resolver"
	"github.com/vigilant-labs/watchgate/internal/watchlist"
)

// Mirror and Fanout are the post-commit propagation ports; nil disables.
type (
	Mirror  = watchlist.Mirror
	Fanout  = watchlist.Fanout
	Trigger = watchlist.Notifier
)

// Queue hands incidents to the analyst review pipeline.
type Queue interface {
	Enqueue(ctx context.Context, incidentID int64)
}

// Registrar registers inbound detections.
type Registrar struct {
	db       *database.DB
	res      *resolver.Resolver
	mirror   Mirror
	fanout   Fanout
	notifier Trigger
	queue    Queue
	validate *validator.Validate
}

// New wires a Registrar. Mirror, fanout, notifier, and queue may each be nil
// to disable that concern.
func New(db *database.DB, res *resolver.Resolver, mirror Mirror, fanout Fanout, notifier Trigger, queue Queue) *Registrar {
	return &Registrar{
		db:       db,
		res:      res,
		mirror:   mirror,
		fanout:   fanout,
		notifier: notifier,
		queue:    queue,
		validate: validator.New(),
	}
}

// Register validates and persists a detection event. A nil incident with a
// nil error means the event was dropped; the reason is in the error log.
func (r *Registrar) Register(ctx context.Context, ev *models.DetectionEvent) (*models.Incident, error) {
	if err := r.validate.Struct(ev); err != nil {
		return nil, r.drop(ctx, ev.IncidentUUID, "validation", err)
	}

	companyID, branchID, err := r.res.CompanyBranch(ctx, ev.CompanyUUID, ev.BranchUUID)
	if err != nil {
		return nil, r.drop(ctx, ev.IncidentUUID, "branch_resolution", err)
	}
	cameraID, err := r.res.Camera(ctx, ev.CameraUUID, companyID, branchID)
	if err != nil {
		return nil, r.drop(ctx, ev.IncidentUUID, "camera_resolution", err)
	}

	inc := &models.Incident{
		IncidentUUID: ev.IncidentUUID,
		CompanyID:    companyID,
		BranchID:     branchID,
		CameraID:     cameraID,
		Name:         ev.Name,
		IncidentType: ev.IncidentType,
		Status:       models.StatusNone,
		MatchScore:   ev.MatchScore,
		PhotoURL:     ev.PhotoURL,
		VideoURL:     ev.VideoURL,
		ThumbnailURL: ev.ThumbnailURL,
		IncidentTime: models.ParseEventTime(ev.IncidentTime),
		LoggedTime:   models.ParseLoggedTime(ev.LoggedTime),
		IsTest:       ev.IsTest,
	}

	if ev.CustomerUUID != "" {
		cust, err := r.db.GetCustomerByUUID(ctx, nil, ev.CustomerUUID)
		if err != nil {
			return nil, r.drop(ctx, ev.IncidentUUID, "customer_resolution", err)
		}
		inc.CustomerID = &cust.ID
		inc.VisitCount = cust.VisitCount
		if cust.IsTest {
			inc.IsTest = true
		}
	}
	if ev.PreviousIncidentUUID != "" {
		prev, err := r.db.GetIncidentByUUID(ctx, nil, ev.PreviousIncidentUUID)
		if err != nil {
			return nil, r.drop(ctx, ev.IncidentUUID, "previous_incident_resolution", err)
		}
		inc.PreviousIncidentID = &prev.ID
	}

	// Reentry detections await an analyst ruling.
	if inc.IsReentry() {
		pending := true
		inc.AnalystWatchlisted = &pending
	}
	if ev.Watchlisted {
		inc.IsWatchlisted = true
		inc.Status = models.StatusWatchlisted
	}

	var entry *models.WatchlistEntry
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.InsertIncident(ctx, tx, inc); err != nil {
			return err
		}
		if !ev.Watchlisted {
			return nil
		}
		var err error
		entry, _, err = r.db.GetOrCreateIncidentEntry(ctx, tx, inc.ID)
		if err != nil {
			return err
		}
		return r.db.InsertIncidentAudit(ctx, tx, &models.AuditRecord{
			SubjectID: inc.ID,
			Action:    models.AuditAction(models.StatusWatchlisted),
			Status:    models.AuditAdded,
		})
	})
	if err != nil {
		return nil, r.drop(ctx, ev.IncidentUUID, "persistence", err)
	}

	metrics.EventsIngested.WithLabelValues("incident").Inc()
	logging.Ctx(ctx).Info().
		Str("incident_uuid", inc.IncidentUUID).
		Int64("incident_id", inc.ID).
		Bool("watchlisted", ev.Watchlisted).
		Msg("registered incident")

	if ev.Watchlisted {
		metrics.WatchlistAdds.WithLabelValues("ingest").Inc()
		if r.mirror != nil {
			r.mirror.Push(ctx, entry.ID)
		}
		if r.fanout != nil {
			r.fanout.PublishEntryAdd(ctx, entry.ID, nil)
		}
		if r.notifier != nil {
			r.notifier.Notify(ctx, alerting.AlertWatchlist, inc)
		}
	} else {
		if r.notifier != nil {
			r.notifier.Notify(ctx, alerting.AlertSensitive, inc)
		}
		if r.queue != nil {
			r.queue.Enqueue(ctx, inc.ID)
		}
	}
	return inc, nil
}

// RegisterCustomer upserts a customer record from the pipeline's customer
// stream. Resolution failures drop the event like incident registration.
func (r *Registrar) RegisterCustomer(ctx context.Context, ev *models.CustomerEvent) (*models.Customer, error) {
	if err := r.validate.Struct(ev); err != nil {
		return nil, r.drop(ctx, ev.CustomerUUID, "validation", err)
	}

	companyID, branchID, err := r.res.CompanyBranch(ctx, ev.CompanyUUID, ev.BranchUUID)
	if err != nil {
		return nil, r.drop(ctx, ev.CustomerUUID, "branch_resolution", err)
	}
	cameraID, err := r.res.Camera(ctx, ev.CameraUUID, companyID, branchID)
	if err != nil {
		return nil, r.drop(ctx, ev.CustomerUUID, "camera_resolution", err)
	}

	cust := &models.Customer{
		CustomerUUID:   ev.CustomerUUID,
		CompanyID:      companyID,
		BranchID:       branchID,
		CameraID:       cameraID,
		Descriptor1:    ev.Descriptor1,
		Descriptor2:    ev.Descriptor2,
		PhotoURL:       ev.PhotoURL,
		VisitCount:     ev.VisitCount,
		AppWatchlisted: ev.Watchlisted,
		IsTest:         ev.IsTest,
		VisitedAt:      models.ParseEventTime(ev.VisitedAt),
	}
	if err := r.db.UpsertCustomer(ctx, nil, cust); err != nil {
		return nil, r.drop(ctx, ev.CustomerUUID, "persistence", err)
	}

	metrics.EventsIngested.WithLabelValues("customer").Inc()
	logging.Ctx(ctx).Info().
		Str("customer_uuid", cust.CustomerUUID).
		Int64("customer_id", cust.ID).
		Msg("registered customer")
	return cust, nil
}

// drop records a dropped event and always returns nil so handlers ack. The
// external identifier keys the error log row for later investigation.
func (r *Registrar) drop(ctx context.Context, externalUUID, reason string, cause error) error {
	logging.CtxErr(ctx, cause).
		Str("external_uuid", externalUUID).
		Str("reason", reason).
		Msg("dropping pipeline event")
	metrics.RecordEventDrop("ingest", reason)

	if err := r.db.InsertErrorLog(ctx, externalUUID, reason+": "+cause.Error()); err != nil {
		logging.CtxErr(ctx, err).Str("external_uuid", externalUUID).Msg("failed to record error log")
	}
	return nil
}
