// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package watchlist implements the incident review state machine: status
// transitions, watchlist additions and removals, and analyst overrides.
//
// Every state-changing operation runs its row update and audit write in a
// single transaction. Mirror propagation, realtime fanout and alerting
// happen after commit and are best effort: the database is the system of
// record, downstream surfaces converge through the delivery log.
package watchlist

import (
	"context"
	"database/sql"

	"github.com/vigilant-labs/watchgate/internal/alerting"
	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/models"
)

// Mirror is the slice of the mirror propagator the service needs.
// A nil Mirror disables propagation.
type Mirror interface {
	Push(ctx context.Context, entryID int64)
	PullIncident(ctx context.Context, inc *models.Incident)
	PullCustomer(ctx context.Context, cust *models.Customer)
}

// Fanout publishes realtime watchlist changes to connected clients.
// A nil Fanout disables publishing.
type Fanout interface {
	PublishEntryAdd(ctx context.Context, entryID int64, userID *int64)
	PublishIncidentRemove(ctx context.Context, inc *models.Incident, userID *int64)
	PublishCustomerRemove(ctx context.Context, cust *models.Customer, userID *int64)
}

// Notifier raises analyst alerts. A nil Notifier disables alerting.
type Notifier interface {
	Notify(ctx context.Context, kind alerting.AlertKind, inc *models.Incident)
}

// Service drives watchlist state. Safe for concurrent use; row-level
// consistency comes from the per-operation transaction.
type Service struct {
	db       *database.DB
	mirror   Mirror
	fanout   Fanout
	notifier Notifier
}

// NewService wires the state machine. mirror, fanout and notifier may each
// be nil when the corresponding surface is disabled.
func NewService(db *database.DB, mirror Mirror, fanout Fanout, notifier Notifier) *Service {
	return &Service{db: db, mirror: mirror, fanout: fanout, notifier: notifier}
}

// UpdateStatus transitions an incident's review status. Setting the current
// status again is a silent no-op. A NoAction transition discards the
// supplied comment. The status update and its audit row commit atomically.
func (s *Service) UpdateStatus(ctx context.Context, incidentUUID string, newStatus models.IncidentStatus, comment *string, userID *int64) error {
	if !newStatus.Valid() {
		return apperr.BadRequestf("invalid status %d", newStatus)
	}

	inc, err := s.db.GetIncidentByUUID(ctx, nil, incidentUUID)
	if err != nil {
		return err
	}
	if inc.Status == newStatus {
		logging.Ctx(ctx).Debug().
			Str("incident_uuid", incidentUUID).
			Int16("status", int16(newStatus)).
			Msg("Status unchanged, skipping")
		return nil
	}

	auditComment := comment
	if newStatus == models.StatusNoAction {
		auditComment = nil
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.UpdateIncidentStatus(ctx, tx, inc.ID, newStatus, auditComment, userID); err != nil {
			return err
		}
		return s.db.InsertIncidentAudit(ctx, tx, &models.AuditRecord{
			SubjectID: inc.ID,
			Action:    models.AuditAction(newStatus),
			Status:    models.AuditAdded,
			Comments:  auditComment,
			CreatedBy: userID,
		})
	})
	if err != nil {
		return err
	}

	metrics.StatusTransitions.WithLabelValues(statusLabel(newStatus)).Inc()
	logging.Ctx(ctx).Info().
		Str("incident_uuid", incidentUUID).
		Int16("from", int16(inc.Status)).
		Int16("to", int16(newStatus)).
		Msg("Incident status changed")

	if s.notifier != nil {
		switch newStatus {
		case models.StatusEscape:
			s.notifier.Notify(ctx, alerting.AlertEscape, inc)
		case models.StatusStopped:
			s.notifier.Notify(ctx, alerting.AlertStopped, inc)
		}
	}
	return nil
}

// Add places an incident on the watchlist. Adding an already-watchlisted
// incident is a BadRequest. When status differs from the incident's current
// status a status-change audit row precedes the watchlisted one; the
// comment is consumed by whichever audit row comes first.
func (s *Service) Add(ctx context.Context, incidentID int64, status models.IncidentStatus, comment *string, userID *int64) (*models.WatchlistEntry, error) {
	return s.add(ctx, incidentID, status, comment, userID, "api")
}

func (s *Service) add(ctx context.Context, incidentID int64, status models.IncidentStatus, comment *string, userID *int64, origin string) (*models.WatchlistEntry, error) {
	inc, err := s.db.GetIncidentByID(ctx, nil, incidentID)
	if err != nil {
		return nil, err
	}
	if inc.IsWatchlisted {
		return nil, apperr.BadRequestf("incident %s is already watchlisted", inc.IncidentUUID)
	}

	var entry *models.WatchlistEntry
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		watchlistComment := comment

		if status.Valid() && status != inc.Status && status != models.StatusWatchlisted {
			if err := s.db.UpdateIncidentStatus(ctx, tx, inc.ID, status, comment, userID); err != nil {
				return err
			}
			if err := s.db.InsertIncidentAudit(ctx, tx, &models.AuditRecord{
				SubjectID: inc.ID,
				Action:    models.AuditAction(status),
				Status:    models.AuditAdded,
				Comments:  comment,
				CreatedBy: userID,
			}); err != nil {
				return err
			}
			watchlistComment = nil // consumed by the status audit
		}

		if err := s.db.SetIncidentWatchlisted(ctx, tx, inc.ID, true, userID); err != nil {
			return err
		}

		var err error
		entry, _, err = s.db.GetOrCreateIncidentEntry(ctx, tx, inc.ID)
		if err != nil {
			return err
		}

		return s.db.InsertIncidentAudit(ctx, tx, &models.AuditRecord{
			SubjectID: inc.ID,
			Action:    models.AuditAction(models.StatusWatchlisted),
			Status:    models.AuditAdded,
			Comments:  watchlistComment,
			CreatedBy: userID,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.WatchlistAdds.WithLabelValues(origin).Inc()
	logging.Ctx(ctx).Info().
		Str("incident_uuid", inc.IncidentUUID).
		Int64("entry_id", entry.ID).
		Msg("Incident watchlisted")

	if s.mirror != nil {
		s.mirror.Push(ctx, entry.ID)
	}
	if s.fanout != nil {
		s.fanout.PublishEntryAdd(ctx, entry.ID, userID)
	}
	return entry, nil
}

// Remove takes an incident off the watchlist and reports what was removed.
//
// Reentry incidents remove their origin: the previous incident's flag is
// cleared when one exists (BadRequest when that incident is not
// watchlisted); otherwise removal falls through to the linked customer
// record. Non-reentry incidents clear their own flag.
func (s *Service) Remove(ctx context.Context, incidentID int64, comment *string, userID *int64) (models.RemovalResult, error) {
	inc, err := s.db.GetIncidentByID(ctx, nil, incidentID)
	if err != nil {
		return models.RemovalResult{}, err
	}

	if inc.IsReentry() {
		switch {
		case inc.PreviousIncidentID != nil:
			return s.removeIncident(ctx, *inc.PreviousIncidentID, comment, userID)
		case inc.CustomerID != nil:
			return s.removeCustomer(ctx, *inc.CustomerID, comment, userID)
		default:
			return models.RemovalResult{Kind: models.RemovalNotWatchlisted},
				apperr.BadRequestf("reentry incident %s has no linked incident or customer", inc.IncidentUUID)
		}
	}
	return s.removeIncident(ctx, inc.ID, comment, userID)
}

func (s *Service) removeIncident(ctx context.Context, incidentID int64, comment *string, userID *int64) (models.RemovalResult, error) {
	inc, err := s.db.GetIncidentByID(ctx, nil, incidentID)
	if err != nil {
		return models.RemovalResult{}, err
	}
	if !inc.IsWatchlisted {
		return models.RemovalResult{Kind: models.RemovalNotWatchlisted},
			apperr.BadRequestf("incident %s is not watchlisted", inc.IncidentUUID)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.SetIncidentWatchlisted(ctx, tx, inc.ID, false, userID); err != nil {
			return err
		}
		entry, err := s.db.GetEntryByIncident(ctx, tx, inc.ID)
		if err == nil {
			if err := s.db.DeleteEntry(ctx, tx, entry.ID); err != nil {
				return err
			}
		} else if !apperr.IsNotFound(err) {
			return err
		}
		return s.db.InsertIncidentAudit(ctx, tx, &models.AuditRecord{
			SubjectID: inc.ID,
			Action:    models.AuditAction(models.StatusWatchlisted),
			Status:    models.AuditRemoved,
			Comments:  comment,
			CreatedBy: userID,
		})
	})
	if err != nil {
		return models.RemovalResult{}, err
	}

	metrics.WatchlistRemoves.WithLabelValues("incident").Inc()
	logging.Ctx(ctx).Info().
		Str("incident_uuid", inc.IncidentUUID).
		Msg("Incident removed from watchlist")

	if s.mirror != nil {
		s.mirror.PullIncident(ctx, inc)
	}
	if s.fanout != nil {
		s.fanout.PublishIncidentRemove(ctx, inc, userID)
	}
	return models.RemovalResult{Kind: models.RemovalIncident, Incident: inc}, nil
}

func (s *Service) removeCustomer(ctx context.Context, customerID int64, comment *string, userID *int64) (models.RemovalResult, error) {
	cust, err := s.db.GetCustomerByID(ctx, nil, customerID)
	if err != nil {
		return models.RemovalResult{}, err
	}
	if !cust.AppWatchlisted {
		return models.RemovalResult{Kind: models.RemovalNotWatchlisted},
			apperr.BadRequestf("customer %s is not watchlisted", cust.CustomerUUID)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.SetCustomerWatchlisted(ctx, tx, cust.ID, false); err != nil {
			return err
		}
		entry, err := s.db.GetEntryByCustomer(ctx, tx, cust.ID)
		if err == nil {
			if err := s.db.DeleteEntry(ctx, tx, entry.ID); err != nil {
				return err
			}
		} else if !apperr.IsNotFound(err) {
			return err
		}
		return s.db.InsertCustomerAudit(ctx, tx, &models.AuditRecord{
			SubjectID: cust.ID,
			Action:    models.AuditAction(models.StatusWatchlisted),
			Status:    models.AuditRemoved,
			Comments:  comment,
			CreatedBy: userID,
		})
	})
	if err != nil {
		return models.RemovalResult{}, err
	}

	metrics.WatchlistRemoves.WithLabelValues("customer").Inc()
	logging.Ctx(ctx).Info().
		Str("customer_uuid", cust.CustomerUUID).
		Msg("Customer removed from watchlist")

	if s.mirror != nil {
		s.mirror.PullCustomer(ctx, cust)
	}
	if s.fanout != nil {
		s.fanout.PublishCustomerRemove(ctx, cust, userID)
	}
	return models.RemovalResult{Kind: models.RemovalCustomer, CustomerID: cust.ID}, nil
}

// AnalystOverride records an analyst ruling on whether the subject belongs
// on the watchlist. Repeating the current ruling is a BadRequest. A true
// ruling runs the Add sequence, a false ruling the Remove sequence; both
// then record the override on the analyst audit trail.
func (s *Service) AnalystOverride(ctx context.Context, incidentUUID string, watchlisted bool, comment *string, userID *int64) error {
	inc, err := s.db.GetIncidentByUUID(ctx, nil, incidentUUID)
	if err != nil {
		return err
	}
	if inc.AnalystWatchlisted != nil && *inc.AnalystWatchlisted == watchlisted {
		return apperr.BadRequestf("incident %s is already in this state", incidentUUID)
	}

	if watchlisted {
		if _, err := s.add(ctx, inc.ID, inc.Status, comment, userID, "analyst"); err != nil {
			return err
		}
	} else {
		if _, err := s.Remove(ctx, inc.ID, comment, userID); err != nil {
			return err
		}
	}

	auditStatus := models.AuditDeclined
	if watchlisted {
		auditStatus = models.AuditApproved
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.SetAnalystWatchlisted(ctx, tx, inc.ID, &watchlisted, userID); err != nil {
			return err
		}
		return s.db.InsertAnalystAudit(ctx, tx, &models.AuditRecord{
			SubjectID: inc.ID,
			Action:    models.AnalystActionWatchlisted,
			Status:    auditStatus,
			Comments:  comment,
			CreatedBy: userID,
		})
	})
}

// HandleUpdate dispatches an inbound update event from the pipeline into
// the operations above. It returns the incident UUID whose mirror document
// must have its status reset, when a reentry removal displaced it.
func (s *Service) HandleUpdate(ctx context.Context, ev *models.UpdateEvent) (string, error) {
	inc, err := s.db.GetIncidentByUUID(ctx, nil, ev.IncidentUUID)
	if err != nil {
		return "", err
	}

	var comment *string
	if ev.Comments != "" {
		comment = &ev.Comments
	}

	if ev.Watchlisted != nil {
		if *ev.Watchlisted {
			if inc.IsWatchlisted {
				return "", nil // converged already
			}
			_, err := s.add(ctx, inc.ID, ev.Status, comment, ev.UserID, "ingest")
			return "", err
		}

		result, err := s.Remove(ctx, inc.ID, comment, ev.UserID)
		if err != nil {
			return "", err
		}
		// A reentry removal cleared a different subject than the incident
		// the event named; that incident's own mirror document still shows
		// the stale watchlisted state.
		if inc.IsReentry() && result.Kind != models.RemovalNotWatchlisted {
			return inc.IncidentUUID, nil
		}
		return "", nil
	}

	if ev.Status != inc.Status {
		return "", s.UpdateStatus(ctx, ev.IncidentUUID, ev.Status, comment, ev.UserID)
	}
	return "", nil
}

func statusLabel(s models.IncidentStatus) string {
	switch s {
	case models.StatusNone:
		return "none"
	case models.StatusWatchlisted:
		return "watchlisted"
	case models.StatusEscape:
		return "escape"
	case models.StatusStopped:
		return "stopped"
	case models.StatusNoAction:
		return "no_action"
	default:
		return "unknown"
	}
}
