// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package reconcile replays the watchlist delivery log for branch hardware
// that was offline. The delivery log is append-only and written before every
// mirror operation, so replaying rows newer than the device's last contact
// reconstructs exactly what the mirror did in the meantime.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/mirror"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/resolver"
)

// RemovePair identifies a watchlist document the device should delete.
// Exactly one of the two UUIDs is set.
type RemovePair struct {
	IncidentUUID string `json:"incident_uuid,omitempty"`
	CustomerUUID string `json:"customer_uuid,omitempty"`
}

// Result is the ordered outcome of a delivery-log replay.
type Result struct {
	Add    []models.WatchlistDocument `json:"add"`
	Remove []RemovePair               `json:"remove"`
}

// Replayer rebuilds mirror payloads from the delivery log.
type Replayer struct {
	db       *database.DB
	res      *resolver.Resolver
	prop     *mirror.Propagator
	lookback time.Duration
}

// NewReplayer wires a Replayer. The lookback bounds how far back a replay
// may scan regardless of what the caller asks for.
func NewReplayer(db *database.DB, res *resolver.Resolver, prop *mirror.Propagator, lookback time.Duration) *Replayer {
	if lookback <= 0 {
		lookback = time.Hour
	}
	return &Replayer{db: db, res: res, prop: prop, lookback: lookback}
}

// Replay resolves the branch, loads delivery rows newer than now-window and
// re-derives the add documents. Add rows whose watchlist entry has since
// been removed are skipped; the matching remove row later in the log covers
// them. Remove rows are reported as UUID pairs even when the entry is gone,
// since the incident and customer rows outlive their entries.
func (r *Replayer) Replay(ctx context.Context, companyUUID, branchUUID string, window time.Duration) (*Result, error) {
	if window <= 0 || window > r.lookback {
		window = r.lookback
	}

	companyID, branchID, err := r.res.CompanyBranch(ctx, companyUUID, branchUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch %s for replay: %w", branchUUID, err)
	}

	since := time.Now().UTC().Add(-window)
	rows, err := r.db.DeliveriesSince(ctx, companyID, branchID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery log for branch %d: %w", branchID, err)
	}

	result := &Result{
		Add:    []models.WatchlistDocument{},
		Remove: []RemovePair{},
	}
	for i := range rows {
		rec := &rows[i]
		switch rec.Action {
		case models.DeliveryAdd:
			doc, ok, err := r.replayAdd(ctx, rec)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Add = append(result.Add, *doc)
			}
		case models.DeliveryRemove:
			pair, ok, err := r.replayRemove(ctx, rec)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Remove = append(result.Remove, pair)
			}
		default:
			logging.Ctx(ctx).Warn().
				Int64("delivery_id", rec.ID).
				Int16("action", int16(rec.Action)).
				Msg("skipping delivery row with unknown action")
		}
	}

	metrics.ReplayRequests.Inc()
	logging.Ctx(ctx).Info().
		Str("branch_uuid", branchUUID).
		Dur("window", window).
		Int("adds", len(result.Add)).
		Int("removes", len(result.Remove)).
		Msg("replayed delivery log")
	return result, nil
}

// replayAdd re-derives the mirror document for an add row. A vanished entry
// is not an error: the subject was removed after this row was written.
func (r *Replayer) replayAdd(ctx context.Context, rec *models.DeliveryRecord) (*models.WatchlistDocument, bool, error) {
	if rec.WatchlistEntryID == nil {
		logging.Ctx(ctx).Warn().Int64("delivery_id", rec.ID).Msg("add row without entry id")
		return nil, false, nil
	}
	entry, err := r.db.GetEntryByID(ctx, nil, *rec.WatchlistEntryID)
	if apperr.IsNotFound(err) {
		logging.Ctx(ctx).Debug().
			Int64("delivery_id", rec.ID).
			Int64("entry_id", *rec.WatchlistEntryID).
			Msg("skipping add row, entry removed since delivery")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load entry %d for replay: %w", *rec.WatchlistEntryID, err)
	}

	doc, _, _, err := r.prop.Document(ctx, entry)
	if err != nil {
		return nil, false, fmt.Errorf("failed to rebuild document for entry %d: %w", entry.ID, err)
	}
	return doc, true, nil
}

// replayRemove maps a remove row back to the UUID pair the device keys on.
func (r *Replayer) replayRemove(ctx context.Context, rec *models.DeliveryRecord) (RemovePair, bool, error) {
	switch {
	case rec.IncidentID != nil:
		inc, err := r.db.GetIncidentByID(ctx, nil, *rec.IncidentID)
		if err != nil {
			return RemovePair{}, false, fmt.Errorf("failed to load incident %d for replay: %w", *rec.IncidentID, err)
		}
		return RemovePair{IncidentUUID: inc.IncidentUUID}, true, nil
	case rec.CustomerID != nil:
		cust, err := r.db.GetCustomerByID(ctx, nil, *rec.CustomerID)
		if err != nil {
			return RemovePair{}, false, fmt.Errorf("failed to load customer %d for replay: %w", *rec.CustomerID, err)
		}
		return RemovePair{CustomerUUID: cust.CustomerUUID}, true, nil
	default:
		logging.Ctx(ctx).Warn().Int64("delivery_id", rec.ID).Msg("remove row without subject")
		return RemovePair{}, false, nil
	}
}
