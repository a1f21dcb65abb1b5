// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/models"
)

const entryColumns = `id, incident_id, customer_id, related_incident_id, created_at`

// GetOrCreateIncidentEntry returns the watchlist entry for an incident,
// creating it when absent. The UNIQUE(incident_id) constraint plus
// ON CONFLICT DO NOTHING makes concurrent registration idempotent: both
// callers end up observing the same single entry.
func (db *DB) GetOrCreateIncidentEntry(ctx context.Context, ex Execer, incidentID int64) (*models.WatchlistEntry, bool, error) {
	return db.getOrCreateEntry(ctx, ex, "incident_id", incidentID, nil)
}

// GetOrCreateCustomerEntry returns the watchlist entry for a customer,
// creating it when absent. relatedIncidentID records the reentry incident
// that caused the customer-level entry, when known.
func (db *DB) GetOrCreateCustomerEntry(ctx context.Context, ex Execer, customerID int64, relatedIncidentID *int64) (*models.WatchlistEntry, bool, error) {
	return db.getOrCreateEntry(ctx, ex, "customer_id", customerID, relatedIncidentID)
}

func (db *DB) getOrCreateEntry(ctx context.Context, ex Execer, column string, subjectID int64, relatedIncidentID *int64) (*models.WatchlistEntry, bool, error) {
	q := db.exec(ex)

	start := time.Now()
	res, err := q.ExecContext(ctx,
		`INSERT INTO watchlist_entries (`+column+`, related_incident_id) VALUES (?, ?)
		 ON CONFLICT (`+column+`) DO NOTHING`,
		subjectID, relatedIncidentID)
	metrics.RecordDBQuery("insert", "watchlist_entries", start, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create watchlist entry (%s=%d): %w", column, subjectID, err)
	}

	created := false
	if affected, raErr := res.RowsAffected(); raErr == nil && affected > 0 {
		created = true
	}

	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM watchlist_entries WHERE `+column+` = ?`, subjectID)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load watchlist entry (%s=%d): %w", column, subjectID, err)
	}

	return entry, created, nil
}

// GetEntryByIncident loads the watchlist entry for an incident.
// Returns apperr.ErrNotFound when the incident is not watchlisted.
func (db *DB) GetEntryByIncident(ctx context.Context, ex Execer, incidentID int64) (*models.WatchlistEntry, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM watchlist_entries WHERE incident_id = ?`, incidentID)
	entry, err := scanEntry(row)
	metrics.RecordDBQuery("select", "watchlist_entries", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("watchlist entry for incident %d", incidentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist entry for incident %d: %w", incidentID, err)
	}
	return entry, nil
}

// GetEntryByCustomer loads the watchlist entry for a customer.
func (db *DB) GetEntryByCustomer(ctx context.Context, ex Execer, customerID int64) (*models.WatchlistEntry, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM watchlist_entries WHERE customer_id = ?`, customerID)
	entry, err := scanEntry(row)
	metrics.RecordDBQuery("select", "watchlist_entries", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("watchlist entry for customer %d", customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist entry for customer %d: %w", customerID, err)
	}
	return entry, nil
}

// GetEntryByID loads a watchlist entry by primary key.
func (db *DB) GetEntryByID(ctx context.Context, ex Execer, id int64) (*models.WatchlistEntry, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM watchlist_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	metrics.RecordDBQuery("select", "watchlist_entries", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("watchlist entry %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist entry %d: %w", id, err)
	}
	return entry, nil
}

// DeleteEntry hard-deletes a watchlist entry. Removal is permanent; the
// audit trail and delivery log carry the history.
func (db *DB) DeleteEntry(ctx context.Context, ex Execer, id int64) error {
	start := time.Now()
	_, err := db.exec(ex).ExecContext(ctx,
		`DELETE FROM watchlist_entries WHERE id = ?`, id)
	metrics.RecordDBQuery("delete", "watchlist_entries", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete watchlist entry %d: %w", id, err)
	}
	return nil
}

func scanEntry(row *sql.Row) (*models.WatchlistEntry, error) {
	var e models.WatchlistEntry
	err := row.Scan(&e.ID, &e.IncidentID, &e.CustomerID, &e.RelatedIncidentID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
