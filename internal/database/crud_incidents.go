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

const incidentColumns = `id, incident_uuid, company_id, branch_id, camera_id, name,
	incident_type, status, is_watchlisted, analyst_watchlisted,
	previous_incident_id, customer_id, validity, match_score, visit_count,
	comments, response, photo_url, video_url, thumbnail_url,
	incident_time, logged_time, created_at, updated_at, updated_by, is_test`

// InsertIncident persists a new incident and populates its generated id and
// timestamps. The incident_uuid UNIQUE constraint rejects duplicates.
func (db *DB) InsertIncident(ctx context.Context, ex Execer, inc *models.Incident) error {
	start := time.Now()

	row := db.exec(ex).QueryRowContext(ctx, `
		INSERT INTO incidents (
			incident_uuid, company_id, branch_id, camera_id, name,
			incident_type, status, is_watchlisted, analyst_watchlisted,
			previous_incident_id, customer_id, validity, match_score, visit_count,
			comments, response, photo_url, video_url, thumbnail_url,
			incident_time, logged_time, updated_by, is_test
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at`,
		inc.IncidentUUID, inc.CompanyID, inc.BranchID, inc.CameraID, inc.Name,
		inc.IncidentType, inc.Status, inc.IsWatchlisted, inc.AnalystWatchlisted,
		inc.PreviousIncidentID, inc.CustomerID, inc.Validity, inc.MatchScore, inc.VisitCount,
		inc.Comments, inc.Response, inc.PhotoURL, inc.VideoURL, inc.ThumbnailURL,
		inc.IncidentTime, inc.LoggedTime, inc.UpdatedBy, inc.IsTest)

	err := row.Scan(&inc.ID, &inc.CreatedAt, &inc.UpdatedAt)
	metrics.RecordDBQuery("insert", "incidents", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert incident %s: %w", inc.IncidentUUID, err)
	}
	return nil
}

// GetIncidentByUUID fetches an incident by its external identifier.
func (db *DB) GetIncidentByUUID(ctx context.Context, ex Execer, uuid string) (*models.Incident, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE incident_uuid = ?`, uuid)
	inc, err := scanIncident(row)
	metrics.RecordDBQuery("select", "incidents", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("incident %s", uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident %s: %w", uuid, err)
	}
	return inc, nil
}

// GetIncidentByID fetches an incident by internal id.
func (db *DB) GetIncidentByID(ctx context.Context, ex Execer, id int64) (*models.Incident, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	metrics.RecordDBQuery("select", "incidents", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("incident %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident %d: %w", id, err)
	}
	return inc, nil
}

// UpdateIncidentStatus sets the review status. A nil comments pointer leaves
// the existing comments untouched.
func (db *DB) UpdateIncidentStatus(ctx context.Context, ex Execer, id int64, status models.IncidentStatus, comments *string, userID *int64) error {
	start := time.Now()
	var err error
	if comments != nil {
		_, err = db.exec(ex).ExecContext(ctx, `
			UPDATE incidents
			SET status = ?, comments = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, *comments, userID, id)
	} else {
		_, err = db.exec(ex).ExecContext(ctx, `
			UPDATE incidents
			SET status = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, userID, id)
	}
	metrics.RecordDBQuery("update", "incidents", start, err)
	if err != nil {
		return fmt.Errorf("failed to update incident %d status: %w", id, err)
	}
	return nil
}

// SetIncidentWatchlisted flips the derived watchlist flag. When watchlisted,
// the status moves to StatusWatchlisted in the same statement.
func (db *DB) SetIncidentWatchlisted(ctx context.Context, ex Execer, id int64, watchlisted bool, userID *int64) error {
	start := time.Now()
	var err error
	if watchlisted {
		_, err = db.exec(ex).ExecContext(ctx, `
			UPDATE incidents
			SET is_watchlisted = TRUE, status = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, models.StatusWatchlisted, userID, id)
	} else {
		_, err = db.exec(ex).ExecContext(ctx, `
			UPDATE incidents
			SET is_watchlisted = FALSE, updated_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, userID, id)
	}
	metrics.RecordDBQuery("update", "incidents", start, err)
	if err != nil {
		return fmt.Errorf("failed to set incident %d watchlist flag: %w", id, err)
	}
	return nil
}

// SetAnalystWatchlisted records the analyst's tri-state override ruling.
func (db *DB) SetAnalystWatchlisted(ctx context.Context, ex Execer, id int64, value *bool, userID *int64) error {
	start := time.Now()
	_, err := db.exec(ex).ExecContext(ctx, `
		UPDATE incidents
		SET analyst_watchlisted = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, value, userID, id)
	metrics.RecordDBQuery("update", "incidents", start, err)
	if err != nil {
		return fmt.Errorf("failed to set incident %d analyst flag: %w", id, err)
	}
	return nil
}

// InsertErrorLog records an ingestion or override failure for follow-up.
func (db *DB) InsertErrorLog(ctx context.Context, incidentUUID, errorMsg string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO error_logs (incident_uuid, error_msg) VALUES (?, ?)`,
		incidentUUID, errorMsg)
	metrics.RecordDBQuery("insert", "error_logs", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert error log for %s: %w", incidentUUID, err)
	}
	return nil
}

// scanIncident scans a full incident row.
func scanIncident(row *sql.Row) (*models.Incident, error) {
	var inc models.Incident
	err := row.Scan(
		&inc.ID, &inc.IncidentUUID, &inc.CompanyID, &inc.BranchID, &inc.CameraID, &inc.Name,
		&inc.IncidentType, &inc.Status, &inc.IsWatchlisted, &inc.AnalystWatchlisted,
		&inc.PreviousIncidentID, &inc.CustomerID, &inc.Validity, &inc.MatchScore, &inc.VisitCount,
		&inc.Comments, &inc.Response, &inc.PhotoURL, &inc.VideoURL, &inc.ThumbnailURL,
		&inc.IncidentTime, &inc.LoggedTime, &inc.CreatedAt, &inc.UpdatedAt, &inc.UpdatedBy, &inc.IsTest,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// ignoreNotFound keeps sql.ErrNoRows out of the error metrics; a missing row
// is an expected outcome, not a query failure.
func ignoreNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
