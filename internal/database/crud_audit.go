// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/models"
)

// InsertIncidentAudit appends a row to the incident audit trail.
func (db *DB) InsertIncidentAudit(ctx context.Context, ex Execer, rec *models.AuditRecord) error {
	return db.insertAudit(ctx, ex, "incident_audit", "incident_id", rec)
}

// InsertCustomerAudit appends a row to the customer audit trail.
func (db *DB) InsertCustomerAudit(ctx context.Context, ex Execer, rec *models.AuditRecord) error {
	return db.insertAudit(ctx, ex, "customer_audit", "customer_id", rec)
}

// InsertAnalystAudit appends a row to the analyst decision trail, which is
// kept separate from the app-driven incident audit.
func (db *DB) InsertAnalystAudit(ctx context.Context, ex Execer, rec *models.AuditRecord) error {
	return db.insertAudit(ctx, ex, "analyst_audit", "incident_id", rec)
}

func (db *DB) insertAudit(ctx context.Context, ex Execer, table, fkColumn string, rec *models.AuditRecord) error {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx, `
		INSERT INTO `+table+` (`+fkColumn+`, action_type, status, comments, edited, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at`,
		rec.SubjectID, rec.Action, rec.Status, rec.Comments, rec.Edited, rec.CreatedBy, rec.UpdatedBy)

	err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	metrics.RecordDBQuery("insert", table, start, err)
	if err != nil {
		return fmt.Errorf("failed to insert %s row for subject %d: %w", table, rec.SubjectID, err)
	}
	return nil
}

// ListIncidentAudit returns the audit trail for an incident, oldest first.
func (db *DB) ListIncidentAudit(ctx context.Context, incidentID int64) ([]models.AuditRecord, error) {
	return db.listAudit(ctx, "incident_audit", "incident_id", incidentID)
}

// ListAnalystAudit returns the analyst trail for an incident, oldest first.
func (db *DB) ListAnalystAudit(ctx context.Context, incidentID int64) ([]models.AuditRecord, error) {
	return db.listAudit(ctx, "analyst_audit", "incident_id", incidentID)
}

// ListCustomerAudit returns the audit trail for a customer, oldest first.
func (db *DB) ListCustomerAudit(ctx context.Context, customerID int64) ([]models.AuditRecord, error) {
	return db.listAudit(ctx, "customer_audit", "customer_id", customerID)
}

func (db *DB) listAudit(ctx context.Context, table, fkColumn string, subjectID int64) ([]models.AuditRecord, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, `+fkColumn+`, action_type, status, comments, edited, created_by, updated_by, created_at, updated_at
		FROM `+table+` WHERE `+fkColumn+` = ? ORDER BY id`, subjectID)
	metrics.RecordDBQuery("select", table, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for subject %d: %w", table, subjectID, err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var r models.AuditRecord
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.Action, &r.Status, &r.Comments,
			&r.Edited, &r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
