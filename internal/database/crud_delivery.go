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

// InsertDeliveryRecord appends a row to the watchlist delivery log. The row
// is written before the mirror write it describes, so replay can always
// reconstruct what the mirror should contain.
func (db *DB) InsertDeliveryRecord(ctx context.Context, ex Execer, rec *models.DeliveryRecord) error {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx, `
		INSERT INTO watchlist_delivery_log (action_type, company_id, branch_id, incident_id, customer_id, watchlist_entry_id)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`,
		rec.Action, rec.CompanyID, rec.BranchID, rec.IncidentID, rec.CustomerID, rec.WatchlistEntryID)

	err := row.Scan(&rec.ID, &rec.CreatedAt)
	metrics.RecordDBQuery("insert", "watchlist_delivery_log", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	return nil
}

// DeliveriesSince returns delivery-log rows for a branch newer than the
// given time, oldest first. Reconciliation replays these in order.
func (db *DB) DeliveriesSince(ctx context.Context, companyID, branchID int64, since time.Time) ([]models.DeliveryRecord, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, action_type, company_id, branch_id, incident_id, customer_id, watchlist_entry_id, created_at
		FROM watchlist_delivery_log
		WHERE company_id = ? AND branch_id = ? AND created_at > ?
		ORDER BY id`, companyID, branchID, since)
	metrics.RecordDBQuery("select", "watchlist_delivery_log", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery log for branch %d: %w", branchID, err)
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		var r models.DeliveryRecord
		if err := rows.Scan(&r.ID, &r.Action, &r.CompanyID, &r.BranchID,
			&r.IncidentID, &r.CustomerID, &r.WatchlistEntryID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
