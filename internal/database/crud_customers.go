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

const customerColumns = `id, customer_uuid, company_id, branch_id, camera_id,
	descriptor_1, descriptor_2, photo_url, visit_count,
	app_watchlisted, analyst_watchlisted, is_test, visited_at, created_at`

// UpsertCustomer inserts a customer or refreshes an existing record keyed by
// customer_uuid: descriptors, photo, visit count and visit time are updated;
// watchlist flags are preserved.
func (db *DB) UpsertCustomer(ctx context.Context, ex Execer, c *models.Customer) error {
	start := time.Now()

	row := db.exec(ex).QueryRowContext(ctx, `
		INSERT INTO customers (
			customer_uuid, company_id, branch_id, camera_id,
			descriptor_1, descriptor_2, photo_url, visit_count,
			app_watchlisted, analyst_watchlisted, is_test, visited_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_uuid) DO UPDATE SET
			camera_id = excluded.camera_id,
			descriptor_1 = excluded.descriptor_1,
			descriptor_2 = excluded.descriptor_2,
			photo_url = excluded.photo_url,
			visit_count = excluded.visit_count,
			visited_at = excluded.visited_at
		RETURNING id, app_watchlisted, analyst_watchlisted, created_at`,
		c.CustomerUUID, c.CompanyID, c.BranchID, c.CameraID,
		c.Descriptor1, c.Descriptor2, c.PhotoURL, c.VisitCount,
		c.AppWatchlisted, c.AnalystWatchlisted, c.IsTest, c.VisitedAt)

	err := row.Scan(&c.ID, &c.AppWatchlisted, &c.AnalystWatchlisted, &c.CreatedAt)
	metrics.RecordDBQuery("upsert", "customers", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", c.CustomerUUID, err)
	}
	return nil
}

// GetCustomerByUUID fetches a customer by external identifier.
func (db *DB) GetCustomerByUUID(ctx context.Context, ex Execer, uuid string) (*models.Customer, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE customer_uuid = ?`, uuid)
	c, err := scanCustomer(row)
	metrics.RecordDBQuery("select", "customers", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("customer %s", uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", uuid, err)
	}
	return c, nil
}

// GetCustomerByID fetches a customer by internal id.
func (db *DB) GetCustomerByID(ctx context.Context, ex Execer, id int64) (*models.Customer, error) {
	start := time.Now()
	row := db.exec(ex).QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	metrics.RecordDBQuery("select", "customers", start, ignoreNotFound(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("customer %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %d: %w", id, err)
	}
	return c, nil
}

// SetCustomerWatchlisted flips the operator-driven watchlist flag.
func (db *DB) SetCustomerWatchlisted(ctx context.Context, ex Execer, id int64, watchlisted bool) error {
	start := time.Now()
	_, err := db.exec(ex).ExecContext(ctx,
		`UPDATE customers SET app_watchlisted = ? WHERE id = ?`, watchlisted, id)
	metrics.RecordDBQuery("update", "customers", start, err)
	if err != nil {
		return fmt.Errorf("failed to set customer %d watchlist flag: %w", id, err)
	}
	return nil
}

func scanCustomer(row *sql.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(
		&c.ID, &c.CustomerUUID, &c.CompanyID, &c.BranchID, &c.CameraID,
		&c.Descriptor1, &c.Descriptor2, &c.PhotoURL, &c.VisitCount,
		&c.AppWatchlisted, &c.AnalystWatchlisted, &c.IsTest, &c.VisitedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
