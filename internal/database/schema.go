// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context suitable for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// createTables creates all tables if they don't exist.
// The schema is consolidated: all columns are defined in the initial
// CREATE TABLE statements and new changes go through versioned migrations.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_incidents START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_customers START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_watchlist_entries START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_incident_audit START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_customer_audit START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_analyst_audit START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_delivery_log START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_error_logs START 1;`,

		// Incidents - system of record for detected theft incidents.
		// status and incident_type values are wire contract constants,
		// see internal/models.
		`CREATE TABLE IF NOT EXISTS incidents (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_incidents'),
			incident_uuid TEXT NOT NULL UNIQUE,
			company_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			camera_id BIGINT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			incident_type SMALLINT NOT NULL,
			status SMALLINT NOT NULL DEFAULT 0,
			is_watchlisted BOOLEAN NOT NULL DEFAULT FALSE,
			analyst_watchlisted BOOLEAN,
			previous_incident_id BIGINT,
			customer_id BIGINT,
			validity SMALLINT,
			match_score DOUBLE,
			visit_count INTEGER NOT NULL DEFAULT 0,
			comments TEXT,
			response TEXT,
			photo_url TEXT NOT NULL DEFAULT '',
			video_url TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			incident_time TIMESTAMP,
			logged_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_by BIGINT,
			is_test BOOLEAN NOT NULL DEFAULT FALSE
		);`,

		// Customers - recurring subject records built up across visits.
		`CREATE TABLE IF NOT EXISTS customers (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_customers'),
			customer_uuid TEXT NOT NULL UNIQUE,
			company_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			camera_id BIGINT NOT NULL,
			descriptor_1 TEXT NOT NULL DEFAULT '',
			descriptor_2 TEXT NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL DEFAULT '',
			visit_count INTEGER NOT NULL DEFAULT 0,
			app_watchlisted BOOLEAN NOT NULL DEFAULT FALSE,
			analyst_watchlisted BOOLEAN NOT NULL DEFAULT FALSE,
			is_test BOOLEAN NOT NULL DEFAULT FALSE,
			visited_at TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		// Watchlist entries - exactly one of incident_id/customer_id is set.
		// The UNIQUE constraints make registration naturally idempotent.
		`CREATE TABLE IF NOT EXISTS watchlist_entries (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_watchlist_entries'),
			incident_id BIGINT UNIQUE,
			customer_id BIGINT UNIQUE,
			related_incident_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK ((incident_id IS NULL) <> (customer_id IS NULL))
		);`,

		`CREATE TABLE IF NOT EXISTS incident_audit (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_incident_audit'),
			incident_id BIGINT NOT NULL,
			action_type SMALLINT NOT NULL,
			status SMALLINT NOT NULL,
			comments TEXT,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			created_by BIGINT,
			updated_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS customer_audit (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_customer_audit'),
			customer_id BIGINT NOT NULL,
			action_type SMALLINT NOT NULL,
			status SMALLINT NOT NULL,
			comments TEXT,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			created_by BIGINT,
			updated_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		// Analyst decisions are audited separately from the app trail.
		`CREATE TABLE IF NOT EXISTS analyst_audit (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_analyst_audit'),
			incident_id BIGINT NOT NULL,
			action_type SMALLINT NOT NULL,
			status SMALLINT NOT NULL,
			comments TEXT,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			created_by BIGINT,
			updated_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		// Append-only delivery log; reconciliation replays from here.
		`CREATE TABLE IF NOT EXISTS watchlist_delivery_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_delivery_log'),
			action_type SMALLINT NOT NULL,
			company_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			incident_id BIGINT,
			customer_id BIGINT,
			watchlist_entry_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS error_logs (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_error_logs'),
			incident_uuid TEXT NOT NULL,
			error_msg TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
}

// createIndexes creates secondary indexes.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_incidents_branch ON incidents(branch_id);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_customer ON incidents(customer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_previous ON incidents(previous_incident_id);`,
		`CREATE INDEX IF NOT EXISTS idx_customers_branch ON customers(branch_id);`,
		`CREATE INDEX IF NOT EXISTS idx_incident_audit_incident ON incident_audit(incident_id);`,
		`CREATE INDEX IF NOT EXISTS idx_customer_audit_customer ON customer_audit(customer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_analyst_audit_incident ON analyst_audit(incident_id);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_log_branch_time ON watchlist_delivery_log(branch_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_error_logs_uuid ON error_logs(incident_uuid);`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
