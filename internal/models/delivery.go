// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package models

import "time"

// DeliveryAction records whether a delivery-log row is an add or a remove.
type DeliveryAction int16

const (
	DeliveryRemove DeliveryAction = 0
	DeliveryAdd    DeliveryAction = 1
)

// DeliveryRecord is one append-only row of the watchlist delivery log.
// The log is the source of truth for reconciliation replay: branch hardware
// that was offline asks for every add/remove newer than its last contact.
type DeliveryRecord struct {
	ID     int64          `json:"id"`
	Action DeliveryAction `json:"action_type"`

	CompanyID int64 `json:"company_id"`
	BranchID  int64 `json:"branch_id"`

	IncidentID       *int64 `json:"incident_id,omitempty"`
	CustomerID       *int64 `json:"customer_id,omitempty"`
	WatchlistEntryID *int64 `json:"watchlist_entry_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ErrorLog records an ingestion or override failure keyed by the external
// incident identifier, for operator follow-up. Events that fail are dropped,
// not retried; the row is the only trace.
type ErrorLog struct {
	ID           int64     `json:"id"`
	IncidentUUID string    `json:"incident_uuid"`
	ErrorMsg     string    `json:"error_msg"`
	CreatedAt    time.Time `json:"created_at"`
}
