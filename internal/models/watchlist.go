// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package models

import "time"

// WatchlistEntry marks an incident or a customer as watchlisted.
//
// Exactly one of IncidentID/CustomerID is set. Both columns carry UNIQUE
// constraints, so registration is get-or-create and a subject can appear on
// the watchlist at most once. Removal is a hard delete.
type WatchlistEntry struct {
	ID int64 `json:"id"`

	IncidentID *int64 `json:"incident_id,omitempty"`
	CustomerID *int64 `json:"customer_id,omitempty"`

	// RelatedIncidentID records the reentry incident that caused a
	// customer-level entry, when applicable.
	RelatedIncidentID *int64 `json:"related_incident_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Kind returns "incident" or "customer" depending on which side is set.
func (e *WatchlistEntry) Kind() EntryKind {
	if e.IncidentID != nil {
		return EntryKindIncident
	}
	return EntryKindCustomer
}

// EntryKind distinguishes incident-level from customer-level watchlist entries.
type EntryKind string

const (
	EntryKindIncident EntryKind = "incident"
	EntryKindCustomer EntryKind = "customer"
)

// AuditAction is the action_type recorded on an audit row. For status
// transitions it is the numeric status itself; StatusWatchlisted doubles as
// the watchlist add/remove action.
type AuditAction int16

// Analyst audit actions occupy a separate action space.
const (
	AnalystActionWatchlisted AuditAction = 4
	AnalystActionValid       AuditAction = 5
	AnalystActionInvalid     AuditAction = 6
	AnalystActionDoubt       AuditAction = 7
	AnalystActionCustomer    AuditAction = 8
)

// AuditStatus is the outcome recorded on an audit row.
type AuditStatus int16

const (
	AuditAdded    AuditStatus = 1
	AuditRemoved  AuditStatus = 2
	AuditApproved AuditStatus = 3
	AuditDeclined AuditStatus = 4
)

// AuditRecord is one row of the incident, customer or analyst audit trail.
// SubjectID references the incident or customer depending on the table.
type AuditRecord struct {
	ID        int64       `json:"id"`
	SubjectID int64       `json:"subject_id"`
	Action    AuditAction `json:"action_type"`
	Status    AuditStatus `json:"status"`
	Comments  *string     `json:"comments,omitempty"`
	Edited    bool        `json:"edited"`
	CreatedBy *int64      `json:"created_by,omitempty"`
	UpdatedBy *int64      `json:"updated_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RemovalKind tags the outcome of a watchlist removal.
type RemovalKind int

const (
	// RemovalNotWatchlisted means nothing was removed; the subject was not
	// on the watchlist.
	RemovalNotWatchlisted RemovalKind = iota
	// RemovalIncident means an incident-level flag was cleared.
	RemovalIncident
	// RemovalCustomer means the removal fell through to the customer record.
	RemovalCustomer
)

// RemovalResult reports what a watchlist removal actually removed.
// Incident is set for RemovalIncident; CustomerID for RemovalCustomer.
type RemovalResult struct {
	Kind       RemovalKind `json:"kind"`
	Incident   *Incident   `json:"incident,omitempty"`
	CustomerID int64       `json:"customer_id,omitempty"`
}
