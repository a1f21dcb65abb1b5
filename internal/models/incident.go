// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package models defines data structures used throughout Watchgate.
// These models represent incidents, customers, watchlist entries, audit
// trail rows and the wire events exchanged with the detection pipeline.
package models

import "time"

// IncidentType classifies how an incident was detected.
type IncidentType int16

const (
	// IncidentTypeCustomerTheft is a theft attributed to a known customer record.
	IncidentTypeCustomerTheft IncidentType = 0
	// IncidentTypeReentry is a return visit by a previously watchlisted subject.
	IncidentTypeReentry IncidentType = 1
	// IncidentTypeEscape is a theft where the subject left before intervention.
	IncidentTypeEscape IncidentType = 2
	// IncidentTypeStopped is a theft stopped in store.
	IncidentTypeStopped IncidentType = 3
)

// IncidentStatus is the review status of an incident.
//
// The numeric values are part of the wire contract with the detection
// pipeline and the branch hardware; do not renumber.
type IncidentStatus int16

const (
	// StatusNone means the incident has not been reviewed.
	StatusNone IncidentStatus = 0
	// StatusWatchlisted means the incident is on the watchlist.
	StatusWatchlisted IncidentStatus = 1
	// StatusEscape marks the incident as an escape theft.
	StatusEscape IncidentStatus = 2
	// StatusStopped marks the incident as a stopped theft.
	StatusStopped IncidentStatus = 3
	// StatusNoAction closes the incident without action. Comments supplied
	// with a NoAction transition are discarded.
	StatusNoAction IncidentStatus = 6
)

// Valid reports whether s is a recognized review status.
func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusNone, StatusWatchlisted, StatusEscape, StatusStopped, StatusNoAction:
		return true
	}
	return false
}

// Validity is the analyst's judgement of a detection.
type Validity int16

const (
	ValidityInvalid  Validity = 0
	ValidityValid    Validity = 1
	ValidityDoubtful Validity = 2
)

// Incident is the system-of-record row for a detected theft incident.
//
// Key fields:
//   - IncidentUUID: external identifier assigned by the detection pipeline;
//     the only identifier branch hardware and operators ever see.
//   - IncidentType: detection classification (see IncidentType constants).
//   - Status: review status; transitions are driven by the watchlist service.
//   - IsWatchlisted: derived flag kept in lockstep with watchlist entries.
//   - AnalystWatchlisted: tri-state analyst override. nil means no analyst
//     has ruled; reentry incidents start pending (true) awaiting confirmation.
//   - PreviousIncidentID/CustomerID: reentry linkage. A reentry incident has
//     at least one of the two set.
//
// JSON serialization uses omitempty for optional pointer fields.
type Incident struct {
	ID           int64  `json:"id"`
	IncidentUUID string `json:"incident_uuid"`

	CompanyID int64  `json:"company_id"`
	BranchID  int64  `json:"branch_id"`
	CameraID  int64  `json:"camera_id"`
	Name      string `json:"name"`

	IncidentType IncidentType   `json:"incident_type"`
	Status       IncidentStatus `json:"status"`

	IsWatchlisted      bool  `json:"is_watchlisted"`
	AnalystWatchlisted *bool `json:"analyst_watchlisted,omitempty"`

	// Reentry linkage
	PreviousIncidentID *int64 `json:"previous_incident_id,omitempty"`
	CustomerID         *int64 `json:"customer_id,omitempty"`

	Validity   *Validity `json:"validity,omitempty"`
	MatchScore *float64  `json:"match_score,omitempty"`
	VisitCount int       `json:"visit_count"`

	Comments *string `json:"comments,omitempty"`
	Response *string `json:"response,omitempty"`

	PhotoURL     string `json:"photo_url"`
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url"`

	IncidentTime *time.Time `json:"incident_time,omitempty"`
	LoggedTime   *time.Time `json:"logged_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy *int64    `json:"updated_by,omitempty"`

	IsTest bool `json:"is_test"`
}

// IsReentry reports whether the incident is a reentry detection.
func (i *Incident) IsReentry() bool {
	return i.IncidentType == IncidentTypeReentry
}
