// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package models

import (
	"strings"
	"time"
)

// DetectionEvent is the wire payload published by the detection pipeline when
// a new incident is detected. All identifiers are external (UUID-keyed);
// registration resolves them to internal ids before persisting.
type DetectionEvent struct {
	IncidentUUID string `json:"incident_uuid" validate:"required,uuid4"`
	CompanyUUID  string `json:"company_uuid"  validate:"required"`
	BranchUUID   string `json:"branch_uuid"   validate:"required"`
	CameraUUID   string `json:"camera_uuid"   validate:"required"`

	Name         string       `json:"name"`
	IncidentType IncidentType `json:"incident_type" validate:"min=0,max=3"`
	Watchlisted  bool         `json:"watchlisted"`

	// Reentry linkage; either may be empty.
	CustomerUUID         string `json:"customer_uuid,omitempty"`
	PreviousIncidentUUID string `json:"previous_incident_uuid,omitempty"`

	MatchScore *float64 `json:"match_score,omitempty"`

	PhotoURL     string `json:"photo_url"`
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url"`

	// IncidentTime and LoggedTime are free-form timestamp strings from the
	// pipeline; parsing is lenient and failures leave the field null.
	IncidentTime string `json:"incident_time"`
	LoggedTime   string `json:"logged_time,omitempty"`

	IsTest bool `json:"is_test"`
}

// CustomerEvent is the wire payload for customer record upserts.
type CustomerEvent struct {
	CustomerUUID string `json:"customer_uuid" validate:"required"`
	CompanyUUID  string `json:"company_uuid"  validate:"required"`
	BranchUUID   string `json:"branch_uuid"   validate:"required"`
	CameraUUID   string `json:"camera_uuid"   validate:"required"`

	Descriptor1 string `json:"descriptor_1"`
	Descriptor2 string `json:"descriptor_2"`
	PhotoURL    string `json:"photo_url"`

	VisitCount  int    `json:"visit_count"`
	Watchlisted bool   `json:"watchlisted"`
	IsTest      bool   `json:"is_test"`
	VisitedAt   string `json:"visited_at,omitempty"`
}

// UpdateEvent is the wire payload for incident updates flowing back from
// operator apps through the pipeline: status changes, watchlist adds and
// removals keyed by the external incident identifier.
type UpdateEvent struct {
	IncidentUUID string         `json:"incident_uuid" validate:"required"`
	Status       IncidentStatus `json:"status"`
	Watchlisted  *bool          `json:"watchlisted,omitempty"`
	Comments     string         `json:"comments,omitempty"`
	UserID       *int64         `json:"user_id,omitempty"`
}

// WatchlistDocument is the denormalized payload pushed to the mirror store
// and replayed by reconciliation. Branch hardware consumes these documents
// directly, so every identifier is external.
type WatchlistDocument struct {
	IncidentUUID string `json:"incident_uuid,omitempty"`
	CustomerUUID string `json:"customer_uuid,omitempty"`
	CompanyUUID  string `json:"company_uuid"`
	BranchUUID   string `json:"branch_uuid"`

	Name        string `json:"name,omitempty"`
	Descriptor1 string `json:"descriptor_1,omitempty"`
	Descriptor2 string `json:"descriptor_2,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	VisitCount  int    `json:"visit_count"`

	// PreviousIncidentUUID links a reentry document to its origin.
	PreviousIncidentUUID string `json:"previous_incident_uuid,omitempty"`

	Watchlisted bool      `json:"watchlisted"`
	IsTest      bool      `json:"is_test,omitempty"`
	PushedAt    time.Time `json:"pushed_at"`
}

// Timestamp layouts accepted from the detection pipeline, tried in order.
const (
	eventTimeLayout     = "January 2, 2006 15:04:05"
	eventTimeAltLayout  = "2006-01-02 15:04:05"
	loggedTimeLayout    = "January 2, 2006 3:04:05 PM UTC-0700"
	loggedTimeSeparator = " at "
)

// ParseEventTime parses an incident timestamp from the pipeline.
// Two layouts are accepted; anything else yields nil rather than an error,
// because a missing timestamp must never block registration.
func ParseEventTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(eventTimeLayout, s); err == nil {
		return &t
	}
	if t, err := time.Parse(eventTimeAltLayout, s); err == nil {
		return &t
	}
	return nil
}

// ParseLoggedTime parses the human-formatted logged timestamp, which may
// embed " at " between date and time and carries an explicit UTC offset.
// Falls back to the event layouts; unparseable input yields nil.
func ParseLoggedTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	cleaned := strings.Replace(s, loggedTimeSeparator, " ", 1)
	if t, err := time.Parse(loggedTimeLayout, cleaned); err == nil {
		return &t
	}
	return ParseEventTime(cleaned)
}
