// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package models

import "time"

// Customer is a recurring-subject record built up across visits.
//
// AppWatchlisted tracks the operator-driven watchlist flag; orphaned reentry
// removals (no surviving previous incident) fall through to this flag.
type Customer struct {
	ID           int64  `json:"id"`
	CustomerUUID string `json:"customer_uuid"`

	CompanyID int64 `json:"company_id"`
	BranchID  int64 `json:"branch_id"`
	CameraID  int64 `json:"camera_id"`

	Descriptor1 string `json:"descriptor_1"`
	Descriptor2 string `json:"descriptor_2"`
	PhotoURL    string `json:"photo_url"`

	VisitCount int `json:"visit_count"`

	AppWatchlisted     bool `json:"app_watchlisted"`
	AnalystWatchlisted bool `json:"analyst_watchlisted"`

	IsTest bool `json:"is_test"`

	VisitedAt *time.Time `json:"visited_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
