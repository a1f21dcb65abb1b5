// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package directory talks to the external directory service that owns the
// canonical company/branch/camera registry. Watchgate never stores those
// mappings itself; every detection event carries external UUIDs that must be
// resolved to internal numeric ids before an incident can be persisted.
//
// All lookups go through the Directory interface so callers can be tested
// against the in-memory Stub. The production Client wraps every call in a
// circuit breaker (see breaker.go) because a slow or dead directory must not
// stall event ingestion.
package directory

import "context"

// Camera is a registered camera as known to the directory service.
type Camera struct {
	ID         int64  `json:"id"`
	CameraUUID string `json:"camera_uuid"`
	BranchID   int64  `json:"branch_id"`
	Name       string `json:"name,omitempty"`
}

// Branch holds the directory's view of a branch, used when building
// denormalized watchlist documents for branch mirrors.
type Branch struct {
	ID         int64  `json:"id"`
	BranchUUID string `json:"branch_uuid"`
	Name       string `json:"name"`
	Timezone   string `json:"timezone"`
}

// Directory resolves external identifiers against the directory service.
//
// All methods are safe for concurrent use.
type Directory interface {
	// CompanyBranchIDs resolves a company/branch UUID pair to internal ids.
	CompanyBranchIDs(ctx context.Context, companyUUID, branchUUID string) (companyID, branchID int64, err error)

	// CameraByUUID looks up a camera by its external UUID.
	CameraByUUID(ctx context.Context, cameraUUID string) (*Camera, error)

	// CreateCamera registers a camera that the directory has not seen before.
	CreateCamera(ctx context.Context, cameraUUID string, branchID int64) (*Camera, error)

	// BranchInfo returns the branch record for an internal branch id.
	BranchInfo(ctx context.Context, branchID int64) (*Branch, error)

	// CompanyUUID maps an internal company id back to its external UUID.
	CompanyUUID(ctx context.Context, companyID int64) (string, error)
}
