// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package directory

import (
	"context"
	"sync"

	"github.com/vigilant-labs/watchgate/internal/apperr"
)

// Stub is an in-memory Directory for tests. All maps are keyed by the
// external identifier; missing entries return not-found like the real
// service. Safe for concurrent use.
type Stub struct {
	mu sync.Mutex

	// Companies maps "companyUUID/branchUUID" to internal ids.
	Companies map[string]CompanyBranch
	Cameras   map[string]*Camera
	Branches  map[int64]*Branch
	// CompanyUUIDs maps internal company id back to its UUID.
	CompanyUUIDs map[int64]string

	// Err, when set, is returned by every call. Used to simulate outages.
	Err error

	nextCameraID int64
	Calls        int
}

// CompanyBranch pairs the internal ids for a company/branch UUID pair.
type CompanyBranch struct {
	CompanyID int64
	BranchID  int64
}

// NewStub returns an empty stub ready for population.
func NewStub() *Stub {
	return &Stub{
		Companies:    make(map[string]CompanyBranch),
		Cameras:      make(map[string]*Camera),
		Branches:     make(map[int64]*Branch),
		CompanyUUIDs: make(map[int64]string),
		nextCameraID: 1000,
	}
}

// AddCompanyBranch registers a resolvable company/branch pair.
func (s *Stub) AddCompanyBranch(companyUUID, branchUUID string, companyID, branchID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Companies[companyUUID+"/"+branchUUID] = CompanyBranch{CompanyID: companyID, BranchID: branchID}
	s.CompanyUUIDs[companyID] = companyUUID
}

// AddCamera registers a resolvable camera.
func (s *Stub) AddCamera(cameraUUID string, id, branchID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cameras[cameraUUID] = &Camera{ID: id, CameraUUID: cameraUUID, BranchID: branchID}
}

// AddBranch registers branch details for BranchInfo lookups.
func (s *Stub) AddBranch(id int64, uuid, name, timezone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Branches[id] = &Branch{ID: id, BranchUUID: uuid, Name: name, Timezone: timezone}
}

func (s *Stub) CompanyBranchIDs(_ context.Context, companyUUID, branchUUID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return 0, 0, s.Err
	}
	cb, ok := s.Companies[companyUUID+"/"+branchUUID]
	if !ok {
		return 0, 0, apperr.NotFoundf("no mapping for company %s branch %s", companyUUID, branchUUID)
	}
	return cb.CompanyID, cb.BranchID, nil
}

func (s *Stub) CameraByUUID(_ context.Context, cameraUUID string) (*Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	cam, ok := s.Cameras[cameraUUID]
	if !ok {
		return nil, apperr.NotFoundf("no camera %s", cameraUUID)
	}
	copied := *cam
	return &copied, nil
}

func (s *Stub) CreateCamera(_ context.Context, cameraUUID string, branchID int64) (*Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextCameraID++
	cam := &Camera{ID: s.nextCameraID, CameraUUID: cameraUUID, BranchID: branchID}
	s.Cameras[cameraUUID] = cam
	copied := *cam
	return &copied, nil
}

func (s *Stub) BranchInfo(_ context.Context, branchID int64) (*Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	br, ok := s.Branches[branchID]
	if !ok {
		return nil, apperr.NotFoundf("no branch %d", branchID)
	}
	copied := *br
	return &copied, nil
}

func (s *Stub) CompanyUUID(_ context.Context, companyID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return "", s.Err
	}
	uuid, ok := s.CompanyUUIDs[companyID]
	if !ok {
		return "", apperr.NotFoundf("no company %d", companyID)
	}
	return uuid, nil
}

var _ Directory = (*Stub)(nil)
