// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/directory"
)

func testConfig(coalesce bool) *config.ResolverConfig {
	return &config.ResolverConfig{
		CacheTTL:        time.Hour,
		CleanupInterval: time.Hour,
		Coalesce:        coalesce,
	}
}

func seededStub() *directory.Stub {
	stub := directory.NewStub()
	stub.AddCompanyBranch("comp-1", "branch-1", 11, 22)
	stub.AddCamera("cam-1", 7, 22)
	stub.AddBranch(22, "branch-1", "Downtown", "America/Chicago")
	return stub
}

func TestCompanyBranchCachesAfterFirstMiss(t *testing.T) {
	stub := seededStub()
	r := New(stub, testConfig(true))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		companyID, branchID, err := r.CompanyBranch(ctx, "comp-1", "branch-1")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if companyID != 11 || branchID != 22 {
			t.Fatalf("call %d: got %d/%d, want 11/22", i, companyID, branchID)
		}
	}

	if stub.Calls != 1 {
		t.Errorf("expected 1 directory call, got %d", stub.Calls)
	}
}

func TestCompanyBranchMissIsNotFound(t *testing.T) {
	r := New(directory.NewStub(), testConfig(true))

	_, _, err := r.CompanyBranch(context.Background(), "comp-x", "branch-x")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestCameraAutoProvision(t *testing.T) {
	stub := seededStub()
	r := New(stub, testConfig(true))
	ctx := context.Background()

	// Known camera resolves without provisioning.
	id, err := r.Camera(ctx, "cam-1", 11, 22)
	if err != nil {
		t.Fatalf("Camera failed: %v", err)
	}
	if id != 7 {
		t.Errorf("got camera id %d, want 7", id)
	}

	// Unknown camera is created in the directory and cached.
	created, err := r.Camera(ctx, "cam-new", 11, 22)
	if err != nil {
		t.Fatalf("auto-provision failed: %v", err)
	}
	if created == 0 {
		t.Fatal("expected non-zero id for provisioned camera")
	}

	callsBefore := stub.Calls
	again, err := r.Camera(ctx, "cam-new", 11, 22)
	if err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if again != created {
		t.Errorf("cached id %d differs from provisioned id %d", again, created)
	}
	if stub.Calls != callsBefore {
		t.Errorf("cached camera lookup still hit the directory")
	}
}

func TestForwardResolutionSeedsReverseKeys(t *testing.T) {
	stub := seededStub()
	r := New(stub, testConfig(true))
	ctx := context.Background()

	if _, _, err := r.CompanyBranch(ctx, "comp-1", "branch-1"); err != nil {
		t.Fatalf("CompanyBranch failed: %v", err)
	}
	callsAfterForward := stub.Calls

	uuid, err := r.CompanyUUID(ctx, 11)
	if err != nil {
		t.Fatalf("CompanyUUID failed: %v", err)
	}
	if uuid != "comp-1" {
		t.Errorf("got company uuid %q, want comp-1", uuid)
	}

	branchUUID, err := r.BranchUUID(ctx, 22)
	if err != nil {
		t.Fatalf("BranchUUID failed: %v", err)
	}
	if branchUUID != "branch-1" {
		t.Errorf("got branch uuid %q, want branch-1", branchUUID)
	}

	if stub.Calls != callsAfterForward {
		t.Errorf("reverse lookups hit the directory despite seeded cache (%d -> %d)",
			callsAfterForward, stub.Calls)
	}
}

func TestBranchInfoPopulatesAllAttributes(t *testing.T) {
	stub := seededStub()
	r := New(stub, testConfig(true))
	ctx := context.Background()

	name, err := r.BranchName(ctx, 22)
	if err != nil {
		t.Fatalf("BranchName failed: %v", err)
	}
	if name != "Downtown" {
		t.Errorf("got name %q, want Downtown", name)
	}
	callsAfterFirst := stub.Calls

	// Timezone and UUID were cached by the same BranchInfo call.
	tz, err := r.BranchTimezone(ctx, 22)
	if err != nil {
		t.Fatalf("BranchTimezone failed: %v", err)
	}
	if tz != "America/Chicago" {
		t.Errorf("got timezone %q", tz)
	}
	if _, err := r.BranchUUID(ctx, 22); err != nil {
		t.Fatalf("BranchUUID failed: %v", err)
	}
	if stub.Calls != callsAfterFirst {
		t.Errorf("branch attribute lookups hit the directory again")
	}
}

func TestCoalescedMissesMakeOneDirectoryCall(t *testing.T) {
	stub := seededStub()
	r := New(stub, testConfig(true))
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := r.CompanyBranch(ctx, "comp-1", "branch-1")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent resolution failed: %v", err)
		}
	}
	if stub.Calls != 1 {
		t.Errorf("expected exactly 1 coalesced directory call, got %d", stub.Calls)
	}
}

func TestUncoalescedMissesStillAgree(t *testing.T) {
	stub := seededStub()
	r := New(stub, testConfig(false))
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan int64, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			companyID, _, err := r.CompanyBranch(ctx, "comp-1", "branch-1")
			if err != nil {
				t.Errorf("concurrent resolution failed: %v", err)
				return
			}
			results <- companyID
		}()
	}
	wg.Wait()
	close(results)

	for id := range results {
		if id != 11 {
			t.Errorf("got company id %d, want 11", id)
		}
	}
	// Racing misses may each hit the directory; correctness only requires
	// identical answers, not a single call.
	if stub.Calls < 1 || stub.Calls > workers {
		t.Errorf("unexpected directory call count %d", stub.Calls)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	stub := directory.NewStub()
	stub.Err = apperr.Unavailablef("directory down")
	r := New(stub, testConfig(true))
	ctx := context.Background()

	if _, _, err := r.CompanyBranch(ctx, "comp-1", "branch-1"); !apperr.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	// Heal the directory; the resolver must retry rather than serve the
	// failed lookup from cache.
	stub.Err = nil
	stub.AddCompanyBranch("comp-1", "branch-1", 11, 22)

	companyID, _, err := r.CompanyBranch(ctx, "comp-1", "branch-1")
	if err != nil {
		t.Fatalf("post-recovery resolution failed: %v", err)
	}
	if companyID != 11 {
		t.Errorf("got company id %d, want 11", companyID)
	}
}
