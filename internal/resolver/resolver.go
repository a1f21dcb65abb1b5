// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package resolver maps external identifiers (company, branch, camera UUIDs)
// to internal numeric ids and back. It is a cache-aside layer over the
// directory service: hits are served from an in-process TTL cache, misses go
// to the directory and populate both the forward and the reverse key so the
// mirror propagator can translate ids back to UUIDs without a round trip.
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/directory"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
)

// Resolver caches directory lookups. Safe for concurrent use.
//
// When coalescing is enabled, concurrent misses for the same key collapse
// into a single directory request via singleflight. With coalescing off the
// misses race to the directory and last write wins, which is harmless
// because directory answers for a given key are identical.
type Resolver struct {
	dir      directory.Directory
	cache    *gocache.Cache
	coalesce bool
	group    singleflight.Group
}

// New builds a resolver over dir using the configured TTL.
func New(dir directory.Directory, cfg *config.ResolverConfig) *Resolver {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = time.Hour
	}
	return &Resolver{
		dir:      dir,
		cache:    gocache.New(ttl, cleanup),
		coalesce: cfg.Coalesce,
	}
}

// Cache key prefixes. Forward keys map UUIDs to ids, reverse keys map ids
// back to the attributes the propagator needs.
func keyCompanyBranch(companyUUID, branchUUID string) string {
	return "cb:" + companyUUID + "/" + branchUUID
}

func keyCamera(cameraUUID string) string { return "cam:" + cameraUUID }

func keyBranchUUID(branchID int64) string { return "branch-uuid:" + strconv.FormatInt(branchID, 10) }

func keyBranchName(branchID int64) string { return "branch-name:" + strconv.FormatInt(branchID, 10) }

func keyBranchTZ(branchID int64) string { return "branch-tz:" + strconv.FormatInt(branchID, 10) }

func keyCompanyUUID(companyID int64) string { return "company-uuid:" + strconv.FormatInt(companyID, 10) }

type companyBranchIDs struct {
	companyID int64
	branchID  int64
}

// lookup runs fetch behind the cache, optionally coalescing concurrent
// misses for the same key.
func (r *Resolver) lookup(key string, fetch func() (interface{}, error)) (interface{}, error) {
	if v, ok := r.cache.Get(key); ok {
		metrics.ResolverCacheHits.Inc()
		return v, nil
	}
	metrics.ResolverCacheMisses.Inc()

	if !r.coalesce {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(key, v)
		return v, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Another flight may have filled the cache while we queued.
		if v, ok := r.cache.Get(key); ok {
			return v, nil
		}
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(key, v)
		return v, nil
	})
	return v, err
}

// CompanyBranch resolves a company/branch UUID pair to internal ids. A miss
// also seeds the reverse company-uuid key.
func (r *Resolver) CompanyBranch(ctx context.Context, companyUUID, branchUUID string) (int64, int64, error) {
	v, err := r.lookup(keyCompanyBranch(companyUUID, branchUUID), func() (interface{}, error) {
		companyID, branchID, err := r.dir.CompanyBranchIDs(ctx, companyUUID, branchUUID)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(keyCompanyUUID(companyID), companyUUID)
		r.cache.SetDefault(keyBranchUUID(branchID), branchUUID)
		return companyBranchIDs{companyID: companyID, branchID: branchID}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	ids, ok := v.(companyBranchIDs)
	if !ok {
		return 0, 0, fmt.Errorf("resolver: unexpected cache value %T for company/branch", v)
	}
	return ids.companyID, ids.branchID, nil
}

// Camera resolves a camera UUID to its internal id, auto-provisioning the
// camera in the directory when it has never been seen.
func (r *Resolver) Camera(ctx context.Context, cameraUUID string, companyID, branchID int64) (int64, error) {
	v, err := r.lookup(keyCamera(cameraUUID), func() (interface{}, error) {
		cam, err := r.dir.CameraByUUID(ctx, cameraUUID)
		if err == nil {
			return cam.ID, nil
		}
		if !apperr.IsNotFound(err) {
			return nil, err
		}
		logging.Ctx(ctx).Info().
			Str("camera_uuid", cameraUUID).
			Int64("branch_id", branchID).
			Msg("Auto-provisioning unknown camera")
		created, err := r.dir.CreateCamera(ctx, cameraUUID, branchID)
		if err != nil {
			return nil, err
		}
		return created.ID, nil
	})
	if err != nil {
		return 0, err
	}
	id, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("resolver: unexpected cache value %T for camera", v)
	}
	return id, nil
}

// branchInfo fetches and caches all branch attributes in one directory call.
func (r *Resolver) branchInfo(ctx context.Context, branchID int64) (*directory.Branch, error) {
	v, err := r.lookup("branch:"+strconv.FormatInt(branchID, 10), func() (interface{}, error) {
		br, err := r.dir.BranchInfo(ctx, branchID)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(keyBranchUUID(branchID), br.BranchUUID)
		r.cache.SetDefault(keyBranchName(branchID), br.Name)
		r.cache.SetDefault(keyBranchTZ(branchID), br.Timezone)
		return br, nil
	})
	if err != nil {
		return nil, err
	}
	br, ok := v.(*directory.Branch)
	if !ok {
		return nil, fmt.Errorf("resolver: unexpected cache value %T for branch", v)
	}
	return br, nil
}

// BranchUUID maps an internal branch id back to its external UUID.
func (r *Resolver) BranchUUID(ctx context.Context, branchID int64) (string, error) {
	if v, ok := r.cache.Get(keyBranchUUID(branchID)); ok {
		metrics.ResolverCacheHits.Inc()
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	br, err := r.branchInfo(ctx, branchID)
	if err != nil {
		return "", err
	}
	return br.BranchUUID, nil
}

// BranchName returns the display name for a branch.
func (r *Resolver) BranchName(ctx context.Context, branchID int64) (string, error) {
	if v, ok := r.cache.Get(keyBranchName(branchID)); ok {
		metrics.ResolverCacheHits.Inc()
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	br, err := r.branchInfo(ctx, branchID)
	if err != nil {
		return "", err
	}
	return br.Name, nil
}

// BranchTimezone returns the IANA timezone for a branch.
func (r *Resolver) BranchTimezone(ctx context.Context, branchID int64) (string, error) {
	if v, ok := r.cache.Get(keyBranchTZ(branchID)); ok {
		metrics.ResolverCacheHits.Inc()
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	br, err := r.branchInfo(ctx, branchID)
	if err != nil {
		return "", err
	}
	return br.Timezone, nil
}

// CompanyUUID maps an internal company id back to its external UUID.
func (r *Resolver) CompanyUUID(ctx context.Context, companyID int64) (string, error) {
	v, err := r.lookup(keyCompanyUUID(companyID), func() (interface{}, error) {
		return r.dir.CompanyUUID(ctx, companyID)
	})
	if err != nil {
		return "", err
	}
	uuid, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("resolver: unexpected cache value %T for company uuid", v)
	}
	return uuid, nil
}

// Flush empties the cache. Used by tests and the admin surface.
func (r *Resolver) Flush() {
	r.cache.Flush()
}
