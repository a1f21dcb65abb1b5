// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package directory

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
)

// breakerName labels the directory breaker in metrics and logs.
const breakerName = "directory-api"

// BreakerClient wraps a Directory implementation with a circuit breaker.
//
// The directory sits on the hot ingest path: every detection event needs at
// least one resolution call on a cache miss. When the directory is down the
// breaker fails lookups fast instead of holding workers on timeouts, and the
// registrar drops the affected events (at-most-once delivery, no retry).
//
// The breaker keeps real time for its interval and timeout windows. Tests
// that need deterministic behavior should exercise the wrapped Directory
// directly or use the Stub.
type BreakerClient struct {
	inner Directory
	cb    *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerClient wraps inner with a circuit breaker configured from cfg.
func NewBreakerClient(inner Directory, cfg *config.DirectoryConfig) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0) // 0 = closed

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= failures
			if trip {
				logging.Warn().
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening directory circuit")
			}
			return trip
		},

		// Not-found answers are valid directory responses, not outages.
		// Counting them as failures would open the circuit on a burst of
		// events referencing unknown entities.
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsNotFound(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] Directory state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{inner: inner, cb: cb}
}

// execute runs fn through the breaker and normalizes rejection errors so
// callers see the same unavailable class as a plain connection failure.
func (b *BreakerClient) execute(lookup string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	metrics.RecordDirectoryCall(lookup, err)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Str("lookup", lookup).Msg("[CIRCUIT BREAKER] Directory request rejected")
			return nil, apperr.Unavailablef("directory circuit open: %v", err)
		}
		return nil, err
	}
	return result, nil
}

// castResult type-asserts a breaker result with error checking.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type companyBranchIDs struct {
	companyID int64
	branchID  int64
}

// CompanyBranchIDs resolves a company/branch UUID pair with breaker protection.
func (b *BreakerClient) CompanyBranchIDs(ctx context.Context, companyUUID, branchUUID string) (int64, int64, error) {
	result, err := b.execute("company_branch", func() (interface{}, error) {
		companyID, branchID, err := b.inner.CompanyBranchIDs(ctx, companyUUID, branchUUID)
		if err != nil {
			return nil, err
		}
		return &companyBranchIDs{companyID: companyID, branchID: branchID}, nil
	})
	ids, err := castResult[companyBranchIDs](result, err)
	if err != nil {
		return 0, 0, err
	}
	return ids.companyID, ids.branchID, nil
}

// CameraByUUID looks up a camera with breaker protection.
func (b *BreakerClient) CameraByUUID(ctx context.Context, cameraUUID string) (*Camera, error) {
	return castResult[Camera](b.execute("camera", func() (interface{}, error) {
		return b.inner.CameraByUUID(ctx, cameraUUID)
	}))
}

// CreateCamera registers a camera with breaker protection.
func (b *BreakerClient) CreateCamera(ctx context.Context, cameraUUID string, branchID int64) (*Camera, error) {
	return castResult[Camera](b.execute("create_camera", func() (interface{}, error) {
		return b.inner.CreateCamera(ctx, cameraUUID, branchID)
	}))
}

// BranchInfo returns branch details with breaker protection.
func (b *BreakerClient) BranchInfo(ctx context.Context, branchID int64) (*Branch, error) {
	return castResult[Branch](b.execute("branch", func() (interface{}, error) {
		return b.inner.BranchInfo(ctx, branchID)
	}))
}

// CompanyUUID maps an internal company id with breaker protection.
func (b *BreakerClient) CompanyUUID(ctx context.Context, companyID int64) (string, error) {
	result, err := b.execute("company_uuid", func() (interface{}, error) {
		uuid, err := b.inner.CompanyUUID(ctx, companyID)
		if err != nil {
			return nil, err
		}
		return &uuid, nil
	})
	uuid, err := castResult[string](result, err)
	if err != nil {
		return "", err
	}
	return *uuid, nil
}

var _ Directory = (*BreakerClient)(nil)
