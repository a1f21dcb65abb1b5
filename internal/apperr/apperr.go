// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package apperr defines the error taxonomy shared by all Watchgate services.
//
// Services return errors wrapping one of the sentinel values below; the HTTP
// layer maps them to status codes with errors.Is. Wrap with %w so the chain
// stays inspectable:
//
//	return fmt.Errorf("incident %s: %w", id, apperr.ErrNotFound)
//
// or use the format helpers:
//
//	return apperr.NotFoundf("incident %s", id)
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure classes.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates the request is semantically invalid
	// (malformed identifiers, state transitions that are no-ops, etc.).
	ErrBadRequest = errors.New("bad request")

	// ErrConflict indicates the operation collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable indicates a dependency (directory service, mirror
	// store, message broker) could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// NotFoundf returns an error wrapping ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// BadRequestf returns an error wrapping ErrBadRequest with a formatted message.
func BadRequestf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrBadRequest)...)
}

// Conflictf returns an error wrapping ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Unavailablef returns an error wrapping ErrUnavailable with a formatted message.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnavailable)...)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsBadRequest reports whether err wraps ErrBadRequest.
func IsBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsUnavailable reports whether err wraps ErrUnavailable.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
