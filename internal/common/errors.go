// Package common defines shared constants and sentinel errors used across
// the pool, verification, orchestration and batch layers. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal    = errors.New("internal error")
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidRecord = errors.New("invalid record")

	// Verification service errors.
	ErrAuthExpired          = errors.New("session token expired")
	ErrVerificationRejected = errors.New("verification rejected")
	ErrPollTimeout          = errors.New("poll timeout")
	ErrTransport            = errors.New("transport error")

	// Instrument pool errors.
	ErrResourceExhausted     = errors.New("no instrument available")
	ErrInstrumentUnavailable = errors.New("instrument unavailable")

	// State machine errors.
	ErrUnknownStatus = errors.New("unknown status")

	// Batch errors.
	ErrTaskNotFound    = errors.New("task not found")
	ErrEmptyBatch      = errors.New("empty batch")
	ErrNothingToResume = errors.New("nothing to resume")
	ErrTaskRunning     = errors.New("task still running")

	// Control API client errors.
	ErrUnavailable = errors.New("server unavailable")
)
