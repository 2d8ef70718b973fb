package models

import "errors"

// Error taxonomy for lifecycle and pipeline operations. Handlers map these
// to HTTP statuses; callers use errors.Is to distinguish stale-state
// conflicts from permission and input problems.
var (
	// ErrInvalidState indicates a transition attempted from the wrong status.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyReviewed indicates a conditional review update matched zero
	// rows because another reviewer's decision landed first.
	ErrAlreadyReviewed = errors.New("already reviewed")

	// ErrForbidden indicates the actor's membership role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a missing project, job, artifact, or trend.
	ErrNotFound = errors.New("not found")

	// ErrValidationFailed indicates malformed input, e.g. missing rejection
	// notes.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUpstreamFailure indicates a collaborator write failed. Side-effect
	// failures are logged and swallowed; this only surfaces when a primary
	// step of a compound operation (e.g. promotion) fails.
	ErrUpstreamFailure = errors.New("upstream failure")
)
