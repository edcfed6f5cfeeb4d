package domain

import "errors"

// Engine error taxonomy. Adapters wrap these with context; callers branch
// with errors.Is.
var (
	// ErrTransient marks a ledger fetch failure that is retried on the next
	// poll tick and never affects session status.
	ErrTransient = errors.New("transient ledger failure")

	// ErrAlreadyActive is returned when a worker for the session is already
	// running or queued, locally or on another instance.
	ErrAlreadyActive = errors.New("session already has an active worker")

	// ErrRaceLost is returned by a conditional terminal write when the stored
	// status no longer matches the expected one.
	ErrRaceLost = errors.New("session already terminal")

	// ErrSessionNotFound is returned when no session exists for an ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDispatcherClosed is returned by Submit after Shutdown has begun.
	ErrDispatcherClosed = errors.New("dispatcher is shut down")

	// ErrInvalidTransition guards against writes that break the status
	// machine (non-terminal target, missing or stray transaction hash).
	ErrInvalidTransition = errors.New("invalid session status transition")
)
