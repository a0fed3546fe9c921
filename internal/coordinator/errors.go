package coordinator

import "errors"

var (
	// ErrShuttingDown rejects new admissions once draining has begun.
	ErrShuttingDown = errors.New("coordinator: shutting down")

	// ErrAlreadyLoaded rejects a load for an id already in the live cache.
	ErrAlreadyLoaded = errors.New("coordinator: profile already loaded")

	// ErrDuplicateLoad rejects a load for an id with one already in flight.
	ErrDuplicateLoad = errors.New("coordinator: load already in flight")

	// ErrLoadTimeout covers both permit-wait and repository deadlines.
	ErrLoadTimeout = errors.New("coordinator: load timed out")
	ErrLoadFailure = errors.New("coordinator: load failed")

	ErrSaveTimeout = errors.New("coordinator: save timed out")
	ErrSaveFailure = errors.New("coordinator: save failed")

	// ErrValidation marks a corrupt sub-document detected on load.
	ErrValidation = errors.New("coordinator: profile validation failed")

	// ErrRepositoryUnavailable flips the health gate; individual calls are
	// not failed with it.
	ErrRepositoryUnavailable = errors.New("coordinator: repository unavailable")
)
