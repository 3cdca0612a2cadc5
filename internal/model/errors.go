package model

import "errors"

var (
	// ErrNotFound namespace, user, worker or job does not exist
	ErrNotFound = errors.New("not found")
	// ErrOwnershipConflict job is not assigned to the calling worker
	ErrOwnershipConflict = errors.New("job not assigned to this worker")
	// ErrWorkerInactive worker was reaped or unregistered
	ErrWorkerInactive = errors.New("worker is no longer active")
	// ErrInvalidRequest malformed request payload
	ErrInvalidRequest = errors.New("invalid request")
)
