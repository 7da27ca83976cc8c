package store

import "errors"

var (
	// ErrNotFound is returned when a task ID is unknown to the replica.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when a local claim loses to an existing
	// assignment, or a duplicate task ID is posted locally.
	ErrConflict = errors.New("task already claimed")
	// ErrUnauthorized is returned when the local peer is not the assignee of
	// the task it is trying to complete.
	ErrUnauthorized = errors.New("peer is not the task assignee")
)
