package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrProposalNotFound = errors.New("change proposal not found")

	// ErrLockHeld means another request owns the slot lock right now.
	ErrLockHeld = errors.New("slot lock is held by another request")

	// ErrLockUnavailable means the lock store could not be reached. Callers fail closed.
	ErrLockUnavailable = errors.New("lock store unavailable")

	ErrOverlap = errors.New("reservation overlaps an existing confirmed reservation")

	ErrTooLate = errors.New("change window has closed")

	ErrExpired = errors.New("change proposal has expired")

	ErrForbidden = errors.New("caller is not allowed to perform this action")

	ErrNotPending = errors.New("change proposal is no longer pending")

	ErrReservationInactive = errors.New("reservation is not confirmed")

	ErrInvalidTimeRange = errors.New("end time must be after start time")
)
