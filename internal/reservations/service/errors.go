package service

import (
	"context"
	"errors"

	reservationserrors "reservo/internal/reservations/errors"
	"reservo/internal/reservations/validator"
	apperrors "reservo/pkg/errors"
)

// toAppError maps domain and store errors to the API error taxonomy. The
// original error stays reachable through errors.Is.
func (s *reservationService) toAppError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return apperrors.Validation("Validation failed", verrs.Details()).WithCause(err)
	case errors.Is(err, reservationserrors.ErrLockHeld):
		return apperrors.LockConflict("The slot is being booked by another request, retry shortly").WithCause(err)
	case errors.Is(err, reservationserrors.ErrLockUnavailable):
		return apperrors.Unavailable("Lock store").WithCause(err)
	case errors.Is(err, reservationserrors.ErrOverlap):
		return apperrors.OverlapConflict("The room is already reserved for an overlapping time").WithCause(err)
	case errors.Is(err, reservationserrors.ErrNotFound):
		return apperrors.NotFound("Reservation").WithCause(err)
	case errors.Is(err, reservationserrors.ErrProposalNotFound):
		return apperrors.NotFound("Change proposal").WithCause(err)
	case errors.Is(err, reservationserrors.ErrTooLate):
		return apperrors.TooLate("Changes must be proposed before the change window closes").WithCause(err)
	case errors.Is(err, reservationserrors.ErrExpired):
		return apperrors.Expired("The change proposal has expired and the reservation was cancelled").WithCause(err)
	case errors.Is(err, reservationserrors.ErrForbidden):
		return apperrors.Forbidden("Caller is not allowed to perform this action").WithCause(err)
	case errors.Is(err, reservationserrors.ErrNotPending):
		return apperrors.Conflict("The change proposal has already been answered").WithCause(err)
	case errors.Is(err, reservationserrors.ErrReservationInactive):
		return apperrors.Conflict("The reservation is no longer confirmed").WithCause(err)
	case errors.Is(err, reservationserrors.ErrInvalidTimeRange):
		return apperrors.Validation("Validation failed", map[string]any{
			"EndTime": "end_time must be after start_time",
		}).WithCause(err)
	case errors.Is(err, context.Canceled):
		return apperrors.Timeout("Request was cancelled").WithCause(err)
	default:
		return apperrors.Unavailable("Reservation store").WithCause(err)
	}
}
