package repository

import (
	"context"
	"time"

	"reservo/pkg/model"
)

// SearchFilter narrows a reservation search. Zero fields are ignored; From and To
// select reservations overlapping the window.
type SearchFilter struct {
	RoomID string
	Status string
	From   *time.Time
	To     *time.Time
}

type ReservationRepository interface {
	// Create inserts a reservation. A confirmed reservation colliding with the
	// (room_id, start_time) unique index yields ErrOverlap.
	Create(ctx context.Context, reservation *model.Reservation) error
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	// FindOverlapping returns confirmed reservations in roomID intersecting
	// [start, end), skipping excludeID.
	FindOverlapping(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]*model.Reservation, error)
	Search(ctx context.Context, filter SearchFilter, limit int, offset int64) ([]*model.Reservation, error)
	Count(ctx context.Context, filter SearchFilter) (int64, error)
	// UpdateSlot moves a confirmed reservation. It fails with ErrReservationInactive
	// when the reservation is no longer confirmed.
	UpdateSlot(ctx context.Context, id string, slot model.Slot, at time.Time) error
	// Cancel flips a confirmed reservation to cancelled and reports whether it did.
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
	// BumpRoomVersion writes the room's guard row and returns its new version.
	// Two transactions that both bump one room cannot both commit, which closes
	// the gap between the overlap check and the insert for different starts.
	BumpRoomVersion(ctx context.Context, roomID string, at time.Time) (int64, error)
}

type ProposalRepository interface {
	Create(ctx context.Context, proposal *model.ChangeProposal) error
	FindByID(ctx context.Context, id string) (*model.ChangeProposal, error)
	FindByReservation(ctx context.Context, reservationID string) ([]*model.ChangeProposal, error)
	// FindExpiredPending lists pending proposals whose deadline is before now, oldest first.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.ChangeProposal, error)
	// Transition moves a pending proposal to status and reports whether this
	// call won. A proposal that already left pending is never touched.
	Transition(ctx context.Context, id, status string, at time.Time) (bool, error)
}

// Store groups the repositories that must commit together.
type Store interface {
	Reservations() ReservationRepository
	Proposals() ProposalRepository
	// ExecuteTransaction runs fn atomically. Repository calls made with the ctx
	// passed to fn take part in the transaction.
	ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}

// Timeouts bound individual store operations outside a transaction.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read <= 0 {
		t.Read = 15 * time.Second
	}
	if t.Write <= 0 {
		t.Write = 15 * time.Second
	}
	return t
}
