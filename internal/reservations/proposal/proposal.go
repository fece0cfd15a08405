// Package proposal holds the change-proposal state machine. Functions here are
// pure: they take the current records and the time, and return the next state.
// Persisting a transition is the caller's job and must be conditional on the
// proposal still being pending.
package proposal

import (
	"fmt"
	"strings"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	"reservo/pkg/model"
	"reservo/pkg/sanitizer"

	"github.com/google/uuid"
)

const (
	DefaultChangeWindow = 48 * time.Hour
	DefaultTTL          = 48 * time.Hour
)

// Policy sets the timing rules. ChangeWindow is how long before the reservation
// starts proposals stop being accepted; TTL is how long the owner has to answer.
type Policy struct {
	ChangeWindow time.Duration
	TTL          time.Duration
}

func DefaultPolicy() Policy {
	return Policy{ChangeWindow: DefaultChangeWindow, TTL: DefaultTTL}
}

type CreateInput struct {
	Reservation model.Reservation
	ProposerID  string
	New         model.Slot
}

// Create builds a pending proposal for input.Reservation. It fails with ErrTooLate
// once now reaches the reservation start minus the change window.
func Create(policy Policy, input CreateInput, now func() time.Time, idGenerator func() string) (model.ChangeProposal, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}

	proposerID := strings.TrimSpace(input.ProposerID)
	if proposerID == "" {
		return model.ChangeProposal{}, fmt.Errorf("%w: proposer id is required", reservationserrors.ErrForbidden)
	}
	if !input.Reservation.IsConfirmed() {
		return model.ChangeProposal{}, reservationserrors.ErrReservationInactive
	}

	newSlot := NormalizeSlot(input.New)
	if newSlot.RoomID == "" {
		newSlot.RoomID = input.Reservation.RoomID
	}
	if !newSlot.EndTime.After(newSlot.StartTime) {
		return model.ChangeProposal{}, reservationserrors.ErrInvalidTimeRange
	}

	createdAt := now().UTC()
	if !createdAt.Before(input.Reservation.StartTime.Add(-policy.ChangeWindow)) {
		return model.ChangeProposal{}, reservationserrors.ErrTooLate
	}

	return model.ChangeProposal{
		ID:            idGenerator(),
		ReservationID: input.Reservation.ID,
		OwnerID:       input.Reservation.OwnerID,
		ProposerID:    proposerID,
		Old:           input.Reservation.Slot(),
		New:           newSlot,
		Status:        model.ProposalPending,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(policy.TTL),
	}, nil
}

// Decide returns the status a response moves the proposal to. A response that
// arrives after the deadline yields ProposalExpired whatever approve says; the
// caller must persist that and report ErrExpired.
func Decide(p model.ChangeProposal, responderID string, approve bool, now time.Time) (string, error) {
	if strings.TrimSpace(responderID) == "" || p.OwnerID != responderID {
		return "", reservationserrors.ErrForbidden
	}
	switch p.Status {
	case model.ProposalPending:
	case model.ProposalExpired:
		return "", reservationserrors.ErrExpired
	default:
		return "", reservationserrors.ErrNotPending
	}
	if IsOverdue(p, now) {
		return model.ProposalExpired, nil
	}
	if approve {
		return model.ProposalApproved, nil
	}
	return model.ProposalRejected, nil
}

// IsOverdue reports whether a pending proposal is past its deadline.
func IsOverdue(p model.ChangeProposal, now time.Time) bool {
	return p.Status == model.ProposalPending && now.After(p.ExpiresAt)
}

// Apply records a transition on a copy of p.
func Apply(p model.ChangeProposal, status string, at time.Time) model.ChangeProposal {
	at = at.UTC()
	p.Status = status
	p.RespondedAt = &at
	return p
}

// NormalizeSlot cleans the room id and converts times to UTC millisecond
// precision, the resolution both stores keep.
func NormalizeSlot(s model.Slot) model.Slot {
	return model.Slot{
		RoomID:    sanitizer.SanitizeRoomID(s.RoomID),
		StartTime: s.StartTime.UTC().Truncate(time.Millisecond),
		EndTime:   s.EndTime.UTC().Truncate(time.Millisecond),
	}
}
