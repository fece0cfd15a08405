package model

import "time"

const (
	EventChangeProposed       = "change_proposed"
	EventChangeApproved       = "change_approved"
	EventChangeRejected       = "change_rejected"
	EventChangeExpired        = "change_expired"
	EventReservationCancelled = "reservation_cancelled"
)

// Event is a notification addressed to one user. RelatedID points at the
// proposal or reservation the event is about.
type Event struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id" validate:"required"`
	Message    string    `json:"message"`
	Type       string    `json:"type" validate:"required,oneof=change_proposed change_approved change_rejected change_expired reservation_cancelled"`
	RelatedID  string    `json:"related_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
