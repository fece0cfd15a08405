package model

import (
	"time"
)

const (
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

type Reservation struct {
	ID        string    `json:"id" bson:"_id" validate:"required,uuid"`
	OwnerID   string    `json:"owner_id" bson:"owner_id" validate:"required,max=128"`
	RoomID    string    `json:"room_id" bson:"room_id" validate:"required,roomid"`
	StartTime time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Status    string    `json:"status" bson:"status" validate:"required,oneof=confirmed cancelled"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Slot is a room plus a half-open [StartTime, EndTime) interval. In a change
// request an empty RoomID keeps the reservation's current room.
type Slot struct {
	RoomID    string    `json:"room_id" bson:"room_id" validate:"omitempty,roomid"`
	StartTime time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
}

// ReservationRequest is the body of a booking call. The owner comes from the caller identity.
type ReservationRequest struct {
	RoomID    string    `json:"room_id" validate:"required,roomid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

func (r Reservation) Slot() Slot {
	return Slot{RoomID: r.RoomID, StartTime: r.StartTime, EndTime: r.EndTime}
}

func (r Reservation) IsConfirmed() bool {
	return r.Status == ReservationConfirmed
}

// Overlaps reports whether [start1, end1) and [start2, end2) share an instant.
// Intervals that only touch at a boundary do not overlap.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}
