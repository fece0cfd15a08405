package model

import "time"

// ReservationLock is the document form of an advisory slot lock, used when the
// lock store is MongoDB. ID is the lock key and Token identifies the holder.
type ReservationLock struct {
	ID        string    `bson:"_id" json:"id"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
