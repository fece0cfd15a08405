package model

import "time"

const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalRejected = "rejected"
	ProposalExpired  = "expired"
)

// ChangeProposal is an authority-initiated edit of a reservation that the owner
// must accept before ExpiresAt. Old is a snapshot taken when the proposal was made.
type ChangeProposal struct {
	ID            string     `json:"id" bson:"_id"`
	ReservationID string     `json:"reservation_id" bson:"reservation_id"`
	OwnerID       string     `json:"owner_id" bson:"owner_id"`
	ProposerID    string     `json:"proposer_id" bson:"proposer_id"`
	Old           Slot       `json:"old" bson:"old"`
	New           Slot       `json:"new" bson:"new"`
	Status        string     `json:"status" bson:"status"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at" bson:"expires_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty" bson:"responded_at,omitempty"`
}

type ProposalResponse struct {
	Approve *bool `json:"approve" validate:"required"`
}

func (p *ChangeProposal) IsPending() bool {
	return p.Status == ProposalPending
}

func IsTerminalProposalStatus(status string) bool {
	switch status {
	case ProposalApproved, ProposalRejected, ProposalExpired:
		return true
	}
	return false
}
