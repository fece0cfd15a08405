package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	mongotx "reservo/pkg/db/mongo"
	"reservo/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoProposalRepository struct {
	collection *mongo.Collection
	timeouts   Timeouts
}

func (r *mongoProposalRepository) Create(ctx context.Context, proposal *model.ChangeProposal) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Write)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, proposal); err != nil {
		return fmt.Errorf("failed to create change proposal: %w", err)
	}
	return nil
}

func (r *mongoProposalRepository) FindByID(ctx context.Context, id string) (*model.ChangeProposal, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	var proposal model.ChangeProposal
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&proposal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to find change proposal: %w", err)
	}
	normalizeProposal(&proposal)
	return &proposal, nil
}

func (r *mongoProposalRepository) FindByReservation(ctx context.Context, reservationID string) ([]*model.ChangeProposal, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"reservation_id": reservationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list change proposals: %w", err)
	}
	return decodeProposals(ctx, cursor)
}

func (r *mongoProposalRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.ChangeProposal, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	filter := bson.M{
		"status":     model.ProposalPending,
		"expires_at": bson.M{"$lt": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired proposals: %w", err)
	}
	return decodeProposals(ctx, cursor)
}

func (r *mongoProposalRepository) Transition(ctx context.Context, id, status string, at time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Write)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.ProposalPending}
	update := bson.M{"$set": bson.M{"status": status, "responded_at": at}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to transition change proposal: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func decodeProposals(ctx context.Context, cursor *mongo.Cursor) ([]*model.ChangeProposal, error) {
	defer cursor.Close(ctx)

	proposals := []*model.ChangeProposal{}
	if err := cursor.All(ctx, &proposals); err != nil {
		return nil, fmt.Errorf("failed to decode change proposals: %w", err)
	}
	for _, proposal := range proposals {
		normalizeProposal(proposal)
	}
	return proposals, nil
}

func normalizeProposal(p *model.ChangeProposal) {
	p.Old.StartTime = p.Old.StartTime.UTC()
	p.Old.EndTime = p.Old.EndTime.UTC()
	p.New.StartTime = p.New.StartTime.UTC()
	p.New.EndTime = p.New.EndTime.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	if p.RespondedAt != nil {
		t := p.RespondedAt.UTC()
		p.RespondedAt = &t
	}
}
