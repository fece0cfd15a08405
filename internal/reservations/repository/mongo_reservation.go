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

type mongoReservationRepository struct {
	collection *mongo.Collection
	guards     *mongo.Collection
	timeouts   Timeouts
}

type roomGuard struct {
	RoomID    string    `bson:"_id"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (r *mongoReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Write)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, reservation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return reservationserrors.ErrOverlap
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	var reservation model.Reservation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	normalizeReservation(&reservation)
	return &reservation, nil
}

func (r *mongoReservationRepository) FindOverlapping(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	filter := bson.M{
		"room_id":    roomID,
		"status":     model.ReservationConfirmed,
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	return decodeReservations(ctx, cursor)
}

func (r *mongoReservationRepository) Search(ctx context.Context, filter SearchFilter, limit int, offset int64) ([]*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, buildMongoSearch(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search reservations: %w", err)
	}
	return decodeReservations(ctx, cursor)
}

func (r *mongoReservationRepository) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Read)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildMongoSearch(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return count, nil
}

func (r *mongoReservationRepository) UpdateSlot(ctx context.Context, id string, slot model.Slot, at time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Write)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.ReservationConfirmed}
	update := bson.M{
		"$set": bson.M{
			"room_id":    slot.RoomID,
			"start_time": slot.StartTime,
			"end_time":   slot.EndTime,
			"updated_at": at,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return reservationserrors.ErrOverlap
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if result.MatchedCount == 0 {
		return reservationserrors.ErrReservationInactive
	}
	return nil
}

func (r *mongoReservationRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Write)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.ReservationConfirmed}
	update := bson.M{"$set": bson.M{"status": model.ReservationCancelled, "updated_at": at}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func buildMongoSearch(filter SearchFilter) bson.M {
	query := bson.M{}
	if filter.RoomID != "" {
		query["room_id"] = filter.RoomID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.To != nil {
		query["start_time"] = bson.M{"$lt": *filter.To}
	}
	if filter.From != nil {
		query["end_time"] = bson.M{"$gt": *filter.From}
	}
	return query
}

func decodeReservations(ctx context.Context, cursor *mongo.Cursor) ([]*model.Reservation, error) {
	defer cursor.Close(ctx)

	reservations := []*model.Reservation{}
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}
	for _, reservation := range reservations {
		normalizeReservation(reservation)
	}
	return reservations, nil
}

// BSON dates come back in local time.
func normalizeReservation(r *model.Reservation) {
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
}

// BumpRoomVersion upserts the room guard inside the caller's session. A
// concurrent transaction on the same room fails with a transient write conflict,
// which WithTransaction retries against fresh data.
func (r *mongoReservationRepository) BumpRoomVersion(ctx context.Context, roomID string, at time.Time) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.timeouts.Write)
	defer cancel()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var guard roomGuard
	err := r.guards.FindOneAndUpdate(ctx,
		bson.M{"_id": roomID},
		bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"updated_at": at}},
		opts,
	).Decode(&guard)
	if err != nil {
		// Two first-ever upserts racing on one room; the loser retries like a held lock.
		if mongo.IsDuplicateKeyError(err) {
			return 0, reservationserrors.ErrLockHeld
		}
		return 0, fmt.Errorf("failed to bump room version: %w", err)
	}
	return guard.Version, nil
}
