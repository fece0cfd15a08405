package lock

import (
	"context"
	"time"

	"reservo/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const LockCollectionName = "Reservation_locks"

// MongoStore keeps one document per held lock. A TTL index on expires_at
// removes abandoned documents, but liveness is decided by expires_at alone
// because the TTL monitor only runs once a minute.
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(LockCollectionName),
		now:        time.Now,
	}
}

// SetIfAbsent upserts a lock document whose filter only matches an expired
// lock. When a live lock exists the upsert tries to insert a second document
// with the same _id and fails with a duplicate key error, which means held.
func (s *MongoStore) SetIfAbsent(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	now := s.now().UTC()
	lock := model.ReservationLock{
		ID:        key,
		Token:     token,
		ExpiresAt: now.Add(lease),
		CreatedAt: now,
	}

	filter := bson.M{"_id": key, "expires_at": bson.M{"$lt": now}}
	update := bson.M{"$set": bson.M{
		"token":      lock.Token,
		"expires_at": lock.ExpiresAt,
		"created_at": lock.CreatedAt,
	}}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MongoStore) CompareAndDelete(ctx context.Context, key, token string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key, "token": token})
	return err
}
