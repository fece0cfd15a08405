package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"reservo/internal/migrations/mongo/validators"
	"reservo/internal/reservations/lock"
	"reservo/internal/reservations/repository"
	"reservo/pkg/logger"
	"reservo/pkg/model"
)

var (
	// ReservationsIndexes backs the overlap query and, through the partial
	// unique index, refuses a second confirmed reservation with the same start.
	ReservationsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().
				SetName("uniq_room_start_confirmed").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": model.ReservationConfirmed}),
		},
		{
			Keys: bson.D{
				{Key: "room_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "start_time", Value: 1},
				{Key: "end_time", Value: 1},
			},
			Options: options.Index().SetName("room_status_window"),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().SetName("owner_start"),
		},
	}

	ChangeProposalsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reservation_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("reservation_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("status_expiry"),
		},
	}

	// ReservationLocksIndexes lets the server reap abandoned locks. The lock
	// store already treats expired documents as free, so reaping lag is harmless.
	ReservationLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("lock_ttl").SetExpireAfterSeconds(0),
		},
	}
)

type CollectionDefinition struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func Collections() []CollectionDefinition {
	return []CollectionDefinition{
		{Name: repository.ReservationsCollectionName, Indexes: ReservationsIndexes, Validator: validators.ReservationValidator},
		{Name: repository.ProposalsCollectionName, Indexes: ChangeProposalsIndexes, Validator: validators.ChangeProposalValidator},
		{Name: lock.LockCollectionName, Indexes: ReservationLocksIndexes, Validator: validators.ReservationLockValidator},
		{Name: repository.RoomGuardsCollectionName, Validator: validators.RoomGuardValidator},
	}
}

// RunMigration creates the collections, installs their validators and ensures
// every index. It is safe to run repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for _, def := range Collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	coll := db.Collection(name)
	names, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", names)
	return nil
}
