package repository

import (
	"context"

	mongotx "reservo/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ReservationsCollectionName = "Reservations"
	ProposalsCollectionName    = "Change_proposals"
	RoomGuardsCollectionName   = "Room_guards"
)

// MongoStore is the production backend. Transactions need a replica set.
type MongoStore struct {
	client       *mongo.Client
	txManager    mongotx.TransactionManager
	reservations *mongoReservationRepository
	proposals    *mongoProposalRepository
}

func NewMongoStore(client *mongo.Client, databaseName string, timeouts Timeouts) *MongoStore {
	db := client.Database(databaseName)
	timeouts = timeouts.withDefaults()
	return &MongoStore{
		client:    client,
		txManager: mongotx.NewTransactionManager(client),
		reservations: &mongoReservationRepository{
			collection: db.Collection(ReservationsCollectionName),
			guards:     db.Collection(RoomGuardsCollectionName),
			timeouts:   timeouts,
		},
		proposals: &mongoProposalRepository{
			collection: db.Collection(ProposalsCollectionName),
			timeouts:   timeouts,
		},
	}
}

func (s *MongoStore) Reservations() ReservationRepository { return s.reservations }

func (s *MongoStore) Proposals() ProposalRepository { return s.proposals }

func (s *MongoStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txManager.ExecuteTransaction(ctx, fn)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

var _ Store = (*MongoStore)(nil)
