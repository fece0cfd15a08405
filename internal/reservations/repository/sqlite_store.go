package repository

import (
	"context"
	"database/sql"
	"fmt"

	"reservo/internal/reservations/repository/migrations"
	sqlitedb "reservo/pkg/db/sqlite"
)

// SQLiteStore is the embedded backend. It serialises transactions through a
// single connection, so it suits one process at a time.
type SQLiteStore struct {
	db           *sql.DB
	txManager    *sqlitedb.TransactionManager
	reservations *sqliteReservationRepository
	proposals    *sqliteProposalRepository
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(path, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("open reservation store: %w", err)
	}
	return &SQLiteStore{
		db:           db,
		txManager:    sqlitedb.NewTransactionManager(db),
		reservations: &sqliteReservationRepository{db: db},
		proposals:    &sqliteProposalRepository{db: db},
	}, nil
}

func (s *SQLiteStore) Reservations() ReservationRepository { return s.reservations }

func (s *SQLiteStore) Proposals() ProposalRepository { return s.proposals }

func (s *SQLiteStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txManager.ExecuteTransaction(ctx, fn)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
