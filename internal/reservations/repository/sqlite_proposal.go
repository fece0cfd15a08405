package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	sqlitedb "reservo/pkg/db/sqlite"
	"reservo/pkg/model"
)

const proposalColumns = `id, reservation_id, owner_id, proposer_id,
	old_room_id, old_start_time, old_end_time,
	new_room_id, new_start_time, new_end_time,
	status, created_at, expires_at, responded_at`

type sqliteProposalRepository struct {
	db *sql.DB
}

func (r *sqliteProposalRepository) Create(ctx context.Context, proposal *model.ChangeProposal) error {
	_, err := sqlitedb.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO change_proposals (`+proposalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		proposal.ID,
		proposal.ReservationID,
		proposal.OwnerID,
		proposal.ProposerID,
		proposal.Old.RoomID,
		sqlitedb.ToMillis(proposal.Old.StartTime),
		sqlitedb.ToMillis(proposal.Old.EndTime),
		proposal.New.RoomID,
		sqlitedb.ToMillis(proposal.New.StartTime),
		sqlitedb.ToMillis(proposal.New.EndTime),
		proposal.Status,
		sqlitedb.ToMillis(proposal.CreatedAt),
		sqlitedb.ToMillis(proposal.ExpiresAt),
		sqlitedb.NullMillis(proposal.RespondedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create change proposal: %w", err)
	}
	return nil
}

func (r *sqliteProposalRepository) FindByID(ctx context.Context, id string) (*model.ChangeProposal, error) {
	row := sqlitedb.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM change_proposals WHERE id = ?`, id)
	proposal, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservationserrors.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to find change proposal: %w", err)
	}
	return proposal, nil
}

func (r *sqliteProposalRepository) FindByReservation(ctx context.Context, reservationID string) ([]*model.ChangeProposal, error) {
	rows, err := sqlitedb.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM change_proposals WHERE reservation_id = ? ORDER BY created_at, id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list change proposals: %w", err)
	}
	return collectProposals(rows)
}

func (r *sqliteProposalRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.ChangeProposal, error) {
	rows, err := sqlitedb.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM change_proposals
		 WHERE status = ? AND expires_at < ?
		 ORDER BY expires_at, id LIMIT ?`,
		model.ProposalPending, sqlitedb.ToMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired proposals: %w", err)
	}
	return collectProposals(rows)
}

func (r *sqliteProposalRepository) Transition(ctx context.Context, id, status string, at time.Time) (bool, error) {
	result, err := sqlitedb.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE change_proposals SET status = ?, responded_at = ? WHERE id = ? AND status = ?`,
		status, sqlitedb.ToMillis(at), id, model.ProposalPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition change proposal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to transition change proposal: %w", err)
	}
	return affected == 1, nil
}

func scanProposal(row rowScanner) (*model.ChangeProposal, error) {
	var (
		proposal             model.ChangeProposal
		oldStart, oldEnd     int64
		newStart, newEnd     int64
		createdAt, expiresAt int64
		respondedAt          sql.NullInt64
	)
	err := row.Scan(
		&proposal.ID,
		&proposal.ReservationID,
		&proposal.OwnerID,
		&proposal.ProposerID,
		&proposal.Old.RoomID,
		&oldStart,
		&oldEnd,
		&proposal.New.RoomID,
		&newStart,
		&newEnd,
		&proposal.Status,
		&createdAt,
		&expiresAt,
		&respondedAt,
	)
	if err != nil {
		return nil, err
	}
	proposal.Old.StartTime = sqlitedb.FromMillis(oldStart)
	proposal.Old.EndTime = sqlitedb.FromMillis(oldEnd)
	proposal.New.StartTime = sqlitedb.FromMillis(newStart)
	proposal.New.EndTime = sqlitedb.FromMillis(newEnd)
	proposal.CreatedAt = sqlitedb.FromMillis(createdAt)
	proposal.ExpiresAt = sqlitedb.FromMillis(expiresAt)
	proposal.RespondedAt = sqlitedb.FromNullMillis(respondedAt)
	return &proposal, nil
}

func collectProposals(rows *sql.Rows) ([]*model.ChangeProposal, error) {
	defer rows.Close()

	proposals := []*model.ChangeProposal{}
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode change proposal: %w", err)
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate change proposals: %w", err)
	}
	return proposals, nil
}
