package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	sqlitedb "reservo/pkg/db/sqlite"
	"reservo/pkg/model"
)

const reservationColumns = "id, owner_id, room_id, start_time, end_time, status, created_at, updated_at"

type sqliteReservationRepository struct {
	db *sql.DB
}

func (r *sqliteReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	_, err := sqlitedb.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reservation.ID,
		reservation.OwnerID,
		reservation.RoomID,
		sqlitedb.ToMillis(reservation.StartTime),
		sqlitedb.ToMillis(reservation.EndTime),
		reservation.Status,
		sqlitedb.ToMillis(reservation.CreatedAt),
		sqlitedb.ToMillis(reservation.UpdatedAt),
	)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return reservationserrors.ErrOverlap
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *sqliteReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	row := sqlitedb.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	reservation, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return reservation, nil
}

func (r *sqliteReservationRepository) FindOverlapping(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]*model.Reservation, error) {
	rows, err := sqlitedb.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE room_id = ? AND status = ? AND start_time < ? AND end_time > ? AND id <> ?
		 ORDER BY start_time`,
		roomID, model.ReservationConfirmed, sqlitedb.ToMillis(end), sqlitedb.ToMillis(start), excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	return collectReservations(rows)
}

func (r *sqliteReservationRepository) Search(ctx context.Context, filter SearchFilter, limit int, offset int64) ([]*model.Reservation, error) {
	where, args := buildSQLiteSearch(filter)
	args = append(args, limit, offset)
	rows, err := sqlitedb.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations`+where+` ORDER BY start_time, id LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search reservations: %w", err)
	}
	return collectReservations(rows)
}

func (r *sqliteReservationRepository) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	where, args := buildSQLiteSearch(filter)
	var count int64
	err := sqlitedb.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(1) FROM reservations`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return count, nil
}

func (r *sqliteReservationRepository) UpdateSlot(ctx context.Context, id string, slot model.Slot, at time.Time) error {
	result, err := sqlitedb.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE reservations SET room_id = ?, start_time = ?, end_time = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		slot.RoomID, sqlitedb.ToMillis(slot.StartTime), sqlitedb.ToMillis(slot.EndTime), sqlitedb.ToMillis(at),
		id, model.ReservationConfirmed,
	)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return reservationserrors.ErrOverlap
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if affected == 0 {
		return reservationserrors.ErrReservationInactive
	}
	return nil
}

func (r *sqliteReservationRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := sqlitedb.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.ReservationCancelled, sqlitedb.ToMillis(at), id, model.ReservationConfirmed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	return affected == 1, nil
}

func (r *sqliteReservationRepository) BumpRoomVersion(ctx context.Context, roomID string, at time.Time) (int64, error) {
	var version int64
	err := sqlitedb.Conn(ctx, r.db).QueryRowContext(ctx,
		`INSERT INTO room_guards (room_id, version, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT (room_id) DO UPDATE SET version = version + 1, updated_at = excluded.updated_at
		 RETURNING version`,
		roomID, sqlitedb.ToMillis(at),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to bump room version: %w", err)
	}
	return version, nil
}

func buildSQLiteSearch(filter SearchFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.RoomID != "" {
		clauses = append(clauses, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.To != nil {
		clauses = append(clauses, "start_time < ?")
		args = append(args, sqlitedb.ToMillis(*filter.To))
	}
	if filter.From != nil {
		clauses = append(clauses, "end_time > ?")
		args = append(args, sqlitedb.ToMillis(*filter.From))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		reservation                            model.Reservation
		startTime, endTime, createdAt, updated int64
	)
	err := row.Scan(
		&reservation.ID,
		&reservation.OwnerID,
		&reservation.RoomID,
		&startTime,
		&endTime,
		&reservation.Status,
		&createdAt,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	reservation.StartTime = sqlitedb.FromMillis(startTime)
	reservation.EndTime = sqlitedb.FromMillis(endTime)
	reservation.CreatedAt = sqlitedb.FromMillis(createdAt)
	reservation.UpdatedAt = sqlitedb.FromMillis(updated)
	return &reservation, nil
}

func collectReservations(rows *sql.Rows) ([]*model.Reservation, error) {
	defer rows.Close()

	reservations := []*model.Reservation{}
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode reservation: %w", err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return reservations, nil
}
