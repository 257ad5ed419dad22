package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

var heldStatuses = []domain.AssignmentStatus{
	domain.AssignmentReserved,
	domain.AssignmentOccupied,
	domain.AssignmentCompleted,
}

var releasableStatuses = []domain.AssignmentStatus{
	domain.AssignmentReserved,
	domain.AssignmentOccupied,
	domain.AssignmentBlocked,
}

type AssignmentRepo struct {
	pool *pgxpool.Pool
}

const assignmentColumns = `id, class_schedule_id, seat_id, status, user_id, reserved_at, expires_at, updated_at`

func scanAssignment(row pgx.Row) (*domain.SeatAssignment, error) {
	var a domain.SeatAssignment
	var status string
	if err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.SeatID,
		&status,
		&a.UserID,
		&a.ReservedAt,
		&a.ExpiresAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = domain.AssignmentStatus(status)
	return &a, nil
}

func (r *AssignmentRepo) GetAssignment(ctx context.Context, id int64) (*domain.SeatAssignment, error) {
	const op = "postgresrepo.AssignmentRepo.GetAssignment"

	a, err := scanAssignment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM class_schedule_seats WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

// CompareAndSet writes next over the assignment only when its current row
// satisfies guard.
//
// Parameters:
//   - ctx: request-scoped context, usually carrying a transaction.
//   - id: assignment ID.
//   - guard: allowed source statuses and optional expiry bound.
//   - next: the state to write.
//
// Returns:
//   - *domain.SeatAssignment: the updated row.
//   - error: repository.ErrStale if no row matched the guard, including when
//     the assignment does not exist.
func (r *AssignmentRepo) CompareAndSet(
	ctx context.Context,
	id int64,
	guard domain.Guard,
	next domain.AssignmentState,
) (*domain.SeatAssignment, error) {
	const op = "postgresrepo.AssignmentRepo.CompareAndSet"

	a, err := scanAssignment(conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE class_schedule_seats
		 SET status = $3, user_id = $4, reserved_at = $5, expires_at = $6, updated_at = now()
		 WHERE id = $1
		   AND status = ANY($2)
		   AND ($7::timestamptz IS NULL OR expires_at < $7)
		 RETURNING `+assignmentColumns,
		id,
		statusStrings(guard.From),
		string(next.Status),
		next.UserID,
		next.ReservedAt,
		next.ExpiresAt,
		guard.ExpiredBefore,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrStale)
		}
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

// InitAssignments creates an available assignment for every active seat of
// the session's studio. Existing assignments are left untouched.
func (r *AssignmentRepo) InitAssignments(ctx context.Context, sessionID int64) (int64, error) {
	const op = "postgresrepo.AssignmentRepo.InitAssignments"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO class_schedule_seats (class_schedule_id, seat_id, status)
		 SELECT cs.id, s.id, 'available'
		 FROM class_schedules cs
		 JOIN seats s ON s.studio_id = cs.studio_id
		 WHERE cs.id = $1 AND s.active
		 ON CONFLICT (seat_id, class_schedule_id) DO NOTHING`,
		sessionID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// PurgeOrphanedAssignments deletes available assignments whose seat was
// removed, for sessions of the studio starting after now.
func (r *AssignmentRepo) PurgeOrphanedAssignments(ctx context.Context, studioID int64, now time.Time) (int64, error) {
	const op = "postgresrepo.AssignmentRepo.PurgeOrphanedAssignments"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM class_schedule_seats css
		 USING class_schedules cs
		 WHERE css.class_schedule_id = cs.id
		   AND cs.studio_id = $1
		   AND cs.starts_at > $2
		   AND css.seat_id IS NULL
		   AND css.status = 'available'`,
		studioID, now,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// ListAssignments returns the seat map of a session. Orphaned assignments
// are listed last with zero coordinates.
func (r *AssignmentRepo) ListAssignments(ctx context.Context, sessionID int64) ([]domain.SeatAssignmentView, error) {
	const op = "postgresrepo.AssignmentRepo.ListAssignments"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT css.id, css.class_schedule_id, css.seat_id, css.status, css.user_id,
		        css.reserved_at, css.expires_at, css.updated_at,
		        COALESCE(s.row, 0), COALESCE(s.col, 0), COALESCE(s.number, 0)
		 FROM class_schedule_seats css
		 LEFT JOIN seats s ON s.id = css.seat_id
		 WHERE css.class_schedule_id = $1
		 ORDER BY s.row NULLS LAST, s.col, css.id`,
		sessionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.SeatAssignmentView
	for rows.Next() {
		var v domain.SeatAssignmentView
		var status string
		if err := rows.Scan(
			&v.ID, &v.SessionID, &v.SeatID, &status, &v.UserID,
			&v.ReservedAt, &v.ExpiresAt, &v.UpdatedAt,
			&v.Row, &v.Column, &v.Number,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		v.Status = domain.AssignmentStatus(status)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListExpiredAssignments returns up to limit reserved assignments whose
// expires_at is strictly before now, oldest first.
func (r *AssignmentRepo) ListExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]domain.SeatAssignment, error) {
	const op = "postgresrepo.AssignmentRepo.ListExpiredAssignments"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM class_schedule_seats
		 WHERE status = 'reserved' AND expires_at < $1
		 ORDER BY expires_at, id
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.SeatAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ReleaseSessionAssignments resets every reserved, occupied or blocked
// assignment of the session to available.
func (r *AssignmentRepo) ReleaseSessionAssignments(ctx context.Context, sessionID int64) (int64, error) {
	const op = "postgresrepo.AssignmentRepo.ReleaseSessionAssignments"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE class_schedule_seats
		 SET status = 'available', user_id = NULL, reserved_at = NULL, expires_at = NULL, updated_at = now()
		 WHERE class_schedule_id = $1
		   AND status = ANY($2)`,
		sessionID, statusStrings(releasableStatuses),
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// UserHoldsSeat reports whether the user has a reserved or occupied seat in
// the session.
func (r *AssignmentRepo) UserHoldsSeat(ctx context.Context, sessionID, userID int64) (bool, error) {
	const op = "postgresrepo.AssignmentRepo.UserHoldsSeat"

	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM class_schedule_seats
		   WHERE class_schedule_id = $1 AND user_id = $2
		     AND status IN ('reserved', 'occupied')
		 )`,
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// FirstAvailableAssignment returns the available assignment with the lowest
// seat number, skipping rows locked by concurrent transactions.
func (r *AssignmentRepo) FirstAvailableAssignment(ctx context.Context, sessionID int64) (*domain.SeatAssignment, error) {
	const op = "postgresrepo.AssignmentRepo.FirstAvailableAssignment"

	a, err := scanAssignment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT css.id, css.class_schedule_id, css.seat_id, css.status, css.user_id,
		        css.reserved_at, css.expires_at, css.updated_at
		 FROM class_schedule_seats css
		 JOIN seats s ON s.id = css.seat_id
		 WHERE css.class_schedule_id = $1
		   AND css.status = 'available'
		   AND s.active
		 ORDER BY s.number, css.id
		 LIMIT 1
		 FOR UPDATE OF css SKIP LOCKED`,
		sessionID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}
