package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type SessionRepo struct {
	pool *pgxpool.Pool
}

var sessionColumns = []string{
	"id",
	"class_id",
	"instructor_id",
	"studio_id",
	"scheduled_date",
	"starts_at",
	"ends_at",
	"max_capacity",
	"available_spots",
	"booked_spots",
	"waitlist_spots",
	"booking_opens_at",
	"booking_closes_at",
	"cancellation_deadline",
	"is_holiday",
	"status",
}

func scanSession(row pgx.Row) (*domain.ClassSession, error) {
	var s domain.ClassSession
	var status string
	if err := row.Scan(
		&s.ID,
		&s.ClassID,
		&s.InstructorID,
		&s.StudioID,
		&s.Date,
		&s.StartsAt,
		&s.EndsAt,
		&s.MaxCapacity,
		&s.Spots.Available,
		&s.Spots.Booked,
		&s.Spots.Waitlist,
		&s.BookingOpensAt,
		&s.BookingClosesAt,
		&s.CancellationDeadline,
		&s.IsHoliday,
		&status,
	); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]domain.ClassSession, error) {
	defer rows.Close()

	var out []domain.ClassSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}

	return out, rows.Err()
}

func (r *SessionRepo) GetSession(ctx context.Context, id int64) (*domain.ClassSession, error) {
	const op = "postgresrepo.SessionRepo.GetSession"

	query, args, err := psql.Select(sessionColumns...).
		From("class_schedules").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s, err := scanSession(conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// GetSessionForUpdate locks the session row. Every assignment or waitlist
// mutation takes this lock before recomputing the session counters.
func (r *SessionRepo) GetSessionForUpdate(ctx context.Context, id int64) (*domain.ClassSession, error) {
	const op = "postgresrepo.SessionRepo.GetSessionForUpdate"

	query, args, err := psql.Select(sessionColumns...).
		From("class_schedules").
		Where(squirrel.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s, err := scanSession(conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// CreateSession inserts s and returns its ID. Counters start at
// DeriveSpots(max, 0, 0) regardless of s.Spots.
func (r *SessionRepo) CreateSession(ctx context.Context, s *domain.ClassSession) (int64, error) {
	const op = "postgresrepo.SessionRepo.CreateSession"

	status := s.Status
	if status == "" {
		status = domain.SessionScheduled
	}
	spots := domain.DeriveSpots(s.MaxCapacity, 0, 0)

	var id int64
	err := conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO class_schedules(
			class_id, instructor_id, studio_id, scheduled_date, starts_at, ends_at,
			max_capacity, available_spots, booked_spots, waitlist_spots,
			booking_opens_at, booking_closes_at, cancellation_deadline, is_holiday, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		s.ClassID, s.InstructorID, s.StudioID, s.Date, s.StartsAt, s.EndsAt,
		s.MaxCapacity, spots.Available, spots.Booked, spots.Waitlist,
		s.BookingOpensAt, s.BookingClosesAt, s.CancellationDeadline, s.IsHoliday, string(status),
	).Scan(&id)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// ActiveSessionsOn returns the non-cancelled sessions scheduled on date that
// share the instructor or the studio. excludeID is skipped so a session is
// never compared against itself.
func (r *SessionRepo) ActiveSessionsOn(
	ctx context.Context,
	date time.Time,
	instructorID, studioID, excludeID int64,
) ([]domain.ClassSession, error) {
	const op = "postgresrepo.SessionRepo.ActiveSessionsOn"

	query, args, err := psql.Select(sessionColumns...).
		From("class_schedules").
		Where(squirrel.Eq{"scheduled_date": date}).
		Where(squirrel.NotEq{"status": string(domain.SessionCancelled)}).
		Where(squirrel.NotEq{"id": excludeID}).
		Where(squirrel.Or{
			squirrel.Eq{"instructor_id": instructorID},
			squirrel.Eq{"studio_id": studioID},
		}).
		OrderBy("starts_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectSessions(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *SessionRepo) UpdateSessionStatus(ctx context.Context, id int64, status domain.SessionStatus) error {
	const op = "postgresrepo.SessionRepo.UpdateSessionStatus"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE class_schedules SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SyncCounters recomputes the spot counters of a session from its assignments
// and waiting entries and persists them. Capacity beyond the seats the session
// has is never reported as available.
//
// Parameters:
//   - ctx: context carrying the transaction that mutated the session.
//   - sessionID: ID of the session to resync.
//
// Returns:
//   - domain.SpotCounters: the persisted counters.
//   - error: repository.ErrNotFound if the session does not exist.
func (r *SessionRepo) SyncCounters(ctx context.Context, sessionID int64) (domain.SpotCounters, error) {
	const op = "postgresrepo.SessionRepo.SyncCounters"

	db := conn(ctx, r.pool)

	var maxCapacity, held, open, waiting int
	err := db.QueryRow(ctx,
		`SELECT cs.max_capacity,
		        (SELECT COUNT(*) FROM class_schedule_seats css
		          WHERE css.class_schedule_id = cs.id
		            AND css.status = ANY($2)),
		        (SELECT COUNT(*) FROM class_schedule_seats css
		          WHERE css.class_schedule_id = cs.id
		            AND css.status = 'available' AND css.seat_id IS NOT NULL),
		        (SELECT COUNT(*) FROM waiting_lists wl
		          WHERE wl.class_schedule_id = cs.id
		            AND wl.status = 'waiting')
		 FROM class_schedules cs
		 WHERE cs.id = $1`,
		sessionID, statusStrings(heldStatuses),
	).Scan(&maxCapacity, &held, &open, &waiting)
	if err != nil {
		return domain.SpotCounters{}, wrapDBErr(op, err)
	}

	spots := domain.DeriveSpots(domain.SellableCapacity(maxCapacity, held, open), held, waiting)

	if _, err := db.Exec(ctx,
		`UPDATE class_schedules
		 SET available_spots = $2, booked_spots = $3, waitlist_spots = $4
		 WHERE id = $1`,
		sessionID, spots.Available, spots.Booked, spots.Waitlist,
	); err != nil {
		return domain.SpotCounters{}, wrapDBErr(op, err)
	}

	return spots, nil
}

// UpcomingSessionIDs lists non-cancelled sessions of a studio that have not
// started at now.
func (r *SessionRepo) UpcomingSessionIDs(ctx context.Context, studioID int64, now time.Time) ([]int64, error) {
	const op = "postgresrepo.SessionRepo.UpcomingSessionIDs"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id FROM class_schedules
		 WHERE studio_id = $1 AND starts_at > $2 AND status <> 'cancelled'
		 ORDER BY starts_at, id`,
		studioID, now,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

// StartedSessionsWithWaitlist lists sessions that started before now and
// still have waiting entries of users without a reserved or occupied seat.
// Entries of seat holders stay waiting, so they would otherwise match forever.
func (r *SessionRepo) StartedSessionsWithWaitlist(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	const op = "postgresrepo.SessionRepo.StartedSessionsWithWaitlist"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT cs.id FROM class_schedules cs
		 WHERE cs.starts_at <= $1
		   AND EXISTS (
		     SELECT 1 FROM waiting_lists wl
		     WHERE wl.class_schedule_id = cs.id AND wl.status = 'waiting'
		       AND NOT EXISTS (
		         SELECT 1 FROM class_schedule_seats css
		         WHERE css.class_schedule_id = cs.id AND css.user_id = wl.user_id
		           AND css.status IN ('reserved', 'occupied')
		       )
		   )
		 ORDER BY cs.starts_at, cs.id
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

// ListSessions returns sessions matching filter ordered by start time.
func (r *SessionRepo) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.ClassSession, error) {
	const op = "postgresrepo.SessionRepo.ListSessions"

	builder := psql.Select(sessionColumns...).
		From("class_schedules").
		OrderBy("starts_at", "id")

	if filter.StudioID != nil {
		builder = builder.Where(squirrel.Eq{"studio_id": *filter.StudioID})
	}
	if filter.InstructorID != nil {
		builder = builder.Where(squirrel.Eq{"instructor_id": *filter.InstructorID})
	}
	if filter.From != nil {
		builder = builder.Where(squirrel.GtOrEq{"starts_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(squirrel.Lt{"starts_at": *filter.To})
	}
	if filter.Status != nil {
		builder = builder.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectSessions(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// LockSchedule takes a transaction-scoped advisory lock on key. Callers must
// pass keys in a stable order across transactions.
func (r *SessionRepo) LockSchedule(ctx context.Context, key string) error {
	const op = "postgresrepo.SessionRepo.LockSchedule"

	if !InTx(ctx) {
		return fmt.Errorf("%s: advisory lock requires a transaction", op)
	}

	if _, err := conn(ctx, r.pool).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		key,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
