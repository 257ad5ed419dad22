package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

type WaitlistRepo struct {
	pool *pgxpool.Pool
}

const waitlistColumns = `id, class_schedule_id, user_id, package_id, status, created_at`

func scanWaitlistEntry(row pgx.Row) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	var status string
	if err := row.Scan(&e.ID, &e.SessionID, &e.UserID, &e.PackageID, &status, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = domain.WaitlistStatus(status)
	return &e, nil
}

// JoinWaitlist appends a waiting entry. A user can wait at most once per
// session; a second join returns repository.ErrConflict.
func (r *WaitlistRepo) JoinWaitlist(
	ctx context.Context,
	sessionID, userID int64,
	packageID *int64,
) (*domain.WaitlistEntry, error) {
	const op = "postgresrepo.WaitlistRepo.JoinWaitlist"

	e, err := scanWaitlistEntry(conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO waiting_lists (class_schedule_id, user_id, package_id, status)
		 VALUES ($1, $2, $3, 'waiting')
		 RETURNING `+waitlistColumns,
		sessionID, userID, packageID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// ListWaiting returns the waiting entries of a session in FIFO order.
func (r *WaitlistRepo) ListWaiting(ctx context.Context, sessionID int64) ([]domain.WaitlistEntry, error) {
	const op = "postgresrepo.WaitlistRepo.ListWaiting"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+waitlistColumns+`
		 FROM waiting_lists
		 WHERE class_schedule_id = $1 AND status = 'waiting'
		 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SetWaitlistStatus moves an entry from one status to another. It returns
// repository.ErrStale when the entry is no longer in status from.
func (r *WaitlistRepo) SetWaitlistStatus(ctx context.Context, id int64, from, to domain.WaitlistStatus) error {
	const op = "postgresrepo.WaitlistRepo.SetWaitlistStatus"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE waiting_lists SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrStale)
	}

	return nil
}

func (r *WaitlistRepo) ExpireWaiting(ctx context.Context, sessionID int64) (int64, error) {
	const op = "postgresrepo.WaitlistRepo.ExpireWaiting"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE waiting_lists SET status = 'expired'
		 WHERE class_schedule_id = $1 AND status = 'waiting'`,
		sessionID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
