package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

type StudioRepo struct {
	pool *pgxpool.Pool
}

const studioColumns = `id, name, rows, columns, capacity, addressing, active`

func scanStudio(row pgx.Row) (*domain.Studio, error) {
	var s domain.Studio
	var addressing string
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Layout.Rows,
		&s.Layout.Columns,
		&s.Layout.Capacity,
		&addressing,
		&s.Active,
	); err != nil {
		return nil, err
	}
	s.Layout.Addressing = domain.AddressingMode(addressing)
	return &s, nil
}

func (r *StudioRepo) GetStudio(ctx context.Context, id int64) (*domain.Studio, error) {
	const op = "postgresrepo.StudioRepo.GetStudio"

	s, err := scanStudio(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+studioColumns+` FROM studios WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// GetStudioForUpdate locks the studio row until the surrounding transaction
// ends. Seat regeneration takes this lock so concurrent regenerations of the
// same studio are serialized.
func (r *StudioRepo) GetStudioForUpdate(ctx context.Context, id int64) (*domain.Studio, error) {
	const op = "postgresrepo.StudioRepo.GetStudioForUpdate"

	s, err := scanStudio(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+studioColumns+` FROM studios WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

func (r *StudioRepo) UpdateStudioLayout(ctx context.Context, id int64, layout domain.Layout) error {
	const op = "postgresrepo.StudioRepo.UpdateStudioLayout"

	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE studios
		 SET rows = $2, columns = $3, capacity = $4, addressing = $5
		 WHERE id = $1`,
		id, layout.Rows, layout.Columns, layout.Capacity, string(layout.Addressing),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ReplaceSeats deletes every seat of the studio and inserts seats. Assignments
// that referenced removed seats keep their row with seat_id set to NULL.
func (r *StudioRepo) ReplaceSeats(ctx context.Context, studioID int64, seats []domain.Seat) (int64, error) {
	const op = "postgresrepo.StudioRepo.ReplaceSeats"

	db := conn(ctx, r.pool)

	if _, err := db.Exec(ctx, `DELETE FROM seats WHERE studio_id = $1`, studioID); err != nil {
		return 0, wrapDBErr(op, err)
	}

	if len(seats) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(
			`INSERT INTO seats(studio_id, row, col, number, active)
			 VALUES ($1, $2, $3, $4, $5)`,
			studioID, s.Row, s.Column, s.Number, s.Active,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return int64(len(seats)), nil
}

func (r *StudioRepo) ListSeats(ctx context.Context, studioID int64, onlyActive bool) ([]domain.Seat, error) {
	const op = "postgresrepo.StudioRepo.ListSeats"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, studio_id, row, col, number, active
		 FROM seats
		 WHERE studio_id = $1 AND (NOT $2 OR active)
		 ORDER BY row, col`,
		studioID, onlyActive,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.StudioID, &s.Row, &s.Column, &s.Number, &s.Active); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *StudioRepo) SetSeatActive(ctx context.Context, seatID int64, active bool) (*domain.Seat, error) {
	const op = "postgresrepo.StudioRepo.SetSeatActive"

	var s domain.Seat
	err := conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE seats SET active = $2
		 WHERE id = $1
		 RETURNING id, studio_id, row, col, number, active`,
		seatID, active,
	).Scan(&s.ID, &s.StudioID, &s.Row, &s.Column, &s.Number, &s.Active)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}
