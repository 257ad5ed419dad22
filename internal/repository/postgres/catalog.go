package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classgo/internal/domain"
)

// CatalogRepo resolves the reference data named by schedule imports.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func (r *CatalogRepo) ClassByName(ctx context.Context, name string) (*domain.Class, error) {
	const op = "postgresrepo.CatalogRepo.ClassByName"

	var c domain.Class
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, discipline_id FROM classes WHERE name = $1`,
		name,
	).Scan(&c.ID, &c.Name, &c.DisciplineID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}

func (r *CatalogRepo) InstructorByDocument(ctx context.Context, document string) (*domain.Instructor, error) {
	const op = "postgresrepo.CatalogRepo.InstructorByDocument"

	var i domain.Instructor
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, document_number, name, active FROM instructors WHERE document_number = $1`,
		document,
	).Scan(&i.ID, &i.DocumentNumber, &i.Name, &i.Active)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &i, nil
}

// SuggestInstructors returns up to limit document numbers containing
// fragment, case-insensitively.
func (r *CatalogRepo) SuggestInstructors(ctx context.Context, fragment string, limit int) ([]string, error) {
	const op = "postgresrepo.CatalogRepo.SuggestInstructors"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT document_number FROM instructors
		 WHERE document_number ILIKE '%' || $1 || '%'
		 ORDER BY document_number
		 LIMIT $2`,
		fragment, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CatalogRepo) StudioByName(ctx context.Context, name string) (*domain.Studio, error) {
	const op = "postgresrepo.CatalogRepo.StudioByName"

	s, err := scanStudio(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+studioColumns+` FROM studios WHERE name = $1`,
		name,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// SuggestStudios returns up to limit studio names containing fragment,
// case-insensitively.
func (r *CatalogRepo) SuggestStudios(ctx context.Context, fragment string, limit int) ([]string, error) {
	const op = "postgresrepo.CatalogRepo.SuggestStudios"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT name FROM studios
		 WHERE name ILIKE '%' || $1 || '%'
		 ORDER BY name
		 LIMIT $2`,
		fragment, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CatalogRepo) InstructorCertified(ctx context.Context, instructorID, disciplineID int64) (bool, error) {
	const op = "postgresrepo.CatalogRepo.InstructorCertified"

	var ok bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM instructor_disciplines
		   WHERE instructor_id = $1 AND discipline_id = $2
		 )`,
		instructorID, disciplineID,
	).Scan(&ok)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

// CountActiveSeats returns the number of active seats of a studio.
func (r *CatalogRepo) CountActiveSeats(ctx context.Context, studioID int64) (int, error) {
	const op = "postgresrepo.CatalogRepo.CountActiveSeats"

	var n int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM seats WHERE studio_id = $1 AND active`,
		studioID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}
