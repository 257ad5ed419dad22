package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

func (s *Store) ClassByName(ctx context.Context, name string) (*domain.Class, error) {
	const op = "memory.Store.ClassByName"

	defer s.lock(ctx)()

	for _, c := range s.data.classes {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func (s *Store) InstructorByDocument(ctx context.Context, document string) (*domain.Instructor, error) {
	const op = "memory.Store.InstructorByDocument"

	defer s.lock(ctx)()

	for _, i := range s.data.instructors {
		if i.DocumentNumber == document {
			return &i, nil
		}
	}
	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func suggest(candidates []string, fragment string, limit int) []string {
	fragment = strings.ToLower(fragment)

	var out []string
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c), fragment) {
			out = append(out, c)
		}
	}
	sort.Strings(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) SuggestInstructors(ctx context.Context, fragment string, limit int) ([]string, error) {
	defer s.lock(ctx)()

	docs := make([]string, 0, len(s.data.instructors))
	for _, i := range s.data.instructors {
		docs = append(docs, i.DocumentNumber)
	}
	return suggest(docs, fragment, limit), nil
}

func (s *Store) StudioByName(ctx context.Context, name string) (*domain.Studio, error) {
	const op = "memory.Store.StudioByName"

	defer s.lock(ctx)()

	for _, st := range s.data.studios {
		if st.Name == name {
			return &st, nil
		}
	}
	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func (s *Store) SuggestStudios(ctx context.Context, fragment string, limit int) ([]string, error) {
	defer s.lock(ctx)()

	names := make([]string, 0, len(s.data.studios))
	for _, st := range s.data.studios {
		names = append(names, st.Name)
	}
	return suggest(names, fragment, limit), nil
}

func (s *Store) InstructorCertified(ctx context.Context, instructorID, disciplineID int64) (bool, error) {
	defer s.lock(ctx)()

	return s.data.certs[[2]int64{instructorID, disciplineID}], nil
}

func (s *Store) CountActiveSeats(ctx context.Context, studioID int64) (int, error) {
	defer s.lock(ctx)()

	n := 0
	for _, seat := range s.data.seats {
		if seat.StudioID == studioID && seat.Active {
			n++
		}
	}
	return n, nil
}
