package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

func (s *Store) GetStudio(ctx context.Context, id int64) (*domain.Studio, error) {
	const op = "memory.Store.GetStudio"

	defer s.lock(ctx)()

	st, ok := s.data.studios[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return &st, nil
}

func (s *Store) GetStudioForUpdate(ctx context.Context, id int64) (*domain.Studio, error) {
	return s.GetStudio(ctx, id)
}

func (s *Store) UpdateStudioLayout(ctx context.Context, id int64, layout domain.Layout) error {
	const op = "memory.Store.UpdateStudioLayout"

	defer s.lock(ctx)()

	st, ok := s.data.studios[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	st.Layout = layout
	s.data.studios[id] = st
	return nil
}

// ReplaceSeats mirrors ON DELETE SET NULL: assignments of removed seats lose
// their seat reference.
func (s *Store) ReplaceSeats(ctx context.Context, studioID int64, seats []domain.Seat) (int64, error) {
	const op = "memory.Store.ReplaceSeats"

	defer s.lock(ctx)()

	if _, ok := s.data.studios[studioID]; !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	removed := map[int64]bool{}
	for id, seat := range s.data.seats {
		if seat.StudioID == studioID {
			removed[id] = true
			delete(s.data.seats, id)
		}
	}

	for id, a := range s.data.assignments {
		if a.SeatID != nil && removed[*a.SeatID] {
			a.SeatID = nil
			s.data.assignments[id] = a
		}
	}

	taken := map[[2]int]bool{}
	for _, seat := range seats {
		key := [2]int{seat.Row, seat.Column}
		if taken[key] {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		taken[key] = true

		seat.ID = s.id()
		seat.StudioID = studioID
		s.data.seats[seat.ID] = seat
	}

	return int64(len(seats)), nil
}

func (s *Store) ListSeats(ctx context.Context, studioID int64, onlyActive bool) ([]domain.Seat, error) {
	defer s.lock(ctx)()

	var out []domain.Seat
	for _, seat := range s.data.seats {
		if seat.StudioID != studioID || (onlyActive && !seat.Active) {
			continue
		}
		out = append(out, seat)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Column < out[j].Column
	})

	return out, nil
}

func (s *Store) SetSeatActive(ctx context.Context, seatID int64, active bool) (*domain.Seat, error) {
	const op = "memory.Store.SetSeatActive"

	defer s.lock(ctx)()

	seat, ok := s.data.seats[seatID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	seat.Active = active
	s.data.seats[seatID] = seat
	return &seat, nil
}
