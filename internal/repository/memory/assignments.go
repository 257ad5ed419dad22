package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

func (s *Store) GetAssignment(ctx context.Context, id int64) (*domain.SeatAssignment, error) {
	const op = "memory.Store.GetAssignment"

	defer s.lock(ctx)()

	a, ok := s.data.assignments[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) CompareAndSet(
	ctx context.Context,
	id int64,
	guard domain.Guard,
	next domain.AssignmentState,
) (*domain.SeatAssignment, error) {
	const op = "memory.Store.CompareAndSet"

	defer s.lock(ctx)()

	a, ok := s.data.assignments[id]
	if !ok || !guard.Matches(a) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStale)
	}

	a = next.Apply(a)
	a.UpdatedAt = s.stamp()
	s.data.assignments[id] = a

	return &a, nil
}

func (s *Store) InitAssignments(ctx context.Context, sessionID int64) (int64, error) {
	const op = "memory.Store.InitAssignments"

	defer s.lock(ctx)()

	cs, ok := s.data.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	existing := map[int64]bool{}
	for _, a := range s.data.assignments {
		if a.SessionID == sessionID && a.SeatID != nil {
			existing[*a.SeatID] = true
		}
	}

	seatIDs := make([]int64, 0)
	for _, seat := range s.data.seats {
		if seat.StudioID == cs.StudioID && seat.Active && !existing[seat.ID] {
			seatIDs = append(seatIDs, seat.ID)
		}
	}
	sort.Slice(seatIDs, func(i, j int) bool { return seatIDs[i] < seatIDs[j] })

	for _, seatID := range seatIDs {
		seatID := seatID
		id := s.id()
		s.data.assignments[id] = domain.SeatAssignment{
			ID:        id,
			SessionID: sessionID,
			SeatID:    &seatID,
			Status:    domain.AssignmentAvailable,
			UpdatedAt: s.stamp(),
		}
	}

	return int64(len(seatIDs)), nil
}

func (s *Store) PurgeOrphanedAssignments(ctx context.Context, studioID int64, now time.Time) (int64, error) {
	defer s.lock(ctx)()

	var n int64
	for id, a := range s.data.assignments {
		cs, ok := s.data.sessions[a.SessionID]
		if !ok || cs.StudioID != studioID || !cs.StartsAt.After(now) {
			continue
		}
		if a.SeatID == nil && a.Status == domain.AssignmentAvailable {
			delete(s.data.assignments, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListAssignments(ctx context.Context, sessionID int64) ([]domain.SeatAssignmentView, error) {
	defer s.lock(ctx)()

	var out []domain.SeatAssignmentView
	for _, a := range s.data.assignments {
		if a.SessionID != sessionID {
			continue
		}
		v := domain.SeatAssignmentView{SeatAssignment: a}
		if a.SeatID != nil {
			if seat, ok := s.data.seats[*a.SeatID]; ok {
				v.Row, v.Column, v.Number = seat.Row, seat.Column, seat.Number
			}
		}
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		oi, oj := out[i].Orphaned(), out[j].Orphaned()
		if oi != oj {
			return oj
		}
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (s *Store) ListExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]domain.SeatAssignment, error) {
	defer s.lock(ctx)()

	var out []domain.SeatAssignment
	for _, a := range s.data.assignments {
		if a.IsExpired(now) {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ReleaseSessionAssignments(ctx context.Context, sessionID int64) (int64, error) {
	defer s.lock(ctx)()

	guard := domain.Guard{From: []domain.AssignmentStatus{
		domain.AssignmentReserved,
		domain.AssignmentOccupied,
		domain.AssignmentBlocked,
	}}

	var n int64
	for id, a := range s.data.assignments {
		if a.SessionID != sessionID || !guard.Matches(a) {
			continue
		}
		a = domain.AssignmentState{Status: domain.AssignmentAvailable}.Apply(a)
		a.UpdatedAt = s.stamp()
		s.data.assignments[id] = a
		n++
	}
	return n, nil
}

func (s *Store) UserHoldsSeat(ctx context.Context, sessionID, userID int64) (bool, error) {
	defer s.lock(ctx)()

	for _, a := range s.data.assignments {
		if a.SessionID != sessionID || a.UserID == nil || *a.UserID != userID {
			continue
		}
		if a.Status == domain.AssignmentReserved || a.Status == domain.AssignmentOccupied {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) FirstAvailableAssignment(ctx context.Context, sessionID int64) (*domain.SeatAssignment, error) {
	const op = "memory.Store.FirstAvailableAssignment"

	defer s.lock(ctx)()

	var best *domain.SeatAssignment
	bestNumber := 0
	for _, a := range s.data.assignments {
		if a.SessionID != sessionID || a.Status != domain.AssignmentAvailable || a.SeatID == nil {
			continue
		}
		seat, ok := s.data.seats[*a.SeatID]
		if !ok || !seat.Active {
			continue
		}
		if best == nil || seat.Number < bestNumber || (seat.Number == bestNumber && a.ID < best.ID) {
			a := a
			best = &a
			bestNumber = seat.Number
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return best, nil
}
