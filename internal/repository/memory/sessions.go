package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sortSessions(out []domain.ClassSession) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (s *Store) GetSession(ctx context.Context, id int64) (*domain.ClassSession, error) {
	const op = "memory.Store.GetSession"

	defer s.lock(ctx)()

	cs, ok := s.data.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return &cs, nil
}

func (s *Store) GetSessionForUpdate(ctx context.Context, id int64) (*domain.ClassSession, error) {
	return s.GetSession(ctx, id)
}

func (s *Store) CreateSession(ctx context.Context, cs *domain.ClassSession) (int64, error) {
	const op = "memory.Store.CreateSession"

	defer s.lock(ctx)()

	if _, ok := s.data.studios[cs.StudioID]; !ok {
		return 0, fmt.Errorf("%s: studio %d:%w", op, cs.StudioID, repository.ErrNotFound)
	}

	row := *cs
	row.ID = s.id()
	if row.Status == "" {
		row.Status = domain.SessionScheduled
	}
	row.Spots = domain.DeriveSpots(row.MaxCapacity, 0, 0)
	s.data.sessions[row.ID] = row

	return row.ID, nil
}

func (s *Store) ActiveSessionsOn(
	ctx context.Context,
	date time.Time,
	instructorID, studioID, excludeID int64,
) ([]domain.ClassSession, error) {
	defer s.lock(ctx)()

	var out []domain.ClassSession
	for _, cs := range s.data.sessions {
		if cs.ID == excludeID || cs.Status == domain.SessionCancelled || !sameDay(cs.Date, date) {
			continue
		}
		if cs.InstructorID == instructorID || cs.StudioID == studioID {
			out = append(out, cs)
		}
	}
	sortSessions(out)

	return out, nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id int64, status domain.SessionStatus) error {
	const op = "memory.Store.UpdateSessionStatus"

	defer s.lock(ctx)()

	cs, ok := s.data.sessions[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	cs.Status = status
	s.data.sessions[id] = cs
	return nil
}

func (s *Store) SyncCounters(ctx context.Context, sessionID int64) (domain.SpotCounters, error) {
	const op = "memory.Store.SyncCounters"

	defer s.lock(ctx)()

	cs, ok := s.data.sessions[sessionID]
	if !ok {
		return domain.SpotCounters{}, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	held, open := 0, 0
	for _, a := range s.data.assignments {
		if a.SessionID != sessionID {
			continue
		}
		switch {
		case a.Status.Holds():
			held++
		case a.Status == domain.AssignmentAvailable && a.SeatID != nil:
			open++
		}
	}
	waiting := 0
	for _, e := range s.data.waitlist {
		if e.SessionID == sessionID && e.Status == domain.WaitlistWaiting {
			waiting++
		}
	}

	cs.Spots = domain.DeriveSpots(domain.SellableCapacity(cs.MaxCapacity, held, open), held, waiting)
	s.data.sessions[sessionID] = cs

	return cs.Spots, nil
}

func (s *Store) UpcomingSessionIDs(ctx context.Context, studioID int64, now time.Time) ([]int64, error) {
	defer s.lock(ctx)()

	var sessions []domain.ClassSession
	for _, cs := range s.data.sessions {
		if cs.StudioID == studioID && cs.StartsAt.After(now) && cs.Status != domain.SessionCancelled {
			sessions = append(sessions, cs)
		}
	}
	sortSessions(sessions)

	ids := make([]int64, 0, len(sessions))
	for _, cs := range sessions {
		ids = append(ids, cs.ID)
	}
	return ids, nil
}

func (s *Store) StartedSessionsWithWaitlist(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	defer s.lock(ctx)()

	type seatHolder struct{ session, user int64 }
	holders := map[seatHolder]bool{}
	for _, a := range s.data.assignments {
		if a.UserID != nil && (a.Status == domain.AssignmentReserved || a.Status == domain.AssignmentOccupied) {
			holders[seatHolder{a.SessionID, *a.UserID}] = true
		}
	}

	waiting := map[int64]bool{}
	for _, e := range s.data.waitlist {
		if e.Status == domain.WaitlistWaiting && !holders[seatHolder{e.SessionID, e.UserID}] {
			waiting[e.SessionID] = true
		}
	}

	var sessions []domain.ClassSession
	for _, cs := range s.data.sessions {
		if waiting[cs.ID] && !cs.StartsAt.After(now) {
			sessions = append(sessions, cs)
		}
	}
	sortSessions(sessions)

	var ids []int64
	for _, cs := range sessions {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, cs.ID)
	}
	return ids, nil
}

func (s *Store) ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.ClassSession, error) {
	defer s.lock(ctx)()

	var out []domain.ClassSession
	for _, cs := range s.data.sessions {
		switch {
		case f.StudioID != nil && cs.StudioID != *f.StudioID:
			continue
		case f.InstructorID != nil && cs.InstructorID != *f.InstructorID:
			continue
		case f.From != nil && cs.StartsAt.Before(*f.From):
			continue
		case f.To != nil && !cs.StartsAt.Before(*f.To):
			continue
		case f.Status != nil && cs.Status != *f.Status:
			continue
		}
		out = append(out, cs)
	}
	sortSessions(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

// LockSchedule is a no-op: transactions already hold the store lock.
func (s *Store) LockSchedule(ctx context.Context, key string) error {
	const op = "memory.Store.LockSchedule"

	if !s.inTx(ctx) {
		return fmt.Errorf("%s: advisory lock requires a transaction", op)
	}
	return nil
}
