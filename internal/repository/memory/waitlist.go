package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
)

func (s *Store) JoinWaitlist(
	ctx context.Context,
	sessionID, userID int64,
	packageID *int64,
) (*domain.WaitlistEntry, error) {
	const op = "memory.Store.JoinWaitlist"

	defer s.lock(ctx)()

	if _, ok := s.data.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	for _, e := range s.data.waitlist {
		if e.SessionID == sessionID && e.UserID == userID && e.Status == domain.WaitlistWaiting {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	e := domain.WaitlistEntry{
		ID:        s.id(),
		SessionID: sessionID,
		UserID:    userID,
		PackageID: packageID,
		Status:    domain.WaitlistWaiting,
		CreatedAt: s.stamp(),
	}
	s.data.waitlist[e.ID] = e

	return &e, nil
}

func (s *Store) ListWaiting(ctx context.Context, sessionID int64) ([]domain.WaitlistEntry, error) {
	defer s.lock(ctx)()

	var out []domain.WaitlistEntry
	for _, e := range s.data.waitlist {
		if e.SessionID == sessionID && e.Status == domain.WaitlistWaiting {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (s *Store) SetWaitlistStatus(ctx context.Context, id int64, from, to domain.WaitlistStatus) error {
	const op = "memory.Store.SetWaitlistStatus"

	defer s.lock(ctx)()

	e, ok := s.data.waitlist[id]
	if !ok || e.Status != from {
		return fmt.Errorf("%s:%w", op, repository.ErrStale)
	}
	e.Status = to
	s.data.waitlist[id] = e
	return nil
}

func (s *Store) ExpireWaiting(ctx context.Context, sessionID int64) (int64, error) {
	defer s.lock(ctx)()

	var n int64
	for id, e := range s.data.waitlist {
		if e.SessionID == sessionID && e.Status == domain.WaitlistWaiting {
			e.Status = domain.WaitlistExpired
			s.data.waitlist[id] = e
			n++
		}
	}
	return n, nil
}

// Waitlist returns every entry of a session regardless of status, oldest
// first.
func (s *Store) Waitlist(sessionID int64) []domain.WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WaitlistEntry
	for _, e := range s.data.waitlist {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
