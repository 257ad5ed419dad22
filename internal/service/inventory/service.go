package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
	"github.com/kirinyoku/classgo/internal/uow"
)

type Service struct {
	studios     Studios
	sessions    Sessions
	assignments Assignments
	events      EventDispatcher
	uow         *uow.UoW
	now         func() time.Time
}

func New(
	runner uow.TxRunner,
	studios Studios,
	sessions Sessions,
	assignments Assignments,
	events EventDispatcher,
) *Service {
	return &Service{
		studios:     studios,
		sessions:    sessions,
		assignments: assignments,
		events:      events,
		uow:         uow.NewUoW(runner),
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type GenerationReport struct {
	Seats              int64 `json:"seats"`
	OrphansPurged      int64 `json:"orphans_purged"`
	SessionsUpdated    int   `json:"sessions_updated"`
	AssignmentsCreated int64 `json:"assignments_created"`
}

// GenerateSeats replaces the seat grid of a studio with the one derived from
// its layout and brings every upcoming session of the studio in line with
// the new grid.
//
// Parameters:
//   - ctx: request-scoped context.
//   - studioID: ID of the studio to regenerate.
//
// Returns:
//   - GenerationReport: counts of what changed.
//   - error: inventory.ErrStudioNotFound if the studio does not exist.
func (s *Service) GenerateSeats(ctx context.Context, studioID int64) (GenerationReport, error) {
	const op = "service.inventory.GenerateSeats"

	var report GenerationReport

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		studio, err := s.studios.GetStudioForUpdate(ctx, studioID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStudioNotFound
			}
			return err
		}

		var touched []int64
		report, touched, err = s.regenerate(ctx, studio)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.dispatchGenerated(ctx, studioID, touched)
		})

		return nil
	})
	if err != nil {
		return GenerationReport{}, fmt.Errorf("%s:%w", op, err)
	}

	return report, nil
}

// UpdateLayout stores a new layout and regenerates the seats only when it
// differs from the current one. The returned bool reports whether seats
// were regenerated.
func (s *Service) UpdateLayout(
	ctx context.Context,
	studioID int64,
	layout domain.Layout,
) (GenerationReport, bool, error) {
	const op = "service.inventory.UpdateLayout"

	if layout.Addressing == "" {
		layout.Addressing = domain.AddressingRowMajor
	}
	if err := ValidateLayout(layout); err != nil {
		return GenerationReport{}, false, fmt.Errorf("%s:%w", op, err)
	}

	var report GenerationReport
	changed := false

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		studio, err := s.studios.GetStudioForUpdate(ctx, studioID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStudioNotFound
			}
			return err
		}

		before := studio.Layout
		if before.Equal(layout) {
			return nil
		}

		if err := s.studios.UpdateStudioLayout(ctx, studioID, layout); err != nil {
			return err
		}

		studio.Layout = layout
		var touched []int64
		report, touched, err = s.regenerate(ctx, studio)
		if err != nil {
			return err
		}
		changed = true

		after(func(ctx context.Context) {
			s.dispatchGenerated(ctx, studioID, touched)
		})

		return nil
	})
	if err != nil {
		return GenerationReport{}, false, fmt.Errorf("%s:%w", op, err)
	}

	return report, changed, nil
}

// GenerateAssignmentsForSession creates the missing available assignments
// of a session, one per active seat of its studio. Existing assignments are
// never overwritten, so the call is idempotent.
func (s *Service) GenerateAssignmentsForSession(ctx context.Context, sessionID int64) (int64, error) {
	const op = "service.inventory.GenerateAssignmentsForSession"

	var created int64

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		sess, err := s.sessions.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if sess.Status == domain.SessionCancelled {
			return ErrSessionCancelled
		}

		created, err = s.initSession(ctx, sessionID)
		if err != nil {
			return err
		}

		if created > 0 {
			after(func(ctx context.Context) {
				s.events.Dispatch(ctx, domain.SeatEvent{
					Type:      domain.SeatEventSessionCreated,
					SessionID: sess.ID,
					StudioID:  sess.StudioID,
				})
			})
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return created, nil
}

// SetSeatActive toggles a seat. Re-activating a seat gives it an assignment
// in every upcoming session of the studio.
func (s *Service) SetSeatActive(ctx context.Context, seatID int64, active bool) (*domain.Seat, error) {
	const op = "service.inventory.SetSeatActive"

	var seat *domain.Seat

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		var err error
		seat, err = s.studios.SetSeatActive(ctx, seatID, active)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSeatNotFound
			}
			return err
		}

		if !active {
			return nil
		}

		ids, err := s.sessions.UpcomingSessionIDs(ctx, seat.StudioID, s.now())
		if err != nil {
			return err
		}
		var touched []int64
		for _, id := range ids {
			if _, err := s.sessions.GetSessionForUpdate(ctx, id); err != nil {
				return err
			}
			created, err := s.initSession(ctx, id)
			if err != nil {
				return err
			}
			if created > 0 {
				touched = append(touched, id)
			}
		}

		if len(touched) > 0 {
			studioID := seat.StudioID
			after(func(ctx context.Context) {
				s.dispatchGenerated(ctx, studioID, touched)
			})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seat, nil
}

// regenerate replaces the studio's seats and returns the upcoming sessions
// it brought in line with the new grid.
func (s *Service) regenerate(ctx context.Context, studio *domain.Studio) (GenerationReport, []int64, error) {
	var report GenerationReport

	seats := domain.BuildSeatGrid(studio.ID, studio.Layout)

	n, err := s.studios.ReplaceSeats(ctx, studio.ID, seats)
	if err != nil {
		return report, nil, err
	}
	report.Seats = n

	now := s.now()

	report.OrphansPurged, err = s.assignments.PurgeOrphanedAssignments(ctx, studio.ID, now)
	if err != nil {
		return report, nil, err
	}

	ids, err := s.sessions.UpcomingSessionIDs(ctx, studio.ID, now)
	if err != nil {
		return report, nil, err
	}

	for _, id := range ids {
		if _, err := s.sessions.GetSessionForUpdate(ctx, id); err != nil {
			return report, nil, err
		}

		created, err := s.initSession(ctx, id)
		if err != nil {
			return report, nil, err
		}

		report.SessionsUpdated++
		report.AssignmentsCreated += created
	}

	return report, ids, nil
}

// dispatchGenerated emits one seats_generated event per touched session so
// their cached seat maps are dropped. A studio without upcoming sessions
// gets a single studio-level event.
func (s *Service) dispatchGenerated(ctx context.Context, studioID int64, sessionIDs []int64) {
	if len(sessionIDs) == 0 {
		s.events.Dispatch(ctx, domain.SeatEvent{
			Type:     domain.SeatEventSeatsGenerated,
			StudioID: studioID,
		})
		return
	}

	for _, id := range sessionIDs {
		s.events.Dispatch(ctx, domain.SeatEvent{
			Type:      domain.SeatEventSeatsGenerated,
			SessionID: id,
			StudioID:  studioID,
		})
	}
}

func (s *Service) initSession(ctx context.Context, sessionID int64) (int64, error) {
	created, err := s.assignments.InitAssignments(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	if _, err := s.sessions.SyncCounters(ctx, sessionID); err != nil {
		return 0, err
	}

	return created, nil
}

// ValidateLayout checks the generated grid is well formed.
func ValidateLayout(l domain.Layout) error {
	switch {
	case l.Rows < 0:
		return LayoutError{Field: "rows", Reason: "must not be negative"}
	case l.Columns < 0:
		return LayoutError{Field: "columns", Reason: "must not be negative"}
	case l.Capacity < 0:
		return LayoutError{Field: "capacity", Reason: "must not be negative"}
	case !l.Addressing.Valid():
		return LayoutError{Field: "addressing", Reason: fmt.Sprintf("unknown mode %q", l.Addressing)}
	}
	return nil
}
