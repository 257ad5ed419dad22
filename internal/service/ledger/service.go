package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/metrics"
	"github.com/kirinyoku/classgo/internal/repository"
	"github.com/kirinyoku/classgo/internal/uow"
)

type Config struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// Service owns every seat assignment transition. Each operation locks the
// session row, applies a guarded update and recomputes the session counters
// in one transaction.
type Service struct {
	sessions    Sessions
	assignments Assignments
	waitlist    Waitlist
	events      EventDispatcher
	uow         *uow.UoW
	metrics     *metrics.Metrics
	now         func() time.Time
	cfg         Config

	mu        sync.RWMutex
	seatFreed []func(ctx context.Context, sessionID int64)
}

func New(
	runner uow.TxRunner,
	sessions Sessions,
	assignments Assignments,
	waitlist Waitlist,
	events EventDispatcher,
	cfg Config,
) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}

	if cfg.MinTTL <= 0 {
		cfg.MinTTL = time.Minute
	}

	if cfg.MaxTTL <= 0 || cfg.MaxTTL < cfg.MinTTL {
		cfg.MaxTTL = time.Hour
	}

	return &Service{
		sessions:    sessions,
		assignments: assignments,
		waitlist:    waitlist,
		events:      events,
		uow:         uow.NewUoW(runner),
		now:         time.Now,
		cfg:         cfg,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// OnSeatFreed registers fn to run after a commit that returned a held or
// blocked seat to available.
func (s *Service) OnSeatFreed(fn func(ctx context.Context, sessionID int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seatFreed = append(s.seatFreed, fn)
}

// ClampTTL applies the default to a zero ttl and bounds the result to the
// configured range.
func (s *Service) ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	if ttl < s.cfg.MinTTL {
		return s.cfg.MinTTL
	}

	if ttl > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}

	return ttl
}

// Reserve holds an available seat for userID until now+ttl.
//
// Parameters:
//   - ctx: request-scoped context.
//   - assignmentID: ID of the seat assignment to hold.
//   - userID: ID of the user holding the seat.
//   - ttl: requested hold duration; zero selects the default.
//
// Returns:
//   - *domain.SeatAssignment: the reserved assignment.
//   - error: ledger.ErrSeatUnavailable if the seat is not available or the
//     session has no free spot.
//   - error: ledger.ErrBookingClosed if the session does not accept bookings.
func (s *Service) Reserve(
	ctx context.Context,
	assignmentID, userID int64,
	ttl time.Duration,
) (*domain.SeatAssignment, error) {
	const op = "service.ledger.Reserve"

	ttl = s.ClampTTL(ttl)

	return s.run(ctx, op, assignmentID, step{
		event:     domain.EventReserve,
		eventType: domain.SeatEventReserved,
		plan: func(sess *domain.ClassSession, a *domain.SeatAssignment, now time.Time) (*domain.AssignmentState, error) {
			if !sess.BookingOpen(now) {
				return nil, ErrBookingClosed
			}
			if a.Status != domain.AssignmentAvailable || a.Orphaned() {
				return nil, ErrSeatUnavailable
			}
			if sess.Spots.Available <= 0 {
				return nil, ErrSeatUnavailable
			}
			return reservedState(userID, now, ttl), nil
		},
	})
}

// ReserveForWaitlist holds a seat for a promoted waitlist user. Unlike
// Reserve it may take a spot claimed by the waitlist, and only requires the
// session to be scheduled and not yet started.
func (s *Service) ReserveForWaitlist(
	ctx context.Context,
	assignmentID, userID int64,
	ttl time.Duration,
) (*domain.SeatAssignment, error) {
	const op = "service.ledger.ReserveForWaitlist"

	ttl = s.ClampTTL(ttl)

	return s.run(ctx, op, assignmentID, step{
		event:     domain.EventReserve,
		eventType: domain.SeatEventReserved,
		plan: func(sess *domain.ClassSession, a *domain.SeatAssignment, now time.Time) (*domain.AssignmentState, error) {
			if sess.Status != domain.SessionScheduled || !now.Before(sess.StartsAt) {
				return nil, ErrBookingClosed
			}
			if a.Status != domain.AssignmentAvailable || a.Orphaned() {
				return nil, ErrSeatUnavailable
			}
			if sess.Spots.Booked >= sess.MaxCapacity {
				return nil, ErrSeatUnavailable
			}
			return reservedState(userID, now, ttl), nil
		},
	})
}

// Confirm turns a reservation into occupied or completed and clears its
// expiry.
//
// Returns:
//   - error: ledger.ErrInvalidTransition if the assignment is not reserved or
//     final is neither occupied nor completed.
//   - error: ledger.ErrReservationExpired if the hold outlived its TTL.
func (s *Service) Confirm(
	ctx context.Context,
	assignmentID int64,
	final domain.AssignmentStatus,
) (*domain.SeatAssignment, error) {
	const op = "service.ledger.Confirm"

	var ev domain.AssignmentEvent
	var evType domain.SeatEventType
	switch final {
	case domain.AssignmentOccupied:
		ev, evType = domain.EventConfirm, domain.SeatEventConfirmed
	case domain.AssignmentCompleted:
		ev, evType = domain.EventConfirmComplete, domain.SeatEventCompleted
	case domain.AssignmentAvailable, domain.AssignmentReserved, domain.AssignmentBlocked:
		return nil, fmt.Errorf("%s: final status %q:%w", op, final, ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("%s: unknown status %q:%w", op, final, ErrInvalidTransition)
	}

	return s.run(ctx, op, assignmentID, step{
		event:     ev,
		eventType: evType,
		plan: func(_ *domain.ClassSession, a *domain.SeatAssignment, now time.Time) (*domain.AssignmentState, error) {
			to, ok := domain.Transition(a.Status, ev)
			if !ok {
				return nil, TransitionError{AssignmentID: a.ID, From: a.Status, Event: ev}
			}
			if a.IsExpired(now) {
				return nil, ErrReservationExpired
			}
			return &domain.AssignmentState{
				Status:     to,
				UserID:     a.UserID,
				ReservedAt: a.ReservedAt,
			}, nil
		},
	})
}

// Complete marks an occupied seat as attended.
func (s *Service) Complete(ctx context.Context, assignmentID int64) (*domain.SeatAssignment, error) {
	const op = "service.ledger.Complete"

	return s.run(ctx, op, assignmentID, step{
		event:     domain.EventComplete,
		eventType: domain.SeatEventCompleted,
		plan: func(_ *domain.ClassSession, a *domain.SeatAssignment, _ time.Time) (*domain.AssignmentState, error) {
			to, ok := domain.Transition(a.Status, domain.EventComplete)
			if !ok {
				return nil, TransitionError{AssignmentID: a.ID, From: a.Status, Event: domain.EventComplete}
			}
			return &domain.AssignmentState{
				Status:     to,
				UserID:     a.UserID,
				ReservedAt: a.ReservedAt,
			}, nil
		},
	})
}

// Release returns a seat to available and clears its holder. Releasing an
// available seat is a no-op; completed seats can not be released.
func (s *Service) Release(ctx context.Context, assignmentID int64) (*domain.SeatAssignment, error) {
	const op = "service.ledger.Release"

	return s.run(ctx, op, assignmentID, step{
		event:     domain.EventRelease,
		eventType: domain.SeatEventReleased,
		plan: func(_ *domain.ClassSession, a *domain.SeatAssignment, _ time.Time) (*domain.AssignmentState, error) {
			if a.Status == domain.AssignmentAvailable {
				return nil, nil
			}
			to, ok := domain.Transition(a.Status, domain.EventRelease)
			if !ok {
				return nil, TransitionError{AssignmentID: a.ID, From: a.Status, Event: domain.EventRelease}
			}
			return &domain.AssignmentState{Status: to}, nil
		},
	})
}

// Block takes a seat out of sale for the session.
func (s *Service) Block(ctx context.Context, assignmentID int64) (*domain.SeatAssignment, error) {
	const op = "service.ledger.Block"

	return s.run(ctx, op, assignmentID, step{
		event:     domain.EventBlock,
		eventType: domain.SeatEventBlocked,
		plan: func(_ *domain.ClassSession, a *domain.SeatAssignment, _ time.Time) (*domain.AssignmentState, error) {
			to, ok := domain.Transition(a.Status, domain.EventBlock)
			if !ok {
				return nil, TransitionError{AssignmentID: a.ID, From: a.Status, Event: domain.EventBlock}
			}
			return &domain.AssignmentState{Status: to}, nil
		},
	})
}

// Expire releases a reservation whose expires_at is before now. It returns
// repository.ErrStale when the assignment is no longer an expired
// reservation, for instance because it was confirmed meanwhile.
func (s *Service) Expire(ctx context.Context, assignmentID int64, now time.Time) (*domain.SeatAssignment, error) {
	const op = "service.ledger.Expire"

	return s.run(ctx, op, assignmentID, step{
		event:     domain.EventExpire,
		eventType: domain.SeatEventExpired,
		at:        &now,
		plan: func(_ *domain.ClassSession, a *domain.SeatAssignment, now time.Time) (*domain.AssignmentState, error) {
			if !a.IsExpired(now) {
				return nil, repository.ErrStale
			}
			to, _ := domain.Transition(a.Status, domain.EventExpire)
			return &domain.AssignmentState{Status: to}, nil
		},
	})
}

type CancelReport struct {
	Released        int64 `json:"released"`
	WaitlistExpired int64 `json:"waitlist_expired"`
}

// CancelSession cancels a session, releases every non-completed seat and
// expires its waiting entries. Cancelling a cancelled session is a no-op.
func (s *Service) CancelSession(ctx context.Context, sessionID int64) (CancelReport, error) {
	const op = "service.ledger.CancelSession"

	var report CancelReport
	now := s.now()

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		sess, err := s.sessions.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		switch sess.Status {
		case domain.SessionCancelled:
			return nil
		case domain.SessionCompleted:
			return ErrSessionClosed
		case domain.SessionScheduled, domain.SessionInProgress, domain.SessionPostponed:
		}

		if err := s.sessions.UpdateSessionStatus(ctx, sessionID, domain.SessionCancelled); err != nil {
			return err
		}

		if report.Released, err = s.assignments.ReleaseSessionAssignments(ctx, sessionID); err != nil {
			return err
		}

		if report.WaitlistExpired, err = s.waitlist.ExpireWaiting(ctx, sessionID); err != nil {
			return err
		}

		if _, err := s.sessions.SyncCounters(ctx, sessionID); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.events.Dispatch(ctx, domain.SeatEvent{
				Type:      domain.SeatEventSessionCancelled,
				SessionID: sess.ID,
				StudioID:  sess.StudioID,
				At:        now,
			})
		})

		return nil
	})
	if err != nil {
		return CancelReport{}, fmt.Errorf("%s:%w", op, err)
	}

	return report, nil
}

type step struct {
	event     domain.AssignmentEvent
	eventType domain.SeatEventType
	// at overrides the service clock.
	at *time.Time
	// plan validates the locked session and assignment and returns the state
	// to write. A nil state with a nil error is a no-op.
	plan func(sess *domain.ClassSession, a *domain.SeatAssignment, now time.Time) (*domain.AssignmentState, error)
}

func (s *Service) run(ctx context.Context, op string, assignmentID int64, st step) (*domain.SeatAssignment, error) {
	now := s.now()
	if st.at != nil {
		now = *st.at
	}

	var out *domain.SeatAssignment
	changed := false

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		changed = false

		sess, a, err := s.lock(ctx, assignmentID)
		if err != nil {
			return err
		}

		next, err := st.plan(sess, a, now)
		if err != nil {
			return err
		}
		if next == nil {
			out = a
			return nil
		}

		guard := domain.Guard{From: domain.SourceStates(st.event)}
		if st.event == domain.EventExpire {
			guard.ExpiredBefore = &now
		}

		updated, err := s.assignments.CompareAndSet(ctx, a.ID, guard, *next)
		if err != nil {
			if errors.Is(err, repository.ErrStale) {
				return s.staleErr(ctx, a.ID, st.event)
			}
			return err
		}

		if _, err := s.sessions.SyncCounters(ctx, sess.ID); err != nil {
			return err
		}

		out = updated
		changed = true

		freed := a.Status != domain.AssignmentAvailable && updated.Status == domain.AssignmentAvailable
		userID := updated.UserID
		if userID == nil {
			userID = a.UserID
		}

		after(func(ctx context.Context) {
			s.events.Dispatch(ctx, domain.SeatEvent{
				Type:         st.eventType,
				SessionID:    sess.ID,
				StudioID:     sess.StudioID,
				AssignmentID: updated.ID,
				UserID:       userID,
				At:           now,
			})
			if freed {
				s.notifySeatFreed(ctx, sess.ID)
			}
		})

		return nil
	})

	s.metrics.Transition(string(st.event), outcome(err, changed))

	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// lock reads the assignment, locks its session and reads the assignment
// again under the lock.
func (s *Service) lock(ctx context.Context, assignmentID int64) (*domain.ClassSession, *domain.SeatAssignment, error) {
	a, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrAssignmentNotFound
		}
		return nil, nil, err
	}

	sess, err := s.sessions.GetSessionForUpdate(ctx, a.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}

	a, err = s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrAssignmentNotFound
		}
		return nil, nil, err
	}

	return sess, a, nil
}

// staleErr maps a failed guarded update to the error of the event.
func (s *Service) staleErr(ctx context.Context, assignmentID int64, ev domain.AssignmentEvent) error {
	a, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	switch ev {
	case domain.EventReserve:
		return ErrSeatUnavailable
	case domain.EventExpire:
		return repository.ErrStale
	case domain.EventConfirm, domain.EventConfirmComplete, domain.EventComplete,
		domain.EventRelease, domain.EventBlock, domain.EventCancelSession:
	}

	return TransitionError{AssignmentID: a.ID, From: a.Status, Event: ev}
}

func (s *Service) notifySeatFreed(ctx context.Context, sessionID int64) {
	s.mu.RLock()
	hooks := append([]func(context.Context, int64){}, s.seatFreed...)
	s.mu.RUnlock()

	for _, h := range hooks {
		h(ctx, sessionID)
	}
}

func reservedState(userID int64, now time.Time, ttl time.Duration) *domain.AssignmentState {
	reservedAt := now
	expiresAt := now.Add(ttl)

	return &domain.AssignmentState{
		Status:     domain.AssignmentReserved,
		UserID:     &userID,
		ReservedAt: &reservedAt,
		ExpiresAt:  &expiresAt,
	}
}

func outcome(err error, changed bool) string {
	switch {
	case err == nil && changed:
		return "ok"
	case err == nil:
		return "noop"
	case errors.Is(err, ErrSeatUnavailable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrBookingClosed),
		errors.Is(err, ErrReservationExpired),
		errors.Is(err, repository.ErrStale):
		return "rejected"
	default:
		return "error"
	}
}
