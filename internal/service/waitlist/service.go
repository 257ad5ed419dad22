package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/metrics"
	"github.com/kirinyoku/classgo/internal/repository"
	"github.com/kirinyoku/classgo/internal/uow"
)

type Config struct {
	// PromotionTTL is the hold given to a promoted user; zero uses the
	// ledger default.
	PromotionTTL time.Duration
	// SweepBatch caps the sessions reconciled by one SweepStartedSessions.
	SweepBatch int
}

// Service manages waitlist entries. Joining consumes no class credit, so
// expiring an entry needs no refund.
type Service struct {
	sessions    Sessions
	entries     Entries
	assignments Assignments
	ledger      Ledger
	events      EventDispatcher
	uow         *uow.UoW
	cfg         Config
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func New(
	runner uow.TxRunner,
	sessions Sessions,
	entries Entries,
	assignments Assignments,
	ledger Ledger,
	events EventDispatcher,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sessions:    sessions,
		entries:     entries,
		assignments: assignments,
		ledger:      ledger,
		events:      events,
		uow:         uow.NewUoW(runner),
		cfg:         cfg,
		log:         log.With(slog.String("component", "waitlist")),
		now:         time.Now,
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

// Join puts userID on the waitlist of a full session.
//
// Returns:
//   - error: waitlist.ErrSpotsAvailable when a seat can still be reserved,
//     waitlist.ErrWaitlistClosed once the session started or is not
//     scheduled, waitlist.ErrAlreadyWaiting or waitlist.ErrAlreadyHoldsSeat.
func (s *Service) Join(ctx context.Context, sessionID, userID int64, packageID *int64) (*domain.WaitlistEntry, error) {
	const op = "service.waitlist.Join"

	var entry *domain.WaitlistEntry
	now := s.now()

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		sess, err := s.sessions.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if sess.Status != domain.SessionScheduled || !now.Before(sess.StartsAt) {
			return ErrWaitlistClosed
		}
		if sess.Spots.Available > 0 {
			return ErrSpotsAvailable
		}

		holds, err := s.assignments.UserHoldsSeat(ctx, sessionID, userID)
		if err != nil {
			return err
		}
		if holds {
			return ErrAlreadyHoldsSeat
		}

		entry, err = s.entries.JoinWaitlist(ctx, sessionID, userID, packageID)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyWaiting
			}
			return err
		}

		if _, err := s.sessions.SyncCounters(ctx, sessionID); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.metrics.WaitlistEntry(string(domain.WaitlistWaiting))
			s.events.Dispatch(ctx, domain.SeatEvent{
				Type:      domain.SeatEventWaitlistJoined,
				SessionID: sess.ID,
				StudioID:  sess.StudioID,
				UserID:    &userID,
				At:        now,
			})
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return entry, nil
}

// PromoteNext gives the first free seat of a session that has not started
// yet to the oldest waiting user. Entries whose user already holds a seat
// are marked promoted and skipped. It returns nil when nobody was promoted.
func (s *Service) PromoteNext(ctx context.Context, sessionID int64) (*domain.WaitlistEntry, error) {
	const op = "service.waitlist.PromoteNext"

	var promoted *domain.WaitlistEntry
	now := s.now()

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		promoted = nil

		sess, err := s.sessions.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.Status != domain.SessionScheduled || !now.Before(sess.StartsAt) {
			return nil
		}

		waiting, err := s.entries.ListWaiting(ctx, sessionID)
		if err != nil {
			return err
		}

		for _, e := range waiting {
			holds, err := s.assignments.UserHoldsSeat(ctx, sessionID, e.UserID)
			if err != nil {
				return err
			}
			if holds {
				if err := s.entries.SetWaitlistStatus(ctx, e.ID, domain.WaitlistWaiting, domain.WaitlistPromoted); err != nil {
					return err
				}
				continue
			}

			seat, err := s.assignments.FirstAvailableAssignment(ctx, sessionID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					break
				}
				return err
			}

			if _, err := s.ledger.ReserveForWaitlist(ctx, seat.ID, e.UserID, s.cfg.PromotionTTL); err != nil {
				return err
			}
			if err := s.entries.SetWaitlistStatus(ctx, e.ID, domain.WaitlistWaiting, domain.WaitlistPromoted); err != nil {
				return err
			}

			entry := e
			entry.Status = domain.WaitlistPromoted
			promoted = &entry

			assignmentID, userID := seat.ID, e.UserID
			after(func(ctx context.Context) {
				s.metrics.WaitlistEntry(string(domain.WaitlistPromoted))
				s.events.Dispatch(ctx, domain.SeatEvent{
					Type:         domain.SeatEventPromoted,
					SessionID:    sess.ID,
					StudioID:     sess.StudioID,
					AssignmentID: assignmentID,
					UserID:       &userID,
					At:           now,
				})
			})
			break
		}

		_, err = s.sessions.SyncCounters(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return promoted, nil
}

// HandleSeatFreed is registered on the ledger and promotes the next waiting
// user of the session. Failures are logged.
func (s *Service) HandleSeatFreed(ctx context.Context, sessionID int64) {
	entry, err := s.PromoteNext(ctx, sessionID)
	if err != nil {
		s.log.Warn("waitlist promotion failed",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	if entry != nil {
		s.log.Info("waitlist entry promoted",
			slog.Int64("session_id", sessionID),
			slog.Int64("entry_id", entry.ID),
			slog.Int64("user_id", entry.UserID),
		)
	}
}

type PromotionReport struct {
	Kept    int `json:"kept"`
	Expired int `json:"expired"`
}

// PromoteWaitlistForSession reconciles the waiting entries of a started
// session in FIFO order. Entries of users who hold a reserved or occupied
// seat are left untouched; the rest expire. Before the session start it is a
// no-op. Item failures are logged and joined into the returned error.
func (s *Service) PromoteWaitlistForSession(ctx context.Context, sessionID int64) (PromotionReport, error) {
	const op = "service.waitlist.PromoteWaitlistForSession"

	var report PromotionReport
	now := s.now()

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return report, fmt.Errorf("%s:%w", op, ErrSessionNotFound)
		}
		return report, fmt.Errorf("%s:%w", op, err)
	}

	if now.Before(sess.StartsAt) {
		return report, nil
	}

	waiting, err := s.entries.ListWaiting(ctx, sessionID)
	if err != nil {
		return report, fmt.Errorf("%s:%w", op, err)
	}

	var errs []error
	for _, e := range waiting {
		expired, err := s.reconcile(ctx, sess, e, now)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("entry %d: %w", e.ID, err))
			s.log.Error("failed to reconcile waitlist entry",
				slog.Int64("session_id", sessionID),
				slog.Int64("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
		case expired:
			report.Expired++
			s.log.Info("waitlist entry expired",
				slog.Int64("session_id", sessionID),
				slog.Int64("entry_id", e.ID),
				slog.Int64("user_id", e.UserID),
			)
		default:
			report.Kept++
		}
	}

	if err := errors.Join(errs...); err != nil {
		return report, fmt.Errorf("%s:%w", op, err)
	}
	return report, nil
}

func (s *Service) reconcile(ctx context.Context, sess *domain.ClassSession, e domain.WaitlistEntry, now time.Time) (bool, error) {
	expired := false

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		expired = false

		if _, err := s.sessions.GetSessionForUpdate(ctx, sess.ID); err != nil {
			return err
		}

		holds, err := s.assignments.UserHoldsSeat(ctx, sess.ID, e.UserID)
		if err != nil || holds {
			return err
		}

		err = s.entries.SetWaitlistStatus(ctx, e.ID, domain.WaitlistWaiting, domain.WaitlistExpired)
		if errors.Is(err, repository.ErrStale) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := s.sessions.SyncCounters(ctx, sess.ID); err != nil {
			return err
		}
		expired = true

		userID := e.UserID
		after(func(ctx context.Context) {
			s.metrics.WaitlistEntry(string(domain.WaitlistExpired))
			s.events.Dispatch(ctx, domain.SeatEvent{
				Type:      domain.SeatEventWaitlistExpired,
				SessionID: sess.ID,
				StudioID:  sess.StudioID,
				UserID:    &userID,
				At:        now,
			})
		})

		return nil
	})

	return expired, err
}

type SweepReport struct {
	Sessions int `json:"sessions"`
	Kept     int `json:"kept"`
	Expired  int `json:"expired"`
}

// SweepStartedSessions runs PromoteWaitlistForSession for every started
// session that still has waiting entries.
func (s *Service) SweepStartedSessions(ctx context.Context) (SweepReport, error) {
	const op = "service.waitlist.SweepStartedSessions"

	var report SweepReport

	ids, err := s.sessions.StartedSessionsWithWaitlist(ctx, s.now(), s.cfg.SweepBatch)
	if err != nil {
		return report, fmt.Errorf("%s:%w", op, err)
	}

	var errs []error
	for _, id := range ids {
		r, err := s.PromoteWaitlistForSession(ctx, id)
		report.Sessions++
		report.Kept += r.Kept
		report.Expired += r.Expired
		if err != nil {
			errs = append(errs, err)
		}
	}

	if report.Sessions > 0 {
		s.log.Info("waitlist sweep finished",
			slog.Int("sessions", report.Sessions),
			slog.Int("kept", report.Kept),
			slog.Int("expired", report.Expired),
			slog.Int("errors", len(errs)),
		)
	}

	return report, errors.Join(errs...)
}
