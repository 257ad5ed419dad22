package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
	redisrepo "github.com/kirinyoku/classgo/internal/repository/redis"
)

type Config struct {
	SessionSummaryTTL time.Duration
	AvailabilityTTL   time.Duration
	SeatMapTTL        time.Duration
	DefaultPage       int
	MaxPage           int
}

type Service struct {
	sessions    Sessions
	assignments Assignments
	cache       *redisrepo.Cache
	subscriber  Subscriber
	cfg         Config
	now         func() time.Time
}

// New builds the read side. cache and subscriber may be nil: reads then go
// straight to the store and Stream reports ErrStreamUnavailable.
func New(
	sessions Sessions,
	assignments Assignments,
	cache *redisrepo.Cache,
	subscriber Subscriber,
	cfg Config,
) *Service {
	if cfg.SessionSummaryTTL <= 0 {
		cfg.SessionSummaryTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 15 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 50
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 200
	}

	return &Service{
		sessions:    sessions,
		assignments: assignments,
		cache:       cache,
		subscriber:  subscriber,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetSession retrieves a session by its ID, utilizing a caching layer to improve performance.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the session to retrieve.
//
// Returns:
//   - *domain.ClassSession: the retrieved session.
//   - error: query.ErrSessionNotFound if the session is not found.
func (s *Service) GetSession(ctx context.Context, id int64) (*domain.ClassSession, error) {
	const op = "service.query.GetSession"

	sess, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySessionSummary(id),
		s.cfg.SessionSummaryTTL,
		func(ctx context.Context) (domain.ClassSession, error) {
			cs, err := s.sessions.GetSession(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.ClassSession{}, ErrSessionNotFound
				}

				return domain.ClassSession{}, err
			}

			return *cs, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &sess, nil
}

type Availability struct {
	SessionID   int64                `json:"session_id"`
	MaxCapacity int                  `json:"max_capacity"`
	Spots       domain.SpotCounters  `json:"spots"`
	Status      domain.SessionStatus `json:"status"`
	BookingOpen bool                 `json:"booking_open"`
}

// Availability returns the spot counters of a session. BookingOpen is
// evaluated at call time, the counters may be up to AvailabilityTTL old.
func (s *Service) Availability(ctx context.Context, sessionID int64) (*Availability, error) {
	const op = "service.query.Availability"

	cs, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySessionAvailability(sessionID),
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.ClassSession, error) {
			cs, err := s.sessions.GetSession(ctx, sessionID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.ClassSession{}, ErrSessionNotFound
				}

				return domain.ClassSession{}, err
			}

			return *cs, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Availability{
		SessionID:   cs.ID,
		MaxCapacity: cs.MaxCapacity,
		Spots:       cs.Spots,
		Status:      cs.Status,
		BookingOpen: cs.BookingOpen(s.now()),
	}, nil
}

// SeatMap lists every assignment of a session with its seat coordinates,
// orphaned assignments last.
func (s *Service) SeatMap(ctx context.Context, sessionID int64) ([]domain.SeatAssignmentView, error) {
	const op = "service.query.SeatMap"

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	seats, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySessionSeatMap(sessionID),
		s.cfg.SeatMapTTL,
		func(ctx context.Context) ([]domain.SeatAssignmentView, error) {
			return s.assignments.ListAssignments(ctx, sessionID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

// ListSessions pages through sessions. The page size defaults to
// Config.DefaultPage and is capped at Config.MaxPage.
func (s *Service) ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.ClassSession, error) {
	const op = "service.query.ListSessions"

	if f.Limit <= 0 {
		f.Limit = s.cfg.DefaultPage
	}

	if f.Limit > s.cfg.MaxPage {
		f.Limit = s.cfg.MaxPage
	}

	if f.Offset < 0 {
		f.Offset = 0
	}

	sessions, err := s.sessions.ListSessions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sessions, nil
}

// Stream calls fn for every event of sessionID until ctx is done.
func (s *Service) Stream(ctx context.Context, sessionID int64, fn func(domain.SeatEvent)) error {
	const op = "service.query.Stream"

	if s.subscriber == nil {
		return fmt.Errorf("%s:%w", op, ErrStreamUnavailable)
	}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	err := s.subscriber.Subscribe(ctx, func(_ context.Context, ev domain.SeatEvent) {
		if ev.SessionID == sessionID {
			fn(ev)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
