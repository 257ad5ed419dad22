package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/classgo/internal/metrics"
	"github.com/kirinyoku/classgo/internal/repository"
)

const DefaultBatchSize = 100

type Service struct {
	assignments Assignments
	ledger      Expirer
	batchSize   int
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func New(assignments Assignments, ledger Expirer, batchSize int, log *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		assignments: assignments,
		ledger:      ledger,
		batchSize:   batchSize,
		log:         log.With(slog.String("job", "expiry_sweep")),
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

type SweepReport struct {
	Scanned  int      `json:"scanned"`
	Released int      `json:"released"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// SweepExpiredReservations releases every reservation whose TTL elapsed
// before the sweep started. Each item is released through the ledger, so a
// seat confirmed or released concurrently is skipped, never reset. Item
// failures are logged and collected; the sweep always visits every item.
//
// Returns:
//   - SweepReport: per-sweep counters.
//   - error: the joined item errors, or the listing error that stopped the
//     sweep.
func (s *Service) SweepExpiredReservations(ctx context.Context) (SweepReport, error) {
	const op = "service.reaper.SweepExpiredReservations"

	var (
		report SweepReport
		errs   []error
	)

	now := s.now()
	seen := map[int64]bool{}
	// stuck counts listed items that were not released; they are listed
	// again, so each batch asks for that many more rows.
	stuck := 0

	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		limit := s.batchSize + stuck
		batch, err := s.assignments.ListExpiredAssignments(ctx, now, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s:%w", op, err))
			break
		}

		fresh, released := 0, 0
		for _, a := range batch {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			fresh++
			report.Scanned++

			_, err := s.ledger.Expire(ctx, a.ID, now)
			switch {
			case err == nil:
				released++
				report.Released++
				s.log.Info("reservation expired",
					slog.Int64("assignment_id", a.ID),
					slog.Int64("session_id", a.SessionID),
				)
			case errors.Is(err, repository.ErrStale):
				report.Skipped++
				s.log.Debug("reservation no longer expired",
					slog.Int64("assignment_id", a.ID),
				)
			default:
				errs = append(errs, fmt.Errorf("assignment %d: %w", a.ID, err))
				report.Errors = append(report.Errors, fmt.Sprintf("assignment %d: %v", a.ID, err))
				s.log.Error("failed to expire reservation",
					slog.Int64("assignment_id", a.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		stuck += fresh - released

		if len(batch) < limit || fresh == 0 {
			break
		}
	}

	s.metrics.SweepDone(report.Released, len(report.Errors))

	if report.Scanned > 0 || len(errs) > 0 {
		s.log.Info("expiry sweep finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("released", report.Released),
			slog.Int("skipped", report.Skipped),
			slog.Int("errors", len(report.Errors)),
		)
	}

	return report, errors.Join(errs...)
}
