package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirinyoku/classgo/internal/service/reaper"
	"github.com/kirinyoku/classgo/internal/service/waitlist"
)

type ExpirySweeper interface {
	SweepExpiredReservations(ctx context.Context) (reaper.SweepReport, error)
}

type WaitlistSweeper interface {
	SweepStartedSessions(ctx context.Context) (waitlist.SweepReport, error)
}

type Config struct {
	// ExpirySpec is the cron spec of the expired reservation sweep.
	ExpirySpec string
	// WaitlistSpec is the cron spec of the started session waitlist sweep.
	WaitlistSpec string
	// Timeout bounds a single run of either job.
	Timeout time.Duration
}

// Scheduler runs the background maintenance jobs. Runs of the same job never
// overlap; a tick that arrives while the previous run is still going is
// skipped.
type Scheduler struct {
	cron     *cron.Cron
	expiry   ExpirySweeper
	waitlist WaitlistSweeper
	cfg      Config
	log      *slog.Logger
}

func New(expiry ExpirySweeper, wl WaitlistSweeper, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.ExpirySpec == "" {
		cfg.ExpirySpec = "@every 1m"
	}
	if cfg.WaitlistSpec == "" {
		cfg.WaitlistSpec = "@every 5m"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "jobs"))

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		expiry:   expiry,
		waitlist: wl,
		cfg:      cfg,
		log:      log,
	}
}

// Register adds both jobs to the schedule. It fails on an invalid spec.
func (s *Scheduler) Register() error {
	const op = "jobs.Scheduler.Register"

	if _, err := s.cron.AddFunc(s.cfg.ExpirySpec, func() { s.RunExpirySweep(context.Background()) }); err != nil {
		return fmt.Errorf("%s: expiry spec %q: %w", op, s.cfg.ExpirySpec, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.WaitlistSpec, func() { s.RunWaitlistSweep(context.Background()) }); err != nil {
		return fmt.Errorf("%s: waitlist spec %q: %w", op, s.cfg.WaitlistSpec, err)
	}

	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("jobs scheduled",
		slog.String("expiry", s.cfg.ExpirySpec),
		slog.String("waitlist", s.cfg.WaitlistSpec),
	)
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunExpirySweep releases expired reservations once.
func (s *Scheduler) RunExpirySweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	report, err := s.expiry.SweepExpiredReservations(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("expiry sweep failed",
			slog.Int("released", report.Released),
			slog.Int("failed", len(report.Errors)),
			slog.String("error", err.Error()),
		)
		return
	}

	if report.Scanned > 0 {
		s.log.Info("expiry sweep done",
			slog.Int("scanned", report.Scanned),
			slog.Int("released", report.Released),
			slog.Int("skipped", report.Skipped),
			slog.Duration("took", time.Since(start)),
		)
	}
}

// RunWaitlistSweep reconciles the waitlists of started sessions once.
func (s *Scheduler) RunWaitlistSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	report, err := s.waitlist.SweepStartedSessions(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("waitlist sweep failed",
			slog.Int("sessions", report.Sessions),
			slog.String("error", err.Error()),
		)
	}
}
