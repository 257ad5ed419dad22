package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirinyoku/classgo/internal/service/reaper"
	"github.com/kirinyoku/classgo/internal/service/waitlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpiry struct {
	calls    int
	deadline bool
	err      error
}

func (f *fakeExpiry) SweepExpiredReservations(ctx context.Context) (reaper.SweepReport, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	return reaper.SweepReport{Scanned: 2, Released: 2}, f.err
}

type fakeWaitlist struct {
	calls int
	err   error
}

func (f *fakeWaitlist) SweepStartedSessions(context.Context) (waitlist.SweepReport, error) {
	f.calls++
	return waitlist.SweepReport{Sessions: 1}, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New(&fakeExpiry{}, &fakeWaitlist{}, Config{ExpirySpec: "not a spec"}, quietLogger())

	err := s.Register()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expiry spec")
}

func TestRegisterDefaults(t *testing.T) {
	s := New(&fakeExpiry{}, &fakeWaitlist{}, Config{}, quietLogger())

	require.NoError(t, s.Register())
	assert.Len(t, s.cron.Entries(), 2)
	assert.Equal(t, "@every 1m", s.cfg.ExpirySpec)
	assert.Equal(t, time.Minute, s.cfg.Timeout)
}

func TestRunJobs(t *testing.T) {
	exp := &fakeExpiry{}
	wl := &fakeWaitlist{err: errors.New("boom")}
	s := New(exp, wl, Config{Timeout: time.Second}, quietLogger())

	s.RunExpirySweep(context.Background())
	s.RunWaitlistSweep(context.Background())

	assert.Equal(t, 1, exp.calls)
	assert.True(t, exp.deadline)
	assert.Equal(t, 1, wl.calls)
}

func TestStartStop(t *testing.T) {
	s := New(&fakeExpiry{}, &fakeWaitlist{}, Config{}, quietLogger())
	require.NoError(t, s.Register())

	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
