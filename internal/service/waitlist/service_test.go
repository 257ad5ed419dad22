package waitlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository/memory"
	"github.com/kirinyoku/classgo/internal/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.SeatEvent
}

func (r *recorder) Dispatch(_ context.Context, ev domain.SeatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t domain.SeatEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store       *memory.Store
	ledger      *ledger.Service
	svc         *Service
	events      *recorder
	sessionID   int64
	assignments []int64
	start       time.Time
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	f := &fixture{
		store:  memory.New(),
		events: &recorder{},
		start:  time.Date(2030, 6, 15, 9, 0, 0, 0, time.UTC),
		now:    time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.WithClock(clock)

	layout := domain.Layout{Rows: 1, Columns: 2, Addressing: domain.AddressingRowMajor}
	studioID := f.store.AddStudio(domain.Studio{Name: "Sala A", Layout: layout, Active: true})
	_, err := f.store.ReplaceSeats(ctx, studioID, domain.BuildSeatGrid(studioID, layout))
	require.NoError(t, err)

	f.sessionID, err = f.store.CreateSession(ctx, &domain.ClassSession{
		StudioID:    studioID,
		Date:        time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC),
		StartsAt:    f.start,
		EndsAt:      f.start.Add(time.Hour),
		MaxCapacity: 2,
	})
	require.NoError(t, err)
	_, err = f.store.InitAssignments(ctx, f.sessionID)
	require.NoError(t, err)
	_, err = f.store.SyncCounters(ctx, f.sessionID)
	require.NoError(t, err)

	views, err := f.store.ListAssignments(ctx, f.sessionID)
	require.NoError(t, err)
	for _, v := range views {
		f.assignments = append(f.assignments, v.ID)
	}

	f.ledger = ledger.New(f.store, f.store, f.store, f.store, f.events, ledger.Config{}).WithClock(clock)
	f.svc = New(f.store, f.store, f.store, f.store, f.ledger, f.events, Config{}, nil).WithClock(clock)
	f.ledger.OnSeatFreed(f.svc.HandleSeatFreed)

	return f
}

// fill reserves every seat, seat i for user i+1.
func (f *fixture) fill(t *testing.T) {
	t.Helper()
	for i, id := range f.assignments {
		_, err := f.ledger.Reserve(context.Background(), id, int64(i+1), 0)
		require.NoError(t, err)
	}
}

func (f *fixture) spots(t *testing.T) domain.SpotCounters {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.True(t, s.Spots.Consistent(s.MaxCapacity))
	return s.Spots
}

func (f *fixture) entry(t *testing.T, userID int64) domain.WaitlistEntry {
	t.Helper()
	for _, e := range f.store.Waitlist(f.sessionID) {
		if e.UserID == userID {
			return e
		}
	}
	t.Fatalf("no waitlist entry for user %d", userID)
	return domain.WaitlistEntry{}
}

func TestJoinRequiresFullSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Join(context.Background(), f.sessionID, 10, nil)
	assert.ErrorIs(t, err, ErrSpotsAvailable)
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t)

	pkg := int64(77)
	e, err := f.svc.Join(ctx, f.sessionID, 10, &pkg)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistWaiting, e.Status)
	require.NotNil(t, e.PackageID)
	assert.Equal(t, pkg, *e.PackageID)

	_, err = f.svc.Join(ctx, f.sessionID, 10, nil)
	assert.ErrorIs(t, err, ErrAlreadyWaiting)

	_, err = f.svc.Join(ctx, f.sessionID, 1, nil)
	assert.ErrorIs(t, err, ErrAlreadyHoldsSeat)

	_, err = f.svc.Join(ctx, 9999, 10, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, domain.SpotCounters{Booked: 2}, f.spots(t))
	assert.Equal(t, 1, f.events.count(domain.SeatEventWaitlistJoined))
}

func TestJoinClosedAfterStart(t *testing.T) {
	f := newFixture(t)
	f.fill(t)
	f.now = f.start

	_, err := f.svc.Join(context.Background(), f.sessionID, 10, nil)
	assert.ErrorIs(t, err, ErrWaitlistClosed)
}

func TestReleasePromotesOldestWaitingUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t)

	_, err := f.svc.Join(ctx, f.sessionID, 10, nil)
	require.NoError(t, err)
	f.now = f.now.Add(time.Second)
	_, err = f.svc.Join(ctx, f.sessionID, 11, nil)
	require.NoError(t, err)

	_, err = f.ledger.Release(ctx, f.assignments[0])
	require.NoError(t, err)

	a, err := f.store.GetAssignment(ctx, f.assignments[0])
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentReserved, a.Status)
	require.NotNil(t, a.UserID)
	assert.Equal(t, int64(10), *a.UserID)

	assert.Equal(t, domain.WaitlistPromoted, f.entry(t, 10).Status)
	assert.Equal(t, domain.WaitlistWaiting, f.entry(t, 11).Status)
	assert.Equal(t, 1, f.events.count(domain.SeatEventPromoted))
	assert.Equal(t, domain.SpotCounters{Booked: 2}, f.spots(t))
}

func TestPromoteNextWithoutFreeSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t)

	_, err := f.svc.Join(ctx, f.sessionID, 10, nil)
	require.NoError(t, err)

	e, err := f.svc.PromoteNext(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, domain.WaitlistWaiting, f.entry(t, 10).Status)
}

func TestPromoteWaitlistForSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t)

	_, err := f.svc.Join(ctx, f.sessionID, 10, nil)
	require.NoError(t, err)
	// User 1 holds a seat and was queued through another path.
	_, err = f.store.JoinWaitlist(ctx, f.sessionID, 1, nil)
	require.NoError(t, err)

	report, err := f.svc.PromoteWaitlistForSession(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, PromotionReport{}, report)
	assert.Equal(t, domain.WaitlistWaiting, f.entry(t, 10).Status)

	f.now = f.start

	report, err = f.svc.PromoteWaitlistForSession(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, PromotionReport{Kept: 1, Expired: 1}, report)

	assert.Equal(t, domain.WaitlistExpired, f.entry(t, 10).Status)
	assert.Equal(t, domain.WaitlistWaiting, f.entry(t, 1).Status)
	assert.Equal(t, 1, f.events.count(domain.SeatEventWaitlistExpired))

	_, err = f.svc.PromoteWaitlistForSession(ctx, 9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepStartedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t)

	_, err := f.svc.Join(ctx, f.sessionID, 10, nil)
	require.NoError(t, err)

	report, err := f.svc.SweepStartedSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sessions)

	f.now = f.start.Add(time.Minute)

	report, err = f.svc.SweepStartedSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Sessions: 1, Expired: 1}, report)

	report, err = f.svc.SweepStartedSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sessions)
}

func TestSweepSkipsSessionsWhoseWaitersHoldSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t)

	// User 1 holds a seat in the earlier session, so the entry is kept on
	// every run.
	_, err := f.store.JoinWaitlist(ctx, f.sessionID, 1, nil)
	require.NoError(t, err)

	sess, err := f.store.GetSession(ctx, f.sessionID)
	require.NoError(t, err)
	later, err := f.store.CreateSession(ctx, &domain.ClassSession{
		StudioID:    sess.StudioID,
		Date:        sess.Date,
		StartsAt:    f.start.Add(2 * time.Hour),
		EndsAt:      f.start.Add(3 * time.Hour),
		MaxCapacity: 2,
	})
	require.NoError(t, err)
	_, err = f.store.JoinWaitlist(ctx, later, 20, nil)
	require.NoError(t, err)

	svc := New(f.store, f.store, f.store, f.store, f.ledger, f.events, Config{SweepBatch: 1}, nil).
		WithClock(func() time.Time { return f.now })
	f.now = f.start.Add(3 * time.Hour)

	report, err := svc.SweepStartedSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Sessions: 1, Expired: 1}, report)

	entries := f.store.Waitlist(later)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.WaitlistExpired, entries[0].Status)
	assert.Equal(t, domain.WaitlistWaiting, f.entry(t, 1).Status)

	report, err = svc.SweepStartedSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sessions)
}

func TestJoinWhenCapacityExceedsSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.store.GetSession(ctx, f.sessionID)
	require.NoError(t, err)
	oversized, err := f.store.CreateSession(ctx, &domain.ClassSession{
		StudioID:    sess.StudioID,
		Date:        sess.Date,
		StartsAt:    f.start.Add(2 * time.Hour),
		EndsAt:      f.start.Add(3 * time.Hour),
		MaxCapacity: 3,
	})
	require.NoError(t, err)
	_, err = f.store.InitAssignments(ctx, oversized)
	require.NoError(t, err)

	views, err := f.store.ListAssignments(ctx, oversized)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for i, v := range views {
		_, err := f.ledger.Reserve(ctx, v.ID, int64(i+1), 0)
		require.NoError(t, err)
	}

	full, err := f.store.GetSession(ctx, oversized)
	require.NoError(t, err)
	assert.Equal(t, domain.SpotCounters{Booked: 2}, full.Spots)

	e, err := f.svc.Join(ctx, oversized, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistWaiting, e.Status)

	full, err = f.store.GetSession(ctx, oversized)
	require.NoError(t, err)
	assert.Equal(t, domain.SpotCounters{Booked: 2}, full.Spots)
	assert.True(t, full.Spots.Consistent(full.MaxCapacity))
}
