package query

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	events []domain.SeatEvent
}

func (f fakeSubscriber) Subscribe(ctx context.Context, handler func(context.Context, domain.SeatEvent)) error {
	for _, ev := range f.events {
		handler(ctx, ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

func seed(t *testing.T) (*memory.Store, int64, int64) {
	t.Helper()

	ctx := context.Background()
	store := memory.New()

	layout := domain.Layout{Rows: 2, Columns: 2, Addressing: domain.AddressingRowMajor}
	studioID := store.AddStudio(domain.Studio{Name: "Sala A", Layout: layout, Active: true})
	_, err := store.ReplaceSeats(ctx, studioID, domain.BuildSeatGrid(studioID, layout))
	require.NoError(t, err)

	var sessionID int64
	for i := 0; i < 3; i++ {
		start := time.Date(2030, 6, 15+i, 9, 0, 0, 0, time.UTC)
		id, err := store.CreateSession(ctx, &domain.ClassSession{
			StudioID:     studioID,
			InstructorID: int64(1 + i%2),
			Date:         time.Date(2030, 6, 15+i, 0, 0, 0, 0, time.UTC),
			StartsAt:     start,
			EndsAt:       start.Add(time.Hour),
			MaxCapacity:  4,
		})
		require.NoError(t, err)
		if i == 0 {
			sessionID = id
		}
	}

	_, err = store.InitAssignments(ctx, sessionID)
	require.NoError(t, err)
	_, err = store.SyncCounters(ctx, sessionID)
	require.NoError(t, err)

	return store, studioID, sessionID
}

func TestGetSessionAndAvailability(t *testing.T) {
	store, _, sessionID := seed(t)
	ctx := context.Background()

	now := time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)
	svc := New(store, store, nil, nil, Config{}).WithClock(func() time.Time { return now })

	s, err := svc.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, s.ID)

	a, err := svc.Availability(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SpotCounters{Available: 4}, a.Spots)
	assert.True(t, a.BookingOpen)

	_, err = svc.GetSession(ctx, 9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Availability(ctx, 9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSeatMap(t *testing.T) {
	store, _, sessionID := seed(t)
	svc := New(store, store, nil, nil, Config{})

	seats, err := svc.SeatMap(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, seats, 4)
	assert.Equal(t, 1, seats[0].Row)
	assert.Equal(t, 1, seats[0].Column)
	assert.Equal(t, 2, seats[3].Row)
	assert.Equal(t, 2, seats[3].Column)

	_, err = svc.SeatMap(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsPaging(t *testing.T) {
	store, studioID, _ := seed(t)
	svc := New(store, store, nil, nil, Config{DefaultPage: 2, MaxPage: 2})
	ctx := context.Background()

	page, err := svc.ListSessions(ctx, domain.SessionFilter{StudioID: &studioID})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = svc.ListSessions(ctx, domain.SessionFilter{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	instructor := int64(2)
	page, err = svc.ListSessions(ctx, domain.SessionFilter{InstructorID: &instructor})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 16, page[0].Date.Day())
}

func TestStreamFiltersBySession(t *testing.T) {
	store, _, sessionID := seed(t)

	sub := fakeSubscriber{events: []domain.SeatEvent{
		{Type: domain.SeatEventReserved, SessionID: sessionID},
		{Type: domain.SeatEventReserved, SessionID: sessionID + 1},
		{Type: domain.SeatEventReleased, SessionID: sessionID},
	}}
	svc := New(store, store, nil, sub, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	var got []domain.SeatEventType
	err := svc.Stream(ctx, sessionID, func(ev domain.SeatEvent) {
		got = append(got, ev.Type)
		if len(got) == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.SeatEventType{domain.SeatEventReserved, domain.SeatEventReleased}, got)
}

func TestStreamWithoutSubscriber(t *testing.T) {
	store, _, sessionID := seed(t)
	svc := New(store, store, nil, nil, Config{})

	err := svc.Stream(context.Background(), sessionID, func(domain.SeatEvent) {})
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}
