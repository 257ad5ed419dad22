package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutStampsAndDeliversToAllSinks(t *testing.T) {
	var got []domain.SeatEvent

	record := SinkFunc(func(_ context.Context, ev domain.SeatEvent) error {
		got = append(got, ev)
		return nil
	})
	failing := SinkFunc(func(context.Context, domain.SeatEvent) error {
		return errors.New("broker down")
	})

	f := NewFanout(nil, failing, nil, record)
	f.Dispatch(context.Background(), domain.SeatEvent{Type: domain.SeatEventReserved, SessionID: 3})

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].At.IsZero())
	assert.Equal(t, int64(3), got[0].SessionID)
}

func TestFanoutKeepsExistingID(t *testing.T) {
	var got domain.SeatEvent
	f := NewFanout(nil, SinkFunc(func(_ context.Context, ev domain.SeatEvent) error {
		got = ev
		return nil
	}))

	f.Dispatch(context.Background(), domain.SeatEvent{ID: "abc", Type: domain.SeatEventReleased})

	assert.Equal(t, "abc", got.ID)
}
