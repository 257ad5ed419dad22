package inventory

import (
	"context"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Studios interface {
	GetStudioForUpdate(ctx context.Context, id int64) (*domain.Studio, error)
	UpdateStudioLayout(ctx context.Context, id int64, layout domain.Layout) error
	ReplaceSeats(ctx context.Context, studioID int64, seats []domain.Seat) (int64, error)
	SetSeatActive(ctx context.Context, seatID int64, active bool) (*domain.Seat, error)
}

type Sessions interface {
	GetSessionForUpdate(ctx context.Context, id int64) (*domain.ClassSession, error)
	UpcomingSessionIDs(ctx context.Context, studioID int64, now time.Time) ([]int64, error)
	SyncCounters(ctx context.Context, sessionID int64) (domain.SpotCounters, error)
}

type Assignments interface {
	InitAssignments(ctx context.Context, sessionID int64) (int64, error)
	PurgeOrphanedAssignments(ctx context.Context, studioID int64, now time.Time) (int64, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev domain.SeatEvent)
}
