package ledger

import (
	"context"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Sessions interface {
	GetSessionForUpdate(ctx context.Context, id int64) (*domain.ClassSession, error)
	UpdateSessionStatus(ctx context.Context, id int64, status domain.SessionStatus) error
	SyncCounters(ctx context.Context, sessionID int64) (domain.SpotCounters, error)
}

type Assignments interface {
	GetAssignment(ctx context.Context, id int64) (*domain.SeatAssignment, error)
	CompareAndSet(ctx context.Context, id int64, guard domain.Guard, next domain.AssignmentState) (*domain.SeatAssignment, error)
	ReleaseSessionAssignments(ctx context.Context, sessionID int64) (int64, error)
}

type Waitlist interface {
	ExpireWaiting(ctx context.Context, sessionID int64) (int64, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev domain.SeatEvent)
}
