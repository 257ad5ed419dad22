package waitlist

import (
	"context"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Sessions interface {
	GetSession(ctx context.Context, id int64) (*domain.ClassSession, error)
	GetSessionForUpdate(ctx context.Context, id int64) (*domain.ClassSession, error)
	SyncCounters(ctx context.Context, sessionID int64) (domain.SpotCounters, error)
	StartedSessionsWithWaitlist(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

type Entries interface {
	JoinWaitlist(ctx context.Context, sessionID, userID int64, packageID *int64) (*domain.WaitlistEntry, error)
	ListWaiting(ctx context.Context, sessionID int64) ([]domain.WaitlistEntry, error)
	SetWaitlistStatus(ctx context.Context, id int64, from, to domain.WaitlistStatus) error
}

type Assignments interface {
	UserHoldsSeat(ctx context.Context, sessionID, userID int64) (bool, error)
	FirstAvailableAssignment(ctx context.Context, sessionID int64) (*domain.SeatAssignment, error)
}

// Ledger reserves the freed seat for a promoted user.
type Ledger interface {
	ReserveForWaitlist(ctx context.Context, assignmentID, userID int64, ttl time.Duration) (*domain.SeatAssignment, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev domain.SeatEvent)
}
