package reaper

import (
	"context"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Assignments interface {
	ListExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]domain.SeatAssignment, error)
}

// Expirer releases a single expired reservation. It must only act when the
// assignment is still reserved and still expired at now.
type Expirer interface {
	Expire(ctx context.Context, assignmentID int64, now time.Time) (*domain.SeatAssignment, error)
}
