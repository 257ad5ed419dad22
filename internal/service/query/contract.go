package query

import (
	"context"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Sessions interface {
	GetSession(ctx context.Context, id int64) (*domain.ClassSession, error)
	ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.ClassSession, error)
}

type Assignments interface {
	ListAssignments(ctx context.Context, sessionID int64) ([]domain.SeatAssignmentView, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, ev domain.SeatEvent)) error
}
