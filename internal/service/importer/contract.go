package importer

import (
	"context"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Catalog interface {
	ClassByName(ctx context.Context, name string) (*domain.Class, error)
	InstructorByDocument(ctx context.Context, document string) (*domain.Instructor, error)
	SuggestInstructors(ctx context.Context, fragment string, limit int) ([]string, error)
	StudioByName(ctx context.Context, name string) (*domain.Studio, error)
	SuggestStudios(ctx context.Context, fragment string, limit int) ([]string, error)
	InstructorCertified(ctx context.Context, instructorID, disciplineID int64) (bool, error)
	CountActiveSeats(ctx context.Context, studioID int64) (int, error)
}

type ConflictChecker interface {
	Check(ctx context.Context, proposed domain.ClassSession) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s *domain.ClassSession) (int64, error)
	SyncCounters(ctx context.Context, sessionID int64) (domain.SpotCounters, error)
	LockSchedule(ctx context.Context, key string) error
}

type Assignments interface {
	InitAssignments(ctx context.Context, sessionID int64) (int64, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev domain.SeatEvent)
}
