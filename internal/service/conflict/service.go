package conflict

import (
	"context"
	"fmt"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Service struct {
	sessions Sessions
}

func New(sessions Sessions) *Service {
	return &Service{sessions: sessions}
}

// Check loads the non-cancelled sessions of the proposal's date that share
// its instructor or studio and reports the first overlap.
//
// Parameters:
//   - ctx: request-scoped context; when it carries a transaction the read
//     joins it.
//   - proposed: the session being scheduled. Its ID, when set, is excluded.
//
// Returns:
//   - error: *ConflictError on overlap, nil when the slot is free.
func (s *Service) Check(ctx context.Context, proposed domain.ClassSession) error {
	const op = "service.conflict.Check"

	existing, err := s.sessions.ActiveSessionsOn(
		ctx,
		proposed.Date,
		proposed.InstructorID,
		proposed.StudioID,
		proposed.ID,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if cerr := FindConflict(proposed, existing); cerr != nil {
		return cerr
	}
	return nil
}

// FindConflict returns the first session in existing that overlaps proposed
// on the instructor or studio axis. The instructor axis is reported when both
// apply. Cancelled sessions and the proposal itself are ignored.
func FindConflict(proposed domain.ClassSession, existing []domain.ClassSession) *ConflictError {
	for _, e := range existing {
		if e.Status == domain.SessionCancelled {
			continue
		}
		if proposed.ID != 0 && e.ID == proposed.ID {
			continue
		}
		if !e.Overlaps(proposed) {
			continue
		}

		switch {
		case e.InstructorID == proposed.InstructorID:
			return &ConflictError{Axis: AxisInstructor, Existing: e}
		case e.StudioID == proposed.StudioID:
			return &ConflictError{Axis: AxisStudio, Existing: e}
		}
	}
	return nil
}
