package conflict

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/classgo/internal/domain"
)

var ErrScheduleConflict = errors.New("schedule conflict")

type Axis string

const (
	AxisInstructor Axis = "instructor"
	AxisStudio     Axis = "studio"
)

// ConflictError names the session the proposal overlaps with and whether
// they share the instructor or the studio.
type ConflictError struct {
	Axis     Axis
	Existing domain.ClassSession
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf(
		"%s already booked from %s to %s",
		e.Axis,
		e.Existing.StartsAt.Format("15:04"),
		e.Existing.EndsAt.Format("15:04"),
	)
	if e.Existing.ID != 0 {
		msg += fmt.Sprintf(" (session %d)", e.Existing.ID)
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	return ErrScheduleConflict
}
