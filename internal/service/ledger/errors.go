package ledger

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/classgo/internal/domain"
)

var (
	ErrSeatUnavailable    = errors.New("seat is unavailable")
	ErrInvalidTransition  = errors.New("invalid seat transition")
	ErrBookingClosed      = errors.New("booking is closed for this session")
	ErrAssignmentNotFound = errors.New("seat assignment not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrReservationExpired = errors.New("reservation is expired")
	ErrSessionClosed      = errors.New("session is already completed")
)

// TransitionError reports an event that the assignment status does not allow.
type TransitionError struct {
	AssignmentID int64
	From         domain.AssignmentStatus
	Event        domain.AssignmentEvent
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("assignment %d: %s not allowed from %s", e.AssignmentID, e.Event, e.From)
}

func (e TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
