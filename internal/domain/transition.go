package domain

import "time"

type AssignmentEvent string

const (
	EventReserve         AssignmentEvent = "reserve"
	EventConfirm         AssignmentEvent = "confirm"
	EventConfirmComplete AssignmentEvent = "confirm_complete"
	EventComplete        AssignmentEvent = "complete"
	EventRelease         AssignmentEvent = "release"
	EventExpire          AssignmentEvent = "expire"
	EventBlock           AssignmentEvent = "block"
	EventCancelSession   AssignmentEvent = "cancel_session"
)

// Transition returns the status an assignment moves to when ev is applied in
// status from. ok is false when the transition is not allowed.
func Transition(from AssignmentStatus, ev AssignmentEvent) (to AssignmentStatus, ok bool) {
	switch ev {
	case EventReserve:
		if from == AssignmentAvailable {
			return AssignmentReserved, true
		}
	case EventConfirm:
		if from == AssignmentReserved {
			return AssignmentOccupied, true
		}
	case EventConfirmComplete:
		if from == AssignmentReserved {
			return AssignmentCompleted, true
		}
	case EventComplete:
		if from == AssignmentOccupied {
			return AssignmentCompleted, true
		}
	case EventRelease, EventCancelSession:
		switch from {
		case AssignmentAvailable, AssignmentReserved, AssignmentOccupied, AssignmentBlocked:
			return AssignmentAvailable, true
		case AssignmentCompleted:
			return "", false
		}
	case EventExpire:
		if from == AssignmentReserved {
			return AssignmentAvailable, true
		}
	case EventBlock:
		switch from {
		case AssignmentAvailable, AssignmentReserved:
			return AssignmentBlocked, true
		case AssignmentOccupied, AssignmentCompleted, AssignmentBlocked:
			return "", false
		}
	}
	return "", false
}

var allAssignmentStatuses = []AssignmentStatus{
	AssignmentAvailable,
	AssignmentReserved,
	AssignmentOccupied,
	AssignmentCompleted,
	AssignmentBlocked,
}

// SourceStates lists the statuses from which ev is allowed. Used as the
// guard of conditional updates.
func SourceStates(ev AssignmentEvent) []AssignmentStatus {
	var out []AssignmentStatus
	for _, s := range allAssignmentStatuses {
		if _, ok := Transition(s, ev); ok {
			out = append(out, s)
		}
	}
	return out
}

// Guard is the precondition of a conditional assignment update.
type Guard struct {
	From []AssignmentStatus
	// ExpiredBefore, when set, additionally requires expires_at < ExpiredBefore.
	ExpiredBefore *time.Time
}

// AssignmentState is the full mutable part of an assignment written by a
// conditional update.
type AssignmentState struct {
	Status     AssignmentStatus
	UserID     *int64
	ReservedAt *time.Time
	ExpiresAt  *time.Time
}

// Matches reports whether a satisfies the guard.
func (g Guard) Matches(a SeatAssignment) bool {
	found := false
	for _, s := range g.From {
		if s == a.Status {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if g.ExpiredBefore != nil {
		return a.ExpiresAt != nil && a.ExpiresAt.Before(*g.ExpiredBefore)
	}
	return true
}

// Apply writes st over a, returning the updated copy.
func (st AssignmentState) Apply(a SeatAssignment) SeatAssignment {
	a.Status = st.Status
	a.UserID = st.UserID
	a.ReservedAt = st.ReservedAt
	a.ExpiresAt = st.ExpiresAt
	return a
}
