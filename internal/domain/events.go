package domain

import "time"

type SeatEventType string

const (
	SeatEventReserved         SeatEventType = "seat.reserved"
	SeatEventConfirmed        SeatEventType = "seat.confirmed"
	SeatEventCompleted        SeatEventType = "seat.completed"
	SeatEventReleased         SeatEventType = "seat.released"
	SeatEventExpired          SeatEventType = "seat.expired"
	SeatEventBlocked          SeatEventType = "seat.blocked"
	SeatEventPromoted         SeatEventType = "waitlist.promoted"
	SeatEventWaitlistJoined   SeatEventType = "waitlist.joined"
	SeatEventWaitlistExpired  SeatEventType = "waitlist.expired"
	SeatEventSessionCancelled SeatEventType = "session.cancelled"
	SeatEventSessionCreated   SeatEventType = "session.created"
	SeatEventSeatsGenerated   SeatEventType = "studio.seats_generated"
)

// SeatEvent is dispatched after a committed change to seats, assignments,
// waitlist entries or sessions.
type SeatEvent struct {
	ID           string        `json:"id"`
	Type         SeatEventType `json:"type"`
	SessionID    int64         `json:"session_id,omitempty"`
	StudioID     int64         `json:"studio_id,omitempty"`
	AssignmentID int64         `json:"assignment_id,omitempty"`
	UserID       *int64        `json:"user_id,omitempty"`
	At           time.Time     `json:"at"`
}
