package domain

import (
	"time"
)

type AssignmentStatus string

const (
	AssignmentAvailable AssignmentStatus = "available"
	AssignmentReserved  AssignmentStatus = "reserved"
	AssignmentOccupied  AssignmentStatus = "occupied"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentBlocked   AssignmentStatus = "blocked"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentAvailable, AssignmentReserved, AssignmentOccupied, AssignmentCompleted, AssignmentBlocked:
		return true
	}
	return false
}

// Holds reports whether the status consumes a spot of the session.
func (s AssignmentStatus) Holds() bool {
	switch s {
	case AssignmentReserved, AssignmentOccupied, AssignmentCompleted:
		return true
	case AssignmentAvailable, AssignmentBlocked:
		return false
	}
	return false
}

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionPostponed  SessionStatus = "postponed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionCancelled, SessionPostponed:
		return true
	}
	return false
}

type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistExpired  WaitlistStatus = "expired"
	WaitlistPromoted WaitlistStatus = "promoted"
)

func (s WaitlistStatus) Valid() bool {
	switch s {
	case WaitlistWaiting, WaitlistExpired, WaitlistPromoted:
		return true
	}
	return false
}

type Studio struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Layout Layout `json:"layout"`
	Active bool   `json:"active"`
}

type Seat struct {
	ID       int64 `json:"id"`
	StudioID int64 `json:"studio_id"`
	Row      int   `json:"row"`
	Column   int   `json:"column"`
	Number   int   `json:"number"`
	Active   bool  `json:"active"`
}

type Class struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisciplineID int64  `json:"discipline_id"`
}

type Instructor struct {
	ID             int64  `json:"id"`
	DocumentNumber string `json:"document_number"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
}

// SpotCounters are derived from assignments and waitlist entries; see DeriveSpots.
type SpotCounters struct {
	Available int `json:"available"`
	Booked    int `json:"booked"`
	Waitlist  int `json:"waitlist"`
}

type ClassSession struct {
	ID                   int64         `json:"id"`
	ClassID              int64         `json:"class_id"`
	InstructorID         int64         `json:"instructor_id"`
	StudioID             int64         `json:"studio_id"`
	Date                 time.Time     `json:"date"`
	StartsAt             time.Time     `json:"starts_at"`
	EndsAt               time.Time     `json:"ends_at"`
	MaxCapacity          int           `json:"max_capacity"`
	Spots                SpotCounters  `json:"spots"`
	BookingOpensAt       *time.Time    `json:"booking_opens_at,omitempty"`
	BookingClosesAt      *time.Time    `json:"booking_closes_at,omitempty"`
	CancellationDeadline *time.Time    `json:"cancellation_deadline,omitempty"`
	IsHoliday            bool          `json:"is_holiday"`
	Status               SessionStatus `json:"status"`
}

// Duration is the scheduled length of the session.
func (s ClassSession) Duration() time.Duration {
	return s.EndsAt.Sub(s.StartsAt)
}

// Overlaps is a half-open interval test: sessions that only touch at a
// boundary do not overlap.
func (s ClassSession) Overlaps(o ClassSession) bool {
	return o.StartsAt.Before(s.EndsAt) && o.EndsAt.After(s.StartsAt)
}

// BookingOpen reports whether reservations are accepted at now.
func (s ClassSession) BookingOpen(now time.Time) bool {
	if s.Status != SessionScheduled {
		return false
	}
	if s.BookingOpensAt != nil && now.Before(*s.BookingOpensAt) {
		return false
	}
	if s.BookingClosesAt != nil && !now.Before(*s.BookingClosesAt) {
		return false
	}
	return now.Before(s.EndsAt)
}

type SeatAssignment struct {
	ID         int64            `json:"id"`
	SessionID  int64            `json:"session_id"`
	SeatID     *int64           `json:"seat_id,omitempty"` // nil once the seat was removed by a regeneration
	Status     AssignmentStatus `json:"status"`
	UserID     *int64           `json:"user_id,omitempty"`
	ReservedAt *time.Time       `json:"reserved_at,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// IsExpired reports whether a reservation outlived its TTL.
func (a SeatAssignment) IsExpired(now time.Time) bool {
	return a.Status == AssignmentReserved && a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// Orphaned assignments point at a seat that no longer exists.
func (a SeatAssignment) Orphaned() bool {
	return a.SeatID == nil
}

// SeatAssignmentView joins an assignment with its seat coordinates.
type SeatAssignmentView struct {
	SeatAssignment
	Row    int `json:"row"`
	Column int `json:"column"`
	Number int `json:"number"`
}

type WaitlistEntry struct {
	ID        int64          `json:"id"`
	SessionID int64          `json:"session_id"`
	UserID    int64          `json:"user_id"`
	PackageID *int64         `json:"package_id,omitempty"`
	Status    WaitlistStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

type SessionFilter struct {
	StudioID     *int64
	InstructorID *int64
	From         *time.Time
	To           *time.Time
	Status       *SessionStatus
	Limit        int
	Offset       int
}
