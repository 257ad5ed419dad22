package waitlist

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrWaitlistClosed   = errors.New("waitlist is closed for this session")
	ErrSpotsAvailable   = errors.New("session still has available spots")
	ErrAlreadyWaiting   = errors.New("user is already on the waitlist")
	ErrAlreadyHoldsSeat = errors.New("user already holds a seat in this session")
)
