package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrStudioNotFound   = errors.New("studio not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrSessionCancelled = errors.New("session is cancelled")
	ErrInvalidLayout    = errors.New("invalid studio layout")
)

type LayoutError struct {
	Field  string
	Reason string
}

func (e LayoutError) Error() string {
	return fmt.Sprintf("layout %s: %s", e.Field, e.Reason)
}

func (e LayoutError) Unwrap() error {
	return ErrInvalidLayout
}
