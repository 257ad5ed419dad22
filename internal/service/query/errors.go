package query

import (
	"errors"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrStreamUnavailable = errors.New("event stream is not configured")
)
