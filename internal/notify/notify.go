package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classgo/internal/domain"
)

// Sink receives committed seat events.
type Sink interface {
	Publish(ctx context.Context, ev domain.SeatEvent) error
}

// Fanout delivers every event to all sinks. Delivery is best effort: the
// change is already committed, so sink failures are logged and dropped.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}

	var kept []Sink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}

	return &Fanout{
		sinks:   kept,
		logger:  logger,
		timeout: 3 * time.Second,
		now:     time.Now,
	}
}

// Dispatch stamps ev with an ID and time when missing and publishes it.
func (f *Fanout) Dispatch(ctx context.Context, ev domain.SeatEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = f.now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			f.logger.Warn("seat event delivery failed",
				slog.String("event_id", ev.ID),
				slog.String("type", string(ev.Type)),
				slog.Int64("session_id", ev.SessionID),
				slog.Any("err", err),
			)
		}
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev domain.SeatEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev domain.SeatEvent) error {
	return f(ctx, ev)
}
