package notify

import (
	"context"
	"errors"

	"github.com/kirinyoku/classgo/internal/domain"
	redisrepo "github.com/kirinyoku/classgo/internal/repository/redis"
)

// RedisSink drops cached read models of the touched session and broadcasts
// the event to other instances.
type RedisSink struct {
	cache  *redisrepo.Cache
	pubsub *redisrepo.SessionsPubSub
}

func NewRedisSink(cache *redisrepo.Cache, pubsub *redisrepo.SessionsPubSub) *RedisSink {
	return &RedisSink{cache: cache, pubsub: pubsub}
}

func (s *RedisSink) Publish(ctx context.Context, ev domain.SeatEvent) error {
	if ev.SessionID == 0 {
		return nil
	}

	var errs []error
	if err := s.cache.InvalidateSession(ctx, ev.SessionID); err != nil {
		errs = append(errs, err)
	}
	if s.pubsub != nil {
		if err := s.pubsub.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
