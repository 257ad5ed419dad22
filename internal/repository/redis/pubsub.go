package redisrepo

import (
	"context"
	"encoding/json"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionsPubSub broadcasts committed seat events so every instance can push
// them to connected clients.
type SessionsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSessionsPubSub(rdb *redis.Client) *SessionsPubSub {
	return &SessionsPubSub{
		rdb:     rdb,
		channel: ChannelSessionsChanged(),
	}
}

func (p *SessionsPubSub) Publish(ctx context.Context, ev domain.SeatEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers events until ctx is cancelled. Malformed payloads and
// events without a session are dropped.
func (p *SessionsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, ev domain.SeatEvent)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.SeatEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.SessionID != 0 {
				handler(ctx, ev)
			}
		}
	}
}
