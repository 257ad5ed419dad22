package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a JSON read-through cache for session read models. Concurrent
// misses on the same key share a single load. Redis failures degrade to a
// plain load, and a nil *Cache always loads.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) read(ctx context.Context, key string, out any) bool {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

func (c *Cache) write(ctx context.Context, key string, val any, ttl time.Duration) {
	b, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, b, ttl).Err()
}

// GetOrSetJSON returns the cached value of key, or loads it, caches it for
// ttl and returns it. Loader errors are never cached.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	var cached T
	if c.read(ctx, key, &cached) {
		return cached, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		var again T
		if c.read(ctx, key, &again) {
			return again, nil
		}

		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.write(ctx, key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New("redisrepo: shared load returned an unexpected type")
	}
	return out, nil
}

// InvalidateSession drops every read model cached for the session.
func (c *Cache) InvalidateSession(ctx context.Context, sessionID int64) error {
	if c == nil {
		return nil
	}

	return c.rdb.Del(
		ctx,
		KeySessionSummary(sessionID),
		KeySessionAvailability(sessionID),
		KeySessionSeatMap(sessionID),
	).Err()
}
