package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveWindowScript keeps one sorted set member per reserve attempt, scored
// by its time in milliseconds, and trims members older than the window.
// Rejected attempts are not recorded, so a client that keeps retrying is let
// through as soon as its oldest accepted attempt leaves the window.
//
// KEYS[1] window key; ARGV: now_ms, window_ms, limit, member.
// Returns {allowed, attempts_in_window, retry_after_ms}.
var reserveWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local used = redis.call('ZCARD', KEYS[1])
if used >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local wait = window
  if oldest[2] then
    wait = tonumber(oldest[2]) + window - now
  end
  if wait < 0 then wait = 0 end
  return {0, used, wait}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, used + 1, 0}
`)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed bool
	// Current is the number of accepted attempts in the window, this one
	// included when allowed.
	Current    int64
	Remaining  int64
	RetryAfter time.Duration
}

// SlidingWindowLimiter caps attempts per key over a rolling window. A limit
// of zero or less disables it.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	prefix string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records an attempt for suffix when it fits the window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, suffix string) (Decision, error) {
	const op = "redisrepo.SlidingWindowLimiter.Allow"

	if l.limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	vals, err := reserveWindowScript.Run(
		ctx,
		l.rdb,
		[]string{l.prefix + ":" + suffix},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s:%w", op, err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("%s: unexpected script reply %v", op, vals)
	}

	d := Decision{
		Allowed:    vals[0] == 1,
		Current:    vals[1],
		Remaining:  int64(l.limit) - vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}
