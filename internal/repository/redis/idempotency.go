package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock   = "LOCK"
	idemPrefix = "RES:"
)

type IdemState int

const (
	// IdemAcquired means the caller owns the key and must either save a result
	// or release it.
	IdemAcquired IdemState = iota
	// IdemReplay means a previous request completed; its payload is returned.
	IdemReplay
	// IdemInProgress means another request holds the key.
	IdemInProgress
)

// IdempotencyStore remembers the response of a request per Idempotency-Key.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Begin returns the stored payload when the key already completed, otherwise
// tries to take the key for lockTTL.
func (s *IdempotencyStore) Begin(ctx context.Context, key string, lockTTL time.Duration) (string, IdemState, error) {
	if payload, ok, err := s.result(ctx, key); err != nil || ok {
		return payload, IdemReplay, err
	}

	locked, err := s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
	if err != nil {
		return "", IdemInProgress, err
	}
	if locked {
		return "", IdemAcquired, nil
	}

	// the holder may have finished between the two reads
	if payload, ok, err := s.result(ctx, key); err != nil || ok {
		return payload, IdemReplay, err
	}

	return "", IdemInProgress, nil
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemPrefix+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *IdempotencyStore) result(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(v, idemPrefix) {
		return strings.TrimPrefix(v, idemPrefix), true, nil
	}

	return "", false, nil
}
