package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisConfig configures the Redis-backed session store.
type RedisConfig struct {
	OperationTimeout time.Duration
}

// RedisStore persists session payloads in Redis with SET ... EX. The client is shared
// with the lock provider and is not closed by the store.
type RedisStore struct {
	client    redisClient
	opTimeout time.Duration
}

// NewRedisStore creates a Redis-backed session store on an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis session store client is required")
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisStore{
		client:    client,
		opTimeout: timeout,
	}, nil
}

// Get fetches a raw session payload.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	innerCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.client.Get(innerCtx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			recordStoreOp("get", "miss")
			return nil, ErrNotFound
		}
		recordStoreOp("get", "error")
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}
	recordStoreOp("get", "hit")
	return raw, nil
}

// Set stores a payload; ttl <= 0 means DefaultTTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	innerCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(innerCtx, key, value, ttl).Err(); err != nil {
		recordStoreOp("set", "error")
		return fmt.Errorf("set session %s: %w", key, err)
	}
	recordStoreOp("set", "ok")
	return nil
}

// Delete removes a session payload. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	innerCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(innerCtx, key).Err(); err != nil {
		recordStoreOp("delete", "error")
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	recordStoreOp("delete", "ok")
	return nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	innerCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(innerCtx).Err()
}
