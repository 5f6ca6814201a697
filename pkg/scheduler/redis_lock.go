package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisLockPrefix       = "docflow:lock"
	defaultRedisOperationTimeout = 3 * time.Second
)

var (
	acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
if current then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisLockProviderConfig configures distributed locks backed by Redis.
type RedisLockProviderConfig struct {
	Prefix           string
	OperationTimeout time.Duration
}

func (c *RedisLockProviderConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = DefaultRedisLockPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultRedisOperationTimeout
	}
}

// RedisLockProvider implements LockProvider with Lua scripts so that the owner check and
// the write happen atomically on the server.
type RedisLockProvider struct {
	client redis.UniversalClient
	log    logger.Logger
	config RedisLockProviderConfig
}

// NewRedisLockProvider builds a provider on a shared client. The client is not owned:
// Close does not close it.
func NewRedisLockProvider(client redis.UniversalClient, cfg RedisLockProviderConfig, log logger.Logger) (*RedisLockProvider, error) {
	if client == nil {
		return nil, schedulerError(ErrInvalidArgument, "redis client is required")
	}
	if log == nil {
		return nil, schedulerError(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()
	return &RedisLockProvider{client: client, log: log, config: cfg}, nil
}

// Acquire implements LockProvider.
func (p *RedisLockProvider) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if p == nil || p.client == nil {
		return false, schedulerError(ErrNotInitialized, "redis lock provider is not initialized")
	}
	if err := validateLockArgs(key, token); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}

	opCtx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()
	result, err := acquireScript.Run(opCtx, p.client, []string{p.fullKey(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Join(schedulerError(ErrRetryable, "acquire lock failed"), err)
	}
	return result == 1, nil
}

// Release implements LockProvider.
func (p *RedisLockProvider) Release(ctx context.Context, key, token string) (bool, error) {
	if p == nil || p.client == nil {
		return false, schedulerError(ErrNotInitialized, "redis lock provider is not initialized")
	}
	if err := validateLockArgs(key, token); err != nil {
		return false, err
	}

	opCtx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()
	result, err := releaseScript.Run(opCtx, p.client, []string{p.fullKey(key)}, token).Int64()
	if err != nil {
		return false, errors.Join(schedulerError(ErrRetryable, "release lock failed"), err)
	}
	return result > 0, nil
}

// HealthCheck verifies Redis connectivity.
func (p *RedisLockProvider) HealthCheck(ctx context.Context) error {
	if p == nil || p.client == nil {
		return schedulerError(ErrNotInitialized, "redis lock provider is not initialized")
	}
	opCtx, cancel := context.WithTimeout(ctx, p.config.OperationTimeout)
	defer cancel()
	if err := p.client.Ping(opCtx).Err(); err != nil {
		return errors.Join(schedulerError(ErrRetryable, "redis healthcheck failed"), err)
	}
	return nil
}

// Close is a no-op; the shared client belongs to the redis store adapter.
func (p *RedisLockProvider) Close() error {
	return nil
}

func (p *RedisLockProvider) fullKey(key string) string {
	return strings.TrimRight(p.config.Prefix, ":") + ":" + strings.TrimSpace(key)
}

func validateLockArgs(key, token string) error {
	if strings.TrimSpace(key) == "" {
		return schedulerError(ErrInvalidArgument, "lock key is required")
	}
	if strings.TrimSpace(token) == "" {
		return schedulerError(ErrInvalidArgument, "lock token is required")
	}
	return nil
}
