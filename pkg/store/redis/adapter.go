// Package redis owns the process-wide Redis client shared by the lock provider and the
// session store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/docflow/pkg/observability/logger"
)

const (
	defaultOperationTimeout = 3 * time.Second
	defaultDialTimeout      = 5 * time.Second
)

// Config holds Redis connection configuration.
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

// Adapter wraps a pooled Redis client with lifecycle and health checks.
type Adapter struct {
	client redis.UniversalClient
	logger logger.Logger
	config Config
}

// NewAdapter parses cfg.URL, connects and pings. A failed ping is a startup failure.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		opts.PoolSize = cfg.MaxConns
	}
	opts.DialTimeout = defaultDialTimeout
	opts.ReadTimeout = cfg.OperationTimeout
	opts.WriteTimeout = cfg.OperationTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("redis connection established",
		"addr", opts.Addr,
		"db", opts.DB,
		"operation_timeout", cfg.OperationTimeout,
	)

	return &Adapter{client: client, logger: log, config: cfg}, nil
}

// NewAdapterFromClient wraps an existing client without pinging it.
func NewAdapterFromClient(client redis.UniversalClient, log logger.Logger) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Adapter{
		client: client,
		logger: log,
		config: Config{OperationTimeout: defaultOperationTimeout},
	}, nil
}

// Client returns the shared client.
func (a *Adapter) Client() redis.UniversalClient {
	return a.client
}

// OperationTimeout is the per-call bound consumers should apply.
func (a *Adapter) OperationTimeout() time.Duration {
	return a.config.OperationTimeout
}

// HealthCheck pings Redis.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.OperationTimeout)
	defer cancel()

	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (a *Adapter) Close() error {
	if err := a.client.Close(); err != nil {
		a.logger.Error("failed to close redis connection", "error", err)
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	a.logger.Info("redis connection closed")
	return nil
}
