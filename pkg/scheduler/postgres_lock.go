package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nimburion/docflow/pkg/observability/logger"
)

const (
	defaultPostgresLockTable     = "docflow_locks"
	defaultPostgresLockOperation = 3 * time.Second
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresLockProviderConfig configures the Postgres lock provider.
type PostgresLockProviderConfig struct {
	Table            string
	OperationTimeout time.Duration
}

func (c *PostgresLockProviderConfig) normalize() {
	if strings.TrimSpace(c.Table) == "" {
		c.Table = defaultPostgresLockTable
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultPostgresLockOperation
	}
}

// PostgresLockProvider stores lease rows in a Postgres table. Expiry is compared against
// the database clock so that skew between application hosts does not matter.
type PostgresLockProvider struct {
	db     *sql.DB
	log    logger.Logger
	config PostgresLockProviderConfig
}

// NewPostgresLockProvider creates the lock table if needed. The pool is shared and is not
// closed by Close.
func NewPostgresLockProvider(ctx context.Context, db *sql.DB, cfg PostgresLockProviderConfig, log logger.Logger) (*PostgresLockProvider, error) {
	provider, err := newPostgresLockProviderWithDB(db, cfg, log)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := provider.operationContext(ctx)
	defer cancel()
	if err := provider.ensureTable(opCtx); err != nil {
		return nil, errors.Join(schedulerError(ErrRetryable, "create lock table failed"), err)
	}
	return provider, nil
}

func newPostgresLockProviderWithDB(db *sql.DB, cfg PostgresLockProviderConfig, log logger.Logger) (*PostgresLockProvider, error) {
	if db == nil {
		return nil, schedulerError(ErrInvalidArgument, "db is required")
	}
	if log == nil {
		return nil, schedulerError(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, schedulerError(ErrValidation, fmt.Sprintf("invalid lock table name %q", cfg.Table))
	}
	return &PostgresLockProvider{db: db, log: log, config: cfg}, nil
}

// Acquire inserts the lease row, or takes it over when the current row is expired or
// already belongs to token.
func (p *PostgresLockProvider) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if p == nil || p.db == nil {
		return false, schedulerError(ErrNotInitialized, "postgres lock provider is not initialized")
	}
	if err := validateLockArgs(key, token); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}

	opCtx, cancel := p.operationContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
WITH upsert AS (
	INSERT INTO %[1]s(lock_key, token, expires_at, updated_at)
	VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond', NOW())
	ON CONFLICT(lock_key) DO UPDATE
	SET token = EXCLUDED.token,
	    expires_at = EXCLUDED.expires_at,
	    updated_at = NOW()
	WHERE %[1]s.expires_at <= NOW() OR %[1]s.token = EXCLUDED.token
	RETURNING 1
)
SELECT EXISTS(SELECT 1 FROM upsert)
`, p.config.Table)

	var acquired bool
	if err := p.db.QueryRowContext(opCtx, query, strings.TrimSpace(key), token, ttl.Milliseconds()).Scan(&acquired); err != nil {
		return false, errors.Join(schedulerError(ErrRetryable, "acquire lock failed"), err)
	}
	return acquired, nil
}

// Release deletes the lease row when token still matches.
func (p *PostgresLockProvider) Release(ctx context.Context, key, token string) (bool, error) {
	if p == nil || p.db == nil {
		return false, schedulerError(ErrNotInitialized, "postgres lock provider is not initialized")
	}
	if err := validateLockArgs(key, token); err != nil {
		return false, err
	}

	opCtx, cancel := p.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`DELETE FROM %s WHERE lock_key=$1 AND token=$2`, p.config.Table)
	result, err := p.db.ExecContext(opCtx, query, strings.TrimSpace(key), token)
	if err != nil {
		return false, errors.Join(schedulerError(ErrRetryable, "release lock failed"), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Join(schedulerError(ErrRetryable, "release lock failed"), err)
	}
	return affected > 0, nil
}

// HealthCheck pings the database.
func (p *PostgresLockProvider) HealthCheck(ctx context.Context) error {
	if p == nil || p.db == nil {
		return schedulerError(ErrNotInitialized, "postgres lock provider is not initialized")
	}
	opCtx, cancel := p.operationContext(ctx)
	defer cancel()
	if err := p.db.PingContext(opCtx); err != nil {
		return errors.Join(schedulerError(ErrRetryable, "postgres healthcheck failed"), err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the postgres store adapter.
func (p *PostgresLockProvider) Close() error {
	return nil
}

func (p *PostgresLockProvider) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	lock_key TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, p.config.Table)
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *PostgresLockProvider) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, p.config.OperationTimeout)
}
