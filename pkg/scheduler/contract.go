// Package scheduler runs periodic maintenance work under a fleet-wide lease so that at
// most one process performs a given task at any instant.
package scheduler

import (
	"context"
	"time"
)

// LockProvider is the backing store for lease records. Mutual exclusion is enforced by
// the store's conditional writes, never by in-process state.
type LockProvider interface {
	// Acquire sets key to token with expiry ttl when the key is absent or already holds
	// token. Contention returns (false, nil).
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release deletes key only when it still holds token and reports whether a record
	// was removed.
	Release(ctx context.Context, key, token string) (bool, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
