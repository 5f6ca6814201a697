package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DistributedLock is a named lease held under a single owner token. The value is
// immutable; each Acquire creates or refreshes the backing record.
type DistributedLock struct {
	provider LockProvider
	name     string
	token    string
	timeout  time.Duration
}

// NewOwnerToken returns a fresh opaque owner identity.
func NewOwnerToken() string {
	return uuid.NewString()
}

// NewDistributedLock binds name, token and timeout to a provider.
func NewDistributedLock(provider LockProvider, name, token string, timeout time.Duration) (*DistributedLock, error) {
	if provider == nil {
		return nil, schedulerError(ErrInvalidArgument, "lock provider is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schedulerError(ErrInvalidArgument, "lock name is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, schedulerError(ErrInvalidArgument, "lock token is required")
	}
	if timeout <= 0 {
		return nil, schedulerError(ErrInvalidArgument, "lock timeout must be > 0")
	}
	return &DistributedLock{
		provider: provider,
		name:     name,
		token:    token,
		timeout:  timeout,
	}, nil
}

// Name returns the lock name.
func (l *DistributedLock) Name() string { return l.name }

// Token returns the owner token.
func (l *DistributedLock) Token() string { return l.token }

// Timeout returns the lease duration.
func (l *DistributedLock) Timeout() time.Duration { return l.timeout }

// Acquire reports whether this owner now holds the lease. Losing to another owner is
// (false, nil); only store failures return an error.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	return l.provider.Acquire(ctx, l.name, l.token, l.timeout)
}

// Release removes the lease if this owner still holds it. Releasing a lease that is not
// held, expired, or taken over by another owner is a no-op.
func (l *DistributedLock) Release(ctx context.Context) error {
	_, err := l.provider.Release(ctx, l.name, l.token)
	return err
}
