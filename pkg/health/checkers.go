package health

import (
	"context"
	"time"
)

const (
	databaseCheckTimeout = 5 * time.Second
	cacheCheckTimeout    = 3 * time.Second
)

// Checkable is implemented by store adapters and lock providers.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker reports a Checkable's HealthCheck, bounded by a timeout.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker wraps adapter. A non-positive timeout means databaseCheckTimeout.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = databaseCheckTimeout
	}
	return &AdapterChecker{name: name, adapter: adapter, timeout: timeout}
}

// NewDatabaseChecker checks the metadata database.
func NewDatabaseChecker(name string, db Checkable) *AdapterChecker {
	return NewAdapterChecker(name, db, databaseCheckTimeout)
}

// NewCacheChecker checks Redis, which backs the lock and the session store.
func NewCacheChecker(name string, cache Checkable) *AdapterChecker {
	return NewAdapterChecker(name, cache, cacheCheckTimeout)
}

func (c *AdapterChecker) Name() string {
	return c.name
}

func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.adapter.HealthCheck(checkCtx)
	return newResult(c.name, err, time.Since(start))
}

// newResult maps err to a healthy or unhealthy result.
func newResult(name string, err error, duration time.Duration) CheckResult {
	result := CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}
