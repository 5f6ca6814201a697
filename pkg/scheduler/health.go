package scheduler

import (
	"strings"
	"time"

	"github.com/nimburion/docflow/pkg/health"
)

const defaultLockProviderHealthCheckName = "lock-provider"

// NewLockProviderHealthChecker wraps a lock provider as a health checker.
func NewLockProviderHealthChecker(name string, provider LockProvider, timeout time.Duration) health.Checker {
	checkName := strings.TrimSpace(name)
	if checkName == "" {
		checkName = defaultLockProviderHealthCheckName
	}
	return health.NewAdapterChecker(checkName, provider, timeout)
}
