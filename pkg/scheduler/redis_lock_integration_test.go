package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/testutil"
)

// TestRedisLockProvider_Integration checks real key expiry, which miniredis only
// simulates.
func TestRedisLockProvider_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	provider, err := NewRedisLockProvider(client, RedisLockProviderConfig{Prefix: "it:lock"}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if ok, err := provider.Acquire(ctx, "update_progress", "crashed", 300*time.Millisecond); err != nil || !ok {
		t.Fatalf("expected acquire, ok=%v err=%v", ok, err)
	}
	if ok, _ := provider.Acquire(ctx, "update_progress", "survivor", time.Second); ok {
		t.Fatal("expected contention before expiry")
	}

	time.Sleep(500 * time.Millisecond)
	if ok, err := provider.Acquire(ctx, "update_progress", "survivor", time.Second); err != nil || !ok {
		t.Fatalf("expected survivor to acquire after expiry, ok=%v err=%v", ok, err)
	}
	if released, err := provider.Release(ctx, "update_progress", "crashed"); err != nil || released {
		t.Fatalf("expected stale release to be a no-op, released=%v err=%v", released, err)
	}
	if released, err := provider.Release(ctx, "update_progress", "survivor"); err != nil || !released {
		t.Fatalf("expected survivor release, released=%v err=%v", released, err)
	}
}
