package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"

	"github.com/nimburion/docflow/pkg/observability/logger"
)

type lockOp struct {
	Owner   int
	Release bool
	Advance int
}

func genLockOp() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 2),
		gen.Bool(),
		gen.IntRange(0, 3),
	).Map(func(values []interface{}) lockOp {
		return lockOp{
			Owner:   values[0].(int),
			Release: values[1].(bool),
			Advance: values[2].(int),
		}
	})
}

// TestProperty_LockMutualExclusion replays random acquire/release/clock sequences from
// three owners against Redis and checks each result against a single-holder model.
func TestProperty_LockMutualExclusion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	const ttl = 3 * time.Second
	owners := []string{"owner-0", "owner-1", "owner-2"}

	properties.Property("at most one owner holds the lock at any instant", prop.ForAll(
		func(ops []lockOp) (bool, error) {
			mr, err := miniredis.Run()
			if err != nil {
				return false, err
			}
			defer mr.Close()
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer client.Close()

			provider, err := NewRedisLockProvider(client, RedisLockProviderConfig{}, logger.NewNop())
			if err != nil {
				return false, err
			}

			ctx := context.Background()
			holder := -1
			var expiresIn time.Duration

			for i, op := range ops {
				if op.Advance > 0 {
					step := time.Duration(op.Advance) * time.Second
					mr.FastForward(step)
					expiresIn -= step
					if expiresIn <= 0 {
						holder = -1
					}
				}

				if op.Release {
					released, err := provider.Release(ctx, "update_progress", owners[op.Owner])
					if err != nil {
						return false, err
					}
					if released != (holder == op.Owner) {
						return false, fmt.Errorf("op %d: release by %d returned %v with holder %d", i, op.Owner, released, holder)
					}
					if released {
						holder = -1
					}
					continue
				}

				acquired, err := provider.Acquire(ctx, "update_progress", owners[op.Owner], ttl)
				if err != nil {
					return false, err
				}
				want := holder == -1 || holder == op.Owner
				if acquired != want {
					return false, fmt.Errorf("op %d: acquire by %d returned %v with holder %d", i, op.Owner, acquired, holder)
				}
				if acquired {
					holder = op.Owner
					expiresIn = ttl
				}
			}
			return true, nil
		},
		gen.SliceOfN(30, genLockOp()),
	))

	properties.TestingRun(t)
}
