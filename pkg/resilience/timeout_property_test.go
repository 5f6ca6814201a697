package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// A context-respecting operation either completes with its own result or is cut off with
// ErrTimeout, depending on whether it outlives the timeout.
func TestProperty_TimeoutEnforcement(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	genTimeout := gen.IntRange(10, 60).Map(func(ms int) time.Duration {
		return time.Duration(ms) * time.Millisecond
	})
	genOperation := gen.IntRange(0, 120).Map(func(ms int) time.Duration {
		return time.Duration(ms) * time.Millisecond
	})

	properties.Property("operations are bounded by the timeout", prop.ForAll(
		func(timeout, operation time.Duration) bool {
			err := WithTimeout(context.Background(), timeout, func(ctx context.Context) error {
				select {
				case <-time.After(operation):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})

			tolerance := 15 * time.Millisecond
			switch {
			case operation > timeout+tolerance:
				return errors.Is(err, ErrTimeout)
			case operation+tolerance < timeout:
				return err == nil
			default:
				return err == nil || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
			}
		},
		genTimeout,
		genOperation,
	))

	properties.TestingRun(t)
}
