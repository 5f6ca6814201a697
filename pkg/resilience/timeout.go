// Package resilience bounds calls that may hang or panic.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout.
var ErrTimeout = errors.New("operation timed out")

// ErrPanic wraps a recovered panic from the operation.
var ErrPanic = errors.New("operation panicked")

// WithTimeout runs fn with a context bounded by timeout. It returns as soon as fn returns
// or the deadline passes, so a function that ignores its context is abandoned rather than
// waited for. A panic inside fn is recovered and reported as ErrPanic.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("function is required")
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("%w: %v", ErrPanic, p)
			}
		}()
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return timeoutCtx.Err()
	}
}
