package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_Success(t *testing.T) {
	err := WithTimeout(context.Background(), 100*time.Millisecond, func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestWithTimeout_Timeout(t *testing.T) {
	start := time.Now()
	err := WithTimeout(context.Background(), 50*time.Millisecond, func(context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("expected WithTimeout to abandon the call, took %v", elapsed)
	}
}

func TestWithTimeout_FunctionError(t *testing.T) {
	expectedErr := errors.New("close failed")
	err := WithTimeout(context.Background(), 100*time.Millisecond, func(context.Context) error {
		return expectedErr
	})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected function error, got %v", err)
	}
}

func TestWithTimeout_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("cancellation must not be reported as a timeout, got %v", err)
	}
}

func TestWithTimeout_DeadlineVisibleToFunction(t *testing.T) {
	err := WithTimeout(context.Background(), 100*time.Millisecond, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("missing deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithTimeout_RecoversPanic(t *testing.T) {
	err := WithTimeout(context.Background(), 100*time.Millisecond, func(context.Context) error {
		panic("boom")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestWithTimeout_NilFunction(t *testing.T) {
	if err := WithTimeout(context.Background(), time.Second, nil); err == nil {
		t.Fatal("expected error for nil function")
	}
}
