package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies invalid configuration.
	ErrValidation = errors.New("scheduler validation error")
	// ErrConflict classifies state conflicts such as starting a runner twice.
	ErrConflict = errors.New("scheduler conflict")
	// ErrRetryable classifies transient backing-store failures; the next tick retries.
	ErrRetryable = errors.New("scheduler retryable error")
	// ErrInvalidArgument classifies invalid caller/provider arguments.
	ErrInvalidArgument = errors.New("scheduler invalid argument")
	// ErrNotInitialized classifies missing runtime/provider initialization.
	ErrNotInitialized = errors.New("scheduler not initialized")
)

func schedulerError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
