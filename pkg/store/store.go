// Package store defines the contract shared by the connection adapters.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// Named pairs an adapter with the name used in health reports and logs.
type Named struct {
	Name    string
	Adapter Adapter
}

// Set tracks opened adapters in open order so they can be closed in reverse.
type Set struct {
	mu    sync.Mutex
	items []Named
}

// Add records an opened adapter. Nil adapters are ignored.
func (s *Set) Add(name string, adapter Adapter) {
	if adapter == nil {
		return
	}
	s.mu.Lock()
	s.items = append(s.items, Named{Name: name, Adapter: adapter})
	s.mu.Unlock()
}

// Reverse returns the adapters, most recently opened first.
func (s *Set) Reverse() []Named {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Named, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, s.items[i])
	}
	return out
}

// HealthCheck checks every adapter and joins the failures.
func (s *Set) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	items := append([]Named(nil), s.items...)
	s.mu.Unlock()

	var errs []error
	for _, item := range items {
		if err := item.Adapter.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes every adapter in reverse open order, empties the set and joins the
// failures.
func (s *Set) CloseAll() error {
	items := s.Reverse()
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	var errs []error
	for _, item := range items {
		if err := item.Adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", item.Name, err))
		}
	}
	return errors.Join(errs...)
}
