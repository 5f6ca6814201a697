package session

import (
	"context"
	"sync"
	"time"
)

type inMemoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryStore is an in-process session backend for local development and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]inMemoryEntry
	now      func() time.Time
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: map[string]inMemoryEntry{},
		now:      time.Now,
	}
}

// Get fetches a payload by key.
func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a payload; ttl <= 0 means DefaultTTL.
func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	s.sessions[key] = inMemoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: s.now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Delete removes a payload.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}

// HealthCheck always succeeds.
func (s *InMemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of stored records, expired ones included until next read.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
