// Package session persists browser sessions in a key/value store and binds them to the
// client through a signed cookie.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is applied by stores when Set receives a non-positive ttl.
const DefaultTTL = time.Hour

var (
	// ErrNotFound indicates that a session does not exist in the backend store.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidSignature indicates a session cookie that fails signature verification.
	ErrInvalidSignature = errors.New("session signature invalid")
)

// Store is the key/value backend for session records. Keys arrive fully prefixed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
