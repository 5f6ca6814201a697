package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"maps"
	"strings"
)

type contextKey struct{}

// Session is the per-request mutable session view. It is not safe for concurrent use;
// one request owns it.
type Session struct {
	id       string
	values   map[string]any
	modified bool
	isNew    bool
	// version counts mutations so the middleware can tell whether a save is stale.
	version int
}

func newSession(id string, values map[string]any) *Session {
	if values == nil {
		values = map[string]any{}
	}
	return &Session{id: id, values: values}
}

// ID returns the session identifier (unsigned).
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool {
	return s != nil && s.isNew
}

// Get reads a session value.
func (s *Session) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	val, ok := s.values[key]
	return val, ok
}

// GetString reads a string session value.
func (s *Session) GetString(key string) (string, bool) {
	val, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// Set writes a session value and marks the session modified.
func (s *Session) Set(key string, value any) {
	if s == nil || strings.TrimSpace(key) == "" {
		return
	}
	s.values[key] = value
	s.touch()
}

// Delete removes a session value.
func (s *Session) Delete(key string) {
	if s == nil {
		return
	}
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.touch()
	}
}

// Clear removes every value. The next save deletes the record and the cookie.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.values = map[string]any{}
	s.touch()
}

// Values returns a copy of current session values.
func (s *Session) Values() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return maps.Clone(s.values)
}

// Modified reports whether the session changed during the request.
func (s *Session) Modified() bool {
	return s != nil && s.modified
}

// Empty reports whether the session holds no values.
func (s *Session) Empty() bool {
	return s == nil || len(s.values) == 0
}

func (s *Session) touch() {
	s.modified = true
	s.version++
}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the active request session if present.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

func generateSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
