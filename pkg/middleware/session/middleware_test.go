package session

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nimburion/docflow/pkg/observability/logger"
)

func serve(handler http.Handler, cookie *http.Cookie, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_PersistsValuesAcrossRequests(t *testing.T) {
	iface := newTestInterface(t, newSpyStore(), nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		s.Set("hello", "world")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		val, _ := s.GetString("hello")
		_, _ = w.Write([]byte(val))
	})
	handler := Middleware(iface, logger.NewNop())(mux)

	first := serve(handler, nil, "/set")
	cookie := findCookie(first.Result(), "session")
	if cookie == nil {
		t.Fatal("expected session cookie on modified session")
	}

	second := serve(handler, cookie, "/get")
	if second.Body.String() != "world" {
		t.Fatalf("expected persisted value, got %q", second.Body.String())
	}
	if findCookie(second.Result(), "session") != nil {
		t.Fatal("unmodified session must not send a cookie")
	}
}

func TestMiddleware_SavesWhenHandlerWritesNothing(t *testing.T) {
	store := newSpyStore()
	iface := newTestInterface(t, store, nil)
	handler := Middleware(iface, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("k", "v")
	}))

	rec := serve(handler, nil, "/")
	if findCookie(rec.Result(), "session") == nil {
		t.Fatal("expected cookie when handler returns without writing")
	}
	if sets, _ := store.writes(); sets != 1 {
		t.Fatalf("expected one store write, got %d", sets)
	}
}

func TestMiddleware_LateChangesArePersisted(t *testing.T) {
	store := newSpyStore()
	iface := newTestInterface(t, store, nil)
	handler := Middleware(iface, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("early", "1")
		w.WriteHeader(http.StatusOK)
		s.Set("late", "2")
	}))

	rec := serve(handler, nil, "/")
	cookie := findCookie(rec.Result(), "session")
	if cookie == nil {
		t.Fatal("expected cookie")
	}
	if sets, _ := store.writes(); sets != 2 {
		t.Fatalf("expected header-time save and late persist, got %d sets", sets)
	}

	reader := Middleware(iface, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		if v, _ := s.GetString("late"); v != "2" {
			t.Errorf("expected late value, got %q", v)
		}
	}))
	serve(reader, cookie, "/")
}

func TestMiddleware_StaticFileGetsNoCookie(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logo.txt")
	if err := os.WriteFile(file, []byte("logo"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	for _, staticFile := range []bool{false, true} {
		store := newSpyStore()
		iface := newTestInterface(t, store, func(c *Config) { c.StaticFile = staticFile })
		handler := Middleware(iface, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, _ := FromContext(r.Context())
			s.Set("visited", true)
			ServeFile(w, r, file)
		}))

		rec := serve(handler, nil, "/static/logo.txt")
		if rec.Body.String() != "logo" {
			t.Fatalf("expected file body, got %q", rec.Body.String())
		}
		got := findCookie(rec.Result(), "session") != nil
		if got != staticFile {
			t.Fatalf("static_file=%v: cookie present=%v", staticFile, got)
		}
	}
}

func TestMiddleware_ClearedSessionExpiresCookie(t *testing.T) {
	iface := newTestInterface(t, newSpyStore(), nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("user_id", "u-1")
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Clear()
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(iface, logger.NewNop())(mux)

	login := serve(handler, nil, "/login")
	cookie := findCookie(login.Result(), "session")
	logout := serve(handler, cookie, "/logout")

	cleared := findCookie(logout.Result(), "session")
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected delete-cookie directive, got %+v", cleared)
	}
}
