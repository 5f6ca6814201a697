package requestsize

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func readingHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			if IsTooLarge(err) {
				WriteTooLarge(w, 8)
				return
			}
			t.Errorf("unexpected read error: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddleware_AllowsSmallBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Middleware(8)(readingHandler(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("tiny")))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsDeclaredLength(t *testing.T) {
	called := false
	h := Middleware(8)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("0123456789")))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run for an oversized declared body")
	}
	if !strings.Contains(rec.Body.String(), "request_too_large") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestMiddleware_RejectsStreamedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1

	rec := httptest.NewRecorder()
	Middleware(8)(readingHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestMiddleware_DisabledLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	Middleware(0)(readingHandler(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
