package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_GeneratesUUID(t *testing.T) {
	var captured string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if len(captured) != 36 {
		t.Fatalf("expected UUID request id, got %q", captured)
	}
	if got := rec.Header().Get(RequestIDHeader); got != captured {
		t.Fatalf("expected response header %q, got %q", captured, got)
	}
}

func TestRequestID_PreservesExistingHeader(t *testing.T) {
	var captured string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-request-id-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if captured != "existing-request-id-123" {
		t.Fatalf("expected existing id, got %q", captured)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "existing-request-id-123" {
		t.Fatalf("unexpected response header %q", got)
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	//nolint:staticcheck // nil context is part of the contract
	if got := GetRequestID(nil); got != "" {
		t.Fatalf("expected empty id for nil context, got %q", got)
	}
}
