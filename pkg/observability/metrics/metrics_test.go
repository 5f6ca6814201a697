package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_HandlerExposesCustomCollectors(t *testing.T) {
	registry := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docflow_test_counter_total",
		Help: "test counter",
	})
	if err := registry.Register(counter); err != nil {
		t.Fatalf("register: %v", err)
	}
	counter.Inc()

	server := httptest.NewServer(registry.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"docflow_test_counter_total 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(httpRequestsTotal); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestMiddleware_RecordsStatusAndPathLabel(t *testing.T) {
	handler := Middleware(func(*http.Request) string { return "/api/v1/session" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/session", "418"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session?x=1", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/session", "418"))
	if after-before != 1 {
		t.Fatalf("expected one recorded request, got %v", after-before)
	}
	if got := testutil.ToFloat64(httpRequestsInFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back to 0, got %v", got)
	}
}
