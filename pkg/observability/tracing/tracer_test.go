package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	provider, err := NewTracerProvider(context.Background(), TracerConfig{ServiceName: "docflow-server"})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got: %v", err)
	}
	if provider.Enabled() {
		t.Fatal("expected disabled provider")
	}

	_, span := provider.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsSampled() {
		t.Fatal("disabled provider must not sample")
	}
	span.End()

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewTracerProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		config      TracerConfig
		expectedErr string
	}{
		{
			name:        "missing service name",
			config:      TracerConfig{Enabled: true, Endpoint: "localhost:4317"},
			expectedErr: "service name is required",
		},
		{
			name:        "missing endpoint",
			config:      TracerConfig{Enabled: true, ServiceName: "docflow-server"},
			expectedErr: "OTLP endpoint is required",
		},
		{
			name:        "negative sample rate",
			config:      TracerConfig{Enabled: true, ServiceName: "docflow-server", Endpoint: "localhost:4317", SampleRate: -0.1},
			expectedErr: "sample rate must be between 0 and 1",
		},
		{
			name:        "sample rate too high",
			config:      TracerConfig{Enabled: true, ServiceName: "docflow-server", Endpoint: "localhost:4317", SampleRate: 1.5},
			expectedErr: "sample rate must be between 0 and 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTracerProvider(context.Background(), tt.config)
			if err == nil || err.Error() != tt.expectedErr {
				t.Fatalf("expected %q, got %v", tt.expectedErr, err)
			}
		})
	}
}

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestStartDatabaseSpan(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartDatabaseSpan(context.Background(), SpanOperationDBQuery, "document")
	RecordError(span, errors.New("connection reset"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "DB db.query document" {
		t.Fatalf("unexpected span name %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", got.Status())
	}
	found := false
	for _, attr := range got.Attributes() {
		if string(attr.Key) == "db.table" && attr.Value.AsString() == "document" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing db.table attribute in %v", got.Attributes())
	}
}

func TestStartRunnerTickSpan_NilErrorKeepsStatus(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartRunnerTickSpan(context.Background(), "update_progress", "token-1")
	RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "runner.tick update_progress" {
		t.Fatalf("unexpected spans %v", spans)
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatal("nil error must not mark the span failed")
	}
}
