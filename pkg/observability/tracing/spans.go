package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nimburion/docflow"

// SpanOperation names a traced database operation.
type SpanOperation string

const (
	SpanOperationDBQuery  SpanOperation = "db.query"
	SpanOperationDBUpdate SpanOperation = "db.update"
	SpanOperationDBTx     SpanOperation = "db.transaction"
)

// StartDatabaseSpan starts a client span for a metadata database operation.
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, table string) (context.Context, trace.Span) {
	name := fmt.Sprintf("DB %s", operation)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", string(operation)),
	}
	if table != "" {
		name = fmt.Sprintf("DB %s %s", operation, table)
		attrs = append(attrs, attribute.String("db.table", table))
	}
	return otel.Tracer(instrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// StartRunnerTickSpan starts the root span of one periodic runner iteration.
func StartRunnerTickSpan(ctx context.Context, task, token string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "runner.tick "+task,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("runner.task", task),
			attribute.String("runner.token", token),
		),
	)
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
