package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceID returns the active span's trace ID, or "" when ctx carries no sampled span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
