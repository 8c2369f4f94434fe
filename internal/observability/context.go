package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// DetachTraceContextFrom returns baseCtx carrying the span context of src.
// Background jobs started from a request use it so their spans link to the
// request trace while their lifetime follows baseCtx (process shutdown)
// rather than the request.
func DetachTraceContextFrom(src, baseCtx context.Context) context.Context {
	sc := trace.SpanContextFromContext(src)
	if !sc.IsValid() {
		return baseCtx
	}
	return trace.ContextWithRemoteSpanContext(baseCtx, sc)
}
