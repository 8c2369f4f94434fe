package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "Turn complete", "persona", "host")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, "host", rec["persona"])

	buf.Reset()
	logger.With("session_id", "S1").Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDetachTraceContextFrom(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	reqCtx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	detached := DetachTraceContextFrom(reqCtx, base)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(detached).TraceID())

	cancel()
	assert.Error(t, detached.Err())
	assert.Equal(t, base, DetachTraceContextFrom(context.Background(), base))
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracer(context.Background(), "panelcast", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics("panelcast_test")
	m.TurnCompleted("advisor", "advisor_turn")
	m.TurnCompleted("advisor", "advisor_turn")
	m.CompletionFallback("minimal")
	m.SessionFinished("success", 3*time.Second, 42)
	m.SessionFinished("failed", time.Second, 99)
	m.JobStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("advisor", "advisor_turn")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionFallbacks.WithLabelValues("minimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveJobs))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.TurnCompleted("host", "host_intro")
		nilMetrics.JobFinished()
	})
}
