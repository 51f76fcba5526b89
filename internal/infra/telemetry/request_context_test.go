package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartToolCall_GeneratesRequestID(t *testing.T) {
	ctx, meta := StartToolCall(context.Background(), "browser_click")
	require.NotEmpty(t, meta.RequestID)
	require.Equal(t, "browser_click", meta.Tool)

	got, ok := RequestMetaFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, meta, got)
}

func TestStartToolCall_ReusesRequestID(t *testing.T) {
	ctx, first := StartToolCall(context.Background(), "webmcp_call_tool")
	_, second := StartToolCall(ctx, "search")

	require.Equal(t, first.RequestID, second.RequestID)
	require.Equal(t, "search", second.Tool)
}

func TestStartToolCall_CarriesTraceIDs(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	_, meta := StartToolCall(ctx, "browser_url")
	require.Equal(t, traceID.String(), meta.TraceID)
	require.Equal(t, spanID.String(), meta.SpanID)

	gotTrace, gotSpan := TraceSpanFromContext(context.Background())
	require.Empty(t, gotTrace)
	require.Empty(t, gotSpan)
}

func TestWithTool(t *testing.T) {
	ctx := WithTool(context.Background(), "browser_snapshot")
	meta, ok := RequestMetaFromContext(ctx)
	require.True(t, ok)
	require.Empty(t, meta.RequestID)
	require.Equal(t, "browser_snapshot", meta.Tool)

	require.Equal(t, ctx, WithTool(ctx, "browser_snapshot"))
}

func TestRequestFields(t *testing.T) {
	fields := RequestFields(RequestMeta{
		RequestID: "req-1",
		Tool:      "search",
		TraceID:   "trace-1",
	})
	require.Len(t, fields, 3)
	require.Equal(t, FieldRequestID, fields[0].Key)
	require.Equal(t, FieldTool, fields[1].Key)
	require.Equal(t, FieldTraceID, fields[2].Key)
	require.Empty(t, RequestFields(RequestMeta{}))
}

func TestLoggerWithRequest(t *testing.T) {
	base := zap.NewNop()
	require.Same(t, base, LoggerWithRequest(context.Background(), base))
	require.NotNil(t, LoggerWithRequest(context.Background(), nil))

	core, logs := observer.New(zapcore.DebugLevel)
	ctx, meta := StartToolCall(context.Background(), "search")
	LoggerWithRequest(ctx, zap.New(core)).Debug("routed")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, meta.RequestID, fields[FieldRequestID])
	require.Equal(t, "search", fields[FieldTool])
}
