package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestContextKey struct{}

// RequestMeta follows one tool call from the MCP client through the
// registry into the owning source.
type RequestMeta struct {
	RequestID string
	Tool      string
	TraceID   string
	SpanID    string
}

func (m RequestMeta) isZero() bool {
	return m == RequestMeta{}
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	if meta.isZero() {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestContextKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(requestContextKey{}).(RequestMeta)
	return meta, ok && !meta.isZero()
}

// StartToolCall stamps ctx with the tool being called. A request id already
// on ctx is kept; otherwise a new one is generated.
func StartToolCall(ctx context.Context, tool string) (context.Context, RequestMeta) {
	meta, _ := RequestMetaFromContext(ctx)
	if meta.RequestID == "" {
		meta.RequestID = uuid.NewString()
	}
	meta.Tool = tool
	meta.TraceID, meta.SpanID = TraceSpanFromContext(ctx)
	return WithRequestMeta(ctx, meta), meta
}

// WithTool records tool on ctx without minting a request id, for calls that
// did not arrive through the gateway.
func WithTool(ctx context.Context, tool string) context.Context {
	meta, _ := RequestMetaFromContext(ctx)
	if meta.Tool == tool {
		return ctx
	}
	meta.Tool = tool
	return WithRequestMeta(ctx, meta)
}

func TraceSpanFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

func RequestFields(meta RequestMeta) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if meta.RequestID != "" {
		fields = append(fields, RequestIDField(meta.RequestID))
	}
	if meta.Tool != "" {
		fields = append(fields, ToolField(meta.Tool))
	}
	if meta.TraceID != "" {
		fields = append(fields, TraceIDField(meta.TraceID))
	}
	if meta.SpanID != "" {
		fields = append(fields, SpanIDField(meta.SpanID))
	}
	return fields
}

// LoggerWithRequest decorates base with the call fields found in ctx.
func LoggerWithRequest(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, ok := RequestMetaFromContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(RequestFields(meta)...)
}
