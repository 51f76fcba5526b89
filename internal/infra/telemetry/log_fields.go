package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldTool       = "tool"
	FieldSource     = "source"
	FieldCallID     = "call_id"
	FieldTabID      = "tab_id"
	FieldRef        = "ref"
	FieldRemoteAddr = "remote_addr"
	FieldMessage    = "message_type"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventSourceConnected    = "source_connected"
	EventSourceDisconnected = "source_disconnected"
	EventSourceFailed       = "source_failed"
	EventToolsChanged       = "tools_changed"
	EventPeerConnected      = "peer_connected"
	EventPeerClosed         = "peer_closed"
	EventPeerEvent          = "peer_event"
	EventCallTimeout        = "call_timeout"
	EventMalformedMessage   = "malformed_message"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ToolField(name string) zap.Field {
	return zap.String(FieldTool, name)
}

func SourceField(name string) zap.Field {
	return zap.String(FieldSource, name)
}

func CallIDField(id string) zap.Field {
	return zap.String(FieldCallID, id)
}

func TabIDField(id int) zap.Field {
	return zap.Int(FieldTabID, id)
}

func RefField(ref int) zap.Field {
	return zap.Int(FieldRef, ref)
}

func RemoteAddrField(addr string) zap.Field {
	return zap.String(FieldRemoteAddr, addr)
}

func MessageTypeField(kind string) zap.Field {
	return zap.String(FieldMessage, kind)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
