package domain

import "time"

// CallStatus labels the outcome of a tool call.
type CallStatus string

const (
	CallStatusSuccess CallStatus = "success"
	CallStatusError   CallStatus = "error"
	CallStatusTimeout CallStatus = "timeout"
)

// CallMetric captures one routed tool call.
type CallMetric struct {
	Tool     string
	Source   string
	Status   CallStatus
	Duration time.Duration
}

// Metrics is the sink for runtime counters.
type Metrics interface {
	ObserveToolCall(metric CallMetric)
	SetRegistryTools(count int)
	SetExtensionConnections(count int)
	SetExtensionPendingCalls(count int)
}

// CallStatusFrom maps a call error to a status label.
func CallStatusFrom(err error) CallStatus {
	if err == nil {
		return CallStatusSuccess
	}
	if code, ok := CodeFrom(err); ok && code == CodeDeadlineExceeded {
		return CallStatusTimeout
	}
	return CallStatusError
}
