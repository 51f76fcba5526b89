package telemetry

import "webmcp-inspector/internal/domain"

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveToolCall(_ domain.CallMetric) {}

func (n *NoopMetrics) SetRegistryTools(_ int) {}

func (n *NoopMetrics) SetExtensionConnections(_ int) {}

func (n *NoopMetrics) SetExtensionPendingCalls(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
