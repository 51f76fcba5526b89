package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"webmcp-inspector/internal/domain"
)

type PrometheusMetrics struct {
	toolCalls            *prometheus.CounterVec
	toolCallDuration     *prometheus.HistogramVec
	registryTools        prometheus.Gauge
	extensionConnections prometheus.Gauge
	extensionPending     prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_tool_calls_total",
				Help: "Total number of routed tool calls",
			},
			[]string{"tool", "status"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspector_tool_call_duration_seconds",
				Help:    "Duration of routed tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool"},
		),
		registryTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspector_registry_tools",
				Help: "Current number of tools in the merged registry",
			},
		),
		extensionConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspector_extension_connections",
				Help: "Current number of connected browser extension peers",
			},
		),
		extensionPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspector_extension_pending_calls",
				Help: "Current number of extension tool calls awaiting a result",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveToolCall(metric domain.CallMetric) {
	p.toolCalls.WithLabelValues(metric.Tool, string(metric.Status)).Inc()
	p.toolCallDuration.WithLabelValues(metric.Tool).Observe(metric.Duration.Seconds())
}

func (p *PrometheusMetrics) SetRegistryTools(count int) {
	p.registryTools.Set(float64(count))
}

func (p *PrometheusMetrics) SetExtensionConnections(count int) {
	p.extensionConnections.Set(float64(count))
}

func (p *PrometheusMetrics) SetExtensionPendingCalls(count int) {
	p.extensionPending.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
