package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/browser"
	"webmcp-inspector/internal/infra/extension"
	"webmcp-inspector/internal/infra/gateway"
	"webmcp-inspector/internal/infra/registry"
	"webmcp-inspector/internal/infra/telemetry"
)

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewToolRegistry(logger *zap.Logger, metrics domain.Metrics) *registry.Registry {
	return registry.New(logger, metrics)
}

// NewBrowserSource returns nil when neither CDP attach nor launch is configured.
func NewBrowserSource(cfg ServeConfig, logger *zap.Logger) *browser.Source {
	if !cfg.Config.CDP.Enabled && !cfg.Config.Browser.Launch {
		return nil
	}
	return browser.NewSource(browser.Options{Logger: logger})
}

// NewExtensionSource returns nil when the extension bridge is disabled.
func NewExtensionSource(cfg ServeConfig, logger *zap.Logger, metrics domain.Metrics) *extension.Source {
	if !cfg.Config.Extension.Enabled {
		return nil
	}
	return extension.NewSource(extension.Options{
		Logger:      logger,
		Metrics:     metrics,
		CallTimeout: cfg.Config.Extension.CallTimeout,
	})
}

func NewGateway(reg *registry.Registry, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(reg, gateway.Options{Name: domain.ServerName, Version: Version}, logger)
}
