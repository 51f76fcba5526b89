// Package app wires sources, the tool registry and the MCP gateway into a
// runnable inspector.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/browser"
	"webmcp-inspector/internal/infra/config"
	"webmcp-inspector/internal/infra/extension"
	"webmcp-inspector/internal/infra/gateway"
	"webmcp-inspector/internal/infra/registry"
	"webmcp-inspector/internal/infra/telemetry"
	"webmcp-inspector/internal/infra/webmcp"
)

const shutdownTimeout = 5 * time.Second

// ServeConfig is the resolved configuration for the start command.
type ServeConfig struct {
	Config config.Config
}

// sourceBinding connects source with cfg and publishes exposed, which is
// either source itself or a wrapper around it.
type sourceBinding struct {
	source  domain.Source
	exposed domain.Source
	config  domain.SourceConfig
	// optional sources stay registered when Connect fails.
	optional bool
}

// Application owns every long-lived component of a running inspector.
type Application struct {
	cfg        config.Config
	logger     *zap.Logger
	prometheus *prometheus.Registry
	registry   *registry.Registry
	gateway    *gateway.Gateway
	bindings   []sourceBinding
}

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	ServeConfig ServeConfig
	Logger      *zap.Logger
	Prometheus  *prometheus.Registry
	Registry    *registry.Registry
	Gateway     *gateway.Gateway
	Browser     *browser.Source
	Extension   *extension.Source
}

func NewApplication(opts ApplicationOptions) *Application {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.ServeConfig.Config
	var bindings []sourceBinding
	if opts.Browser != nil {
		// browser_launch works without a connection, so a failed attach is
		// not fatal.
		bindings = append(bindings, sourceBinding{
			source:   opts.Browser,
			exposed:  opts.Browser,
			config:   cfg.BrowserSourceConfig(),
			optional: true,
		})
	}
	if opts.Extension != nil {
		var exposed domain.Source = opts.Extension
		if cfg.Extension.Meta {
			exposed = webmcp.NewMetaSource(opts.Extension, logger)
		}
		bindings = append(bindings, sourceBinding{
			source:  opts.Extension,
			exposed: exposed,
			config:  cfg.ExtensionSourceConfig(),
		})
	}
	return &Application{
		cfg:        cfg,
		logger:     logger.Named("app"),
		prometheus: opts.Prometheus,
		registry:   opts.Registry,
		gateway:    opts.Gateway,
		bindings:   bindings,
	}
}

// Run connects the sources, serves MCP on the configured transport and
// blocks until ctx is done. Sources are disconnected before returning.
func (a *Application) Run(ctx context.Context) error {
	defer a.shutdown()

	if err := a.startSources(ctx); err != nil {
		return err
	}
	if len(a.bindings) == 0 {
		a.logger.Warn("no tool sources enabled; the server will expose no tools")
	}
	a.logger.Info("tool registry ready", zap.Int("tools", a.registry.Size()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Observability.Enabled {
		go func() {
			if err := telemetry.StartHTTPServer(runCtx, telemetry.HTTPServerOptions{
				Addr:          a.cfg.Observability.ListenAddress,
				EnableMetrics: true,
				EnableHealthz: true,
				Health:        a.Health,
				Registry:      a.prometheus,
			}, a.logger); err != nil {
				a.logger.Warn("observability server stopped", zap.Error(err))
			}
		}()
	}

	var err error
	switch a.cfg.Transport {
	case domain.TransportStdio:
		err = a.gateway.RunStdio(runCtx)
	case domain.TransportStreamableHTTP:
		err = a.gateway.RunStreamableHTTP(runCtx, gateway.HTTPOptions{
			Addr: a.cfg.HTTP.Addr,
			Path: a.cfg.HTTP.Path,
		})
	default:
		err = fmt.Errorf("unsupported transport: %s", a.cfg.Transport)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Application) startSources(ctx context.Context) error {
	for _, binding := range a.bindings {
		name := binding.source.Name()
		if err := binding.source.Connect(ctx, binding.config); err != nil {
			if !binding.optional {
				return fmt.Errorf("connect %s source: %w", name, err)
			}
			a.logger.Warn("source failed to connect; continuing without a connection",
				telemetry.SourceField(name),
				zap.Error(err),
			)
		}
		publish(a.registry, binding.exposed)
		a.logger.Info("source registered",
			telemetry.SourceField(binding.exposed.Name()),
			zap.Int("tools", len(binding.exposed.ListTools())),
		)
	}
	return nil
}

// publish mirrors the current and all future tool sets of src into reg.
// Every sync re-reads ListTools under one lock, so a change notification
// racing the initial seed cannot be overwritten by an older list.
func publish(reg *registry.Registry, src domain.Source) {
	var mu sync.Mutex
	refresh := func() {
		mu.Lock()
		defer mu.Unlock()
		reg.AddTools(src, src.ListTools())
	}
	src.OnToolsChanged(func([]domain.Tool) { refresh() })
	refresh()
}

func (a *Application) shutdown() {
	if a.gateway != nil {
		a.gateway.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Disconnect is idempotent, and a source that failed to attach may have
	// launched a browser since.
	for i := len(a.bindings) - 1; i >= 0; i-- {
		src := a.bindings[i].source
		if err := src.Disconnect(ctx); err != nil {
			a.logger.Warn("source disconnect failed", telemetry.SourceField(src.Name()), zap.Error(err))
		}
	}
	for _, binding := range a.bindings {
		a.registry.RemoveToolsBySource(binding.exposed)
	}
	a.logger.Info("shutdown complete")
}

// Health reports registry size and per-source connection state.
func (a *Application) Health() telemetry.HealthReport {
	components := map[string]any{"tools": a.registry.Size()}
	for _, binding := range a.bindings {
		state := map[string]any{}
		if c, ok := binding.source.(interface{ Connected() bool }); ok {
			state["connected"] = c.Connected()
		}
		if c, ok := binding.source.(interface{ ConnectionCount() int }); ok {
			state["connections"] = c.ConnectionCount()
		}
		components[binding.source.Name()] = state
	}
	return telemetry.HealthReport{Status: "ok", Server: domain.ServerName, Components: components}
}
