// Package gateway exposes the tool registry to MCP clients over stdio or
// streamable HTTP.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/registry"
	"webmcp-inspector/internal/infra/telemetry"
)

type Options struct {
	Name    string
	Version string
}

// HTTPOptions configures the streamable HTTP runner.
type HTTPOptions struct {
	Addr         string
	Path         string
	JSONResponse bool
}

type Gateway struct {
	registry *registry.Registry
	logger   *zap.Logger
	server   *mcp.Server
	tools    *toolMirror
	sub      registry.Subscription
	name     string
}

// New builds an MCP server whose tool list follows reg. Call Close to stop
// following it.
func New(reg *registry.Registry, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = domain.ServerName
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	g := &Gateway{
		registry: reg,
		logger:   logger.Named("gateway"),
		name:     opts.Name,
	}
	g.server = mcp.NewServer(&mcp.Implementation{
		Name:    opts.Name,
		Version: opts.Version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})
	g.tools = newToolMirror(g.server, g.toolHandler, g.logger)
	g.sub = reg.OnChanged(g.sync)
	g.sync()
	return g
}

// Server returns the underlying MCP server.
func (g *Gateway) Server() *mcp.Server {
	return g.server
}

// Close detaches the gateway from the registry.
func (g *Gateway) Close() {
	g.registry.OffChanged(g.sub)
}

func (g *Gateway) sync() {
	g.tools.Apply(g.registry.ListTools())
}

// RunStdio serves a single MCP session on stdin/stdout until ctx is done or
// the peer hangs up.
func (g *Gateway) RunStdio(ctx context.Context) error {
	g.logger.Info("gateway starting (stdio transport)")
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the HTTP surface: the streamable MCP endpoint at path and
// GET /health.
func (g *Gateway) Handler(opts HTTPOptions) http.Handler {
	path := opts.Path
	if path == "" {
		path = domain.DefaultHTTPPath
	}
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &mcp.StreamableHTTPOptions{JSONResponse: opts.JSONResponse})

	mux := http.NewServeMux()
	mux.Handle(path, streamable)
	mux.Handle("GET /health", telemetry.HealthHandler(func() telemetry.HealthReport {
		return telemetry.HealthReport{Status: "ok", Server: g.name}
	}))
	return mux
}

// RunStreamableHTTP serves Handler on opts.Addr until ctx is done.
func (g *Gateway) RunStreamableHTTP(ctx context.Context, opts HTTPOptions) error {
	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultHTTPAddr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           g.Handler(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		g.logger.Info("gateway starting (streamable http transport)",
			zap.String("addr", addr),
			zap.String("path", opts.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("gateway http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn("gateway http shutdown error", zap.Error(err))
			return err
		}
		g.logger.Info("gateway stopped")
		return nil
	}
}

func (g *Gateway) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, _ = telemetry.StartToolCall(ctx, name)
		result, err := g.registry.CallTool(ctx, name, argumentsJSON(req))
		if err != nil {
			telemetry.LoggerWithRequest(ctx, g.logger).Debug("tool call returned error", zap.Error(err))
			return errorResult(err), nil
		}
		return toCallToolResult(result), nil
	}
}

func argumentsJSON(req *mcp.CallToolRequest) string {
	if req == nil || req.Params == nil {
		return "{}"
	}
	raw := req.Params.Arguments
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	return string(raw)
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

func toCallToolResult(result domain.CallResult) *mcp.CallToolResult {
	items := result.Contents()
	content := make([]mcp.Content, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case domain.ContentImage:
			data, err := base64.StdEncoding.DecodeString(item.Data)
			if err != nil {
				return errorResult(fmt.Errorf("invalid image data: %w", err))
			}
			content = append(content, &mcp.ImageContent{Data: data, MIMEType: item.MimeType})
		default:
			content = append(content, &mcp.TextContent{Text: item.Text})
		}
	}
	return &mcp.CallToolResult{Content: content}
}

// MarshalResult renders result contents as indented JSON for CLI output.
func MarshalResult(result domain.CallResult) (string, error) {
	raw, err := json.MarshalIndent(result.Contents(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
