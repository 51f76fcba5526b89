// Package webmcp exposes the tools of another source through two stable
// meta-tools, so clients see a fixed tool list while the inner set churns.
package webmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/telemetry"
)

const (
	ListToolsName = "webmcp_list_tools"
	CallToolName  = "webmcp_call_tool"
)

var metaTools = []domain.Tool{
	{
		Name: ListToolsName,
		Description: "List all WebMCP tools currently registered on the active browser page. " +
			"Returns an array of tools with their names, descriptions, and JSON input " +
			"schemas. The available tools change dynamically as the user navigates " +
			"between pages, so always call this before webmcp_call_tool.",
		InputSchema: `{"type":"object","properties":{},"additionalProperties":false}`,
	},
	{
		Name: CallToolName,
		Description: "Execute a WebMCP tool by name on the active browser page. " +
			"Use webmcp_list_tools first to discover available tools and their " +
			"input schemas. The tool's execute callback runs in the page context " +
			"and may cause navigation, DOM changes, or API calls.",
		InputSchema: `{"type":"object","properties":{"name":{"type":"string","description":"The WebMCP tool name to execute (from webmcp_list_tools)"},"arguments":{"type":"object","description":"Input arguments matching the tool's inputSchema. Pass an empty object {} if the tool has no required inputs.","additionalProperties":true}},"required":["arguments"],"additionalProperties":false}`,
	},
}

var metaSchemas = func() map[string]*jsonschema.Resolved {
	out := make(map[string]*jsonschema.Resolved, len(metaTools))
	for _, tool := range metaTools {
		var schema jsonschema.Schema
		if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
			panic(fmt.Sprintf("webmcp: schema for %s: %v", tool.Name, err))
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			panic(fmt.Sprintf("webmcp: schema for %s: %v", tool.Name, err))
		}
		out[tool.Name] = resolved
	}
	return out
}()

// MetaSource wraps an inner source. The inner source's connection is
// managed by its owner; Connect and Disconnect here do nothing.
type MetaSource struct {
	inner  domain.Source
	logger *zap.Logger
}

func NewMetaSource(inner domain.Source, logger *zap.Logger) *MetaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetaSource{inner: inner, logger: logger.Named("webmcp")}
}

func (m *MetaSource) Name() string { return "webmcp-meta:" + m.inner.Name() }

func (m *MetaSource) Connect(context.Context, domain.SourceConfig) error { return nil }

func (m *MetaSource) Disconnect(context.Context) error { return nil }

func (m *MetaSource) ListTools() []domain.Tool { return domain.CloneTools(metaTools) }

// OnToolsChanged is a no-op: the meta-tools never change.
func (m *MetaSource) OnToolsChanged(domain.ToolsChangedFunc) {}

type toolSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func (m *MetaSource) CallTool(ctx context.Context, name string, argsJSON string) (domain.CallResult, error) {
	switch name {
	case ListToolsName:
		if err := validate(name, argsJSON, nil); err != nil {
			return domain.CallResult{}, err
		}
		return m.listTools()
	case CallToolName:
		var args struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := validate(name, argsJSON, &args); err != nil {
			return domain.CallResult{}, err
		}
		if args.Name == "" {
			return domain.ContentResult(domain.TextContent(
				"Error: 'name' is required. Use webmcp_list_tools to discover available tools.")), nil
		}
		inner := "{}"
		if len(args.Arguments) > 0 && string(args.Arguments) != "null" {
			inner = string(args.Arguments)
		}
		m.logger.Debug("forwarding meta call", telemetry.ToolField(args.Name), telemetry.SourceField(m.inner.Name()))
		return m.inner.CallTool(ctx, args.Name, inner)
	default:
		return domain.CallResult{}, domain.E(domain.CodeNotFound, "", fmt.Sprintf("Unknown meta tool: %s", name), domain.ErrToolNotFound)
	}
}

func (m *MetaSource) listTools() (domain.CallResult, error) {
	tools := m.inner.ListTools()
	summary := make([]toolSummary, 0, len(tools))
	for _, tool := range tools {
		schema, err := json.Marshal(domain.ParseSchema(tool.InputSchema))
		if err != nil {
			return domain.CallResult{}, err
		}
		summary = append(summary, toolSummary{Name: tool.Name, Description: tool.Description, InputSchema: schema})
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return domain.CallResult{}, err
	}
	return domain.ContentResult(domain.TextContent(string(data))), nil
}

func validate(tool, argsJSON string, out any) error {
	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}
	var instance map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &instance); err != nil {
		return invalidArgs(tool, err)
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if err := metaSchemas[tool].Validate(instance); err != nil {
		return invalidArgs(tool, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(argsJSON), out); err != nil {
		return invalidArgs(tool, err)
	}
	return nil
}

func invalidArgs(tool string, err error) error {
	return domain.E(domain.CodeInvalidArgument, "", fmt.Sprintf("Invalid arguments for %s: %v", tool, err), domain.ErrInvalidArguments)
}
