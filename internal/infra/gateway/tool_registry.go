package gateway

import (
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/telemetry"
)

// toolMirror keeps the tool set of an mcp.Server equal to the registry's
// merged view. The server emits tools/list_changed for every change.
type toolMirror struct {
	server     *mcp.Server
	handler    func(name string) mcp.ToolHandler
	logger     *zap.Logger
	mu         sync.Mutex
	registered map[string]domain.Tool
}

func newToolMirror(server *mcp.Server, handler func(name string) mcp.ToolHandler, logger *zap.Logger) *toolMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolMirror{
		server:     server,
		handler:    handler,
		logger:     logger.Named("tool_mirror"),
		registered: make(map[string]domain.Tool),
	}
}

// Apply installs tools and removes every previously installed tool that is
// no longer present. Unchanged tools are left alone.
func (m *toolMirror) Apply(tools []domain.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]domain.Tool, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		next[tool.Name] = tool
		if prev, ok := m.registered[tool.Name]; ok && prev == tool {
			continue
		}
		m.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: m.inputSchema(tool),
		}, m.handler(tool.Name))
	}

	var remove []string
	for name := range m.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		m.server.RemoveTools(remove...)
	}

	m.registered = next
	m.logger.Debug("tools mirrored", zap.Int("count", len(next)), zap.Int("removed", len(remove)))
}

// Names returns the installed tool names.
func (m *toolMirror) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.registered))
	for name := range m.registered {
		names = append(names, name)
	}
	return names
}

// inputSchema decodes the tool schema. AddTool panics on anything that is
// not an object schema, so those fall back to an empty object.
func (m *toolMirror) inputSchema(tool domain.Tool) map[string]any {
	schema := domain.ParseSchema(tool.InputSchema)
	if !isObjectSchema(schema) {
		m.logger.Warn("tool input schema is not an object, using empty object", telemetry.ToolField(tool.Name))
		return map[string]any{"type": "object"}
	}
	return schema
}

func isObjectSchema(schema map[string]any) bool {
	if schema == nil {
		return false
	}
	typ, _ := schema["type"].(string)
	return typ == "object"
}
