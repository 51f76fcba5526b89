package gateway

import (
	"context"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
)

func TestToolMirror_ApplyRegistersAndRemovesTools(t *testing.T) {
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "gateway", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})

	mirror := newToolMirror(server, func(name string) mcp.ToolHandler {
		return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: name}},
			}, nil
		}
	}, zap.NewNop())

	mirror.Apply([]domain.Tool{
		{Name: "echo", Description: "echo input", InputSchema: `{"type":"object","properties":{"text":{"type":"string"}}}`},
		{Name: "ping", Description: "ping", InputSchema: `{"type":"object"}`},
	})

	_, session := connectClient(t, ctx, server)
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 2)
	require.Equal(t, []string{"echo", "ping"}, toolNames(res.Tools))

	mirror.Apply([]domain.Tool{{Name: "ping", Description: "ping", InputSchema: `{"type":"object"}`}})

	res, err = session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Equal(t, []string{"ping"}, toolNames(res.Tools))
	require.Equal(t, []string{"ping"}, mirror.Names())

	mirror.Apply(nil)

	res, err = session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 0)
}

func TestToolMirror_FallsBackForInvalidSchemas(t *testing.T) {
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "gateway", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})
	mirror := newToolMirror(server, func(string) mcp.ToolHandler {
		return func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{}, nil
		}
	}, nil)

	require.NotPanics(t, func() {
		mirror.Apply([]domain.Tool{
			{Name: "broken", InputSchema: "{not json"},
			{Name: "array", InputSchema: `{"type":"array"}`},
			{Name: "empty", InputSchema: ""},
		})
	})

	_, session := connectClient(t, ctx, server)
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 3)
	for _, tool := range res.Tools {
		schema, ok := tool.InputSchema.(map[string]any)
		require.True(t, ok, tool.Name)
		require.Equal(t, "object", schema["type"], tool.Name)
	}
}

func TestIsObjectSchema(t *testing.T) {
	require.True(t, isObjectSchema(map[string]any{"type": "object"}))
	require.False(t, isObjectSchema(map[string]any{"type": "Object"}))
	require.False(t, isObjectSchema(map[string]any{"type": []any{"object"}}))
	require.False(t, isObjectSchema(map[string]any{}))
	require.False(t, isObjectSchema(nil))
}

func toolNames(tools []*mcp.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	return names
}

func connectClient(t *testing.T, ctx context.Context, server *mcp.Server) (*mcp.Client, *mcp.ClientSession) {
	t.Helper()
	return connectClientWithOptions(t, ctx, server, nil)
}

func connectClientWithOptions(t *testing.T, ctx context.Context, server *mcp.Server, opts *mcp.ClientOptions) (*mcp.Client, *mcp.ClientSession) {
	t.Helper()
	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, opts)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	return client, session
}
