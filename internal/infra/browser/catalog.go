package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"webmcp-inspector/internal/domain"
)

const refDescription = "Element ref number from browser_snapshot"

const emptyObjectSchema = `{"type":"object","properties":{}}`

// catalog is the fixed tool list, in the order it is advertised.
var catalog = []domain.Tool{
	{
		Name:        "browser_navigate",
		Description: "Navigate to a URL in the current tab",
		InputSchema: `{"type":"object","properties":{"url":{"type":"string","description":"The URL to navigate to"}},"required":["url"]}`,
	},
	{Name: "browser_back", Description: "Navigate back in browser history", InputSchema: emptyObjectSchema},
	{Name: "browser_forward", Description: "Navigate forward in browser history", InputSchema: emptyObjectSchema},
	{Name: "browser_reload", Description: "Reload the current page", InputSchema: emptyObjectSchema},
	{Name: "browser_url", Description: "Get the current page URL and title", InputSchema: emptyObjectSchema},
	{
		Name:        "browser_snapshot",
		Description: "Capture an accessibility snapshot of the current page. Returns a tree of elements with [ref=N] markers that can be used with interaction tools.",
		InputSchema: emptyObjectSchema,
	},
	{
		Name:        "browser_screenshot",
		Description: "Take a screenshot of the current page. Returns a PNG image.",
		InputSchema: `{"type":"object","properties":{"fullPage":{"type":"boolean","description":"Capture the full scrollable page (default: false)"}}}`,
	},
	{Name: "browser_console_logs", Description: "Get buffered browser console log messages", InputSchema: emptyObjectSchema},
	{
		Name:        "browser_network_requests",
		Description: "Get buffered network requests with method, URL, and status code",
		InputSchema: emptyObjectSchema,
	},
	{
		Name:        "browser_click",
		Description: "Click an element identified by its ref number from the latest browser_snapshot",
		InputSchema: `{"type":"object","properties":{"ref":{"type":"integer","description":"` + refDescription + `"},"doubleClick":{"type":"boolean","description":"Double-click instead of single click"}},"required":["ref"]}`,
	},
	{
		Name:        "browser_type",
		Description: "Type text into a focused element or element identified by ref. Text is typed character by character.",
		InputSchema: `{"type":"object","properties":{"ref":{"type":"integer","description":"` + refDescription + `"},"text":{"type":"string","description":"Text to type"},"submit":{"type":"boolean","description":"Press Enter after typing"}},"required":["ref","text"]}`,
	},
	{
		Name:        "browser_fill",
		Description: "Clear an input field and fill it with new text. Unlike browser_type, this replaces the existing value entirely.",
		InputSchema: `{"type":"object","properties":{"ref":{"type":"integer","description":"` + refDescription + `"},"value":{"type":"string","description":"Value to fill"}},"required":["ref","value"]}`,
	},
	{
		Name:        "browser_hover",
		Description: "Hover over an element identified by its ref number",
		InputSchema: `{"type":"object","properties":{"ref":{"type":"integer","description":"` + refDescription + `"}},"required":["ref"]}`,
	},
	{
		Name:        "browser_select_option",
		Description: "Select an option in a <select> element by value",
		InputSchema: `{"type":"object","properties":{"ref":{"type":"integer","description":"` + refDescription + `"},"value":{"type":"string","description":"The option value to select"}},"required":["ref","value"]}`,
	},
	{
		Name:        "browser_press_key",
		Description: `Press a keyboard key (e.g. "Enter", "Tab", "ArrowDown", "a", "Control+c")`,
		InputSchema: `{"type":"object","properties":{"key":{"type":"string","description":"Key to press, optionally with modifiers joined by +"}},"required":["key"]}`,
	},
	{
		Name:        "browser_focus",
		Description: "Focus an element identified by its ref number",
		InputSchema: `{"type":"object","properties":{"ref":{"type":"integer","description":"` + refDescription + `"}},"required":["ref"]}`,
	},
	{
		Name:        "browser_scroll",
		Description: "Scroll the page or a specific element. Use direction and amount to control scrolling.",
		InputSchema: `{"type":"object","properties":{"direction":{"type":"string","enum":["up","down","left","right"],"description":"Scroll direction"},"amount":{"type":"number","description":"Scroll amount in pixels (default: 500)"},"ref":{"type":"integer","description":"Element ref to scroll within. If omitted, scrolls the page."}},"required":["direction"]}`,
	},
	{
		Name:        "browser_tab_list",
		Description: "List all open browser tabs with their index, URL, and title",
		InputSchema: emptyObjectSchema,
	},
	{
		Name:        "browser_tab_new",
		Description: "Open a new browser tab, optionally navigating to a URL",
		InputSchema: `{"type":"object","properties":{"url":{"type":"string","description":"URL to navigate to in the new tab"}}}`,
	},
	{
		Name:        "browser_tab_select",
		Description: "Switch to a tab by its index (from browser_tab_list)",
		InputSchema: `{"type":"object","properties":{"index":{"type":"integer","description":"Tab index (0-based)"}},"required":["index"]}`,
	},
	{
		Name:        "browser_tab_close",
		Description: "Close a tab by its index. If omitted, closes the current tab.",
		InputSchema: `{"type":"object","properties":{"index":{"type":"integer","description":"Tab index to close (0-based). Defaults to current tab."}}}`,
	},
	{
		Name:        "browser_evaluate",
		Description: "Execute JavaScript in the page context and return the result",
		InputSchema: `{"type":"object","properties":{"expression":{"type":"string","description":"JavaScript expression to evaluate"}},"required":["expression"]}`,
	},
	{
		Name:        "browser_wait",
		Description: "Wait for a specified time or for a CSS selector to appear on the page",
		InputSchema: `{"type":"object","properties":{"time":{"type":"number","description":"Time to wait in milliseconds"},"selector":{"type":"string","description":"CSS selector to wait for"}}}`,
	},
	{
		Name: "browser_launch",
		Description: "Launch a new browser window. Closes any existing browser first. " +
			"Starts a system-installed Chrome/Edge with WebMCP enabled. " +
			"Supported channels: " + strings.Join(channelNames(), ", ") + ". " +
			"Works on Mac, Linux, and Windows.",
		InputSchema: `{"type":"object","properties":{"channel":{"type":"string","description":"Browser channel to launch (default: \"chrome-beta\"). Options: ` + strings.Join(channelNames(), ", ") + `"},"headless":{"type":"boolean","description":"Launch in headless mode (default: false)"},"url":{"type":"string","description":"URL to navigate to after launching"}}}`,
	},
	{
		Name: "webmcp_list_tools",
		Description: "List all WebMCP tools currently registered on the active browser page. " +
			"Returns tool names, descriptions, and JSON input schemas. " +
			"Tools change dynamically as the user navigates between pages, " +
			"so always call this before webmcp_call_tool.",
		InputSchema: `{"type":"object","properties":{},"additionalProperties":false}`,
	},
	{
		Name: "webmcp_call_tool",
		Description: "Execute a WebMCP tool by name on the active browser page. " +
			"Use webmcp_list_tools first to discover available tools and their " +
			"input schemas. The tool runs in the page context and may cause " +
			"navigation, DOM changes, or API calls.",
		InputSchema: `{"type":"object","properties":{"name":{"type":"string","description":"The WebMCP tool name to execute (from webmcp_list_tools)"},"arguments":{"type":"object","description":"Input arguments matching the tool's inputSchema. Pass an empty object {} if the tool has no required inputs.","additionalProperties":true}},"required":["arguments"],"additionalProperties":false}`,
	},
}

// schemas holds the resolved input schema of every catalog tool.
var schemas = mustResolveSchemas(catalog)

func mustResolveSchemas(tools []domain.Tool) map[string]*jsonschema.Resolved {
	out := make(map[string]*jsonschema.Resolved, len(tools))
	for _, tool := range tools {
		resolved, err := ResolveSchema(tool.InputSchema)
		if err != nil {
			panic(fmt.Sprintf("browser: schema for %s: %v", tool.Name, err))
		}
		out[tool.Name] = resolved
	}
	return out
}

// ResolveSchema compiles a JSON-encoded input schema for validation.
func ResolveSchema(raw string) (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, err
	}
	return schema.Resolve(nil)
}

// decodeArgs validates argsJSON against the schema of tool and decodes it
// into out. Empty input is treated as an empty object.
func decodeArgs(tool, argsJSON string, out any) error {
	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}
	var instance map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &instance); err != nil {
		return domain.E(domain.CodeInvalidArgument, "", fmt.Sprintf("Invalid arguments for %s: %v", tool, err), domain.ErrInvalidArguments)
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if resolved, ok := schemas[tool]; ok {
		if err := resolved.Validate(instance); err != nil {
			return domain.E(domain.CodeInvalidArgument, "", fmt.Sprintf("Invalid arguments for %s: %v", tool, err), domain.ErrInvalidArguments)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(argsJSON), out); err != nil {
		return domain.E(domain.CodeInvalidArgument, "", fmt.Sprintf("Invalid arguments for %s: %v", tool, err), domain.ErrInvalidArguments)
	}
	return nil
}
