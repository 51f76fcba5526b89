package browser

import (
	"context"
	"encoding/json"
	"fmt"
)

const webmcpUnavailableText = "Error: WebMCP is not available on this page. " +
	"navigator.modelContextTesting is undefined.\n\n" +
	"To enable WebMCP:\n" +
	"1. Use Chrome 146+ (Beta or Canary)\n" +
	"2. Launch with: --enable-features=WebMCPTesting\n" +
	"3. The page must register tools via the WebMCP API"

const webmcpProbeScript = `typeof navigator.modelContextTesting !== "undefined"`

const webmcpListScript = `(() => {
  const mct = navigator.modelContextTesting;
  if (!mct) return { available: false };
  return {
    available: true,
    tools: mct.listTools().map((t) => {
      let schema;
      try { schema = JSON.parse(t.inputSchema); } catch (e) { schema = { type: "object" }; }
      return { name: t.name, description: t.description, inputSchema: schema };
    }),
  };
})()`

// pageTool is a tool registered by the page through the WebMCP testing API.
type pageTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type pageToolList struct {
	Available bool       `json:"available"`
	Tools     []pageTool `json:"tools"`
}

// probeWebMCP reports whether the page exposes navigator.modelContextTesting.
func probeWebMCP(ctx context.Context, page Page) bool {
	raw, err := page.Evaluate(ctx, webmcpProbeScript)
	if err != nil {
		return false
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false
	}
	return ok
}

func listPageTools(ctx context.Context, page Page) (pageToolList, error) {
	raw, err := page.Evaluate(ctx, webmcpListScript)
	if err != nil {
		return pageToolList{}, err
	}
	var list pageToolList
	if len(raw) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return pageToolList{}, fmt.Errorf("decode page tools: %w", err)
	}
	return list, nil
}

// callPageTool runs executeTool on the page. A null result is returned as nil.
func callPageTool(ctx context.Context, page Page, name, argsJSON string) (*string, error) {
	nameLit, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	argsLit, err := json.Marshal(argsJSON)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("navigator.modelContextTesting.executeTool(%s, %s)", nameLit, argsLit)
	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// Non-string results are passed through as JSON text.
		text = string(raw)
	}
	return &text, nil
}
