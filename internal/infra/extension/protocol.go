package extension

import (
	"encoding/json"
	"errors"
	"fmt"

	"webmcp-inspector/internal/domain"
)

// Message types exchanged with extension peers.
const (
	MessageToolsUpdate = "TOOLS_UPDATE"
	MessageToolResult  = "TOOL_RESULT"
	MessageEvent       = "EVENT"
	MessageCallTool    = "CALL_TOOL"
)

type envelope struct {
	Type string `json:"type"`
}

// ToolsUpdate replaces the tool set advertised by one tab.
type ToolsUpdate struct {
	Type  string        `json:"type"`
	TabID int           `json:"tabId"`
	URL   string        `json:"url"`
	Tools []domain.Tool `json:"tools"`
}

// ToolResult answers a CallTool request. Result and Error are mutually
// exclusive; Result may be a JSON string or null.
type ToolResult struct {
	Type   string          `json:"type"`
	CallID string          `json:"callId"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Event is an informational message from a peer.
type Event struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	TabID int             `json:"tabId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CallTool asks a peer to execute a tool.
type CallTool struct {
	Type           string `json:"type"`
	CallID         string `json:"callId"`
	Name           string `json:"name"`
	InputArguments string `json:"inputArguments"`
}

var errUnknownMessage = errors.New("unknown message type")

// decodeMessage parses an inbound frame into one of ToolsUpdate, ToolResult
// or Event.
func decodeMessage(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case MessageToolsUpdate:
		var msg ToolsUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case MessageToolResult:
		var msg ToolResult
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" {
			return nil, errors.New("tool result without callId")
		}
		return msg, nil
	case MessageEvent:
		var msg Event
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessage, env.Type)
	}
}

// payload converts the result field into the nullable string handed back to
// callers. Non-string JSON values are passed through as their JSON text.
func (r ToolResult) payload() *string {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(r.Result, &text); err == nil {
		return &text
	}
	raw := string(r.Result)
	return &raw
}
