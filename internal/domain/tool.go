package domain

import "encoding/json"

// Tool is a named, invocable capability published by a source.
// InputSchema holds the JSON-encoded object schema verbatim.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"`
}

// ContentType discriminates ResultContent variants.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// ResultContent is one item of a tool call result.
type ResultContent struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	Data     string      `json:"data,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
}

// TextContent returns a text result item.
func TextContent(text string) ResultContent {
	return ResultContent{Type: ContentText, Text: text}
}

// ImageContent returns an image result item with base64 data.
func ImageContent(data, mimeType string) ResultContent {
	return ResultContent{Type: ContentImage, Data: data, MimeType: mimeType}
}

// CallResult is what a source returns from CallTool. Sources that execute
// locally fill Content; sources that relay to a remote peer fill Raw, which
// may be nil when the peer answered with a JSON null.
type CallResult struct {
	Content []ResultContent
	Raw     *string
	IsRaw   bool
}

// ContentResult wraps result items.
func ContentResult(items ...ResultContent) CallResult {
	return CallResult{Content: items}
}

// RawResult wraps a nullable string payload from a remote peer.
func RawResult(raw *string) CallResult {
	return CallResult{Raw: raw, IsRaw: true}
}

// Contents normalizes the result into content items. A raw nil payload
// becomes the text "null".
func (r CallResult) Contents() []ResultContent {
	if !r.IsRaw {
		return r.Content
	}
	if r.Raw == nil {
		return []ResultContent{TextContent("null")}
	}
	return []ResultContent{TextContent(*r.Raw)}
}

// ParseSchema decodes a tool input schema. Malformed or empty schemas fall
// back to an empty object schema.
func ParseSchema(raw string) map[string]any {
	var schema map[string]any
	if err := json.Unmarshal([]byte(raw), &schema); err != nil || schema == nil {
		return map[string]any{"type": "object"}
	}
	return schema
}

// CloneTools returns a shallow copy of tools.
func CloneTools(tools []Tool) []Tool {
	if tools == nil {
		return nil
	}
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}
