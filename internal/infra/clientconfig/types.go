// Package clientconfig registers the inspector endpoint in the config files
// of desktop MCP clients.
package clientconfig

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Client identifies a supported MCP client.
type Client string

const (
	ClientClaude Client = "claude"
	ClientCursor Client = "cursor"
	ClientCodex  Client = "codex"
)

// ServerKey is the entry name written into client configs.
const ServerKey = "ai-inspector"

// ErrUnknownClient indicates the client name is not supported.
var ErrUnknownClient = errors.New("unknown MCP client")

var clients = []Client{ClientClaude, ClientCursor, ClientCodex}

// Names lists supported client names, sorted.
func Names() []string {
	names := make([]string, 0, len(clients))
	for _, client := range clients {
		names = append(names, string(client))
	}
	sort.Strings(names)
	return names
}

// ParseClient converts a raw name into a Client, case-insensitively.
func ParseClient(raw string) (Client, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, client := range clients {
		if string(client) == name {
			return client, nil
		}
	}
	return "", fmt.Errorf("%w: %q. Supported: %s", ErrUnknownClient, raw, strings.Join(Names(), ", "))
}

// Result reports where an entry was written.
type Result struct {
	Client Client
	Path   string
	URL    string
}
