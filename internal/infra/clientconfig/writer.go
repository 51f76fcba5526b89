package clientconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

type Writer struct {
	home    string
	goos    string
	appData string
	logger  *zap.Logger
}

// NewWriter resolves config locations relative to the current user.
func NewWriter(logger *zap.Logger) (*Writer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}
	return newWriter(home, runtime.GOOS, os.Getenv("APPDATA"), logger), nil
}

func newWriter(home, goos, appData string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{home: home, goos: goos, appData: appData, logger: logger.Named("clientconfig")}
}

// Path returns the config file the client reads its MCP servers from.
func (w *Writer) Path(client Client) (string, error) {
	switch client {
	case ClientClaude:
		switch w.goos {
		case "darwin":
			return filepath.Join(w.home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
		case "windows":
			base := w.appData
			if base == "" {
				base = filepath.Join(w.home, "AppData", "Roaming")
			}
			return filepath.Join(base, "Claude", "claude_desktop_config.json"), nil
		default:
			return filepath.Join(w.home, ".config", "Claude", "claude_desktop_config.json"), nil
		}
	case ClientCursor:
		return filepath.Join(w.home, ".cursor", "mcp.json"), nil
	case ClientCodex:
		return filepath.Join(w.home, ".codex", "config.toml"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownClient, client)
	}
}

// Configure adds or replaces the inspector entry pointing at serverURL.
// Other entries and settings in the file are preserved.
func (w *Writer) Configure(client Client, serverURL string) (Result, error) {
	path, err := w.Path(client)
	if err != nil {
		return Result{}, err
	}
	data, err := readOptional(path)
	if err != nil {
		return Result{}, err
	}

	var out []byte
	switch client {
	case ClientCodex:
		out, err = upsertTOML(data, serverURL)
	default:
		out, err = upsertJSON(data, serverURL)
	}
	if err != nil {
		return Result{}, fmt.Errorf("update %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return Result{}, fmt.Errorf("write config: %w", err)
	}
	w.logger.Info("client configured", zap.String("client", string(client)), zap.String("path", path))
	return Result{Client: client, Path: path, URL: serverURL}, nil
}

// Lookup returns the URL currently configured for the inspector entry.
func (w *Writer) Lookup(client Client) (string, bool, error) {
	path, err := w.Path(client)
	if err != nil {
		return "", false, err
	}
	data, err := readOptional(path)
	if err != nil || len(data) == 0 {
		return "", false, err
	}

	var payload map[string]any
	key := "mcpServers"
	if client == ClientCodex {
		key = "mcp_servers"
		err = toml.Unmarshal(data, &payload)
	} else {
		err = json.Unmarshal(data, &payload)
	}
	if err != nil {
		return "", false, fmt.Errorf("parse %s: %w", path, err)
	}
	servers, _ := payload[key].(map[string]any)
	entry, _ := servers[ServerKey].(map[string]any)
	url, ok := entry["url"].(string)
	return url, ok, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}

func upsertJSON(data []byte, serverURL string) ([]byte, error) {
	payload := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}
	servers, ok := payload["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
	}
	servers[ServerKey] = map[string]any{"url": serverURL}
	payload["mcpServers"] = servers

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func upsertTOML(data []byte, serverURL string) ([]byte, error) {
	payload := map[string]any{}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	}
	servers, ok := payload["mcp_servers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
	}
	servers[ServerKey] = map[string]any{"url": serverURL}
	payload["mcp_servers"] = servers
	return toml.Marshal(payload)
}
