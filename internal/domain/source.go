package domain

import "context"

// SourceConfig carries connection settings. Each source reads the fields it
// understands and ignores the rest.
type SourceConfig struct {
	Host     string
	Port     int
	Launch   bool
	Channel  string
	Headless bool
	URL      string
	WSPort   int
}

// ToolsChangedFunc receives the full current tool list of a source.
type ToolsChangedFunc func(tools []Tool)

// Source is a provider of tools. Sources are compared by identity, so
// implementations are expected to be pointer types.
type Source interface {
	Name() string
	Connect(ctx context.Context, cfg SourceConfig) error
	Disconnect(ctx context.Context) error
	ListTools() []Tool
	CallTool(ctx context.Context, name string, argsJSON string) (CallResult, error)
	OnToolsChanged(fn ToolsChangedFunc)
}
