package browser

import (
	"context"
	"encoding/json"
	"time"
)

// Engine starts or joins a browser process.
type Engine interface {
	// Attach joins a browser exposing a remote debugging endpoint such as
	// "http://localhost:9222".
	Attach(ctx context.Context, endpoint string) (Browser, error)
	// Launch starts a fresh browser process.
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// LaunchOptions controls how a browser process is started.
type LaunchOptions struct {
	Channel  string
	Headless bool
	// Features are passed through --enable-features.
	Features []string
}

// Browser is a running browser whose pages can be enumerated and created.
type Browser interface {
	// Version returns the product string, e.g. "Chrome/146.0.7680.31".
	Version(ctx context.Context) (string, error)
	// Pages lists open pages in a stable order.
	Pages(ctx context.Context) ([]Page, error)
	NewPage(ctx context.Context) (Page, error)
	// Close releases the browser. Launched processes are terminated;
	// attached browsers are only detached from.
	Close(ctx context.Context) error
}

// Page is one browser tab.
type Page interface {
	// ID is stable for the lifetime of the tab.
	ID() string
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error

	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	// AccessibilityTree returns the document's root accessibility node.
	AccessibilityTree(ctx context.Context) (*AXNode, error)
	// Element returns a handle to the DOM element behind node.
	Element(ctx context.Context, node *AXNode) (Element, error)

	PressKey(ctx context.Context, key string) error
	Wheel(ctx context.Context, deltaX, deltaY float64) error
	// Evaluate runs expression in the page and returns its JSON value.
	// Promises are awaited. Undefined results yield a nil message.
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)
	WaitSelector(ctx context.Context, selector string) error
	BringToFront(ctx context.Context) error
	Close(ctx context.Context) error

	// Listen registers observers for page activity. It is called at most
	// once per page.
	Listen(events PageEvents)
}

// ClickOptions tunes an element click.
type ClickOptions struct {
	Double bool
	// Force skips the hit test that ensures the element receives the click.
	Force bool
}

// Element is a live handle to a DOM element.
type Element interface {
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context, opts ClickOptions) error
	Hover(ctx context.Context) error
	Focus(ctx context.Context) error
	// Type sends text one character at a time.
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	// Fill replaces the element's value.
	Fill(ctx context.Context, value string) error
	SelectOption(ctx context.Context, value string) error
	ScrollBy(ctx context.Context, deltaX, deltaY float64) error
}

// AXNode is one node of a page accessibility tree.
type AXNode struct {
	Role          string
	Name          string
	Value         string
	Ignored       bool
	Properties    map[string]string
	BackendNodeID int64
	Children      []*AXNode
}

// ConsoleMessage is a console API call observed on a page.
type ConsoleMessage struct {
	Level string
	Text  string
	Time  time.Time
}

// NetworkRequest is an outgoing request observed on a page.
type NetworkRequest struct {
	ID           string
	Method       string
	URL          string
	ResourceType string
}

// NetworkResponse is a response observed on a page.
type NetworkResponse struct {
	RequestID string
	URL       string
	Status    int
}

// PageEvents receives page activity. Callbacks run on engine goroutines and
// must not block.
type PageEvents struct {
	OnConsole  func(ConsoleMessage)
	OnRequest  func(NetworkRequest)
	OnResponse func(NetworkResponse)
}
