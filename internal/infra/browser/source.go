// Package browser implements a tool source that drives a Chromium based
// browser. It exposes a fixed automation catalog and addresses page
// elements through integer refs produced by accessibility snapshots.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/telemetry"
	"webmcp-inspector/internal/infra/telemetry/diagnostics"
)

const (
	sourceName = "browser"

	defaultBufferSize = 500
	webmcpFeatures    = "WebMCPTesting"
)

// Options configures a Source.
type Options struct {
	Logger *zap.Logger
	// Engine drives the browser. Defaults to the chromedp engine.
	Engine Engine
	// BufferSize caps buffered console messages and network requests.
	BufferSize int
}

// networkEntry is a request and, once observed, its response status.
type networkEntry struct {
	id           string
	method       string
	url          string
	resourceType string
	status       int
	answered     bool
}

// Source is the browser-backed tool source.
//
// opMu serializes connection changes and tool calls; everything below it is
// only touched with opMu held. listeners has its own lock so ListTools and
// OnToolsChanged never wait on a slow browser operation.
type Source struct {
	logger *zap.Logger
	engine Engine

	console *diagnostics.RingBuffer[ConsoleMessage]
	network *diagnostics.RingBuffer[networkEntry]

	opMu    sync.Mutex
	browser Browser
	active  Page
	watched map[string]bool
	refs    *refTable

	mu        sync.Mutex
	listeners []domain.ToolsChangedFunc
}

func NewSource(opts Options) *Source {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")
	engine := opts.Engine
	if engine == nil {
		engine = NewChromedpEngine(logger)
	}
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Source{
		logger:  logger,
		engine:  engine,
		console: diagnostics.NewRingBuffer[ConsoleMessage](size),
		network: diagnostics.NewRingBuffer[networkEntry](size),
		watched: make(map[string]bool),
	}
}

func (s *Source) Name() string { return sourceName }

// ListTools returns the static catalog. It is available before Connect so
// that browser_launch can be called on a disconnected source.
func (s *Source) ListTools() []domain.Tool {
	return domain.CloneTools(catalog)
}

// OnToolsChanged registers fn. The catalog is static, so listeners are kept
// for contract symmetry and never invoked.
func (s *Source) OnToolsChanged(fn domain.ToolsChangedFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Connect attaches to a running browser over its remote debugging port, or
// launches one when cfg.Launch is set. Browsers older than the minimum
// supported version are rejected.
func (s *Source) Connect(ctx context.Context, cfg domain.SourceConfig) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if cfg.Launch {
		return s.launchLocked(ctx, cfg.Channel, cfg.Headless, cfg.URL)
	}

	host := cfg.Host
	if host == "" {
		host = domain.DefaultCDPHost
	}
	port := cfg.Port
	if port == 0 {
		port = domain.DefaultCDPPort
	}
	endpoint := "http://" + host + ":" + strconv.Itoa(port)

	s.closeLocked(ctx)
	b, err := s.engine.Attach(ctx, endpoint)
	if err != nil {
		return domain.E(domain.CodeUnavailable, "", fmt.Sprintf("Failed to connect to browser at %s: %v", endpoint, err), err)
	}
	if err := s.adoptLocked(ctx, b, cfg.URL); err != nil {
		return err
	}
	s.logger.Info("attached to browser",
		telemetry.EventField(telemetry.EventSourceConnected),
		zap.String("endpoint", endpoint),
	)
	return nil
}

func (s *Source) launchLocked(ctx context.Context, channel string, headless bool, url string) error {
	if channel == "" {
		channel = domain.DefaultBrowserChannel
	}
	s.closeLocked(ctx)
	b, err := s.engine.Launch(ctx, LaunchOptions{
		Channel:  channel,
		Headless: headless,
		Features: []string{webmcpFeatures},
	})
	if err != nil {
		return domain.E(domain.CodeUnavailable, "", fmt.Sprintf("Failed to launch %s: %v", channel, err), err)
	}
	if err := s.adoptLocked(ctx, b, url); err != nil {
		return err
	}
	s.logger.Info("launched browser",
		telemetry.EventField(telemetry.EventSourceConnected),
		zap.String("channel", channel),
		zap.Bool("headless", headless),
	)
	return nil
}

// adoptLocked verifies b and makes its first page active. b is closed when
// it cannot be used.
func (s *Source) adoptLocked(ctx context.Context, b Browser, url string) error {
	product, err := b.Version(ctx)
	if err == nil {
		err = checkVersion(product)
	}
	if err != nil {
		_ = b.Close(context.WithoutCancel(ctx))
		return err
	}

	pages, err := b.Pages(ctx)
	if err != nil {
		_ = b.Close(context.WithoutCancel(ctx))
		return err
	}
	var page Page
	if len(pages) > 0 {
		page = pages[0]
	} else if page, err = b.NewPage(ctx); err != nil {
		_ = b.Close(context.WithoutCancel(ctx))
		return err
	}

	s.browser = b
	s.active = page
	s.watchLocked(page)

	if url != "" {
		if err := page.Navigate(ctx, url); err != nil {
			return err
		}
	}
	s.logger.Debug("browser version", zap.String("product", product))
	if !probeWebMCP(ctx, page) {
		s.logger.Warn("navigator.modelContextTesting is undefined; launch the browser with --enable-features=WebMCPTesting to use webmcp tools")
	}
	return nil
}

// Disconnect closes a launched browser or detaches from an attached one and
// forgets refs and buffered activity. It is safe to call repeatedly.
func (s *Source) Disconnect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.browser != nil {
		s.logger.Info("browser disconnected", telemetry.EventField(telemetry.EventSourceDisconnected))
	}
	s.closeLocked(ctx)
	return nil
}

func (s *Source) closeLocked(ctx context.Context) {
	if s.browser != nil {
		if err := s.browser.Close(ctx); err != nil {
			s.logger.Debug("browser close failed", zap.Error(err))
		}
	}
	s.browser = nil
	s.active = nil
	s.watched = make(map[string]bool)
	s.refs = nil
	s.console.Drain()
	s.network.Drain()
}

// Connected reports whether a browser is attached.
func (s *Source) Connected() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.browser != nil
}

// CallTool runs one catalog tool. Calls are serialized.
func (s *Source) CallTool(ctx context.Context, name string, argsJSON string) (domain.CallResult, error) {
	if _, ok := schemas[name]; !ok {
		return domain.CallResult{}, domain.E(domain.CodeNotFound, "", fmt.Sprintf("Unknown browser tool: %q", name), domain.ErrToolNotFound)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if name != "browser_launch" && s.browser == nil {
		return domain.CallResult{}, domain.E(domain.CodeUnavailable, "",
			"Browser not connected. Use the browser_launch tool to start a browser.", domain.ErrNotConnected)
	}

	start := time.Now()
	result, err := s.dispatch(ctx, name, argsJSON)
	fields := []zap.Field{telemetry.ToolField(name), telemetry.DurationField(time.Since(start))}
	if err != nil {
		s.logger.Debug("browser tool failed", append(fields, zap.Error(err))...)
		return domain.CallResult{}, err
	}
	s.logger.Debug("browser tool completed", fields...)
	return result, nil
}

func (s *Source) dispatch(ctx context.Context, name, argsJSON string) (domain.CallResult, error) {
	switch name {
	case "browser_navigate":
		return s.navigate(ctx, argsJSON)
	case "browser_back":
		return s.history(ctx, "Navigated back to", Page.Back)
	case "browser_forward":
		return s.history(ctx, "Navigated forward to", Page.Forward)
	case "browser_reload":
		return s.history(ctx, "Reloaded", Page.Reload)
	case "browser_url":
		return s.currentURL(ctx)
	case "browser_snapshot":
		return s.snapshot(ctx)
	case "browser_screenshot":
		return s.screenshot(ctx, argsJSON)
	case "browser_console_logs":
		return s.consoleLogs()
	case "browser_network_requests":
		return s.networkRequests()
	case "browser_click":
		return s.click(ctx, argsJSON)
	case "browser_type":
		return s.typeText(ctx, argsJSON)
	case "browser_fill":
		return s.fill(ctx, argsJSON)
	case "browser_hover":
		return s.hover(ctx, argsJSON)
	case "browser_select_option":
		return s.selectOption(ctx, argsJSON)
	case "browser_press_key":
		return s.pressKey(ctx, argsJSON)
	case "browser_focus":
		return s.focus(ctx, argsJSON)
	case "browser_scroll":
		return s.scroll(ctx, argsJSON)
	case "browser_tab_list":
		return s.tabList(ctx)
	case "browser_tab_new":
		return s.tabNew(ctx, argsJSON)
	case "browser_tab_select":
		return s.tabSelect(ctx, argsJSON)
	case "browser_tab_close":
		return s.tabClose(ctx, argsJSON)
	case "browser_evaluate":
		return s.evaluate(ctx, argsJSON)
	case "browser_wait":
		return s.wait(ctx, argsJSON)
	case "browser_launch":
		return s.launch(ctx, argsJSON)
	case "webmcp_list_tools":
		return s.webmcpListTools(ctx, argsJSON)
	case "webmcp_call_tool":
		return s.webmcpCallTool(ctx, argsJSON)
	default:
		return domain.CallResult{}, domain.E(domain.CodeNotFound, "", fmt.Sprintf("Unknown browser tool: %q", name), domain.ErrToolNotFound)
	}
}

func (s *Source) activePage() (Page, error) {
	if s.active == nil {
		return nil, domain.E(domain.CodeFailedPrecond, "", "No active page", domain.ErrNotConnected)
	}
	return s.active, nil
}

// watchLocked starts capturing console and network activity for page.
func (s *Source) watchLocked(page Page) {
	if page == nil || s.watched[page.ID()] {
		return
	}
	s.watched[page.ID()] = true
	page.Listen(PageEvents{
		OnConsole: func(msg ConsoleMessage) {
			s.console.Add(msg)
		},
		OnRequest: func(req NetworkRequest) {
			s.network.Add(networkEntry{
				id:           req.ID,
				method:       req.Method,
				url:          req.URL,
				resourceType: req.ResourceType,
			})
		},
		OnResponse: func(resp NetworkResponse) {
			s.network.Update(func(e *networkEntry) bool {
				if e.answered {
					return false
				}
				if (resp.RequestID != "" && e.id == resp.RequestID) || (resp.RequestID == "" && e.url == resp.URL) {
					e.status = resp.Status
					e.answered = true
					return true
				}
				return false
			})
		},
	})
}

// resolveRef turns a snapshot ref into a live element on the active page.
// Refs taken on another page are rejected rather than re-targeted.
func (s *Source) resolveRef(ctx context.Context, ref int) (Element, refEntry, error) {
	entry, ok := s.refs.lookup(ref)
	if !ok {
		return nil, refEntry{}, domain.E(domain.CodeNotFound, "",
			fmt.Sprintf("Invalid ref %d. Run browser_snapshot first to get valid ref numbers.", ref), domain.ErrInvalidRef)
	}
	page, err := s.activePage()
	if err != nil {
		return nil, refEntry{}, err
	}
	if s.refs.pageID != page.ID() {
		return nil, refEntry{}, domain.E(domain.CodeNotFound, "",
			fmt.Sprintf("Stale ref %d: the active tab changed since the last browser_snapshot. Run browser_snapshot again to get valid ref numbers.", ref),
			fmt.Errorf("%w: %w", domain.ErrStaleRef, domain.ErrInvalidRef))
	}

	root, err := page.AccessibilityTree(ctx)
	if err != nil {
		return nil, refEntry{}, err
	}
	matches := matchElements(root, entry)
	if entry.Occurrence >= len(matches) {
		return nil, refEntry{}, domain.E(domain.CodeNotFound, "",
			fmt.Sprintf("Element %s for ref %d is no longer on the page", entry.describe(), ref), nil)
	}
	el, err := page.Element(ctx, matches[entry.Occurrence])
	if err != nil {
		return nil, refEntry{}, err
	}
	s.logger.Debug("ref resolved",
		telemetry.RefField(ref),
		zap.String("role", entry.Role),
		zap.Int("occurrence", entry.Occurrence),
	)
	return el, entry, nil
}

// withTimeout bounds one engine step.
func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(stepCtx)
}

