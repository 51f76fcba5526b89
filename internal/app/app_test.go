package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/config"
	"webmcp-inspector/internal/infra/extension"
	"webmcp-inspector/internal/infra/gateway"
	"webmcp-inspector/internal/infra/registry"
	"webmcp-inspector/internal/infra/webmcp"
)

type stubSource struct {
	name       string
	tools      []domain.Tool
	connectErr error

	mu           sync.Mutex
	connected    bool
	connects     int
	disconnects  int
	connectedCfg domain.SourceConfig
	listeners    []domain.ToolsChangedFunc
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Connect(_ context.Context, cfg domain.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	s.connectedCfg = cfg
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *stubSource) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.connected = false
	return nil
}

func (s *stubSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubSource) ListTools() []domain.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTools(s.tools)
}

func (s *stubSource) setTools(tools []domain.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = tools
}

func (s *stubSource) OnToolsChanged(fn domain.ToolsChangedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *stubSource) CallTool(context.Context, string, string) (domain.CallResult, error) {
	return domain.ContentResult(domain.TextContent("ok")), nil
}

func (s *stubSource) emit(tools []domain.Tool) {
	s.mu.Lock()
	listeners := append([]domain.ToolsChangedFunc(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(tools)
	}
}

func newTestApplication(t *testing.T, cfg config.Config, bindings ...sourceBinding) *Application {
	t.Helper()
	reg := registry.New(zap.NewNop(), nil)
	return &Application{
		cfg:      cfg,
		logger:   zap.NewNop(),
		registry: reg,
		gateway:  gateway.New(reg, gateway.Options{}, zap.NewNop()),
		bindings: bindings,
	}
}

func tool(name string) domain.Tool {
	return domain.Tool{Name: name, InputSchema: `{"type":"object"}`}
}

func TestStartSources_PublishesTools(t *testing.T) {
	src := &stubSource{name: "browser", tools: []domain.Tool{tool("browser_url")}}
	cfg := domain.SourceConfig{Host: "localhost", Port: 9222}
	app := newTestApplication(t, config.Default(), sourceBinding{source: src, exposed: src, config: cfg})

	require.NoError(t, app.startSources(context.Background()))
	require.Equal(t, cfg, src.connectedCfg)
	require.Equal(t, []string{"browser_url"}, app.registry.Names())

	src.setTools([]domain.Tool{tool("browser_url"), tool("browser_click")})
	src.emit(nil)
	require.ElementsMatch(t, []string{"browser_url", "browser_click"}, app.registry.Names())
}

// lateUpdateSource changes its tools from another goroutine while the first
// ListTools call is still returning the previous list.
type lateUpdateSource struct {
	stubSource
	once sync.Once
	done chan struct{}
}

func (s *lateUpdateSource) ListTools() []domain.Tool {
	tools := s.stubSource.ListTools()
	s.once.Do(func() {
		go func() {
			defer close(s.done)
			s.setTools([]domain.Tool{tool("search"), tool("checkout")})
			s.emit([]domain.Tool{tool("search")})
		}()
	})
	return tools
}

func TestPublish_ChangeDuringSeedIsNotOverwritten(t *testing.T) {
	src := &lateUpdateSource{
		stubSource: stubSource{name: "extension", tools: []domain.Tool{tool("search")}},
		done:       make(chan struct{}),
	}
	reg := registry.New(zap.NewNop(), nil)

	publish(reg, src)
	<-src.done

	require.ElementsMatch(t, []string{"search", "checkout"}, reg.Names())
}

func TestPublish_ListenerRereadsSource(t *testing.T) {
	src := &stubSource{name: "extension", tools: []domain.Tool{tool("search")}}
	reg := registry.New(zap.NewNop(), nil)
	publish(reg, src)

	src.setTools([]domain.Tool{tool("cart")})
	src.emit([]domain.Tool{tool("stale")})

	require.Equal(t, []string{"cart"}, reg.Names())
}

func TestStartSources_OptionalFailureStillRegisters(t *testing.T) {
	src := &stubSource{name: "browser", tools: []domain.Tool{tool("browser_launch")}, connectErr: errors.New("refused")}
	app := newTestApplication(t, config.Default(), sourceBinding{source: src, exposed: src, optional: true})

	require.NoError(t, app.startSources(context.Background()))
	require.Equal(t, []string{"browser_launch"}, app.registry.Names())
}

func TestStartSources_RequiredFailureAborts(t *testing.T) {
	src := &stubSource{name: "extension", connectErr: errors.New("address in use")}
	app := newTestApplication(t, config.Default(), sourceBinding{source: src, exposed: src})

	err := app.startSources(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect extension source: address in use")
	require.Zero(t, app.registry.Size())
}

func TestRun_ServesUntilCanceledThenShutsDown(t *testing.T) {
	browserSrc := &stubSource{name: "browser", tools: []domain.Tool{tool("browser_url")}}
	extSrc := &stubSource{name: "extension", tools: []domain.Tool{tool("search")}}
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	app := newTestApplication(t, cfg,
		sourceBinding{source: browserSrc, exposed: browserSrc, optional: true},
		sourceBinding{source: extSrc, exposed: extSrc},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.registry.Size() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
	require.Equal(t, 1, browserSrc.disconnects)
	require.Equal(t, 1, extSrc.disconnects)
	require.Zero(t, app.registry.Size())
}

func TestRun_RequiredSourceFailure(t *testing.T) {
	extSrc := &stubSource{name: "extension", connectErr: errors.New("boom")}
	app := newTestApplication(t, config.Default(), sourceBinding{source: extSrc, exposed: extSrc})

	err := app.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, extSrc.disconnects)
}

func TestRun_UnsupportedTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = "carrier-pigeon"
	app := newTestApplication(t, cfg)

	err := app.Run(context.Background())
	require.EqualError(t, err, "unsupported transport: carrier-pigeon")
}

func TestHealth(t *testing.T) {
	src := &stubSource{name: "browser", tools: []domain.Tool{tool("browser_url")}}
	app := newTestApplication(t, config.Default(), sourceBinding{source: src, exposed: src})
	require.NoError(t, app.startSources(context.Background()))

	report := app.Health()
	require.Equal(t, "ok", report.Status)
	require.Equal(t, domain.ServerName, report.Server)
	require.Equal(t, 1, report.Components["tools"])
	require.Equal(t, map[string]any{"connected": true}, report.Components["browser"])
}

func TestNewApplication_ExtensionMetaWrapsSource(t *testing.T) {
	cfg := config.Default()
	cfg.Extension.Enabled = true
	cfg.Extension.Meta = true
	ext := extension.NewSource(extension.Options{Addr: "127.0.0.1:0"})

	app := NewApplication(ApplicationOptions{
		ServeConfig: ServeConfig{Config: cfg},
		Registry:    registry.New(nil, nil),
		Extension:   ext,
	})
	require.Len(t, app.bindings, 1)
	require.Same(t, ext, app.bindings[0].source)
	meta, ok := app.bindings[0].exposed.(*webmcp.MetaSource)
	require.True(t, ok)
	require.Equal(t, "webmcp-meta:extension", meta.Name())
	require.False(t, app.bindings[0].optional)
}

func TestProviders_RespectEnabledFlags(t *testing.T) {
	cfg := config.Default()
	require.NotNil(t, NewBrowserSource(ServeConfig{Config: cfg}, nil))
	require.Nil(t, NewExtensionSource(ServeConfig{Config: cfg}, nil, nil))

	cfg.CDP.Enabled = false
	require.Nil(t, NewBrowserSource(ServeConfig{Config: cfg}, nil))

	cfg.Browser.Launch = true
	require.NotNil(t, NewBrowserSource(ServeConfig{Config: cfg}, nil))

	cfg.Extension.Enabled = true
	require.NotNil(t, NewExtensionSource(ServeConfig{Config: cfg}, nil, nil))
}

func TestInitializeApplication(t *testing.T) {
	cfg := config.Default()
	cfg.Extension.Enabled = true

	app, err := InitializeApplication(ServeConfig{Config: cfg}, LoggingConfig{Logger: zap.NewNop()})
	require.NoError(t, err)
	require.Len(t, app.bindings, 2)
	require.Equal(t, "browser", app.bindings[0].source.Name())
	require.True(t, app.bindings[0].optional)
	require.Equal(t, "extension", app.bindings[1].source.Name())
	require.Equal(t, domain.SourceConfig{WSPort: domain.DefaultExtensionWSPort}, app.bindings[1].config)
}
