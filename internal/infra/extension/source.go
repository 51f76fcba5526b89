// Package extension implements a tool source fed by browser extension peers
// over a WebSocket listener. Peers advertise per-tab tool sets and answer
// broadcast call requests.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/telemetry"
)

const sourceName = "extension"

// Options configures a Source.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	// Host is the listen host. Defaults to 127.0.0.1.
	Host string
	// Addr overrides Host and SourceConfig.WSPort when set, e.g. "127.0.0.1:0".
	Addr string
	// CallTimeout bounds each tool call round trip. Defaults to 30s.
	CallTimeout time.Duration
}

type callOutcome struct {
	result *string
	err    error
}

// Source is the extension-backed tool source.
type Source struct {
	logger  *zap.Logger
	metrics domain.Metrics
	host    string
	addr    string
	timeout time.Duration

	mu        sync.Mutex
	listener  net.Listener
	server    *http.Server
	serveDone chan struct{}
	peers     map[*peer]struct{}
	tabTools  map[int][]domain.Tool
	tabOrder  []int
	pending   map[string]chan callOutcome
	listeners []domain.ToolsChangedFunc

	peerWG sync.WaitGroup
}

func NewSource(opts Options) *Source {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = domain.DefaultExtensionCallTimeout
	}
	return &Source{
		logger:   logger.Named("extension"),
		metrics:  metrics,
		host:     host,
		addr:     opts.Addr,
		timeout:  timeout,
		peers:    make(map[*peer]struct{}),
		tabTools: make(map[int][]domain.Tool),
		pending:  make(map[string]chan callOutcome),
	}
}

func (s *Source) Name() string {
	return sourceName
}

// Connect binds the WebSocket listener. Peers upgrade on any path; a plain
// GET /health reports liveness on the same port.
func (s *Source) Connect(_ context.Context, cfg domain.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return domain.E(domain.CodeFailedPrecond, "extension.Connect", "extension source already listening on "+s.listener.Addr().String(), nil)
	}

	addr := s.addr
	if addr == "" {
		port := cfg.WSPort
		if port == 0 {
			port = domain.DefaultExtensionWSPort
		}
		addr = net.JoinHostPort(s.host, strconv.Itoa(port))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return domain.E(domain.CodeUnavailable, "extension.Connect",
			fmt.Sprintf("WebSocket server failed to start: %v", err),
			fmt.Errorf("%w: %w", domain.ErrListenFailed, err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleUpgrade)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("extension listener stopped", zap.Error(err))
		}
	}()

	s.listener = lis
	s.server = server
	s.serveDone = done
	s.logger.Info("extension listener started",
		telemetry.EventField(telemetry.EventSourceConnected),
		zap.String("addr", lis.Addr().String()),
	)
	return nil
}

// Addr returns the bound listener address, or nil when stopped.
func (s *Source) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount reports the number of open peer connections.
func (s *Source) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// PendingCount reports calls still awaiting a result.
func (s *Source) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ListTools returns the union of all tab tool sets, in tab arrival order.
func (s *Source) ListTools() []domain.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Source) listLocked() []domain.Tool {
	all := make([]domain.Tool, 0)
	for _, tabID := range s.tabOrder {
		all = append(all, s.tabTools[tabID]...)
	}
	return all
}

func (s *Source) OnToolsChanged(fn domain.ToolsChangedFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// CallTool broadcasts a call request to every open peer and waits for the
// first matching result.
func (s *Source) CallTool(ctx context.Context, name string, argsJSON string) (domain.CallResult, error) {
	s.mu.Lock()
	if !s.hasToolLocked(name) {
		s.mu.Unlock()
		return domain.CallResult{}, domain.E(domain.CodeNotFound, "",
			fmt.Sprintf("Tool %q not found in extension source", name), domain.ErrToolNotFound)
	}
	if s.listener == nil {
		s.mu.Unlock()
		return domain.CallResult{}, domain.E(domain.CodeUnavailable, "", "extension source is not listening", domain.ErrNotConnected)
	}
	callID := uuid.NewString()
	resultCh := make(chan callOutcome, 1)
	s.pending[callID] = resultCh
	pendingCount := len(s.pending)
	peers := s.peersLocked()
	s.mu.Unlock()
	s.metrics.SetExtensionPendingCalls(pendingCount)

	logger := telemetry.LoggerWithRequest(telemetry.WithTool(ctx, name), s.logger).With(telemetry.CallIDField(callID))

	data, err := json.Marshal(CallTool{
		Type:           MessageCallTool,
		CallID:         callID,
		Name:           name,
		InputArguments: argsJSON,
	})
	if err != nil {
		s.removePending(callID)
		return domain.CallResult{}, domain.E(domain.CodeInternal, "", "encode call request", err)
	}
	s.broadcast(peers, data, logger)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case outcome := <-resultCh:
		return outcomeResult(outcome)
	case <-timer.C:
		if s.removePending(callID) {
			logger.Warn("tool call timed out",
				telemetry.EventField(telemetry.EventCallTimeout),
				telemetry.DurationField(s.timeout),
			)
			return domain.CallResult{}, domain.E(domain.CodeDeadlineExceeded, "",
				fmt.Sprintf("Tool call %q timed out after %s", name, s.timeout), domain.ErrToolCallTimeout)
		}
		return outcomeResult(<-resultCh)
	case <-ctx.Done():
		if s.removePending(callID) {
			return domain.CallResult{}, ctx.Err()
		}
		return outcomeResult(<-resultCh)
	}
}

func outcomeResult(outcome callOutcome) (domain.CallResult, error) {
	if outcome.err != nil {
		return domain.CallResult{}, outcome.err
	}
	return domain.RawResult(outcome.result), nil
}

// Disconnect fails every pending call, closes all peers and waits for the
// listener to stop. Tab tool sets are cleared.
func (s *Source) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	done := s.serveDone
	if server == nil {
		s.mu.Unlock()
		return nil
	}
	s.server = nil
	s.listener = nil
	s.serveDone = nil

	pending := s.pending
	s.pending = make(map[string]chan callOutcome)
	peers := s.peersLocked()
	hadTools := len(s.tabOrder) > 0
	s.tabTools = make(map[int][]domain.Tool)
	s.tabOrder = nil
	listeners := append([]domain.ToolsChangedFunc(nil), s.listeners...)
	s.mu.Unlock()

	for callID, ch := range pending {
		ch <- callOutcome{err: domain.E(domain.CodeUnavailable, "", "Extension source disconnected", domain.ErrSourceDisconnected)}
		s.logger.Debug("pending call aborted", telemetry.CallIDField(callID))
	}
	s.metrics.SetExtensionPendingCalls(0)

	for _, p := range peers {
		_ = p.close()
	}

	err := server.Shutdown(ctx)
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	s.peerWG.Wait()
	s.metrics.SetExtensionConnections(0)

	if hadTools {
		for _, fn := range listeners {
			fn([]domain.Tool{})
		}
	}
	s.logger.Info("extension listener stopped", telemetry.EventField(telemetry.EventSourceDisconnected))
	return err
}

func (s *Source) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.ConnectionCount(),
	})
}

func (s *Source) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	p := newPeer(conn)
	s.mu.Lock()
	if s.server == nil {
		s.mu.Unlock()
		_ = p.close()
		return
	}
	s.peers[p] = struct{}{}
	count := len(s.peers)
	s.peerWG.Add(1)
	s.mu.Unlock()

	s.metrics.SetExtensionConnections(count)
	s.logger.Info("extension peer connected",
		telemetry.EventField(telemetry.EventPeerConnected),
		telemetry.RemoteAddrField(p.addr),
	)
	go s.readLoop(p)
}

func (s *Source) readLoop(p *peer) {
	defer s.peerWG.Done()
	defer s.dropPeer(p)
	for {
		data, err := p.readMessage()
		if err != nil {
			return
		}
		msg, err := decodeMessage(data)
		if err != nil {
			s.logger.Debug("dropping malformed message",
				telemetry.EventField(telemetry.EventMalformedMessage),
				telemetry.RemoteAddrField(p.addr),
				zap.Error(err),
			)
			continue
		}
		s.handleMessage(msg)
	}
}

func (s *Source) dropPeer(p *peer) {
	_ = p.close()
	s.mu.Lock()
	delete(s.peers, p)
	count := len(s.peers)
	s.mu.Unlock()
	s.metrics.SetExtensionConnections(count)
	s.logger.Info("extension peer closed",
		telemetry.EventField(telemetry.EventPeerClosed),
		telemetry.RemoteAddrField(p.addr),
	)
}

func (s *Source) handleMessage(msg any) {
	switch m := msg.(type) {
	case ToolsUpdate:
		s.applyToolsUpdate(m)
	case ToolResult:
		s.resolve(m)
	case Event:
		s.logger.Debug("extension event",
			telemetry.EventField(telemetry.EventPeerEvent),
			zap.String("name", m.Event),
			telemetry.TabIDField(m.TabID),
		)
	}
}

func (s *Source) applyToolsUpdate(update ToolsUpdate) {
	tools := domain.CloneTools(update.Tools)
	if tools == nil {
		tools = []domain.Tool{}
	}

	s.mu.Lock()
	if _, ok := s.tabTools[update.TabID]; !ok {
		s.tabOrder = append(s.tabOrder, update.TabID)
	}
	s.tabTools[update.TabID] = tools
	all := s.listLocked()
	listeners := append([]domain.ToolsChangedFunc(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Debug("tab tools updated",
		telemetry.EventField(telemetry.EventToolsChanged),
		telemetry.TabIDField(update.TabID),
		zap.String("url", update.URL),
		zap.Int("count", len(tools)),
		zap.Int("total", len(all)),
	)
	for _, fn := range listeners {
		fn(domain.CloneTools(all))
	}
}

func (s *Source) resolve(result ToolResult) {
	s.mu.Lock()
	ch, ok := s.pending[result.CallID]
	delete(s.pending, result.CallID)
	pendingCount := len(s.pending)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("dropping result with no pending call", telemetry.CallIDField(result.CallID))
		return
	}
	s.metrics.SetExtensionPendingCalls(pendingCount)

	if result.Error != "" {
		ch <- callOutcome{err: domain.E(domain.CodeInternal, "", result.Error, nil)}
		return
	}
	ch <- callOutcome{result: result.payload()}
}

func (s *Source) removePending(callID string) bool {
	s.mu.Lock()
	_, ok := s.pending[callID]
	delete(s.pending, callID)
	pendingCount := len(s.pending)
	s.mu.Unlock()
	if ok {
		s.metrics.SetExtensionPendingCalls(pendingCount)
	}
	return ok
}

func (s *Source) broadcast(peers []*peer, data []byte, logger *zap.Logger) {
	for _, p := range peers {
		if err := p.writeText(data); err != nil {
			logger.Debug("broadcast to peer failed", telemetry.RemoteAddrField(p.addr), zap.Error(err))
		}
	}
}

func (s *Source) hasToolLocked(name string) bool {
	for _, tools := range s.tabTools {
		for _, tool := range tools {
			if tool.Name == name {
				return true
			}
		}
	}
	return false
}

func (s *Source) peersLocked() []*peer {
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

var _ domain.Source = (*Source)(nil)
