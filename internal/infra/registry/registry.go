// Package registry merges tool sets from independently changing sources
// into one namespace and routes calls to the owning source.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/telemetry"
)

type entry struct {
	tool   domain.Tool
	source domain.Source
	seq    uint64
}

// Subscription identifies a change listener registered with OnChanged.
type Subscription uint64

// Registry owns the merged tool view across all connected sources.
//
// Lock ordering: writeMu -> mu. writeMu serializes a mutation together with
// its notification so listeners always observe the state produced by the
// mutation that fired them. Listeners may read the registry but must not
// mutate it.
type Registry struct {
	logger  *zap.Logger
	metrics domain.Metrics

	writeMu sync.Mutex

	// mu guards entries, nextSeq, listeners, nextSub.
	mu        sync.RWMutex
	entries   map[string]entry
	nextSeq   uint64
	listeners map[Subscription]func()
	nextSub   Subscription
}

func New(logger *zap.Logger, metrics domain.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Registry{
		logger:    logger.Named("registry"),
		metrics:   metrics,
		entries:   make(map[string]entry),
		listeners: make(map[Subscription]func()),
	}
}

// AddTools replaces every entry owned by source with tools. A tool whose
// name is already owned by another source is taken over. Listeners are
// notified exactly once, even when tools is empty.
func (r *Registry) AddTools(source domain.Source, tools []domain.Tool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.removeLocked(source)
	for _, tool := range tools {
		if prev, ok := r.entries[tool.Name]; ok && prev.source != source {
			r.logger.Debug("tool shadowed by another source",
				telemetry.ToolField(tool.Name),
				zap.String("previous", sourceName(prev.source)),
				telemetry.SourceField(sourceName(source)),
			)
		}
		r.nextSeq++
		r.entries[tool.Name] = entry{tool: tool, source: source, seq: r.nextSeq}
	}
	size := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("tools added",
		telemetry.SourceField(sourceName(source)),
		zap.Int("count", len(tools)),
		zap.Int("total", size),
	)
	r.metrics.SetRegistryTools(size)
	r.notify()
}

// RemoveToolsBySource drops every entry owned by source and notifies
// listeners once, whether or not anything was removed.
func (r *Registry) RemoveToolsBySource(source domain.Source) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	removed := r.removeLocked(source)
	size := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("tools removed",
		telemetry.SourceField(sourceName(source)),
		zap.Int("count", removed),
		zap.Int("total", size),
	)
	r.metrics.SetRegistryTools(size)
	r.notify()
}

func (r *Registry) removeLocked(source domain.Source) int {
	removed := 0
	for name, e := range r.entries {
		if e.source == source {
			delete(r.entries, name)
			removed++
		}
	}
	return removed
}

// ListTools returns a copy of all tool definitions in insertion order.
func (r *Registry) ListTools() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []domain.Tool {
	ordered := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	tools := make([]domain.Tool, 0, len(ordered))
	for _, e := range ordered {
		tools = append(tools, e.tool)
	}
	return tools
}

// GetTool returns the definition registered under name.
func (r *Registry) GetTool(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.tool, ok
}

// SourceOf returns the source that currently owns name.
func (r *Registry) SourceOf(name string) (domain.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.source, ok
}

// Names returns the current tool names in insertion order.
func (r *Registry) Names() []string {
	tools := r.ListTools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

// Size reports the current entry count.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CallTool routes the call to the source owning name. Source failures are
// returned unchanged.
func (r *Registry) CallTool(ctx context.Context, name string, argsJSON string) (domain.CallResult, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	var available []string
	if !ok {
		for _, tool := range r.listLocked() {
			available = append(available, tool.Name)
		}
	}
	r.mu.RUnlock()

	if !ok {
		list := strings.Join(available, ", ")
		if list == "" {
			list = "(none)"
		}
		return domain.CallResult{}, domain.E(
			domain.CodeNotFound,
			"",
			fmt.Sprintf("Unknown tool: %q. Available: %s", name, list),
			domain.ErrUnknownTool,
		)
	}

	ctx = telemetry.WithTool(ctx, name)
	logger := telemetry.LoggerWithRequest(ctx, r.logger)
	start := time.Now()
	result, err := e.source.CallTool(ctx, name, argsJSON)
	duration := time.Since(start)
	r.metrics.ObserveToolCall(domain.CallMetric{
		Tool:     name,
		Source:   sourceName(e.source),
		Status:   domain.CallStatusFrom(err),
		Duration: duration,
	})
	if err != nil {
		logger.Debug("tool call failed",
			telemetry.SourceField(sourceName(e.source)),
			telemetry.DurationField(duration),
			zap.Error(err),
		)
		return result, err
	}
	logger.Debug("tool call completed",
		telemetry.SourceField(sourceName(e.source)),
		telemetry.DurationField(duration),
	)
	return result, nil
}

// OnChanged registers fn to run after every mutation. fn receives no
// payload; call ListTools for the current state.
func (r *Registry) OnChanged(fn func()) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	r.listeners[r.nextSub] = fn
	return r.nextSub
}

// OffChanged removes a listener registered with OnChanged.
func (r *Registry) OffChanged(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, sub)
}

func (r *Registry) notify() {
	r.mu.RLock()
	subs := make([]Subscription, 0, len(r.listeners))
	for sub := range r.listeners {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	fns := make([]func(), 0, len(subs))
	for _, sub := range subs {
		fns = append(fns, r.listeners[sub])
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func sourceName(source domain.Source) string {
	if source == nil {
		return ""
	}
	return source.Name()
}
