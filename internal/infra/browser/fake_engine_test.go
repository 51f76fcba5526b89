package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type fakeEngine struct {
	mu        sync.Mutex
	product   string
	attachErr error
	endpoints []string
	launches  []LaunchOptions
	browsers  []*fakeBrowser
	// newPage seeds the initial tab of each browser.
	newPage func(id string) *fakePage
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{product: "Chrome/146.0.7680.31"}
}

func (e *fakeEngine) Attach(_ context.Context, endpoint string) (Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endpoints = append(e.endpoints, endpoint)
	if e.attachErr != nil {
		return nil, e.attachErr
	}
	return e.startLocked(), nil
}

func (e *fakeEngine) Launch(_ context.Context, opts LaunchOptions) (Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launches = append(e.launches, opts)
	return e.startLocked(), nil
}

func (e *fakeEngine) startLocked() *fakeBrowser {
	b := &fakeBrowser{product: e.product, newPage: e.newPage}
	b.pages = append(b.pages, b.makePage())
	e.browsers = append(e.browsers, b)
	return b
}

func (e *fakeEngine) current() *fakeBrowser {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.browsers) == 0 {
		return nil
	}
	return e.browsers[len(e.browsers)-1]
}

type fakeBrowser struct {
	mu      sync.Mutex
	product string
	pages   []*fakePage
	nextID  int
	closed  bool
	newPage func(id string) *fakePage
}

func (b *fakeBrowser) makePage() *fakePage {
	b.nextID++
	id := fmt.Sprintf("page-%d", b.nextID)
	if b.newPage != nil {
		if p := b.newPage(id); p != nil {
			p.id = id
			p.browser = b
			return p
		}
	}
	return &fakePage{id: id, browser: b, url: "about:blank"}
}

func (b *fakeBrowser) Version(context.Context) (string, error) { return b.product, nil }

func (b *fakeBrowser) Pages(context.Context) ([]Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Page, 0, len(b.pages))
	for _, p := range b.pages {
		out = append(out, p)
	}
	return out, nil
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.makePage()
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close(context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBrowser) remove(p *fakePage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.pages {
		if existing == p {
			b.pages = append(b.pages[:i], b.pages[i+1:]...)
			return
		}
	}
}

type fakePage struct {
	mu       sync.Mutex
	id       string
	browser  *fakeBrowser
	url      string
	title    string
	tree     *AXNode
	events   PageEvents
	evalFn   func(expr string) (json.RawMessage, error)
	elements map[int64]*fakeElement
	keys     []string
	wheels   [][2]float64
	fronted  int
}

func (p *fakePage) ID() string { return p.id }

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePage) Back(context.Context) error    { return nil }
func (p *fakePage) Forward(context.Context) error { return nil }
func (p *fakePage) Reload(context.Context) error  { return nil }

func (p *fakePage) Screenshot(_ context.Context, fullPage bool) ([]byte, error) {
	if fullPage {
		return []byte("full-png"), nil
	}
	return []byte("png"), nil
}

func (p *fakePage) AccessibilityTree(context.Context) (*AXNode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree, nil
}

func (p *fakePage) Element(_ context.Context, node *AXNode) (Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if node.BackendNodeID == 0 {
		return nil, errors.New("element has no DOM node")
	}
	if p.elements == nil {
		p.elements = make(map[int64]*fakeElement)
	}
	el, ok := p.elements[node.BackendNodeID]
	if !ok {
		el = &fakeElement{node: node}
		p.elements[node.BackendNodeID] = el
	}
	return el, nil
}

// element returns the fake behind a backend id, creating it on first use.
func (p *fakePage) element(id int64) *fakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements == nil {
		p.elements = make(map[int64]*fakeElement)
	}
	el, ok := p.elements[id]
	if !ok {
		el = &fakeElement{}
		p.elements[id] = el
	}
	return el
}

func (p *fakePage) PressKey(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePage) Wheel(_ context.Context, dx, dy float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wheels = append(p.wheels, [2]float64{dx, dy})
	return nil
}

func (p *fakePage) Evaluate(_ context.Context, expr string) (json.RawMessage, error) {
	if p.evalFn == nil {
		return json.RawMessage("false"), nil
	}
	return p.evalFn(expr)
}

func (p *fakePage) WaitSelector(context.Context, string) error { return nil }

func (p *fakePage) BringToFront(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fronted++
	return nil
}

func (p *fakePage) Close(context.Context) error {
	p.browser.remove(p)
	return nil
}

func (p *fakePage) Listen(events PageEvents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = events
}

func (p *fakePage) listeners() PageEvents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

type fakeElement struct {
	mu       sync.Mutex
	node     *AXNode
	clickErr error
	actions  []string
	clicks   []ClickOptions
}

func (e *fakeElement) record(action string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
}

func (e *fakeElement) recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.actions...)
}

func (e *fakeElement) ScrollIntoView(context.Context) error {
	e.record("scroll-into-view")
	return nil
}

func (e *fakeElement) Click(_ context.Context, opts ClickOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks = append(e.clicks, opts)
	if !opts.Force && e.clickErr != nil {
		return e.clickErr
	}
	e.actions = append(e.actions, "click")
	return nil
}

func (e *fakeElement) Hover(context.Context) error {
	e.record("hover")
	return nil
}

func (e *fakeElement) Focus(context.Context) error {
	e.record("focus")
	return nil
}

func (e *fakeElement) Type(_ context.Context, text string) error {
	e.record("type " + text)
	return nil
}

func (e *fakeElement) Press(_ context.Context, key string) error {
	e.record("press " + key)
	return nil
}

func (e *fakeElement) Fill(_ context.Context, value string) error {
	e.record("fill " + value)
	return nil
}

func (e *fakeElement) SelectOption(_ context.Context, value string) error {
	e.record("select " + value)
	return nil
}

func (e *fakeElement) ScrollBy(_ context.Context, dx, dy float64) error {
	e.record(fmt.Sprintf("scroll-by %g %g", dx, dy))
	return nil
}
