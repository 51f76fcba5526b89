package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// namedKeys maps DOM key names to the runes chromedp dispatches for them.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"Insert":     kb.Insert,
	"Space":      " ",
}

type cdpPage struct {
	browser *cdpBrowser
	ctx     context.Context
	// cancel is nil for the initial tab of a launched browser, which lives
	// as long as the browser does.
	cancel context.CancelFunc
	id     target.ID
}

func newCDPPage(b *cdpBrowser, ctx context.Context, cancel context.CancelFunc) *cdpPage {
	p := &cdpPage{browser: b, ctx: ctx, cancel: cancel}
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		p.id = c.Target.TargetID
	}
	return p
}

func (p *cdpPage) ID() string { return string(p.id) }

// run executes actions against this tab within the bounds of ctx.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := opContext(ctx, p.ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *cdpPage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *cdpPage) Back(ctx context.Context) error {
	return p.run(ctx, chromedp.NavigateBack())
}

func (p *cdpPage) Forward(ctx context.Context) error {
	return p.run(ctx, chromedp.NavigateForward())
}

func (p *cdpPage) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

func (p *cdpPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps the PNG encoding.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	err := p.run(ctx, action)
	return buf, err
}

func (p *cdpPage) AccessibilityTree(ctx context.Context) (*AXNode, error) {
	var nodes []*accessibility.Node
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buildAXTree(nodes), nil
}

// buildAXTree links the flat protocol node list into a tree rooted at the
// first parentless node.
func buildAXTree(nodes []*accessibility.Node) *AXNode {
	converted := make(map[accessibility.NodeID]*AXNode, len(nodes))
	for _, n := range nodes {
		props := make(map[string]string, len(n.Properties))
		for _, prop := range n.Properties {
			props[string(prop.Name)] = axValue(prop.Value)
		}
		converted[n.NodeID] = &AXNode{
			Role:          axValue(n.Role),
			Name:          axValue(n.Name),
			Value:         axValue(n.Value),
			Ignored:       n.Ignored,
			Properties:    props,
			BackendNodeID: int64(n.BackendDOMNodeID),
		}
	}
	var root *AXNode
	for _, n := range nodes {
		node := converted[n.NodeID]
		for _, childID := range n.ChildIDs {
			if child, ok := converted[childID]; ok {
				node.Children = append(node.Children, child)
			}
		}
		if root == nil && n.ParentID == "" {
			root = node
		}
	}
	return root
}

// axValue renders a protocol value as plain text. Strings are unquoted;
// other JSON values keep their literal form.
func axValue(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	raw := []byte(v.Value)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (p *cdpPage) Element(_ context.Context, node *AXNode) (Element, error) {
	if node == nil || node.BackendNodeID == 0 {
		return nil, errors.New("element has no DOM node")
	}
	return &cdpElement{page: p, id: cdp.BackendNodeID(node.BackendNodeID)}, nil
}

func (p *cdpPage) PressKey(ctx context.Context, key string) error {
	return p.run(ctx, keyAction(key))
}

func keyAction(desc string) chromedp.KeyAction {
	combo := ParseKey(desc)
	key := combo.Key
	if mapped, ok := namedKeys[key]; ok {
		key = mapped
	}
	var mods []input.Modifier
	if combo.Modifiers&ModifierAlt != 0 {
		mods = append(mods, input.ModifierAlt)
	}
	if combo.Modifiers&ModifierCtrl != 0 {
		mods = append(mods, input.ModifierCtrl)
	}
	if combo.Modifiers&ModifierMeta != 0 {
		mods = append(mods, input.ModifierMeta)
	}
	if combo.Modifiers&ModifierShift != 0 {
		mods = append(mods, input.ModifierShift)
	}
	if len(mods) == 0 {
		return chromedp.KeyEvent(key)
	}
	return chromedp.KeyEvent(key, chromedp.KeyModifiers(mods...))
}

// Wheel dispatches a mouse wheel event at the center of the viewport.
func (p *cdpPage) Wheel(ctx context.Context, deltaX, deltaY float64) error {
	var center []float64
	return p.run(ctx,
		chromedp.Evaluate(`[window.innerWidth / 2, window.innerHeight / 2]`, &center),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(center) != 2 {
				return errors.New("viewport size unavailable")
			}
			return input.DispatchMouseEvent(input.MouseWheel, center[0], center[1]).
				WithDeltaX(deltaX).
				WithDeltaY(deltaY).
				Do(ctx)
		}),
	)
}

func (p *cdpPage) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	var raw []byte
	err := p.run(ctx, chromedp.Evaluate(expression, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

func (p *cdpPage) WaitSelector(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *cdpPage) BringToFront(ctx context.Context) error {
	return p.run(ctx, page.BringToFront())
}

func (p *cdpPage) Close(ctx context.Context) error {
	defer p.browser.forget(p.id)
	if p.cancel != nil {
		p.cancel()
		return nil
	}
	return p.run(ctx, page.Close())
}

// release drops the attachment without closing the tab.
func (p *cdpPage) release() {
	if c := chromedp.FromContext(p.ctx); c != nil {
		// chromedp closes targets it is attached to on cancel unless the
		// target is unset.
		c.Target = nil
	}
}

func (p *cdpPage) Listen(events PageEvents) {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if events.OnConsole == nil {
				return
			}
			at := time.Now()
			if ev.Timestamp != nil {
				at = ev.Timestamp.Time()
			}
			events.OnConsole(ConsoleMessage{
				Level: string(ev.Type),
				Text:  consoleText(ev.Args),
				Time:  at,
			})
		case *network.EventRequestWillBeSent:
			if events.OnRequest == nil || ev.Request == nil {
				return
			}
			events.OnRequest(NetworkRequest{
				ID:           string(ev.RequestID),
				Method:       ev.Request.Method,
				URL:          ev.Request.URL,
				ResourceType: strings.ToLower(string(ev.Type)),
			})
		case *network.EventResponseReceived:
			if events.OnResponse == nil || ev.Response == nil {
				return
			}
			events.OnResponse(NetworkResponse{
				RequestID: string(ev.RequestID),
				URL:       ev.Response.URL,
				Status:    int(ev.Response.Status),
			})
		}
	})
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == nil:
		case len(arg.Value) > 0:
			raw := []byte(arg.Value)
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(raw))
			}
		case arg.UnserializableValue != "":
			parts = append(parts, string(arg.UnserializableValue))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, fmt.Sprint(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
