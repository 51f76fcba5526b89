package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

var errNotVisible = errors.New("element is not visible")

const hitTestFunc = `function(x, y) {
  const hit = document.elementFromPoint(x, y);
  return !!hit && (hit === this || this.contains(hit));
}`

const fillFunc = `function(value) {
  this.focus();
  if (this.isContentEditable) {
    this.textContent = value;
  } else {
    const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    const desc = Object.getOwnPropertyDescriptor(proto, "value");
    if (desc && desc.set && this instanceof proto.constructor) {
      desc.set.call(this, value);
    } else {
      this.value = value;
    }
  }
  this.dispatchEvent(new Event("input", { bubbles: true }));
  this.dispatchEvent(new Event("change", { bubbles: true }));
}`

const selectFunc = `function(value) {
  if (!(this instanceof HTMLSelectElement)) throw new Error("Element is not a <select> element");
  const options = Array.from(this.options);
  const option = options.find((o) => o.value === value) || options.find((o) => o.label === value);
  if (!option) throw new Error("No option matching " + JSON.stringify(value));
  this.value = option.value;
  this.dispatchEvent(new Event("input", { bubbles: true }));
  this.dispatchEvent(new Event("change", { bubbles: true }));
}`

const jsClickFunc = `function(double) {
  this.click();
  if (double) {
    this.click();
    this.dispatchEvent(new MouseEvent("dblclick", { bubbles: true }));
  }
}`

const scrollByFunc = `function(dx, dy) { this.scrollBy(dx, dy); }`

// cdpElement addresses a DOM node by its backend id, which stays valid for
// the lifetime of the node.
type cdpElement struct {
	page *cdpPage
	id   cdp.BackendNodeID
}

func (e *cdpElement) ScrollIntoView(ctx context.Context) error {
	return e.page.run(ctx, dom.ScrollIntoViewIfNeeded().WithBackendNodeID(e.id))
}

// center returns the viewport coordinates of the element's first content quad.
func (e *cdpElement) center(ctx context.Context) (float64, float64, error) {
	quads, err := dom.GetContentQuads().WithBackendNodeID(e.id).Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, quad := range quads {
		if len(quad) != 8 {
			continue
		}
		var x, y float64
		for i := 0; i < 8; i += 2 {
			x += quad[i]
			y += quad[i+1]
		}
		return x / 4, y / 4, nil
	}
	return 0, 0, errNotVisible
}

// callFunction runs decl with the element bound to this. Arguments are
// inlined as JSON literals.
func (e *cdpElement) callFunction(ctx context.Context, decl string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	obj, err := dom.ResolveNode().WithBackendNodeID(e.id).Do(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	wrapped := fmt.Sprintf("function() { return (%s).apply(this, %s); }", decl, argsJSON)
	res, exc, err := runtime.CallFunctionOn(wrapped).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exc
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	return json.RawMessage([]byte(res.Value)), nil
}

func (e *cdpElement) Click(ctx context.Context, opts ClickOptions) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := e.center(ctx)
		if err != nil {
			if opts.Force {
				_, err = e.callFunction(ctx, jsClickFunc, opts.Double)
			}
			return err
		}
		if !opts.Force {
			raw, err := e.callFunction(ctx, hitTestFunc, x, y)
			if err != nil {
				return err
			}
			var hit bool
			if err := json.Unmarshal(raw, &hit); err != nil || !hit {
				return fmt.Errorf("element is covered by another element at (%.0f, %.0f)", x, y)
			}
		}
		return clickAt(ctx, x, y, opts.Double)
	}))
}

func clickAt(ctx context.Context, x, y float64, double bool) error {
	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
		return err
	}
	clicks := int64(1)
	if double {
		clicks = 2
	}
	for n := int64(1); n <= clicks; n++ {
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(n).
			Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(n).
			Do(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *cdpElement) Hover(ctx context.Context) error {
	return e.page.run(ctx,
		dom.ScrollIntoViewIfNeeded().WithBackendNodeID(e.id),
		chromedp.ActionFunc(func(ctx context.Context) error {
			x, y, err := e.center(ctx)
			if err != nil {
				return err
			}
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}),
	)
}

func (e *cdpElement) Focus(ctx context.Context) error {
	return e.page.run(ctx, dom.Focus().WithBackendNodeID(e.id))
}

func (e *cdpElement) Type(ctx context.Context, text string) error {
	return e.page.run(ctx,
		dom.Focus().WithBackendNodeID(e.id),
		chromedp.KeyEvent(text),
	)
}

func (e *cdpElement) Press(ctx context.Context, key string) error {
	return e.page.run(ctx,
		dom.Focus().WithBackendNodeID(e.id),
		keyAction(key),
	)
}

func (e *cdpElement) Fill(ctx context.Context, value string) error {
	return e.evalOn(ctx, fillFunc, value)
}

func (e *cdpElement) SelectOption(ctx context.Context, value string) error {
	return e.evalOn(ctx, selectFunc, value)
}

func (e *cdpElement) ScrollBy(ctx context.Context, deltaX, deltaY float64) error {
	return e.evalOn(ctx, scrollByFunc, deltaX, deltaY)
}

func (e *cdpElement) evalOn(ctx context.Context, decl string, args ...any) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := e.callFunction(ctx, decl, args...)
		return err
	}))
}
