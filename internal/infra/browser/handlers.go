package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
	"webmcp-inspector/internal/infra/telemetry"
)

const (
	screenshotTimeout      = 10 * time.Second
	scrollIntoViewTimeout  = 3 * time.Second
	clickTimeout           = 5 * time.Second
	defaultScrollAmount    = 500
	defaultSelectorTimeout = 30 * time.Second
)

func textResult(format string, args ...any) domain.CallResult {
	if len(args) == 0 {
		return domain.ContentResult(domain.TextContent(format))
	}
	return domain.ContentResult(domain.TextContent(fmt.Sprintf(format, args...)))
}

func plainText(text string) domain.CallResult {
	return domain.ContentResult(domain.TextContent(text))
}

func jsonResult(v any) (domain.CallResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.CallResult{}, err
	}
	return domain.ContentResult(domain.TextContent(string(data))), nil
}

func pageInfo(ctx context.Context, page Page) (string, string) {
	url, _ := page.URL(ctx)
	title, _ := page.Title(ctx)
	return url, title
}

// --- navigation ---

func (s *Source) navigate(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := decodeArgs("browser_navigate", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := page.Navigate(ctx, args.URL); err != nil {
		return domain.CallResult{}, err
	}
	url, title := pageInfo(ctx, page)
	return textResult("Navigated to %s - %q", url, title), nil
}

func (s *Source) history(ctx context.Context, verb string, step func(Page, context.Context) error) (domain.CallResult, error) {
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := step(page, ctx); err != nil {
		return domain.CallResult{}, err
	}
	url, title := pageInfo(ctx, page)
	return textResult("%s %s - %q", verb, url, title), nil
}

func (s *Source) currentURL(ctx context.Context) (domain.CallResult, error) {
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	url, title := pageInfo(ctx, page)
	return jsonResult(struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}{URL: url, Title: title})
}

// --- observation ---

func (s *Source) snapshot(ctx context.Context) (domain.CallResult, error) {
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	root, err := page.AccessibilityTree(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}

	body, entries := annotate(renderTree(root))
	s.refs = &refTable{pageID: page.ID(), entries: entries}
	if strings.TrimSpace(body) == "" {
		body = emptySnapshot
	}
	s.logger.Debug("snapshot taken", zap.Int("refs", len(entries)))

	url, title := pageInfo(ctx, page)
	return textResult("Page: %s\nTitle: %s\n\n%s", url, title, body), nil
}

func (s *Source) screenshot(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		FullPage bool `json:"fullPage"`
	}
	if err := decodeArgs("browser_screenshot", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	var png []byte
	err = withTimeout(ctx, screenshotTimeout, func(ctx context.Context) error {
		var err error
		png, err = page.Screenshot(ctx, args.FullPage)
		return err
	})
	if err != nil {
		return domain.CallResult{}, err
	}
	return domain.ContentResult(domain.ImageContent(base64.StdEncoding.EncodeToString(png), "image/png")), nil
}

func (s *Source) consoleLogs() (domain.CallResult, error) {
	messages := s.console.Drain()
	if len(messages) == 0 {
		return textResult("No console logs captured."), nil
	}
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("[%s] [%s] %s",
			msg.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			strings.ToUpper(msg.Level),
			msg.Text,
		))
	}
	return plainText(strings.Join(lines, "\n")), nil
}

func (s *Source) networkRequests() (domain.CallResult, error) {
	entries := s.network.Drain()
	if len(entries) == 0 {
		return textResult("No network requests captured."), nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		status := "pending"
		if e.answered {
			status = fmt.Sprint(e.status)
		}
		kind := e.resourceType
		if kind == "" {
			kind = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s %s -> %s (%s)", e.method, e.url, status, kind))
	}
	return plainText(strings.Join(lines, "\n")), nil
}

// --- interaction ---

type refArgs struct {
	Ref int `json:"ref"`
}

func (s *Source) click(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		refArgs
		DoubleClick bool `json:"doubleClick"`
	}
	if err := decodeArgs("browser_click", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	el, entry, err := s.resolveRef(ctx, args.Ref)
	if err != nil {
		return domain.CallResult{}, err
	}

	_ = withTimeout(ctx, scrollIntoViewTimeout, el.ScrollIntoView)
	err = withTimeout(ctx, clickTimeout, func(ctx context.Context) error {
		return el.Click(ctx, ClickOptions{Double: args.DoubleClick})
	})
	if err != nil {
		// Overlays and off-viewport elements reject a normal click.
		s.logger.Debug("click intercepted, forcing", telemetry.RefField(args.Ref), zap.Error(err))
		err = withTimeout(ctx, clickTimeout, func(ctx context.Context) error {
			return el.Click(ctx, ClickOptions{Double: args.DoubleClick, Force: true})
		})
		if err != nil {
			return domain.CallResult{}, err
		}
	}
	verb := "Clicked"
	if args.DoubleClick {
		verb = "Double-clicked"
	}
	return textResult("%s %s [ref=%d]", verb, entry.describe(), args.Ref), nil
}

func (s *Source) typeText(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		refArgs
		Text   string `json:"text"`
		Submit bool   `json:"submit"`
	}
	if err := decodeArgs("browser_type", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	el, _, err := s.resolveRef(ctx, args.Ref)
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := el.Type(ctx, args.Text); err != nil {
		return domain.CallResult{}, err
	}
	suffix := ""
	if args.Submit {
		if err := el.Press(ctx, "Enter"); err != nil {
			return domain.CallResult{}, err
		}
		suffix = " and pressed Enter"
	}
	return textResult("Typed %q into [ref=%d]%s", args.Text, args.Ref, suffix), nil
}

func (s *Source) fill(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		refArgs
		Value string `json:"value"`
	}
	if err := decodeArgs("browser_fill", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	el, _, err := s.resolveRef(ctx, args.Ref)
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := el.Fill(ctx, args.Value); err != nil {
		return domain.CallResult{}, err
	}
	return textResult("Filled [ref=%d] with %q", args.Ref, args.Value), nil
}

func (s *Source) hover(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args refArgs
	if err := decodeArgs("browser_hover", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	el, _, err := s.resolveRef(ctx, args.Ref)
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := el.Hover(ctx); err != nil {
		return domain.CallResult{}, err
	}
	return textResult("Hovered over [ref=%d]", args.Ref), nil
}

func (s *Source) selectOption(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		refArgs
		Value string `json:"value"`
	}
	if err := decodeArgs("browser_select_option", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	el, _, err := s.resolveRef(ctx, args.Ref)
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := el.SelectOption(ctx, args.Value); err != nil {
		return domain.CallResult{}, err
	}
	return textResult("Selected option %q in [ref=%d]", args.Value, args.Ref), nil
}

func (s *Source) pressKey(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Key string `json:"key"`
	}
	if err := decodeArgs("browser_press_key", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := page.PressKey(ctx, args.Key); err != nil {
		return domain.CallResult{}, err
	}
	return textResult("Pressed key %q", args.Key), nil
}

func (s *Source) focus(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args refArgs
	if err := decodeArgs("browser_focus", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	el, _, err := s.resolveRef(ctx, args.Ref)
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := el.Focus(ctx); err != nil {
		return domain.CallResult{}, err
	}
	return textResult("Focused [ref=%d]", args.Ref), nil
}

func (s *Source) scroll(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Direction string   `json:"direction"`
		Amount    *float64 `json:"amount"`
		Ref       *int     `json:"ref"`
	}
	if err := decodeArgs("browser_scroll", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	amount := float64(defaultScrollAmount)
	if args.Amount != nil {
		amount = *args.Amount
	}
	var dx, dy float64
	switch args.Direction {
	case "up":
		dy = -amount
	case "down":
		dy = amount
	case "left":
		dx = -amount
	case "right":
		dx = amount
	default:
		return domain.CallResult{}, domain.E(domain.CodeInvalidArgument, "",
			fmt.Sprintf("Invalid direction %q. Use up, down, left, or right.", args.Direction), domain.ErrInvalidArguments)
	}

	if args.Ref != nil {
		el, _, err := s.resolveRef(ctx, *args.Ref)
		if err != nil {
			return domain.CallResult{}, err
		}
		if err := el.ScrollBy(ctx, dx, dy); err != nil {
			return domain.CallResult{}, err
		}
		return textResult("Scrolled [ref=%d] %s by %gpx", *args.Ref, args.Direction, amount), nil
	}

	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	if err := page.Wheel(ctx, dx, dy); err != nil {
		return domain.CallResult{}, err
	}
	return textResult("Scrolled page %s by %gpx", args.Direction, amount), nil
}

// --- tabs ---

type tabInfo struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

func (s *Source) tabList(ctx context.Context) (domain.CallResult, error) {
	pages, err := s.browser.Pages(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}
	tabs := make([]tabInfo, 0, len(pages))
	for i, page := range pages {
		url, title := pageInfo(ctx, page)
		tabs = append(tabs, tabInfo{
			Index:  i,
			URL:    url,
			Title:  title,
			Active: s.active != nil && page.ID() == s.active.ID(),
		})
	}
	return jsonResult(tabs)
}

func (s *Source) tabNew(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := decodeArgs("browser_tab_new", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}
	s.watchLocked(page)
	s.active = page
	if args.URL != "" {
		if err := page.Navigate(ctx, args.URL); err != nil {
			return domain.CallResult{}, err
		}
	}
	pages, err := s.browser.Pages(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}
	at := ""
	if args.URL != "" {
		at = " at " + args.URL
	}
	return textResult("Opened new tab%s (now %d tabs)", at, len(pages)), nil
}

func (s *Source) tabSelect(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Index int `json:"index"`
	}
	if err := decodeArgs("browser_tab_select", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	pages, err := s.browser.Pages(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}
	if args.Index < 0 || args.Index >= len(pages) {
		return domain.CallResult{}, tabRangeError(args.Index, len(pages))
	}
	page := pages[args.Index]
	s.active = page
	s.watchLocked(page)
	if err := page.BringToFront(ctx); err != nil {
		return domain.CallResult{}, err
	}
	url, title := pageInfo(ctx, page)
	return textResult("Switched to tab %d: %s - %q", args.Index, url, title), nil
}

func (s *Source) tabClose(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Index *int `json:"index"`
	}
	if err := decodeArgs("browser_tab_close", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	pages, err := s.browser.Pages(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}
	index := -1
	if args.Index != nil {
		index = *args.Index
	} else if s.active != nil {
		for i, page := range pages {
			if page.ID() == s.active.ID() {
				index = i
				break
			}
		}
	}
	if index < 0 || index >= len(pages) {
		return domain.CallResult{}, tabRangeError(index, len(pages))
	}

	closing := pages[index]
	closedURL, _ := closing.URL(ctx)
	if err := closing.Close(ctx); err != nil {
		return domain.CallResult{}, err
	}
	delete(s.watched, closing.ID())

	remaining, err := s.browser.Pages(ctx)
	if err != nil {
		return domain.CallResult{}, err
	}
	if len(remaining) > 0 {
		next := remaining[min(index, len(remaining)-1)]
		s.active = next
		s.watchLocked(next)
	} else {
		s.active = nil
	}
	return textResult("Closed tab %d (%s). %d tab(s) remaining.", index, closedURL, len(remaining)), nil
}

func tabRangeError(index, count int) error {
	return domain.E(domain.CodeInvalidArgument, "",
		fmt.Sprintf("Tab index %d out of range (0-%d)", index, count-1), domain.ErrInvalidArguments)
}

// --- scripting ---

func (s *Source) evaluate(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := decodeArgs("browser_evaluate", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	raw, err := page.Evaluate(ctx, args.Expression)
	if err != nil {
		return domain.CallResult{}, err
	}
	if len(raw) == 0 {
		return textResult("undefined"), nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return plainText(str), nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return plainText(string(raw)), nil
	}
	return jsonResult(value)
}

func (s *Source) wait(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Time     float64 `json:"time"`
		Selector string  `json:"selector"`
	}
	if err := decodeArgs("browser_wait", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	if args.Time <= 0 && args.Selector == "" {
		return domain.CallResult{}, domain.E(domain.CodeInvalidArgument, "",
			"Provide either time (ms) or selector to wait for", domain.ErrInvalidArguments)
	}
	wait := time.Duration(args.Time * float64(time.Millisecond))

	if args.Selector != "" {
		page, err := s.activePage()
		if err != nil {
			return domain.CallResult{}, err
		}
		timeout := defaultSelectorTimeout
		if wait > 0 {
			timeout = wait
		}
		err = withTimeout(ctx, timeout, func(ctx context.Context) error {
			return page.WaitSelector(ctx, args.Selector)
		})
		if err != nil {
			return domain.CallResult{}, err
		}
		return textResult("Selector %q appeared on the page", args.Selector), nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.CallResult{}, ctx.Err()
	case <-timer.C:
	}
	return textResult("Waited %gms", args.Time), nil
}

// --- lifecycle ---

func (s *Source) launch(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Channel  string `json:"channel"`
		Headless bool   `json:"headless"`
		URL      string `json:"url"`
	}
	if err := decodeArgs("browser_launch", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	if args.Channel == "" {
		args.Channel = domain.DefaultBrowserChannel
	}
	if err := s.launchLocked(ctx, args.Channel, args.Headless, args.URL); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	url, title := pageInfo(ctx, page)
	return textResult("Launched %s (headless=%t)\nURL: %s\nTitle: %q", args.Channel, args.Headless, url, title), nil
}

// --- webmcp ---

func (s *Source) webmcpListTools(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	if err := decodeArgs("webmcp_list_tools", argsJSON, nil); err != nil {
		return domain.CallResult{}, err
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	list, err := listPageTools(ctx, page)
	if err != nil {
		return domain.CallResult{}, err
	}
	if !list.Available {
		return textResult(webmcpUnavailableText), nil
	}
	if list.Tools == nil {
		list.Tools = []pageTool{}
	}
	return jsonResult(list.Tools)
}

func (s *Source) webmcpCallTool(ctx context.Context, argsJSON string) (domain.CallResult, error) {
	var args struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := decodeArgs("webmcp_call_tool", argsJSON, &args); err != nil {
		return domain.CallResult{}, err
	}
	if args.Name == "" {
		return textResult("Error: 'name' is required. Use webmcp_list_tools to discover available tools."), nil
	}
	page, err := s.activePage()
	if err != nil {
		return domain.CallResult{}, err
	}
	if !probeWebMCP(ctx, page) {
		return textResult(webmcpUnavailableText), nil
	}
	toolArgs := "{}"
	if len(args.Arguments) > 0 && string(args.Arguments) != "null" {
		toolArgs = string(args.Arguments)
	}
	result, err := callPageTool(ctx, page, args.Name, toolArgs)
	if err != nil {
		return domain.CallResult{}, err
	}
	if result == nil {
		return textResult("null"), nil
	}
	return plainText(*result), nil
}
