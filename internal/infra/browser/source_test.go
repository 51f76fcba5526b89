package browser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"webmcp-inspector/internal/domain"
)

func formPage() *AXNode {
	return axPage(
		node("button", "", 11),
		node("button", "", 12),
		node("textbox", "Email", 13),
		node("button", "Submit", 14),
	)
}

func newTestSource(t *testing.T, engine *fakeEngine) *Source {
	t.Helper()
	return NewSource(Options{Logger: zaptest.NewLogger(t), Engine: engine})
}

func connectedSource(t *testing.T, tree *AXNode) (*Source, *fakeEngine, *fakePage) {
	t.Helper()
	engine := newFakeEngine()
	engine.newPage = func(string) *fakePage {
		return &fakePage{url: "https://example.com/", title: "Example", tree: tree}
	}
	src := newTestSource(t, engine)
	require.NoError(t, src.Connect(context.Background(), domain.SourceConfig{Host: "localhost", Port: 9333}))
	t.Cleanup(func() { _ = src.Disconnect(context.Background()) })
	return src, engine, engine.current().pages[0]
}

func callText(t *testing.T, src *Source, name, args string) string {
	t.Helper()
	result, err := src.CallTool(context.Background(), name, args)
	require.NoError(t, err)
	contents := result.Contents()
	require.Len(t, contents, 1)
	require.Equal(t, domain.ContentText, contents[0].Type)
	return contents[0].Text
}

func TestSource_ConnectAttachesToEndpoint(t *testing.T) {
	src, engine, _ := connectedSource(t, formPage())

	require.Equal(t, []string{"http://localhost:9333"}, engine.endpoints)
	require.True(t, src.Connected())
	require.Equal(t, "browser", src.Name())
}

func TestSource_ConnectDefaultsEndpoint(t *testing.T) {
	engine := newFakeEngine()
	src := newTestSource(t, engine)

	require.NoError(t, src.Connect(context.Background(), domain.SourceConfig{}))
	require.Equal(t, []string{"http://localhost:9222"}, engine.endpoints)
}

func TestSource_ConnectRejectsOldBrowser(t *testing.T) {
	engine := newFakeEngine()
	engine.product = "Chrome/131.0.6778.85"
	src := newTestSource(t, engine)

	err := src.Connect(context.Background(), domain.SourceConfig{})

	require.ErrorIs(t, err, domain.ErrUnsupportedBrowserVersion)
	require.Contains(t, err.Error(), "Chrome version 131.0.6778 is not supported")
	require.True(t, engine.current().isClosed())
	require.False(t, src.Connected())
}

func TestSource_ConnectAttachFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.attachErr = errors.New("connection refused")
	src := newTestSource(t, engine)

	err := src.Connect(context.Background(), domain.SourceConfig{Host: "127.0.0.1", Port: 9555})

	require.Error(t, err)
	require.Contains(t, err.Error(), "http://127.0.0.1:9555")
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestSource_ConnectLaunchEnablesWebMCP(t *testing.T) {
	engine := newFakeEngine()
	src := newTestSource(t, engine)

	err := src.Connect(context.Background(), domain.SourceConfig{Launch: true, Headless: true, URL: "https://shop.test/"})

	require.NoError(t, err)
	require.Len(t, engine.launches, 1)
	require.Equal(t, "chrome-beta", engine.launches[0].Channel)
	require.True(t, engine.launches[0].Headless)
	require.Contains(t, engine.launches[0].Features, "WebMCPTesting")
	require.Equal(t, "https://shop.test/", engine.current().pages[0].url)
}

func TestSource_ListToolsWithoutConnection(t *testing.T) {
	src := newTestSource(t, newFakeEngine())

	tools := src.ListTools()
	require.Len(t, tools, 26)
	tools[0].Name = "mutated"
	require.Equal(t, "browser_navigate", src.ListTools()[0].Name)
}

func TestSource_NotConnected(t *testing.T) {
	src := newTestSource(t, newFakeEngine())

	_, err := src.CallTool(context.Background(), "browser_snapshot", "{}")

	require.ErrorIs(t, err, domain.ErrNotConnected)
	require.Equal(t, "Browser not connected. Use the browser_launch tool to start a browser.", err.Error())
}

func TestSource_UnknownTool(t *testing.T) {
	src := newTestSource(t, newFakeEngine())

	_, err := src.CallTool(context.Background(), "browser_teleport", "{}")

	require.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestSource_LaunchWhileDisconnected(t *testing.T) {
	engine := newFakeEngine()
	engine.newPage = func(string) *fakePage { return &fakePage{title: "Example"} }
	src := newTestSource(t, engine)

	text := callText(t, src, "browser_launch", `{"url":"https://example.com/"}`)

	require.Equal(t, "Launched chrome-beta (headless=false)\nURL: https://example.com/\nTitle: \"Example\"", text)
	require.True(t, src.Connected())
}

func TestSource_RelaunchClosesPreviousBrowserAndClearsRefs(t *testing.T) {
	src, engine, _ := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")
	first := engine.current()

	callText(t, src, "browser_launch", `{"channel":"msedge","headless":true}`)

	require.True(t, first.isClosed())
	require.Equal(t, "msedge", engine.launches[0].Channel)
	_, err := src.CallTool(context.Background(), "browser_click", `{"ref":1}`)
	require.ErrorIs(t, err, domain.ErrInvalidRef)
}

func TestSource_SnapshotAssignsRefs(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())

	text := callText(t, src, "browser_snapshot", "{}")

	require.Equal(t, "Page: https://example.com/\nTitle: Example\n\n"+
		"- button [ref=1]\n- button [ref=2]\n- textbox \"Email\" [ref=3]\n- button \"Submit\" [ref=4]", text)
}

func TestSource_EmptySnapshot(t *testing.T) {
	src, _, _ := connectedSource(t, axPage())

	text := callText(t, src, "browser_snapshot", "{}")

	require.Equal(t, "Page: https://example.com/\nTitle: Example\n\n(empty page)", text)
}

func TestSource_ClickResolvesUnnamedButtonsByOccurrence(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")

	require.Equal(t, "Clicked button [ref=2]", callText(t, src, "browser_click", `{"ref":2}`))
	require.Equal(t, "Clicked button [ref=1]", callText(t, src, "browser_click", `{"ref":1}`))

	require.Equal(t, []string{"scroll-into-view", "click"}, pg.element(12).recorded())
	require.Equal(t, []string{"scroll-into-view", "click"}, pg.element(11).recorded())
	require.Empty(t, pg.element(14).recorded())
}

func TestSource_ClickFallsBackToForce(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")
	pg.element(14).clickErr = errors.New("element is covered by another element")

	text := callText(t, src, "browser_click", `{"ref":4,"doubleClick":true}`)

	require.Equal(t, `Double-clicked button "Submit" [ref=4]`, text)
	require.Equal(t, []ClickOptions{{Double: true}, {Double: true, Force: true}}, pg.element(14).clicks)
}

func TestSource_ClickResolvesNamesWithBackslashAndFormatRunes(t *testing.T) {
	src, _, pg := connectedSource(t, axPage(
		node("button", `C:\temp`, 31),
		node("link", "Docs\u200b", 32),
		node("StaticText", "footer", 0),
	))

	text := callText(t, src, "browser_snapshot", "{}")
	require.Contains(t, text, `- button "C:\temp" [ref=1]`)
	require.Contains(t, text, "- text: footer")

	require.Equal(t, `Clicked button "C:\temp" [ref=1]`, callText(t, src, "browser_click", `{"ref":1}`))
	require.Equal(t, "Hovered over [ref=2]", callText(t, src, "browser_hover", `{"ref":2}`))
	require.Equal(t, []string{"scroll-into-view", "click"}, pg.element(31).recorded())

	_, err := src.CallTool(context.Background(), "browser_click", `{"ref":3}`)
	require.ErrorIs(t, err, domain.ErrInvalidRef)
}

func TestSource_InvalidRef(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())

	_, err := src.CallTool(context.Background(), "browser_click", `{"ref":7}`)

	require.ErrorIs(t, err, domain.ErrInvalidRef)
	require.Equal(t, "Invalid ref 7. Run browser_snapshot first to get valid ref numbers.", err.Error())
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeNotFound, code)
}

func TestSource_SnapshotRenumbersRefs(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")

	pg.mu.Lock()
	pg.tree = axPage(node("link", "Home", 21))
	pg.mu.Unlock()
	text := callText(t, src, "browser_snapshot", "{}")

	require.Contains(t, text, `- link "Home" [ref=1]`)
	_, err := src.CallTool(context.Background(), "browser_hover", `{"ref":2}`)
	require.ErrorIs(t, err, domain.ErrInvalidRef)
	require.Equal(t, "Hovered over [ref=1]", callText(t, src, "browser_hover", `{"ref":1}`))
}

func TestSource_StaleRefAfterTabSwitch(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")
	callText(t, src, "browser_tab_new", "{}")

	_, err := src.CallTool(context.Background(), "browser_click", `{"ref":1}`)

	require.ErrorIs(t, err, domain.ErrStaleRef)
	require.ErrorIs(t, err, domain.ErrInvalidRef)
	require.Contains(t, err.Error(), "Run browser_snapshot again")

	callText(t, src, "browser_tab_select", `{"index":0}`)
	require.Equal(t, "Clicked button [ref=1]", callText(t, src, "browser_click", `{"ref":1}`))
}

func TestSource_ElementGoneAfterSnapshot(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")
	pg.mu.Lock()
	pg.tree = axPage(node("button", "", 11))
	pg.mu.Unlock()

	_, err := src.CallTool(context.Background(), "browser_focus", `{"ref":2}`)

	require.Error(t, err)
	require.Contains(t, err.Error(), "no longer on the page")
}

func TestSource_InteractionTools(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")

	require.Equal(t, `Typed "hello" into [ref=3] and pressed Enter`,
		callText(t, src, "browser_type", `{"ref":3,"text":"hello","submit":true}`))
	require.Equal(t, `Filled [ref=3] with "a@b.c"`,
		callText(t, src, "browser_fill", `{"ref":3,"value":"a@b.c"}`))
	require.Equal(t, "Focused [ref=3]", callText(t, src, "browser_focus", `{"ref":3}`))
	require.Equal(t, `Selected option "x" in [ref=3]`,
		callText(t, src, "browser_select_option", `{"ref":3,"value":"x"}`))
	require.Equal(t, "Scrolled [ref=3] up by 120px",
		callText(t, src, "browser_scroll", `{"direction":"up","amount":120,"ref":3}`))

	require.Equal(t, []string{"type hello", "press Enter", "fill a@b.c", "focus", "select x", "scroll-by 0 -120"},
		pg.element(13).recorded())
}

func TestSource_PageLevelInput(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())

	require.Equal(t, `Pressed key "Control+a"`, callText(t, src, "browser_press_key", `{"key":"Control+a"}`))
	require.Equal(t, "Scrolled page down by 500px", callText(t, src, "browser_scroll", `{"direction":"down"}`))
	require.Equal(t, "Scrolled page left by 50px", callText(t, src, "browser_scroll", `{"direction":"left","amount":50}`))

	require.Equal(t, []string{"Control+a"}, pg.keys)
	require.Equal(t, [][2]float64{{0, 500}, {-50, 0}}, pg.wheels)
}

func TestSource_InvalidArguments(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())

	_, err := src.CallTool(context.Background(), "browser_click", `{}`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)

	_, err = src.CallTool(context.Background(), "browser_scroll", `{"direction":"diagonal"}`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)

	_, err = src.CallTool(context.Background(), "browser_wait", `{}`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
	require.Equal(t, "Provide either time (ms) or selector to wait for", err.Error())
}

func TestSource_Navigation(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())

	require.Equal(t, `Navigated to https://example.org/ - "Example"`,
		callText(t, src, "browser_navigate", `{"url":"https://example.org/"}`))
	require.Equal(t, `Reloaded https://example.org/ - "Example"`, callText(t, src, "browser_reload", `{}`))

	var info struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal([]byte(callText(t, src, "browser_url", "{}")), &info))
	require.Equal(t, "https://example.org/", info.URL)
	require.Equal(t, "Example", info.Title)
}

func TestSource_Screenshot(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())

	result, err := src.CallTool(context.Background(), "browser_screenshot", `{"fullPage":true}`)

	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	require.Equal(t, domain.ContentImage, result.Content[0].Type)
	require.Equal(t, "image/png", result.Content[0].MimeType)
	require.Equal(t, "ZnVsbC1wbmc=", result.Content[0].Data)
}

func TestSource_ConsoleLogsDrain(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	events := pg.listeners()
	require.NotNil(t, events.OnConsole)

	require.Equal(t, "No console logs captured.", callText(t, src, "browser_console_logs", "{}"))
	events.OnConsole(ConsoleMessage{Level: "warning", Text: "low disk", Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})

	require.Equal(t, "[2026-03-01T12:00:00.000Z] [WARNING] low disk", callText(t, src, "browser_console_logs", "{}"))
	require.Equal(t, "No console logs captured.", callText(t, src, "browser_console_logs", "{}"))
}

func TestSource_ActivityKeepsPercentSigns(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	events := pg.listeners()

	events.OnConsole(ConsoleMessage{Level: "log", Text: "upload 100% %s done", Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	events.OnRequest(NetworkRequest{ID: "7", Method: "GET", URL: "https://example.com/?q=50%25%d"})

	require.Equal(t, "[2026-03-01T12:00:00.000Z] [LOG] upload 100% %s done", callText(t, src, "browser_console_logs", "{}"))
	require.Equal(t, "GET https://example.com/?q=50%25%d -> pending (unknown)", callText(t, src, "browser_network_requests", "{}"))
}

func TestSource_NetworkRequestsMatchResponses(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	events := pg.listeners()

	events.OnRequest(NetworkRequest{ID: "1", Method: "GET", URL: "https://example.com/", ResourceType: "document"})
	events.OnRequest(NetworkRequest{ID: "2", Method: "POST", URL: "https://example.com/api"})
	events.OnResponse(NetworkResponse{RequestID: "1", URL: "https://example.com/", Status: 200})

	text := callText(t, src, "browser_network_requests", "{}")
	require.Equal(t, "GET https://example.com/ -> 200 (document)\nPOST https://example.com/api -> pending (unknown)", text)
	require.Equal(t, "No network requests captured.", callText(t, src, "browser_network_requests", "{}"))
}

func TestSource_Tabs(t *testing.T) {
	src, engine, _ := connectedSource(t, formPage())

	require.Equal(t, "Opened new tab at https://second.test/ (now 2 tabs)",
		callText(t, src, "browser_tab_new", `{"url":"https://second.test/"}`))

	var tabs []tabInfo
	require.NoError(t, json.Unmarshal([]byte(callText(t, src, "browser_tab_list", "{}")), &tabs))
	require.Equal(t, []tabInfo{
		{Index: 0, URL: "https://example.com/", Title: "Example"},
		{Index: 1, URL: "https://second.test/", Title: "Example", Active: true},
	}, tabs)

	require.Equal(t, `Switched to tab 0: https://example.com/ - "Example"`,
		callText(t, src, "browser_tab_select", `{"index":0}`))
	require.Equal(t, 1, engine.current().pages[0].fronted)

	_, err := src.CallTool(context.Background(), "browser_tab_select", `{"index":5}`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
	require.Equal(t, "Tab index 5 out of range (0-1)", err.Error())

	require.Equal(t, "Closed tab 0 (https://example.com/). 1 tab(s) remaining.",
		callText(t, src, "browser_tab_close", "{}"))
	require.Equal(t, `Navigated to https://third.test/ - "Example"`,
		callText(t, src, "browser_navigate", `{"url":"https://third.test/"}`))
	require.Equal(t, "https://third.test/", engine.current().pages[0].url)
}

func TestSource_Evaluate(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	pg.evalFn = func(expr string) (json.RawMessage, error) {
		switch expr {
		case "document.title":
			return json.RawMessage(`"Example"`), nil
		case "({a: 1})":
			return json.RawMessage(`{"a":1}`), nil
		default:
			return nil, nil
		}
	}

	require.Equal(t, "Example", callText(t, src, "browser_evaluate", `{"expression":"document.title"}`))
	require.Equal(t, "{\n  \"a\": 1\n}", callText(t, src, "browser_evaluate", `{"expression":"({a: 1})"}`))
	require.Equal(t, "undefined", callText(t, src, "browser_evaluate", `{"expression":"void 0"}`))
}

func TestSource_Wait(t *testing.T) {
	src, _, _ := connectedSource(t, formPage())

	require.Equal(t, "Waited 5ms", callText(t, src, "browser_wait", `{"time":5}`))
	require.Equal(t, `Selector "#done" appeared on the page`, callText(t, src, "browser_wait", `{"selector":"#done"}`))
}

func TestSource_WebMCPUnavailable(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	pg.evalFn = func(expr string) (json.RawMessage, error) {
		if expr == webmcpProbeScript {
			return json.RawMessage("false"), nil
		}
		return json.RawMessage(`{"available":false}`), nil
	}

	require.Equal(t, webmcpUnavailableText, callText(t, src, "webmcp_list_tools", "{}"))
	require.Equal(t, webmcpUnavailableText, callText(t, src, "webmcp_call_tool", `{"name":"search","arguments":{}}`))
}

func TestSource_WebMCPTools(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	var executed string
	pg.evalFn = func(expr string) (json.RawMessage, error) {
		switch expr {
		case webmcpProbeScript:
			return json.RawMessage("true"), nil
		case webmcpListScript:
			return json.RawMessage(`{"available":true,"tools":[{"name":"search","description":"Search","inputSchema":{"type":"object"}}]}`), nil
		default:
			executed = expr
			return json.RawMessage(`"{\"hits\":3}"`), nil
		}
	}

	list := callText(t, src, "webmcp_list_tools", "{}")
	require.JSONEq(t, `[{"name":"search","description":"Search","inputSchema":{"type":"object"}}]`, list)

	out := callText(t, src, "webmcp_call_tool", `{"name":"search","arguments":{"q":"shoes"}}`)
	require.Equal(t, `{"hits":3}`, out)
	require.Equal(t, `navigator.modelContextTesting.executeTool("search", "{\"q\":\"shoes\"}")`, executed)

	missing := callText(t, src, "webmcp_call_tool", `{"arguments":{}}`)
	require.Equal(t, "Error: 'name' is required. Use webmcp_list_tools to discover available tools.", missing)
}

func TestSource_WebMCPNullResult(t *testing.T) {
	src, _, pg := connectedSource(t, formPage())
	pg.evalFn = func(expr string) (json.RawMessage, error) {
		if expr == webmcpProbeScript {
			return json.RawMessage("true"), nil
		}
		return json.RawMessage("null"), nil
	}

	require.Equal(t, "null", callText(t, src, "webmcp_call_tool", `{"name":"noop","arguments":{}}`))
}

func TestSource_DisconnectClearsState(t *testing.T) {
	src, engine, pg := connectedSource(t, formPage())
	callText(t, src, "browser_snapshot", "{}")
	pg.listeners().OnConsole(ConsoleMessage{Level: "log", Text: "hi"})

	require.NoError(t, src.Disconnect(context.Background()))
	require.NoError(t, src.Disconnect(context.Background()))
	require.True(t, engine.current().isClosed())
	require.False(t, src.Connected())

	require.NoError(t, src.Connect(context.Background(), domain.SourceConfig{}))
	_, err := src.CallTool(context.Background(), "browser_click", `{"ref":1}`)
	require.ErrorIs(t, err, domain.ErrInvalidRef)
	require.Equal(t, "No console logs captured.", callText(t, src, "browser_console_logs", "{}"))
}
