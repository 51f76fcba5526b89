package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const closeTimeout = 5 * time.Second

// ChromedpEngine drives browsers over the DevTools protocol with chromedp.
type ChromedpEngine struct {
	logger *zap.Logger
}

func NewChromedpEngine(logger *zap.Logger) *ChromedpEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpEngine{logger: logger.Named("cdp")}
}

// Attach connects to the browser behind endpoint. The websocket URL is
// discovered through /json/version.
func (e *ChromedpEngine) Attach(ctx context.Context, endpoint string) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx, e.contextOptions()...)
	b := &cdpBrowser{
		logger:      e.logger,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		pages:       make(map[target.ID]*cdpPage),
	}
	// Targets allocates the connection without opening a tab.
	err := awaitLong(ctx, rootCancel, func() error {
		_, err := chromedp.Targets(rootCtx)
		return err
	})
	if err != nil {
		allocCancel()
		return nil, err
	}
	return b, nil
}

// Launch starts the executable for opts.Channel with a temporary profile.
func (e *ChromedpEngine) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	path := findExecutable(opts.Channel)
	if path == "" {
		return nil, fmt.Errorf("no %s installation found; supported channels: %s",
			opts.Channel, strings.Join(channelNames(), ", "))
	}
	features := append([]string{"NetworkService", "NetworkServiceInProcess"}, opts.Features...)
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("enable-features", strings.Join(features, ",")),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", opts.Headless),
		chromedp.Flag("mute-audio", opts.Headless),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx, e.contextOptions()...)
	b := &cdpBrowser{
		logger:      e.logger,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		pages:       make(map[target.ID]*cdpPage),
		launched:    true,
	}
	// The first Run starts the process and attaches to its initial tab. It
	// must use the long-lived context since the process is bound to it.
	if err := awaitLong(ctx, rootCancel, func() error { return chromedp.Run(rootCtx) }); err != nil {
		allocCancel()
		return nil, err
	}
	first := newCDPPage(b, rootCtx, nil)
	b.pages[first.id] = first
	b.order = append(b.order, first.id)
	e.logger.Debug("browser process started", zap.String("path", path))
	return b, nil
}

func (e *ChromedpEngine) contextOptions() []chromedp.ContextOption {
	sugar := e.logger.Sugar()
	return []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	}
}

// awaitLong runs fn, which is bound to a long-lived context, and gives up
// when ctx ends first. cancel tears the long-lived context down in that case.
func awaitLong(ctx context.Context, cancel context.CancelFunc, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// opContext derives a context for one protocol exchange on base. It carries
// the deadline of ctx and ends when ctx does, without tying base to ctx.
func opContext(ctx, base context.Context) (context.Context, context.CancelFunc) {
	var (
		opCtx  context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		opCtx, cancel = context.WithDeadline(base, deadline)
	} else {
		opCtx, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

type cdpBrowser struct {
	logger      *zap.Logger
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	launched    bool

	mu     sync.Mutex
	pages  map[target.ID]*cdpPage
	order  []target.ID
	closed bool
}

func (b *cdpBrowser) Version(ctx context.Context) (string, error) {
	opCtx, cancel := opContext(ctx, b.rootCtx)
	defer cancel()
	c := chromedp.FromContext(b.rootCtx)
	if c == nil || c.Browser == nil {
		return "", errors.New("browser connection not established")
	}
	_, product, _, _, _, err := browser.GetVersion().Do(cdp.WithExecutor(opCtx, c.Browser))
	return product, err
}

// Pages lists page targets, keeping the order in which they were first seen.
func (b *cdpBrowser) Pages(ctx context.Context) ([]Page, error) {
	opCtx, cancel := opContext(ctx, b.rootCtx)
	defer cancel()
	infos, err := chromedp.Targets(opCtx)
	if err != nil {
		return nil, err
	}

	live := make(map[target.ID]bool, len(infos))
	var fresh []target.ID
	b.mu.Lock()
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		live[info.TargetID] = true
		if _, ok := b.pages[info.TargetID]; !ok {
			fresh = append(fresh, info.TargetID)
		}
	}
	b.mu.Unlock()

	for _, id := range fresh {
		pageCtx, pageCancel := chromedp.NewContext(b.rootCtx, chromedp.WithTargetID(id))
		if err := awaitLong(ctx, pageCancel, func() error { return chromedp.Run(pageCtx) }); err != nil {
			pageCancel()
			b.logger.Debug("attach to page failed", zap.String("target", string(id)), zap.Error(err))
			delete(live, id)
			continue
		}
		b.add(newCDPPage(b, pageCtx, pageCancel))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	order := b.order[:0]
	for _, id := range b.order {
		if live[id] {
			order = append(order, id)
			continue
		}
		delete(b.pages, id)
	}
	b.order = order
	out := make([]Page, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.pages[id])
	}
	return out, nil
}

func (b *cdpBrowser) NewPage(ctx context.Context) (Page, error) {
	pageCtx, pageCancel := chromedp.NewContext(b.rootCtx)
	if err := awaitLong(ctx, pageCancel, func() error { return chromedp.Run(pageCtx) }); err != nil {
		pageCancel()
		return nil, err
	}
	p := newCDPPage(b, pageCtx, pageCancel)
	b.add(p)
	return p, nil
}

func (b *cdpBrowser) add(p *cdpPage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pages[p.id]; ok {
		return
	}
	b.pages[p.id] = p
	b.order = append(b.order, p.id)
}

func (b *cdpBrowser) forget(id target.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pages, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Close terminates a launched browser. An attached browser is only
// disconnected; its tabs stay open.
func (b *cdpBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := make([]*cdpPage, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()

	var err error
	if b.launched {
		closeCtx, cancel := context.WithTimeout(b.rootCtx, closeTimeout)
		err = chromedp.Cancel(closeCtx)
		cancel()
	} else {
		for _, p := range pages {
			p.release()
		}
	}
	b.rootCancel()
	b.allocCancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
