// Package browser owns the Chrome session the crawler drives. The
// portal keeps all of its state (login, menu tree, filter widgets)
// inside a single page, so the page handle is modeled as an exclusive
// resource: every operation takes the page lock and runs to completion
// before the next may start.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

type Config struct {
	// "connect" attaches to an already running, already logged-in
	// Chrome over CDP. "launch" starts a fresh instance.
	Mode        string `json:"mode"`
	CdpUrl      string `json:"cdp_url"`
	Headless    bool   `json:"headless"`
	DownloadDir string `json:"download_dir"`
	SnapshotDir string `json:"snapshot_dir"`
	// applied to every individual page operation
	TimeoutSeconds int `json:"timeout_seconds"`
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return time.Second * 30
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type Session struct {
	cfg         Config
	attached    bool
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	page        *Page
}

// Open acquires a page according to the configured mode. In "connect"
// mode the browser belongs to someone else: Close only detaches and
// must never tear the browser down.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	s := &Session{cfg: cfg}

	var allocCtx context.Context
	switch cfg.Mode {
	case "", "connect":
		s.attached = true
		cdpUrl := cfg.CdpUrl
		if cdpUrl == "" {
			cdpUrl = "http://localhost:9222"
		}
		allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(ctx, cdpUrl)
		slog.InfoContext(ctx, "attaching to existing browser", "cdp_url", cdpUrl)
	case "launch":
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1920, 1080),
		)
		allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
		slog.InfoContext(ctx, "launching browser", "headless", cfg.Headless)
	default:
		return nil, fmt.Errorf("unknown browser mode: %q", cfg.Mode)
	}

	var pageCtx context.Context
	pageCtx, s.ctxCancel = chromedp.NewContext(allocCtx)

	// force target creation so we fail fast on a bad CDP url
	if err := chromedp.Run(pageCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("open browser session: %w", err)
	}

	s.page = newPage(pageCtx, cfg)
	if err := s.page.enableDownloads(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) Page() *Page {
	return s.page
}

// Close releases the session. An attached browser stays open, only the
// connection is dropped.
func (s *Session) Close() {
	if s.attached && s.page != nil {
		// cancelling a remote allocator context detaches without
		// killing the browser process
		slog.Info("detaching from browser, leaving it running")
	}
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Page is the single interactive page. All methods serialize on an
// internal lock: interleaving two in-flight units against the same
// page would corrupt both, since the UI state is global.
type Page struct {
	mu  sync.Mutex
	ctx context.Context
	cfg Config

	dl *downloadWatcher
}

func newPage(ctx context.Context, cfg Config) *Page {
	return &Page{ctx: ctx, cfg: cfg}
}

// run executes chromedp actions under the page lock, honoring both the
// caller's context and the per-operation timeout.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithTimeout(p.ctx, p.cfg.timeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Eval evaluates a javascript expression on the page, unmarshaling the
// result into out (which may be nil). Promises are awaited, so async
// page APIs can be called directly.
func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expr, out,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true).WithReturnByValue(true)
		},
	))
}

// Poll re-evaluates a boolean javascript predicate until it turns
// true. This is the deterministic-readiness primitive: prefer it over
// fixed sleeps whenever the page exposes a signal to poll.
func (p *Page) Poll(ctx context.Context, predicate string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		err := p.Eval(ctx, predicate, &ok)
		if err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s: %s", timeout, truncate(predicate, 120))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Sleep is reserved for rate shaping; readiness waits go through Poll.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Cookies returns the browser's cookies so plain HTTP clients can
// reuse the logged-in session for direct artifact downloads.
func (p *Page) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var out []*http.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read browser cookies: %w", err)
	}
	return out, nil
}

func (p *Page) enableDownloads() error {
	dir := p.cfg.DownloadDir
	if dir == "" {
		dir = "./data/exports"
	}
	dl, err := watchDownloads(p.ctx, dir)
	if err != nil {
		return err
	}
	p.dl = dl
	return p.run(context.Background(),
		cdpbrowser.
			SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dl.dir).
			WithEventsEnabled(true),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
