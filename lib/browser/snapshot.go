package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Snapshot captures a screenshot and the page HTML for postmortem
// debugging. Failures here are logged and swallowed: a snapshot must
// never turn a recoverable crawl error into a fatal one.
func (p *Page) Snapshot(ctx context.Context, name string) {
	dir := p.cfg.SnapshotDir
	if dir == "" {
		dir = "./data/snapshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.WarnContext(ctx, "could not create snapshot dir", "err", err)
		return
	}
	stamp := time.Now().Format("20060102_150405")
	base := filepath.Join(dir, fmt.Sprintf("%s_%s", name, stamp))

	var png []byte
	var html string
	err := p.run(ctx,
		chromedp.CaptureScreenshot(&png),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		slog.WarnContext(ctx, "snapshot capture failed", "name", name, "err", err)
		return
	}
	if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		slog.WarnContext(ctx, "snapshot write failed", "path", base+".png", "err", err)
	}
	if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		slog.WarnContext(ctx, "snapshot write failed", "path", base+".html", "err", err)
	}
	slog.InfoContext(ctx, "saved page snapshot", "base", base)
}
