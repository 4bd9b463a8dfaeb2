package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// Download is a file the browser finished writing to disk.
type Download struct {
	// Path is where the bytes landed (named by guid, not by the
	// server's suggestion, so concurrent exports can never collide).
	Path string
	// SuggestedName is what the server wanted the file called; its
	// extension hints at the artifact format.
	SuggestedName string
}

type downloadWatcher struct {
	dir string

	mu        sync.Mutex
	suggested map[string]string // guid -> suggested filename
	waiters   []chan Download
}

func watchDownloads(ctx context.Context, dir string) (*downloadWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	w := &downloadWatcher{dir: abs, suggested: map[string]string{}}
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			w.begin(e.GUID, e.SuggestedFilename)
		case *cdpbrowser.EventDownloadProgress:
			if e.State == cdpbrowser.DownloadProgressStateCompleted {
				w.complete(e.GUID)
			}
		}
	})
	return w, nil
}

func (w *downloadWatcher) begin(guid, suggestedName string) {
	w.mu.Lock()
	w.suggested[guid] = suggestedName
	w.mu.Unlock()
}

func (w *downloadWatcher) complete(guid string) {
	w.mu.Lock()
	dl := Download{
		Path:          filepath.Join(w.dir, guid),
		SuggestedName: w.suggested[guid],
	}
	delete(w.suggested, guid)
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()
	for _, ch := range waiters {
		ch <- dl
	}
}

func (w *downloadWatcher) subscribe() chan Download {
	ch := make(chan Download, 1)
	w.mu.Lock()
	w.waiters = append(w.waiters, ch)
	w.mu.Unlock()
	return ch
}

// unsubscribe removes an abandoned waiter so a later unrelated
// download is not delivered into its buffer. No-op if the waiter was
// already served.
func (w *downloadWatcher) unsubscribe(ch chan Download) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.waiters {
		if c == ch {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

// ExpectDownload runs trigger and waits for the download it starts to
// complete. The trigger typically Evals a click on an export button;
// it must not start more than one download.
func (p *Page) ExpectDownload(ctx context.Context, trigger func(context.Context) error) (Download, error) {
	ch := p.dl.subscribe()
	defer p.dl.unsubscribe(ch)
	if err := trigger(ctx); err != nil {
		return Download{}, err
	}
	select {
	case dl := <-ch:
		return dl, nil
	case <-time.After(p.cfg.timeout()):
		return Download{}, fmt.Errorf("no download completed within %s", p.cfg.timeout())
	case <-ctx.Done():
		return Download{}, ctx.Err()
	}
}
