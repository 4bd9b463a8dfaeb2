package pmos

import (
	"context"
	"log/slog"
	"time"

	"pmoscrawl/lib/browser"
)

// PagedView is the slice of a rendered view the Paginator needs. The
// live implementation drives the browser; tests substitute fakes.
type PagedView interface {
	// ScrapeTable reads the currently rendered table.
	ScrapeTable(ctx context.Context) (Table, error)
	// TotalPages reports the pager's claimed page count, 1 when no
	// pager is present or readable.
	TotalPages(ctx context.Context) int
	// NextPage advances one page, reporting whether it could.
	NextPage(ctx context.Context) bool
	// RowCount counts currently loaded table rows.
	RowCount(ctx context.Context) (int, error)
	// ScrollToBottom nudges a lazy-loading table to fetch more.
	ScrollToBottom(ctx context.Context) error
}

// Paginator walks a multi-page or lazily loaded table and hands each
// batch of rows to visit.
type Paginator struct {
	// pause between page flips
	PageInterval time.Duration
}

// ForEachPage visits every page of a discretely paginated view and
// returns how many pages were visited. Termination is double-guarded:
// the pager's reported total bounds the walk, and a page that yields
// no rows stops it early, so a stuck pager can't loop forever. The
// page after the reported last is never requested.
func (p *Paginator) ForEachPage(ctx context.Context, view PagedView, visit func(Table) error) (int, error) {
	total := view.TotalPages(ctx)
	if total < 1 {
		total = 1
	}
	slog.InfoContext(ctx, "walking paginated table", "total_pages", total)

	visited := 0
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		table, err := view.ScrapeTable(ctx)
		if err != nil {
			return visited, err
		}
		visited++
		if len(table.Rows) == 0 && page > 1 {
			slog.WarnContext(ctx, "page yielded no rows, stopping early", "page", page)
			return visited, nil
		}
		if err := visit(table); err != nil {
			return visited, err
		}
		if page == total {
			break
		}
		if !view.NextPage(ctx) {
			slog.WarnContext(ctx, "pager refused to advance", "page", page, "total", total)
			break
		}
		if p.PageInterval > 0 {
			select {
			case <-ctx.Done():
				return visited, ctx.Err()
			case <-time.After(p.PageInterval):
			}
		}
	}
	return visited, nil
}

// LoadAllByScrolling drives an infinite-scroll table until the loaded
// row count is stable across two consecutive checks, then scrapes
// once. maxScrolls caps the loop against a table that keeps feigning
// growth.
func (p *Paginator) LoadAllByScrolling(ctx context.Context, view PagedView, maxScrolls int) (Table, error) {
	if maxScrolls <= 0 {
		maxScrolls = 50
	}
	prev := -1
	for i := 0; i < maxScrolls; i++ {
		if err := ctx.Err(); err != nil {
			return Table{}, err
		}
		if err := view.ScrollToBottom(ctx); err != nil {
			return Table{}, err
		}
		select {
		case <-ctx.Done():
			return Table{}, ctx.Err()
		case <-time.After(time.Second):
		}
		count, err := view.RowCount(ctx)
		if err != nil {
			return Table{}, err
		}
		if count == prev {
			slog.DebugContext(ctx, "row count stable, scroll complete", "rows", count, "scrolls", i+1)
			break
		}
		prev = count
	}
	return view.ScrapeTable(ctx)
}

// liveView is the browser-backed PagedView. Both widget frameworks
// appear: FineReport exposes paging through its _g() API, Element UI
// through the .el-pagination DOM.
type liveView struct {
	page      *browser.Page
	extractor *Extractor
}

// LiveView wraps the active browser view for the Paginator.
func LiveView(page *browser.Page, extractor *Extractor) PagedView {
	return &liveView{page: page, extractor: extractor}
}

func (v *liveView) ScrapeTable(ctx context.Context) (Table, error) {
	return v.extractor.ScrapeTable(ctx)
}

func (v *liveView) TotalPages(ctx context.Context) int {
	var total int
	err := v.page.Eval(ctx, frameScript(`
		// FineReport knows its page count
		try {
			var form = win._g && win._g();
			if (form && form.totalPage !== undefined && form.totalPage > 0) {
				return form.totalPage;
			}
		} catch (e) {}
		// Element UI: count the last pager entry
		var last = doc.querySelector('.el-pager li:last-child');
		if (last) {
			var n = parseInt(__pmosText(last), 10);
			if (n > 0) return n;
		}
		// "x/N" texts in report toolbars
		var nodes = doc.querySelectorAll('.x-page-toolbar, .fr-toolbar, .el-pagination__total');
		for (var i = 0; i < nodes.length; i++) {
			var m = __pmosText(nodes[i]).match(/\/\s*(\d+)/);
			if (m) return parseInt(m[1], 10);
		}
		return 1;
	`), &total)
	if err != nil || total < 1 {
		return 1
	}
	return total
}

func (v *liveView) NextPage(ctx context.Context) bool {
	var ok bool
	err := v.page.Eval(ctx, frameScript(`
		try {
			var form = win._g && win._g();
			if (form && typeof form.gotoPage === 'function') {
				var current = form.currentPage || 1;
				var total = form.totalPage || 1;
				if (current < total) { form.gotoPage(current + 1); return true; }
				return false;
			}
		} catch (e) {}
		var btn = doc.querySelector('.el-pagination .btn-next, button.btn-next, .x-page-next, .fr-page-next');
		if (btn && !btn.disabled && (btn.getAttribute('class') || '').indexOf('disabled') < 0) {
			return __pmosClick(btn);
		}
		var candidates = doc.querySelectorAll('a, span, button');
		for (var i = 0; i < candidates.length; i++) {
			if (__pmosText(candidates[i]) === '下一页' && __pmosVisible(candidates[i])) {
				var cls = candidates[i].getAttribute('class') || '';
				if (cls.indexOf('disabled') >= 0 || cls.indexOf('gray') >= 0) return false;
				return __pmosClick(candidates[i]);
			}
		}
		return false;
	`), &ok)
	return err == nil && ok
}

func (v *liveView) RowCount(ctx context.Context) (int, error) {
	var count int
	err := v.page.Eval(ctx, frameScript(`
		var table = doc.querySelector('table');
		if (!table) return 0;
		return table.querySelectorAll('tr').length;
	`), &count)
	return count, err
}

func (v *liveView) ScrollToBottom(ctx context.Context) error {
	return v.page.Eval(ctx, frameScript(`
		var table = doc.querySelector('table');
		var el = table && table.parentElement ? table.parentElement : doc.documentElement;
		el.scrollTop = el.scrollHeight;
		return true;
	`), nil)
}
