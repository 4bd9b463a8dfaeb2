package pmos

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"pmoscrawl/lib/browser"
)

// Method records which extraction path produced a table.
type Method string

const (
	MethodExported Method = "exported"
	MethodScraped  Method = "scraped"
)

// Extraction is a tagged extraction result: the table plus the path
// it came through, kept for diagnostics and the run report.
type Extraction struct {
	Method Method
	Table  Table
	// UpdateTime is the page's 最新更新日期 stamp if one was shown.
	UpdateTime string
}

// Extractor pulls a rendered query result out of the browser, either
// through the page's export control or by scraping the DOM table.
type Extractor struct {
	page *browser.Page
}

func NewExtractor(page *browser.Page) *Extractor {
	return &Extractor{page: page}
}

// exportHref looks for an export control that is a real link. Most
// views wire the export through javascript, but when a plain href is
// there we can pull it over HTTP instead of driving the download UI.
func (e *Extractor) exportHref(ctx context.Context, kind ExportKind) string {
	var href string
	err := e.page.Eval(ctx, frameScript(fmt.Sprintf(`
		var wanted = %q;
		var anchors = doc.querySelectorAll('a[href]');
		for (var i = 0; i < anchors.length; i++) {
			var t = __pmosText(anchors[i]).replace(/\s+/g, '');
			if ((t === wanted || t.indexOf('导出') >= 0) && __pmosVisible(anchors[i])) {
				var h = anchors[i].href;
				if (h && h.indexOf('javascript:') !== 0 && h.indexOf('#') !== 0) {
					return h;
				}
			}
		}
		return '';
	`, string(kind))), &href)
	if err != nil {
		return ""
	}
	return href
}

func (e *Extractor) fetchExport(ctx context.Context, href string) (Table, error) {
	cookies, err := e.page.Cookies(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("read session cookies: %w", err)
	}
	fetcher, err := NewFetcher(href, cookies)
	if err != nil {
		return Table{}, err
	}
	name, raw, err := fetcher.Fetch(ctx, href)
	if err != nil {
		return Table{}, err
	}
	slog.InfoContext(ctx, "export fetched directly",
		"name", name, "bytes", len(raw))
	return parseArtifact(raw, name)
}

// Extract captures the current view's table. Export is preferred when
// the task offers it (server-side files carry full precision and skip
// pagination); any export problem falls back to scraping. Both paths
// coming up empty is an ExtractionFailure.
func (e *Extractor) Extract(ctx context.Context, task TaskSpec, paginate func(context.Context) (Table, error)) (Extraction, error) {
	ctx, span := tracer.Start(ctx, "Extractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("task", task.Name))

	if task.Export != ExportNone {
		table, err := e.tryExport(ctx, task.Export)
		if err != nil {
			slog.WarnContext(ctx, "export unavailable, falling back to scrape", "err", err)
		} else if !table.Empty() {
			return Extraction{
				Method:     MethodExported,
				Table:      table,
				UpdateTime: e.UpdateTime(ctx),
			}, nil
		}
	}

	var table Table
	var err error
	if paginate != nil {
		table, err = paginate(ctx)
	} else {
		table, err = e.ScrapeTable(ctx)
	}
	if err != nil {
		return Extraction{}, err
	}
	if table.Empty() {
		return Extraction{}, failf(ExtractionFailure, "no rows from export or scrape")
	}
	return Extraction{
		Method:     MethodScraped,
		Table:      table,
		UpdateTime: e.UpdateTime(ctx),
	}, nil
}

// tryExport prefers a direct HTTP fetch when the export control is a
// plain link, otherwise clicks the button and parses whatever lands in
// the download directory.
func (e *Extractor) tryExport(ctx context.Context, kind ExportKind) (Table, error) {
	if href := e.exportHref(ctx, kind); href != "" {
		table, err := e.fetchExport(ctx, href)
		if err == nil && !table.Empty() {
			return table, nil
		}
		slog.DebugContext(ctx, "direct export fetch failed, clicking instead",
			"href", href, "err", err)
	}

	dl, err := e.page.ExpectDownload(ctx, func(ctx context.Context) error {
		var clicked bool
		err := e.page.Eval(ctx, frameScript(fmt.Sprintf(`
			var wanted = %q;
			var candidates = doc.querySelectorAll('button, a, span, div.fr-form-imgboard');
			for (var i = 0; i < candidates.length; i++) {
				var t = __pmosText(candidates[i]).replace(/\s+/g, '');
				if ((t === wanted || t.indexOf('导出') >= 0) && __pmosVisible(candidates[i])) {
					return __pmosClick(candidates[i]);
				}
			}
			return false;
		`, string(kind))), &clicked)
		if err != nil {
			return err
		}
		if !clicked {
			return fmt.Errorf("export button %q not found", kind)
		}
		return nil
	})
	if err != nil {
		return Table{}, err
	}
	defer os.Remove(dl.Path)

	raw, err := os.ReadFile(dl.Path)
	if err != nil {
		return Table{}, fmt.Errorf("read export: %w", err)
	}
	slog.InfoContext(ctx, "export downloaded",
		"suggested_name", dl.SuggestedName, "bytes", len(raw))
	return parseArtifact(raw, dl.SuggestedName)
}

// parseArtifact dispatches on the artifact's actual content. Exports
// named .xls are frequently HTML in disguise; genuinely binary
// workbooks are not parsed here and force the scrape fallback.
func parseArtifact(raw []byte, suggestedName string) (Table, error) {
	if bytes.HasPrefix(raw, []byte("PK\x03\x04")) ||
		bytes.HasPrefix(raw, []byte{0xD0, 0xCF, 0x11, 0xE0}) {
		return Table{}, fmt.Errorf("binary workbook export (%s), not parseable", suggestedName)
	}
	text, err := decodeText(raw)
	if err != nil {
		return Table{}, err
	}
	ext := strings.ToLower(filepath.Ext(suggestedName))
	looksHTML := bytes.Contains(bytes.ToLower(text[:min(len(text), 512)]), []byte("<table")) ||
		bytes.Contains(bytes.ToLower(text[:min(len(text), 512)]), []byte("<html"))
	if ext == ".csv" && !looksHTML {
		return parseCSVArtifact(raw)
	}
	if looksHTML {
		return parseHTMLArtifact(raw, 0)
	}
	return parseCSVArtifact(raw)
}

// ScrapeTable reads the rendered table straight from the content
// frame's DOM.
func (e *Extractor) ScrapeTable(ctx context.Context) (Table, error) {
	var html string
	err := e.page.Eval(ctx, frameScript(`
		return doc.documentElement ? doc.documentElement.outerHTML : '';
	`), &html)
	if err != nil {
		return Table{}, err
	}
	if html == "" {
		return Table{}, failf(TransientUIFailure, "content frame has no document")
	}
	table, err := parseHTMLArtifact([]byte(html), 0)
	if err != nil {
		return Table{}, &UnitError{Kind: DataShapeFailure, Err: err}
	}
	return table, nil
}

var updateTimeRe = regexp.MustCompile(`(\d{4}[-/]\d{2}[-/]\d{2}(?:\s*\d{2}:\d{2}:\d{2})?)`)

// UpdateTime scans the view for a 最新更新日期 stamp. Best effort.
func (e *Extractor) UpdateTime(ctx context.Context) string {
	var text string
	err := e.page.Eval(ctx, frameScript(`
		var nodes = doc.querySelectorAll('span, div, td, p');
		for (var i = 0; i < nodes.length; i++) {
			var t = __pmosText(nodes[i]);
			if (t.length < 80 &&
				(t.indexOf('最新更新日期') >= 0 || t.indexOf('更新时间') >= 0)) {
				return t;
			}
		}
		return '';
	`), &text)
	if err != nil || text == "" {
		return ""
	}
	return updateTimeRe.FindString(text)
}
