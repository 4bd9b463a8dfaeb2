package pmos

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pmoscrawl/lib/browser"
)

// Filters operates the query controls of the active view: the date
// input, the optional dropdown, the page-size selector and the query
// button. Two widget frameworks exist side by side on the portal:
// FineReport report pages (driven through the embedded _g() API) and
// Element UI pages (driven through the DOM). Every operation probes
// which one the view uses and takes the matching path.
type Filters struct {
	page *browser.Page
}

func NewFilters(page *browser.Page) *Filters {
	return &Filters{page: page}
}

func (f *Filters) isFineReport(ctx context.Context) bool {
	var is bool
	err := f.page.Eval(ctx, frameScript(`
		return doc.querySelector('.fr-trigger-editor, .fr-form-imgboard, .para-container') !== null;
	`), &is)
	return err == nil && is
}

// SetDate types the crawl date into the view's date input. Filters are
// applied all-or-nothing by the caller: a failed date set fails the
// whole unit rather than querying with a stale date.
func (f *Filters) SetDate(ctx context.Context, date time.Time) error {
	dateStr := date.Format("2006-01-02")
	slog.InfoContext(ctx, "setting date", "date", dateStr)

	var ok bool
	err := f.page.Eval(ctx, frameScript(fmt.Sprintf(`
		var value = %q;
		// FineReport date widget first, located by widgetname
		var el = doc.querySelector(
			'div.fr-trigger-editor[widgetname="日期"] input.fr-trigger-texteditor, ' +
			'div[widgetname="日期"] input'
		);
		// Element UI date picker
		if (!el) el = doc.querySelector('.el-date-editor input, input[placeholder*="日期"], input[type="date"]');
		// any FineReport text editor
		if (!el) el = doc.querySelector('input.fr-trigger-texteditor');
		// last resort: an input already holding a YYYY-MM-DD value
		if (!el) {
			var inputs = doc.querySelectorAll('input');
			for (var i = 0; i < inputs.length; i++) {
				var v = (inputs[i].value || '').trim();
				if (v.length === 10 && v[4] === '-' && v[7] === '-' && __pmosVisible(inputs[i])) {
					el = inputs[i];
					break;
				}
			}
		}
		if (!el) return false;
		__pmosSetInput(el, value);
		// FineReport confirms on blur/Tab; also nudge the widget API
		try {
			var form = win._g && win._g();
			if (form && form.parameterEl) {
				var w = form.parameterEl.getWidgetByName('日期');
				if (w) w.setValue(value);
			}
		} catch (e) {}
		return true;
	`, dateStr)), &ok)
	if err != nil {
		return err
	}
	if !ok {
		return failf(TransientUIFailure, "no date input found for %s", dateStr)
	}
	return f.page.Sleep(ctx, 500*time.Millisecond)
}

// ListOptions returns the dropdown's options in UI order. Re-fetched
// per date by the caller, since option sets grow over time (newly
// commissioned nodes appear mid-range).
func (f *Filters) ListOptions(ctx context.Context, label string) ([]FilterValue, error) {
	slog.InfoContext(ctx, "listing dropdown options", "label", label)

	if f.isFineReport(ctx) {
		return f.frListOptions(ctx, label)
	}
	return f.elListOptions(ctx, label)
}

func (f *Filters) frListOptions(ctx context.Context, label string) ([]FilterValue, error) {
	var items []struct {
		Text  string `json:"text"`
		Value string `json:"value"`
	}
	err := f.page.Eval(ctx, frameScript(fmt.Sprintf(`
		try {
			var form = win._g && win._g();
			if (!form || !form.parameterEl) return [];
			var widget = form.parameterEl.getWidgetByName(%q);
			if (!widget || typeof widget.getItems !== 'function') return [];
			return widget.getItems().map(function(item) {
				return {text: String(item.text || ''), value: String(item.value || '')};
			}).filter(function(it) { return it.text || it.value; });
		} catch (e) { return []; }
	`, label)), &items)
	if err != nil {
		return nil, err
	}
	var options []FilterValue
	for _, it := range items {
		v := FilterValue{Label: it.Text, Value: it.Value}
		if v.Label == "" {
			v.Label = v.Value
		}
		options = append(options, v)
	}
	slog.InfoContext(ctx, "dropdown options resolved", "label", label, "count", len(options), "source", "finereport")
	return options, nil
}

func (f *Filters) elListOptions(ctx context.Context, label string) ([]FilterValue, error) {
	// Element UI mounts dropdown panels on <body>; opening the select
	// is required before the option nodes exist
	if err := f.elOpenDropdown(ctx, label); err != nil {
		return nil, err
	}
	var texts []string
	err := f.page.Eval(ctx, frameScript(`
		var panels = doc.querySelectorAll('.el-select-dropdown.el-popper');
		var out = [];
		for (var p = 0; p < panels.length; p++) {
			if (!__pmosVisible(panels[p])) continue;
			var items = panels[p].querySelectorAll('.el-select-dropdown__item');
			for (var i = 0; i < items.length; i++) {
				var t = __pmosText(items[i].querySelector('span') || items[i]);
				if (t && t !== '全部' && out.indexOf(t) < 0) out.push(t);
			}
			break;
		}
		return out;
	`), &texts)
	f.elCloseDropdown(ctx)
	if err != nil {
		return nil, err
	}
	var options []FilterValue
	for _, t := range texts {
		options = append(options, FilterValue{Label: t})
	}
	slog.InfoContext(ctx, "dropdown options resolved", "label", label, "count", len(options), "source", "element-ui")
	return options, nil
}

func (f *Filters) elOpenDropdown(ctx context.Context, label string) error {
	var opened bool
	err := f.page.Eval(ctx, frameScript(fmt.Sprintf(`
		var label = %q;
		var input = null;
		// locate the el-select input belonging to the labelled form item
		var items = doc.querySelectorAll('.el-form-item');
		for (var i = 0; i < items.length; i++) {
			if (items[i].textContent.indexOf(label) >= 0) {
				input = items[i].querySelector('.el-select .el-input__inner, .el-select input');
				if (input) break;
			}
		}
		if (!input) input = doc.querySelector('[placeholder*="' + label + '"], [aria-label*="' + label + '"]');
		if (!input) return false;
		return __pmosClick(input);
	`, label)), &opened)
	if err != nil {
		return err
	}
	if !opened {
		return failf(TransientUIFailure, "dropdown %q not found", label)
	}
	// wait for the panel to mount and populate
	return f.page.Poll(ctx, frameScript(`
		var panels = doc.querySelectorAll('.el-select-dropdown.el-popper');
		for (var p = 0; p < panels.length; p++) {
			if (__pmosVisible(panels[p]) &&
				panels[p].querySelector('.el-select-dropdown__item')) return true;
		}
		return false;
	`), 8*time.Second)
}

func (f *Filters) elCloseDropdown(ctx context.Context) {
	_ = f.page.Eval(ctx, frameScript(`
		doc.body.dispatchEvent(new KeyboardEvent('keydown', {key: 'Escape', bubbles: true}));
		return true;
	`), nil)
}

// Select picks a dropdown option.
func (f *Filters) Select(ctx context.Context, label string, option FilterValue) error {
	slog.InfoContext(ctx, "selecting dropdown option", "label", label, "option", option.Label)

	if f.isFineReport(ctx) {
		var ok bool
		value := option.Value
		if value == "" {
			value = option.Label
		}
		err := f.page.Eval(ctx, frameScript(fmt.Sprintf(`
			try {
				var form = win._g && win._g();
				if (!form || !form.parameterEl) return false;
				var widget = form.parameterEl.getWidgetByName(%q);
				if (!widget) return false;
				widget.setValue(%q);
				return true;
			} catch (e) { return false; }
		`, label, value)), &ok)
		if err != nil {
			return err
		}
		if !ok {
			// fall back to typing into the combo's text editor
			err = f.page.Eval(ctx, frameScript(fmt.Sprintf(`
				var el = doc.querySelector(
					'div.fr-trigger-editor[widgetname=%q] input.fr-trigger-texteditor'
				);
				return __pmosSetInput(el, %q);
			`, label, option.Label)), &ok)
			if err != nil {
				return err
			}
		}
		if !ok {
			return failf(TransientUIFailure, "finereport dropdown %q rejected %q", label, option.Label)
		}
		return f.page.Sleep(ctx, 500*time.Millisecond)
	}

	// Element UI: open the panel and click the matching item
	if err := f.elOpenDropdown(ctx, label); err != nil {
		return err
	}
	var clicked bool
	err := f.page.Eval(ctx, frameScript(fmt.Sprintf(`
		var wanted = %q;
		var panels = doc.querySelectorAll('.el-select-dropdown.el-popper');
		for (var p = 0; p < panels.length; p++) {
			if (!__pmosVisible(panels[p])) continue;
			var items = panels[p].querySelectorAll('.el-select-dropdown__item');
			for (var i = 0; i < items.length; i++) {
				var t = __pmosText(items[i].querySelector('span') || items[i]);
				if (t === wanted) return __pmosClick(items[i]);
			}
		}
		return false;
	`, option.Label)), &clicked)
	if err != nil {
		return err
	}
	if !clicked {
		f.elCloseDropdown(ctx)
		return failf(TransientUIFailure, "option %q not found in dropdown %q", option.Label, label)
	}
	return f.page.Sleep(ctx, 500*time.Millisecond)
}

// SetPageSize raises the rows-per-page so paginated tables need fewer
// round trips. Best effort: a failure leaves the default in place.
func (f *Filters) SetPageSize(ctx context.Context, size int) {
	var ok bool
	err := f.page.Eval(ctx, frameScript(fmt.Sprintf(`
		var size = %d;
		// FineReport exposes a PAGESIZE widget
		try {
			var form = win._g && win._g();
			if (form && form.parameterEl) {
				var w = form.parameterEl.getWidgetByName('PAGESIZE');
				if (w) { w.setValue(String(size)); return true; }
			}
		} catch (e) {}
		var el = doc.querySelector('div[widgetname="PAGESIZE"] input');
		if (el) return __pmosSetInput(el, String(size));
		// Element UI pagination size select
		var sizer = doc.querySelector('.el-pagination .el-select .el-input__inner');
		if (sizer) return __pmosClick(sizer);
		return false;
	`, size)), &ok)
	if err != nil || !ok {
		slog.WarnContext(ctx, "could not set page size, using default", "size", size)
		return
	}
	slog.DebugContext(ctx, "page size set", "size", size)
}

// Submit clicks the query button and waits out the refresh.
func (f *Filters) Submit(ctx context.Context) error {
	slog.InfoContext(ctx, "submitting query")
	var clicked bool
	err := f.page.Eval(ctx, frameScript(`
		// FineReport search buttons: widgetname SEARCH, SEARCH_C, ...
		var selectors = [
			'div[widgetname^="SEARCH"]',
			'.query-btn',
		];
		for (var s = 0; s < selectors.length; s++) {
			var el = doc.querySelector(selectors[s]);
			if (el && __pmosVisible(el)) return __pmosClick(el);
		}
		// text-matched buttons, FineReport imgboards and Element UI alike
		var candidates = doc.querySelectorAll('div.fr-form-imgboard, button');
		for (var i = 0; i < candidates.length; i++) {
			var t = __pmosText(candidates[i]).replace(/\s+/g, '');
			if (t === '查询' && __pmosVisible(candidates[i])) return __pmosClick(candidates[i]);
		}
		return false;
	`), &clicked)
	if err != nil {
		return err
	}
	if !clicked {
		return failf(TransientUIFailure, "query button not found")
	}
	return f.page.Sleep(ctx, 2*time.Second)
}
