package pmos

// The portal renders every functional page inside iframes: the shell
// page only carries the sidebar menu and tabs. Element UI pages sit
// one iframe deep; FineReport report pages nest a second iframe
// (outer pxf-settlement-outnetpub, inner id="iframe") that holds the
// actual controls. All same-origin, so instead of re-targeting the
// devtools session per frame we resolve the innermost content
// document in javascript and run every page script against it.

// jsPrelude defines __pmosDoc(), which drills from the top document
// through visible iframes into the innermost document that contains
// form controls, and a few shared helpers.
const jsPrelude = `
function __pmosVisible(el) {
	if (!el) return false;
	var r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}
function __pmosHasControls(doc) {
	if (!doc) return false;
	return doc.querySelector(
		'input, button, table, ' +
		'.fr-trigger-editor, .fr-form-imgboard, .para-container, ' +
		'.el-date-editor, .el-select, .el-input'
	) !== null;
}
function __pmosDrill(doc, depth) {
	if (depth <= 0) return doc;
	var frames = doc.querySelectorAll('iframe');
	for (var i = 0; i < frames.length; i++) {
		var el = frames[i];
		if (!__pmosVisible(el)) continue;
		var inner;
		try { inner = el.contentDocument; } catch (e) { continue; }
		if (!inner) continue;
		var deeper = __pmosDrill(inner, depth - 1);
		if (__pmosHasControls(deeper)) return deeper;
		if (__pmosHasControls(inner)) return inner;
	}
	return doc;
}
function __pmosDoc() {
	return __pmosDrill(document, 3);
}
function __pmosWin() {
	var doc = __pmosDoc();
	return doc.defaultView || window;
}
function __pmosClick(el) {
	if (!el) return false;
	el.scrollIntoView({block: 'center'});
	el.dispatchEvent(new MouseEvent('mousedown', {bubbles: true}));
	el.dispatchEvent(new MouseEvent('mouseup', {bubbles: true}));
	el.click();
	return true;
}
function __pmosSetInput(el, value) {
	if (!el) return false;
	el.focus();
	el.value = value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	el.blur();
	return true;
}
function __pmosText(el) {
	return el ? (el.textContent || '').trim() : '';
}
`

// frameScript wraps body so it runs with doc bound to the innermost
// content document and win to its window. body must be an expression
// or a block ending in a return.
func frameScript(body string) string {
	return "(() => {" + jsPrelude + "\nconst doc = __pmosDoc(); const win = __pmosWin();\n" + body + "\n})()"
}

// shellScript wraps body so it runs against the top-level shell
// document, where the sidebar menu and tabs live.
func shellScript(body string) string {
	return "(() => {" + jsPrelude + "\nconst doc = document; const win = window;\n" + body + "\n})()"
}
