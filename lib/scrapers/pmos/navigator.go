package pmos

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"

	"pmoscrawl/lib/browser"
	"pmoscrawl/lib/textutil"
)

// Navigator drives the sidebar tree menu. The tree lives in the shell
// page (not an iframe) and is a three-level el-tree:
// 信息披露 > category > leaf page, with 综合查询 nesting further.
//
// Expanding a node is a toggle click, so every expansion first checks
// aria-expanded: blindly clicking an already-open node collapses it.
type Navigator struct {
	page *browser.Page
	// pause after a leaf click before touching the new view
	queryInterval time.Duration

	infoDisclosureOpen bool
	currentCategory    string
	currentLeaf        string
}

func NewNavigator(page *browser.Page, queryInterval time.Duration) *Navigator {
	return &Navigator{page: page, queryInterval: queryInterval}
}

// Reset forgets the tracked menu state, forcing the next Goto to
// re-expand from the top. The crawler calls this before retrying a
// failed navigation; call it after a page reload too.
func (n *Navigator) Reset() {
	n.infoDisclosureOpen = false
	n.currentCategory = ""
	n.currentLeaf = ""
}

// Goto brings the portal to the task's view. Idempotent: when the
// task's leaf is already the active one, nothing is clicked.
func (n *Navigator) Goto(ctx context.Context, task TaskSpec) error {
	ctx, span := tracer.Start(ctx, "Navigator.Goto")
	defer span.End()
	span.SetAttributes(attribute.String("task", task.Name))

	if n.currentLeaf == task.Name {
		slog.DebugContext(ctx, "already on target view", "task", task.Name)
		return nil
	}
	slog.InfoContext(ctx, "navigating",
		"path", fmt.Sprintf("信息披露 > %s > %s", task.Category, task.Name))

	if err := n.waitSidebarReady(ctx); err != nil {
		return n.navFailed(ctx, "sidebar_not_ready", err)
	}
	if !n.infoDisclosureOpen {
		if err := n.expandNode(ctx, "信息披露"); err != nil {
			return n.navFailed(ctx, "expand_信息披露", err)
		}
		n.infoDisclosureOpen = true
	}
	if n.currentCategory != task.Category {
		if err := n.expandNode(ctx, task.Category); err != nil {
			return n.navFailed(ctx, "expand_category", err)
		}
		n.currentCategory = task.Category
	}
	for _, part := range splitPath(task.SubcategoryPath) {
		if err := n.expandNode(ctx, part); err != nil {
			return n.navFailed(ctx, "expand_"+part, err)
		}
	}
	if err := n.clickLeaf(ctx, task.Name); err != nil {
		return n.navFailed(ctx, "leaf_"+task.Name, err)
	}
	n.currentLeaf = task.Name

	if err := n.page.Sleep(ctx, n.queryInterval); err != nil {
		return err
	}
	if err := n.waitContentReady(ctx); err != nil {
		return n.navFailed(ctx, "content_not_ready", err)
	}
	if task.Tab != "" {
		if err := n.clickTab(ctx, task.Tab); err != nil {
			return n.navFailed(ctx, "tab_"+task.Tab, err)
		}
	}
	return nil
}

func (n *Navigator) navFailed(ctx context.Context, name string, err error) error {
	n.currentLeaf = ""
	n.page.Snapshot(ctx, "nav_"+safeName(name))
	return &UnitError{Kind: NavigationFailure, Err: err}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(path, ">") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// waitSidebarReady blocks until the el-tree has rendered its data,
// signalled by the 信息披露 entry becoming visible.
func (n *Navigator) waitSidebarReady(ctx context.Context) error {
	return n.page.Poll(ctx, shellScript(`
		var tree = doc.querySelector('#guide-menu .el-tree');
		if (!tree) return false;
		var top = tree.querySelector('span[title="信息披露"]');
		return top !== null && __pmosVisible(top);
	`), 30*time.Second)
}

// waitContentReady blocks until the content iframe (possibly nested)
// has loaded actual form controls or a table.
func (n *Navigator) waitContentReady(ctx context.Context) error {
	return n.page.Poll(ctx, frameScript(`
		if (doc === document) return false;
		return __pmosHasControls(doc);
	`), 30*time.Second)
}

// resolveLabel returns the exact span title to click for a wanted
// menu label. When no exact match exists (labels occasionally gain
// whitespace or suffixes between platform releases), the closest
// visible label by edit distance is used, within a small tolerance.
func (n *Navigator) resolveLabel(ctx context.Context, wanted string) (string, error) {
	var labels []string
	err := n.page.Eval(ctx, shellScript(`
		var spans = doc.querySelectorAll('#guide-menu .el-tree span[title]');
		var out = [];
		for (var i = 0; i < spans.length; i++) {
			var t = spans[i].getAttribute('title');
			if (t) out.push(t);
		}
		return out;
	`), &labels)
	if err != nil {
		return "", err
	}
	best := ""
	bestDist := -1
	for _, label := range labels {
		if textutil.LabelEquals(label, wanted) {
			return label, nil
		}
		d := matchr.Levenshtein(textutil.NormalizeLabel(label), textutil.NormalizeLabel(wanted))
		if bestDist < 0 || d < bestDist {
			best, bestDist = label, d
		}
	}
	// tolerate minor drift only; a distant "best match" would click
	// a completely unrelated page
	if best != "" && bestDist <= 2 {
		slog.WarnContext(ctx, "menu label drifted, using closest match",
			"wanted", wanted, "using", best, "distance", bestDist)
		return best, nil
	}
	return "", fmt.Errorf("menu label %q not found in sidebar (%d labels present)", wanted, len(labels))
}

func (n *Navigator) isExpanded(ctx context.Context, label string) bool {
	var expanded bool
	err := n.page.Eval(ctx, shellScript(fmt.Sprintf(`
		var spans = doc.querySelectorAll('#guide-menu .el-tree span[title=%q]');
		for (var i = 0; i < spans.length; i++) {
			var item = spans[i].closest('div[role="treeitem"]');
			if (item) return item.getAttribute('aria-expanded') === 'true';
		}
		return false;
	`, label)), &expanded)
	return err == nil && expanded
}

func (n *Navigator) clickNodeContent(ctx context.Context, label string) error {
	var clicked bool
	err := n.page.Eval(ctx, shellScript(fmt.Sprintf(`
		var spans = doc.querySelectorAll('#guide-menu .el-tree span[title=%q]');
		for (var i = 0; i < spans.length; i++) {
			var content = spans[i].closest('.el-tree-node__content');
			if (content && __pmosVisible(content)) return __pmosClick(content);
		}
		return false;
	`, label)), &clicked)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("tree node %q not clickable", label)
	}
	return nil
}

// expandNode expands a collapsible tree node, first via the node
// content, then via the expand icon if the first click bounced.
func (n *Navigator) expandNode(ctx context.Context, wanted string) error {
	label, err := n.resolveLabel(ctx, wanted)
	if err != nil {
		return err
	}
	if n.isExpanded(ctx, label) {
		slog.DebugContext(ctx, "tree node already expanded", "label", label)
		return nil
	}
	if err := n.clickNodeContent(ctx, label); err != nil {
		return err
	}
	// expansion animates; give it a moment before re-checking
	if err := n.pollExpanded(ctx, label, 3*time.Second); err == nil {
		return nil
	}

	slog.DebugContext(ctx, "content click did not expand, trying expand icon", "label", label)
	var clicked bool
	err = n.page.Eval(ctx, shellScript(fmt.Sprintf(`
		var spans = doc.querySelectorAll('#guide-menu .el-tree span[title=%q]');
		for (var i = 0; i < spans.length; i++) {
			var content = spans[i].closest('.el-tree-node__content');
			if (!content) continue;
			var icon = content.querySelector('.el-tree-node__expand-icon');
			if (icon) return __pmosClick(icon);
		}
		return false;
	`, label)), &clicked)
	if err != nil {
		return err
	}
	if err := n.pollExpanded(ctx, label, 3*time.Second); err != nil {
		return fmt.Errorf("could not expand tree node %q: %w", label, err)
	}
	return nil
}

func (n *Navigator) pollExpanded(ctx context.Context, label string, timeout time.Duration) error {
	return n.page.Poll(ctx, shellScript(fmt.Sprintf(`
		var spans = doc.querySelectorAll('#guide-menu .el-tree span[title=%q]');
		for (var i = 0; i < spans.length; i++) {
			var item = spans[i].closest('div[role="treeitem"]');
			if (item && item.getAttribute('aria-expanded') === 'true') return true;
		}
		return false;
	`, label)), timeout)
}

// clickLeaf clicks a leaf node, which routes the content area to the
// leaf's page.
func (n *Navigator) clickLeaf(ctx context.Context, wanted string) error {
	label, err := n.resolveLabel(ctx, wanted)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "opening page", "label", label)
	return n.clickNodeContent(ctx, label)
}

// clickTab selects a tab inside the content view.
func (n *Navigator) clickTab(ctx context.Context, tab string) error {
	var clicked bool
	err := n.page.Eval(ctx, frameScript(fmt.Sprintf(`
		var wanted = %q;
		var candidates = doc.querySelectorAll('.el-tabs__item, [role="tab"], .tab, span, a');
		for (var i = 0; i < candidates.length; i++) {
			var el = candidates[i];
			if (__pmosText(el) === wanted && __pmosVisible(el)) return __pmosClick(el);
		}
		return false;
	`, tab)), &clicked)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("tab %q not found", tab)
	}
	return n.page.Sleep(ctx, 1500*time.Millisecond)
}
