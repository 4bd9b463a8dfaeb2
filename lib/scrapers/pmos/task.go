// Package pmos crawls the market disclosure pages of the Shanxi power
// trading platform. Each disclosure page is described by a TaskSpec;
// the crawl iterates (task, date, filter value) combinations, pulls
// the table behind each combination out of the portal, and persists it
// as one CSV per combination.
package pmos

import (
	"regexp"
	"strings"
	"time"

	"pmoscrawl/lib/timezone"
)

// ExportKind says what the page's export button produces, if any.
type ExportKind string

const (
	ExportNone ExportKind = ""
	// 原样导出, exports the report exactly as rendered
	ExportVerbatim ExportKind = "原样导出"
	// plain 导出 button
	ExportPlain ExportKind = "导出"
)

// TaskSpec describes one disclosure page and the affordances it
// offers. The portal's 18 pages differ only along these axes, so the
// crawl loop itself is shape-agnostic.
type TaskSpec struct {
	// Name is the leaf menu label, e.g. 实时节点边际电价. It doubles
	// as the output name prefix.
	Name string `json:"name"`
	// Category is the second-level menu the leaf lives under.
	Category string `json:"category"`
	// SubcategoryPath holds the extra menu levels between Category
	// and the leaf, '>'-separated, for the deep 综合查询 pages.
	SubcategoryPath string `json:"subcategory_path,omitempty"`
	// Tab selects a tab inside the view after navigation, when the
	// page splits its content across tabs.
	Tab string `json:"tab,omitempty"`

	Enabled bool `json:"enabled"`

	// HasDropdown means the page requires a dropdown selection
	// (node, interface, unit...) and must be crawled once per
	// option. DropdownLabel names the control.
	HasDropdown   bool   `json:"has_dropdown"`
	DropdownLabel string `json:"dropdown_label,omitempty"`

	HasPagination bool       `json:"has_pagination"`
	HasPageSize   bool       `json:"has_page_size"`
	Export        ExportKind `json:"export,omitempty"`
}

// IsClearingSummary reports whether the task's rows carry the long
// clearing commentary text that gets exploded into named fields.
func (t TaskSpec) IsClearingSummary() bool {
	return strings.Contains(t.Name, "出清概况")
}

// FilterValue is one dropdown option. Value is the underlying
// identifier when the portal exposes one (e.g. a node id); Label is
// the text shown in the UI. A zero FilterValue means "no filter".
type FilterValue struct {
	Label string
	Value string
}

func (f FilterValue) IsZero() bool {
	return f.Label == "" && f.Value == ""
}

// keySegment picks the stable identifier for file naming, preferring
// the underlying id over the display label.
func (f FilterValue) keySegment() string {
	if f.Value != "" {
		return f.Value
	}
	return f.Label
}

// CrawlUnit is one capture target: a single (task, date, filter)
// combination that produces exactly one output file.
type CrawlUnit struct {
	Task   TaskSpec
	Date   time.Time
	Filter FilterValue
}

// Key is the unit's deterministic output name:
// {task}_{YYYY-MM-DD} for filterless tasks,
// {task}_{YYYY-MM-DD}_{filter} otherwise.
func (u CrawlUnit) Key() string {
	parts := []string{safeName(u.Task.Name), u.Date.Format("2006-01-02")}
	if !u.Filter.IsZero() {
		parts = append(parts, safeName(u.Filter.keySegment()))
	}
	return strings.Join(parts, "_")
}

var (
	unsafeNameChars = regexp.MustCompile(`[^0-9A-Za-z_\p{Han}-]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
)

// safeName keeps han characters, ascii word characters and hyphens,
// replacing everything else with underscores.
func safeName(name string) string {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	safe = underscoreRuns.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// DateRange expands [start, end] into the individual days, inclusive
// and ascending. An end before start yields no days rather than an
// error, so a misconfigured range degrades to a no-op run.
func DateRange(start, end time.Time) []time.Time {
	start = timezone.Day(start)
	end = timezone.Day(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DefaultTasks is the built-in catalog of disclosure pages. The config
// file can disable entries or override fields, but the shape flags
// here reflect what each page actually offers.
func DefaultTasks() []TaskSpec {
	return []TaskSpec{
		// 现货出清结果
		{Name: "日前出清概况", Category: "现货出清结果", Enabled: true, Export: ExportVerbatim},
		{Name: "实时出清概况", Category: "现货出清结果", Enabled: true, Export: ExportVerbatim},
		{Name: "日前节点边际电价", Category: "现货出清结果", Enabled: true, HasDropdown: true, DropdownLabel: "节点名称", HasPagination: true, HasPageSize: true, Export: ExportVerbatim},
		{Name: "日前机组出清电量", Category: "现货出清结果", Enabled: true, HasDropdown: true, DropdownLabel: "机组名称", HasPagination: true, HasPageSize: true, Export: ExportVerbatim},
		{Name: "调频市场出清结果", Category: "现货出清结果", Enabled: true, Export: ExportVerbatim},
		{Name: "调频边际出清价格", Category: "现货出清结果", Enabled: true, HasPagination: true, Export: ExportVerbatim},

		// 现货实时数据
		{Name: "实时节点边际电价", Category: "现货实时数据", Enabled: true, HasDropdown: true, DropdownLabel: "节点名称", HasPagination: true, HasPageSize: true},
		{Name: "实时断面约束", Category: "现货实时数据", Enabled: true, HasDropdown: true, DropdownLabel: "断面名称", HasPagination: true},
		{Name: "实时系统负荷", Category: "现货实时数据", Enabled: true},
		{Name: "实时外送电计划", Category: "现货实时数据", Enabled: true},
		{Name: "实时新能源总出力", Category: "现货实时数据", Enabled: true, Tab: "风电光伏"},

		// 现货日前信息
		{Name: "日前备用总量", Category: "现货日前信息", Enabled: true, Export: ExportVerbatim},
		{Name: "日前断面约束", Category: "现货日前信息", Enabled: true, HasDropdown: true, DropdownLabel: "断面名称", HasPagination: true, Export: ExportVerbatim},
		{Name: "日前负荷预测", Category: "现货日前信息", Enabled: true},
		{Name: "日前新能源出力预测", Category: "现货日前信息", Enabled: true},
		{Name: "抽蓄电站水位", Category: "现货日前信息", Enabled: true, Export: ExportVerbatim},

		// 综合查询, deeper menu path
		{Name: "节点分配因子", Category: "综合查询", SubcategoryPath: "供需与约束 > 参数信息", Enabled: true, HasDropdown: true, DropdownLabel: "节点名称", HasPagination: true, HasPageSize: true, Export: ExportVerbatim},
		{Name: "机组技术参数", Category: "综合查询", SubcategoryPath: "供需与约束 > 参数信息", Enabled: true, HasPagination: true, Export: ExportVerbatim},
	}
}

// SelectTasks filters the catalog down to the named tasks, or to the
// enabled ones when names is empty. Unknown names are returned so the
// caller can fail the run before touching the browser.
func SelectTasks(all []TaskSpec, names []string) (selected []TaskSpec, unknown []string) {
	if len(names) == 0 {
		for _, t := range all {
			if t.Enabled {
				selected = append(selected, t)
			}
		}
		return selected, nil
	}
	byName := make(map[string]TaskSpec, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if t, ok := byName[name]; ok {
			selected = append(selected, t)
		} else {
			unknown = append(unknown, name)
		}
	}
	return selected, unknown
}
