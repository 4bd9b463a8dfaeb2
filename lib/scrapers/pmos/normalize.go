package pmos

import (
	"regexp"
	"strings"
)

// Normalizer coerces scraped cells into canonical forms and, for the
// clearing-summary tasks, explodes the long commentary text into
// named indicator columns.
type Normalizer struct{}

// Normalize cleans a raw table for persistence. Coercions are
// per-cell and never fail a record; unparseable cells pass through
// as-is so the Validator can flag them downstream.
func (Normalizer) Normalize(table Table, task TaskSpec, updateTime string) Table {
	if table.Empty() {
		return table
	}
	if task.IsClearingSummary() {
		table = explodeClearingSummary(table)
	}

	out := Table{Header: append([]string(nil), table.Header...)}
	for _, row := range table.Rows {
		cleaned := make([]string, len(row))
		for i, cell := range row {
			header := ""
			if i < len(table.Header) {
				header = table.Header[i]
			}
			cleaned[i] = coerceCell(header, cell)
		}
		out.Rows = append(out.Rows, cleaned)
	}

	if updateTime != "" {
		out.Header = append(out.Header, "最新更新日期")
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], updateTime)
		}
	}
	return out
}

var (
	slashDateRe = regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})(.*)$`)
	numericRe   = regexp.MustCompile(`^-?[\d,]+(?:\.\d+)?$`)
)

// coerceCell canonicalizes one cell: slash dates become dashed,
// grouped numbers lose their thousands separators. The 序号 ordinal
// column is left untouched so leading zeros survive.
func coerceCell(header, cell string) string {
	cell = strings.TrimSpace(cell)
	if header == "序号" {
		return cell
	}
	if m := slashDateRe.FindStringSubmatch(cell); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3] + m[4]
	}
	if numericRe.MatchString(cell) && strings.Contains(cell, ",") {
		return strings.ReplaceAll(cell, ",", "")
	}
	return cell
}

// summaryRule extracts one indicator from the clearing commentary.
// Rules are independent: a miss leaves the column empty for that row
// and never affects sibling rules, because the commentary's wording
// shifts between reporting periods.
type summaryRule struct {
	name string
	re   *regexp.Regexp
}

var summaryRules = []summaryRule{
	{"直调用电实际最大负荷(万千瓦)", regexp.MustCompile(`直调用电(?:实际|预测)?最大负荷([\d.]+)万千瓦`)},
	{"直调用电实际最小负荷(万千瓦)", regexp.MustCompile(`最小([\d.]+)万千瓦`)},
	{"直调用电预测最大负荷(万千瓦)", regexp.MustCompile(`直调用电预测最大负荷([\d.]+)万千瓦`)},
	{"外送电最大(万千瓦)", regexp.MustCompile(`外送电最大([\d.]+)万千瓦`)},
	{"外送电最小(万千瓦)", regexp.MustCompile(`外送电(?:最大[\d.]+万千瓦，)?最小([\d.]+)万千瓦`)},
	{"出清节点电价最大(元/MWh)", regexp.MustCompile(`出清节?点?电价最大([\d.]+)元/MWh`)},
	{"出清节点电价最小(元/MWh)", regexp.MustCompile(`出清节?点?电价.*?最小([\d.]+)元/MWh`)},
	{"现货市场场均电量价格(元/MWh)", regexp.MustCompile(`(?:资本|现货)平均?为?([\d.]+)元/MWh`)},
	{"火电机组运行(台)", regexp.MustCompile(`火电机组运行(\d+)台`)},
	{"运行机组总装机(MW)", regexp.MustCompile(`运行机组总装机(?:容量)?([\d.]+)(?:MW)?`)},
	{"调频市场需求最大值(MW)", regexp.MustCompile(`调频?(?:市场)?需求最大值?([\d.]+)(?:MW)?`)},
	{"需求最小值(MW)", regexp.MustCompile(`需求?最小值?(?:为)?([\d.]+)(?:MW)?`)},
	{"中标机组最多(台)", regexp.MustCompile(`中标机组最多(\d+)台`)},
	{"中标机组最少(台)", regexp.MustCompile(`中标机组最少(\d+)台`)},
	{"中标机组调频期间综合指标平均值", regexp.MustCompile(`综合指标平均值为?([\d.]+)`)},
	{"边际出清价格最大(元/MWh)", regexp.MustCompile(`边际出清价格最大([\d.]+)元/MWh`)},
	{"边际出清价格最小(元/MWh)", regexp.MustCompile(`边际出清价格.*?最小([\d.]+)元/MWh`)},
	{"火电机组已开(台次)", regexp.MustCompile(`火电机组已?开(\d+)台次`)},
	{"必开容量(MW)", regexp.MustCompile(`必开容量([\d.]+)(?:MW)?`)},
	{"必停(台次)", regexp.MustCompile(`必停(\d+)台次`)},
	{"必停容量(MW)", regexp.MustCompile(`必停容量([\d.]+)(?:MW)?`)},
}

// ParseClearingSummary runs every extraction rule against one
// commentary text. The returned slice is rule-aligned; empty strings
// mark rules that found nothing.
func ParseClearingSummary(text string) []string {
	values := make([]string, len(summaryRules))
	for i, rule := range summaryRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			values[i] = m[1]
		}
	}
	return values
}

// SummaryColumns returns the indicator column names, rule-aligned
// with ParseClearingSummary.
func SummaryColumns() []string {
	names := make([]string, len(summaryRules))
	for i, rule := range summaryRules {
		names[i] = rule.name
	}
	return names
}

// explodeClearingSummary rewrites a clearing-summary table: each row
// keeps its date and raw text and gains one column per indicator.
// Rows without a commentary cell pass through with empty indicators.
func explodeClearingSummary(table Table) Table {
	dateIdx, textIdx := -1, -1
	for i, h := range table.Header {
		switch h {
		case "日期":
			dateIdx = i
		case "出清概况":
			textIdx = i
		}
	}
	if textIdx < 0 {
		return table
	}

	out := Table{Header: append([]string{"日期", "原始文本"}, SummaryColumns()...)}
	for _, row := range table.Rows {
		date, text := "", ""
		if dateIdx >= 0 && dateIdx < len(row) {
			date = row[dateIdx]
		}
		if textIdx < len(row) {
			text = row[textIdx]
		}
		out.Rows = append(out.Rows, append([]string{date, text}, ParseClearingSummary(text)...))
	}
	return out
}
