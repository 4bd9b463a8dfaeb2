package pmos

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSummary = "02月05日,直调用电预测最大负荷3806.48万千瓦，最小2771.97万千瓦；" +
	"外送电最大644.72万千瓦，最小381.80万千瓦；" +
	"日前现货市场出清节点电价最大323.00元/MWh，最小0.00元/MWh"

func summaryValue(t *testing.T, values []string, column string) string {
	t.Helper()
	for i, name := range SummaryColumns() {
		if name == column {
			return values[i]
		}
	}
	t.Fatalf("no summary column %q", column)
	return ""
}

func TestParseClearingSummary(t *testing.T) {
	values := ParseClearingSummary(sampleSummary)
	require.Equal(t, "3806.48", summaryValue(t, values, "直调用电实际最大负荷(万千瓦)"))
	require.Equal(t, "2771.97", summaryValue(t, values, "直调用电实际最小负荷(万千瓦)"))
	require.Equal(t, "644.72", summaryValue(t, values, "外送电最大(万千瓦)"))
	require.Equal(t, "323.00", summaryValue(t, values, "出清节点电价最大(元/MWh)"))
	require.Equal(t, "0.00", summaryValue(t, values, "出清节点电价最小(元/MWh)"))
}

func TestParseClearingSummaryRulesAreIndependent(t *testing.T) {
	// load present, price wording absent: the load rule must still
	// match and the price columns must stay empty
	values := ParseClearingSummary("直调用电预测最大负荷3806.48万千瓦")
	require.Equal(t, "3806.48", summaryValue(t, values, "直调用电实际最大负荷(万千瓦)"))
	require.Empty(t, summaryValue(t, values, "出清节点电价最大(元/MWh)"))
	require.Empty(t, summaryValue(t, values, "边际出清价格最小(元/MWh)"))
}

func TestParseClearingSummaryNoMatchesAtAll(t *testing.T) {
	values := ParseClearingSummary("系统运行平稳")
	for i, v := range values {
		require.Empty(t, v, "column %s should be empty", SummaryColumns()[i])
	}
}

func TestNormalizeExplodesClearingSummary(t *testing.T) {
	table := Table{
		Header: []string{"日期", "出清概况"},
		Rows: [][]string{
			{"2025-06-01", sampleSummary},
			{"2025-06-02", ""},
		},
	}
	out := Normalizer{}.Normalize(table, TaskSpec{Name: "日前出清概况"}, "")
	require.Equal(t, append([]string{"日期", "原始文本"}, SummaryColumns()...), out.Header)
	require.Len(t, out.Rows, 2)
	require.Equal(t, "2025-06-01", out.Rows[0][0])
	require.Equal(t, sampleSummary, out.Rows[0][1])
	require.Contains(t, out.Rows[0], "3806.48")
	// an empty commentary yields empty indicators, not an error
	for _, cell := range out.Rows[1][2:] {
		require.Empty(t, cell)
	}
}

func TestNormalizeCoercesCells(t *testing.T) {
	table := Table{
		Header: []string{"序号", "日期", "电量(MWh)"},
		Rows: [][]string{
			{"01", "2025/06/01", "1,234.5"},
		},
	}
	out := Normalizer{}.Normalize(table, TaskSpec{Name: "实时系统负荷"}, "")
	require.Equal(t, "01", out.Rows[0][0], "ordinal column keeps leading zeros")
	require.Equal(t, "2025-06-01", out.Rows[0][1])
	require.Equal(t, "1234.5", out.Rows[0][2])
}

func TestNormalizeAppendsUpdateTime(t *testing.T) {
	table := Table{Header: []string{"a"}, Rows: [][]string{{"1"}, {"2"}}}
	out := Normalizer{}.Normalize(table, TaskSpec{Name: "实时系统负荷"}, "2025-06-01 10:30:00")
	require.Equal(t, []string{"a", "最新更新日期"}, out.Header)
	require.Equal(t, "2025-06-01 10:30:00", out.Rows[0][1])
	require.Equal(t, "2025-06-01 10:30:00", out.Rows[1][1])
}
