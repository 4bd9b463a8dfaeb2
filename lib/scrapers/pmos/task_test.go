package pmos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDateRangeInclusiveAscending(t *testing.T) {
	dates := DateRange(day("2025-06-01"), day("2025-06-03"))
	require.Len(t, dates, 3)
	require.Equal(t, "2025-06-01", dates[0].Format("2006-01-02"))
	require.Equal(t, "2025-06-02", dates[1].Format("2006-01-02"))
	require.Equal(t, "2025-06-03", dates[2].Format("2006-01-02"))
}

func TestDateRangeSingleDay(t *testing.T) {
	dates := DateRange(day("2025-06-01"), day("2025-06-01"))
	require.Len(t, dates, 1)
}

func TestDateRangeEndBeforeStartIsEmpty(t *testing.T) {
	require.Empty(t, DateRange(day("2025-06-03"), day("2025-06-01")))
}

func TestUnitKeyWithFilterValue(t *testing.T) {
	unit := CrawlUnit{
		Task:   TaskSpec{Name: "实时节点边际电价"},
		Date:   day("2025-06-01"),
		Filter: FilterValue{Label: "某节点", Value: "1206008004"},
	}
	// the underlying id wins over the display label
	require.Equal(t, "实时节点边际电价_2025-06-01_1206008004", unit.Key())
}

func TestUnitKeyFallsBackToLabel(t *testing.T) {
	unit := CrawlUnit{
		Task:   TaskSpec{Name: "实时断面约束"},
		Date:   day("2025-06-01"),
		Filter: FilterValue{Label: "晋北断面"},
	}
	require.Equal(t, "实时断面约束_2025-06-01_晋北断面", unit.Key())
}

func TestUnitKeyWithoutFilterHasNoTrailingSegment(t *testing.T) {
	unit := CrawlUnit{Task: TaskSpec{Name: "日前备用总量"}, Date: day("2025-06-01")}
	require.Equal(t, "日前备用总量_2025-06-01", unit.Key())
}

func TestSafeName(t *testing.T) {
	require.Equal(t, "风电_光伏_出力", safeName("风电/光伏 出力"))
	require.Equal(t, "a-b_c", safeName("a-b??c"))
	require.Equal(t, "abc", safeName("__abc__"))
}

func TestSelectTasksByName(t *testing.T) {
	all := DefaultTasks()
	selected, unknown := SelectTasks(all, []string{"日前备用总量", " 抽蓄电站水位 "})
	require.Empty(t, unknown)
	require.Len(t, selected, 2)
	require.Equal(t, "日前备用总量", selected[0].Name)
}

func TestSelectTasksReportsUnknown(t *testing.T) {
	_, unknown := SelectTasks(DefaultTasks(), []string{"不存在的任务"})
	require.Equal(t, []string{"不存在的任务"}, unknown)
}

func TestSelectTasksDefaultsToEnabled(t *testing.T) {
	all := []TaskSpec{
		{Name: "a", Enabled: true},
		{Name: "b", Enabled: false},
	}
	selected, unknown := SelectTasks(all, nil)
	require.Empty(t, unknown)
	require.Len(t, selected, 1)
	require.Equal(t, "a", selected[0].Name)
}
