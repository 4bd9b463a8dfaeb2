package pmos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckTablePasses(t *testing.T) {
	v := &Validator{}
	v.CheckTable("k", Table{Header: []string{"a"}, Rows: [][]string{{"1"}, {"2"}}})
	require.True(t, v.Passed())
	require.Empty(t, v.Findings())
}

func TestCheckTableEmptyIsError(t *testing.T) {
	v := &Validator{}
	v.CheckTable("k", Table{Header: []string{"a"}})
	require.False(t, v.Passed())
}

func TestCheckTableDuplicatesAreWarnings(t *testing.T) {
	v := &Validator{}
	v.CheckTable("k", Table{Header: []string{"a", "b"}, Rows: [][]string{
		{"1", "2"},
		{"1", "2"},
	}})
	require.True(t, v.Passed(), "duplicates warn, they do not fail")
	require.Len(t, v.Findings(), 1)
	require.Equal(t, "warning", v.Findings()[0].Severity)
}

func TestCheckRequiredFields(t *testing.T) {
	table := Table{
		Header: []string{"日期", "电价"},
		Rows:   [][]string{{"2025-06-01", ""}, {"2025-06-02", "312.5"}},
	}
	v := &Validator{}
	v.CheckRequiredFields("k", table, []string{"日期", "电价", "节点名称"})
	require.False(t, v.Passed(), "missing column is an error")

	var missing, blank bool
	for _, f := range v.Findings() {
		switch {
		case f.Severity == "error" && strings.Contains(f.Message, "节点名称"):
			missing = true
		case f.Severity == "warning" && strings.Contains(f.Message, "电价"):
			blank = true
		}
	}
	require.True(t, missing, "the absent column should be an error")
	require.True(t, blank, "the partly blank column should be a warning")
}

func TestCheckNumericRange(t *testing.T) {
	table := Table{
		Header: []string{"电价"},
		Rows:   [][]string{{"312.5"}, {"9999"}, {"abc"}, {""}},
	}
	v := &Validator{}
	v.CheckNumericRange("k", table, "电价", -200, 1500)
	require.Len(t, v.Findings(), 2, "one out-of-range, one non-numeric; blanks pass")
	require.True(t, v.Passed())
}

func TestCheckDateContinuity(t *testing.T) {
	v := &Validator{}
	v.CheckDateContinuity("k", []string{"2025-06-01", "2025-06-02", "2025-06-05"})
	require.Len(t, v.Findings(), 1)
	require.Contains(t, v.Findings()[0].Message, "2025-06-03 ~ 2025-06-04")

	v = &Validator{}
	v.CheckDateContinuity("k", []string{"2025-06-02", "2025-06-01", "2025-06-03", "2025-06-02"})
	require.Empty(t, v.Findings(), "unordered and duplicated dates are fine when gapless")
}

func TestCheckRowCount(t *testing.T) {
	v := &Validator{}
	v.CheckRowCount("k", Table{Header: []string{"a"}, Rows: [][]string{{"1"}}}, 96)
	require.Len(t, v.Findings(), 1)
}

func TestSplitKey(t *testing.T) {
	task, date, ok := splitKey("实时节点边际电价_2025-06-01_1206008004")
	require.True(t, ok)
	require.Equal(t, "实时节点边际电价", task)
	require.Equal(t, "2025-06-01", date)

	task, date, ok = splitKey("日前备用总量_2025-06-01")
	require.True(t, ok)
	require.Equal(t, "日前备用总量", task)
	require.Equal(t, "2025-06-01", date)

	_, _, ok = splitKey("no_date_here")
	require.False(t, ok)
}

type fakeSource struct {
	tables map[string]Table
}

func (s fakeSource) Keys() ([]string, error) {
	var keys []string
	for k := range s.tables {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s fakeSource) Read(key string) ([]string, [][]string, error) {
	t := s.tables[key]
	return t.Header, t.Rows, nil
}

func TestValidateStoreFlagsGapsAcrossUnits(t *testing.T) {
	src := fakeSource{tables: map[string]Table{
		"日前备用总量_2025-06-01": {Header: []string{"a"}, Rows: [][]string{{"1"}}},
		"日前备用总量_2025-06-03": {Header: []string{"a"}, Rows: [][]string{{"1"}}},
	}}
	v, err := ValidateStore(src)
	require.NoError(t, err)
	require.True(t, v.Passed())

	found := false
	for _, f := range v.Findings() {
		if f.Severity == "warning" && f.Key == "日前备用总量" {
			found = true
		}
	}
	require.True(t, found, "the missing 06-02 should be reported against the task")
}
