package pmos

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Finding is one data-quality observation. Errors mean the data is
// unusable; warnings mean it is suspect.
type Finding struct {
	Severity string // "error" or "warning"
	Key      string
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(f.Severity), f.Key, f.Message)
}

// Validator accumulates findings across checks. Checks never mutate
// the data; a gap (e.g. a summary rule that matched nothing) is
// reported here, not repaired.
type Validator struct {
	findings []Finding
}

func (v *Validator) errorf(key, format string, args ...any) {
	v.findings = append(v.findings, Finding{Severity: "error", Key: key, Message: fmt.Sprintf(format, args...)})
}

func (v *Validator) warnf(key, format string, args ...any) {
	v.findings = append(v.findings, Finding{Severity: "warning", Key: key, Message: fmt.Sprintf(format, args...)})
}

func (v *Validator) Findings() []Finding {
	return v.findings
}

// Passed reports whether no errors were found; warnings alone pass.
func (v *Validator) Passed() bool {
	for _, f := range v.findings {
		if f.Severity == "error" {
			return false
		}
	}
	return true
}

// CheckTable runs the structural checks every persisted table must
// satisfy: non-empty, no all-empty rows, no duplicate rows.
func (v *Validator) CheckTable(key string, table Table) {
	if table.Empty() {
		v.errorf(key, "no data rows")
		return
	}
	empty, dups := 0, 0
	seen := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		if allEmpty(row) {
			empty++
			continue
		}
		joined := strings.Join(row, "\x1f")
		if seen[joined] {
			dups++
		}
		seen[joined] = true
	}
	if empty > 0 {
		v.errorf(key, "%d all-empty rows", empty)
	}
	if dups > 0 {
		v.warnf(key, "%d duplicate rows", dups)
	}
}

// CheckRequiredFields verifies the header contains every required
// column and that no row leaves a required column blank.
func (v *Validator) CheckRequiredFields(key string, table Table, required []string) {
	col := make(map[string]int, len(table.Header))
	for i, h := range table.Header {
		col[h] = i
	}
	for _, field := range required {
		idx, ok := col[field]
		if !ok {
			v.errorf(key, "missing required column %q", field)
			continue
		}
		blank := 0
		for _, row := range table.Rows {
			if idx >= len(row) || row[idx] == "" {
				blank++
			}
		}
		if blank > 0 {
			v.warnf(key, "column %q blank in %d/%d rows", field, blank, len(table.Rows))
		}
	}
}

// CheckNumericRange flags values of a column outside [min, max]. Use
// NaN-free sentinels: pass the column's plausible physical bounds.
func (v *Validator) CheckNumericRange(key string, table Table, column string, min, max float64) {
	idx := -1
	for i, h := range table.Header {
		if h == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for i, row := range table.Rows {
		if idx >= len(row) || row[idx] == "" {
			continue
		}
		val, err := strconv.ParseFloat(strings.ReplaceAll(row[idx], ",", ""), 64)
		if err != nil {
			v.warnf(key, "row %d: %s=%q is not numeric", i+1, column, row[idx])
			continue
		}
		if val < min || val > max {
			v.warnf(key, "row %d: %s=%g outside [%g, %g]", i+1, column, val, min, max)
		}
	}
}

// CheckRowCount warns when a table carries fewer rows than a page of
// that task normally does (e.g. 96 intervals of a day-shaped report).
func (v *Validator) CheckRowCount(key string, table Table, expectedMin int) {
	if len(table.Rows) < expectedMin {
		v.warnf(key, "%d rows, expected at least %d", len(table.Rows), expectedMin)
	}
}

// CheckDateContinuity reports gaps in a task's captured dates. dates
// are YYYY-MM-DD strings in any order; unparseable entries are
// ignored.
func (v *Validator) CheckDateContinuity(key string, dates []string) {
	var parsed []time.Time
	seen := map[string]bool{}
	for _, d := range dates {
		if seen[d] {
			continue
		}
		seen[d] = true
		t, err := time.Parse("2006-01-02", d)
		if err == nil {
			parsed = append(parsed, t)
		}
	}
	if len(parsed) < 2 {
		return
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Before(parsed[j]) })
	var gaps []string
	for i := 1; i < len(parsed); i++ {
		expected := parsed[i-1].AddDate(0, 0, 1)
		if !parsed[i].Equal(expected) {
			gaps = append(gaps, fmt.Sprintf("%s ~ %s",
				expected.Format("2006-01-02"),
				parsed[i].AddDate(0, 0, -1).Format("2006-01-02")))
		}
	}
	if len(gaps) > 0 {
		v.warnf(key, "missing date ranges: %s", strings.Join(gaps, "; "))
	}
}

// tableSource is what the validator needs from storage.
type tableSource interface {
	Keys() ([]string, error)
	Read(key string) (header []string, rows [][]string, err error)
}

// ValidateStore runs the structural checks over every persisted unit
// and the continuity check over each task's captured dates.
func ValidateStore(src tableSource) (*Validator, error) {
	keys, err := src.Keys()
	if err != nil {
		return nil, err
	}
	v := &Validator{}
	datesByTask := map[string][]string{}
	for _, key := range keys {
		header, rows, err := src.Read(key)
		if err != nil {
			v.errorf(key, "unreadable: %v", err)
			continue
		}
		v.CheckTable(key, Table{Header: header, Rows: rows})

		if task, date, ok := splitKey(key); ok {
			datesByTask[task] = append(datesByTask[task], date)
		}
	}
	for task, dates := range datesByTask {
		v.CheckDateContinuity(task, dates)
	}
	return v, nil
}

// splitKey recovers (task, date) from a {task}_{date}[_{filter}] key.
func splitKey(key string) (task, date string, ok bool) {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if len(p) == 10 {
			if _, err := time.Parse("2006-01-02", p); err == nil {
				return strings.Join(parts[:i], "_"), p, i > 0
			}
		}
	}
	return "", "", false
}
