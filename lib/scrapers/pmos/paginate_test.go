package pmos

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakePagedView serves a fixed row set split into pages of pageSize.
type fakePagedView struct {
	t             *testing.T
	rows          [][]string
	pageSize      int
	claimed       int // what the pager indicator reports
	current       int
	nextCalls     int
	scrolls       int
	growPerScroll int
	loaded        int
}

func (f *fakePagedView) pageRows() [][]string {
	start := f.current * f.pageSize
	if start >= len(f.rows) {
		return nil
	}
	end := start + f.pageSize
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[start:end]
}

func (f *fakePagedView) ScrapeTable(context.Context) (Table, error) {
	return Table{Header: []string{"时段", "数值"}, Rows: f.pageRows()}, nil
}

func (f *fakePagedView) TotalPages(context.Context) int { return f.claimed }

func (f *fakePagedView) NextPage(context.Context) bool {
	f.nextCalls++
	if (f.current+1)*f.pageSize >= len(f.rows) {
		f.t.Fatalf("NextPage requested past the last page (call %d)", f.nextCalls)
	}
	f.current++
	return true
}

func (f *fakePagedView) RowCount(context.Context) (int, error) { return f.loaded, nil }

func (f *fakePagedView) ScrollToBottom(context.Context) error {
	f.scrolls++
	f.loaded += f.growPerScroll
	if f.loaded > len(f.rows) {
		f.loaded = len(f.rows)
	}
	return nil
}

func makeRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("%d", i+1), "0"}
	}
	return rows
}

func TestForEachPageVisitsExactlyReportedPages(t *testing.T) {
	// 25 rows at 10 per page, indicator reports 3 pages: exactly 3
	// visits, all 25 rows, and page 4 must never be requested
	view := &fakePagedView{t: t, rows: makeRows(25), pageSize: 10, claimed: 3}
	var collected int
	visited, err := (&Paginator{}).ForEachPage(context.Background(), view, func(tb Table) error {
		collected += len(tb.Rows)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, visited)
	require.Equal(t, 25, collected)
	require.Equal(t, 2, view.nextCalls)
}

func TestForEachPageStopsOnEmptyPage(t *testing.T) {
	// indicator claims 5 pages but data runs out after 2; an empty
	// page must end the walk instead of trusting the stuck indicator
	view := &fakePagedView{t: t, rows: makeRows(20), pageSize: 10, claimed: 5}
	// allow advancing into the empty region for this scenario
	view.rows = append(view.rows, make([][]string, 0)...)
	visits := 0
	visited, err := (&Paginator{}).ForEachPage(context.Background(), &emptyAfter{inner: view, after: 2}, func(Table) error {
		visits++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, visited, "the first empty page is observed, then the walk stops")
	require.Equal(t, 2, visits, "the empty page is not passed to visit")
}

// emptyAfter serves the inner view's pages, then empty tables.
type emptyAfter struct {
	inner  *fakePagedView
	after  int
	served int
}

func (e *emptyAfter) ScrapeTable(ctx context.Context) (Table, error) {
	e.served++
	if e.served > e.after {
		return Table{Header: []string{"时段", "数值"}}, nil
	}
	return e.inner.ScrapeTable(ctx)
}
func (e *emptyAfter) TotalPages(ctx context.Context) int { return e.inner.claimed }
func (e *emptyAfter) NextPage(ctx context.Context) bool {
	if e.served <= e.after {
		e.inner.current++
	}
	return true
}
func (e *emptyAfter) RowCount(ctx context.Context) (int, error) { return e.inner.RowCount(ctx) }
func (e *emptyAfter) ScrollToBottom(ctx context.Context) error  { return e.inner.ScrollToBottom(ctx) }

func TestLoadAllByScrollingStopsWhenRowCountStable(t *testing.T) {
	view := &fakePagedView{
		t: t, rows: makeRows(30), pageSize: 100, claimed: 1,
		growPerScroll: 10,
	}
	table, err := (&Paginator{}).LoadAllByScrolling(context.Background(), view, 50)
	require.NoError(t, err)
	require.Len(t, table.Rows, 30)
	// 3 growing scrolls plus the stable confirmation
	require.Equal(t, 4, view.scrolls)
}

func TestLoadAllByScrollingHonorsCap(t *testing.T) {
	view := &fakePagedView{
		t: t, rows: makeRows(1000), pageSize: 1000, claimed: 1,
		growPerScroll: 1,
	}
	_, err := (&Paginator{}).LoadAllByScrolling(context.Background(), view, 5)
	require.NoError(t, err)
	require.Equal(t, 5, view.scrolls)
}
