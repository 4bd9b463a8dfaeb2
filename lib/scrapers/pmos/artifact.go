package pmos

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"pmoscrawl/lib/htmlutil"
)

// Table is the uniform batch shape every extraction path produces:
// one header row plus data rows, cell-aligned to the header.
type Table struct {
	Header []string
	Rows   [][]string
}

func (t Table) Empty() bool {
	return len(t.Header) == 0 || len(t.Rows) == 0
}

// decodeText converts exported bytes to UTF-8. The portal's CSV
// exports ship as GB18030 more often than not; valid UTF-8 passes
// through untouched.
func decodeText(raw []byte) ([]byte, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(raw) {
		return raw, nil
	}
	decoded, _, err := transform.Bytes(simplifiedchinese.GB18030.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("decode gb18030: %w", err)
	}
	return decoded, nil
}

// parseCSVArtifact parses an exported CSV into a Table.
func parseCSVArtifact(raw []byte) (Table, error) {
	text, err := decodeText(raw)
	if err != nil {
		return Table{}, err
	}
	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse exported csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	t := Table{Header: trimCells(records[0])}
	for _, rec := range records[1:] {
		row := trimCells(rec)
		if !allEmpty(row) {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// parseHTMLArtifact parses an HTML document (an exported .xls that is
// really HTML, or a scraped frame) and extracts the tableIndex-th
// table. FineReport tables are preferred when present.
func parseHTMLArtifact(raw []byte, tableIndex int) (Table, error) {
	text, err := decodeText(raw)
	if err != nil {
		return Table{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(text))
	if err != nil {
		return Table{}, fmt.Errorf("parse html: %w", err)
	}
	return extractTableFromDoc(doc, tableIndex)
}

func extractTableFromDoc(doc *goquery.Document, tableIndex int) (Table, error) {
	// FineReport emits class x-table / ...REPORT... tables with rows
	// carrying a tridx attribute
	frTables := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(class, "x-table") || strings.Contains(class, "REPORT")
	})
	if frTables.Length() > 0 {
		idx := tableIndex
		if idx >= frTables.Length() {
			idx = frTables.Length() - 1
		}
		if t := parseFineReportTable(frTables.Eq(idx)); !t.Empty() {
			return t, nil
		}
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return Table{}, nil
	}
	if tableIndex >= tables.Length() {
		return Table{}, fmt.Errorf("table index %d out of range (%d tables)", tableIndex, tables.Length())
	}
	return parsePlainTable(tables.Eq(tableIndex)), nil
}

// parseFineReportTable reads a tridx-addressed table: the smallest
// tridx row is the header, the rest are data. tridx values can skip
// numbers, so rows are sorted, not indexed.
func parseFineReportTable(table *goquery.Selection) Table {
	type idxRow struct {
		idx   int
		cells []string
	}
	var rows []idxRow
	table.Find("tr[tridx]").Each(func(_ int, tr *goquery.Selection) {
		attr, _ := tr.Attr("tridx")
		var idx int
		if _, err := fmt.Sscanf(attr, "%d", &idx); err != nil {
			return
		}
		rows = append(rows, idxRow{idx: idx, cells: cellTexts(tr)})
	})
	if len(rows) == 0 {
		return parsePlainTable(table)
	}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].idx < rows[j-1].idx; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
	t := Table{Header: rows[0].cells}
	for _, r := range rows[1:] {
		if !allEmpty(r.cells) {
			t.Rows = append(t.Rows, padRow(r.cells, len(t.Header)))
		}
	}
	if len(t.Header) == 0 {
		return Table{}
	}
	return t
}

func parsePlainTable(table *goquery.Selection) Table {
	var t Table

	// the html parser inserts tbody even when the source has none,
	// so "outside thead" is the reliable data-row predicate
	dataRows := table.Find("tr").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Closest("thead").Length() == 0
	})

	headerRow := table.Find("thead tr").First()
	if headerRow.Length() == 0 {
		headerRow = dataRows.First()
		dataRows = dataRows.Slice(1, goquery.ToEnd)
	}
	t.Header = cellTexts(headerRow)
	if len(t.Header) == 0 {
		return Table{}
	}

	dataRows.Each(func(_ int, tr *goquery.Selection) {
		cells := cellTexts(tr)
		if !allEmpty(cells) {
			t.Rows = append(t.Rows, padRow(cells, len(t.Header)))
		}
	})
	return t
}

func cellTexts(tr *goquery.Selection) []string {
	var cells []string
	tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, htmlutil.CellText(cell))
	})
	return cells
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

// padRow aligns a row to the header width; extra cells are kept only
// up to the header (overflow indicates a colspan artifact).
func padRow(cells []string, width int) []string {
	if width <= 0 || len(cells) == width {
		return cells
	}
	if len(cells) > width {
		return cells[:width]
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}
