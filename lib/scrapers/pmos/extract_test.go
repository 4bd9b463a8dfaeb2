package pmos

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func gb18030(t *testing.T, s string) []byte {
	t.Helper()
	raw, _, err := transform.Bytes(simplifiedchinese.GB18030.NewEncoder(), []byte(s))
	require.NoError(t, err)
	return raw
}

func TestParseCSVArtifactUTF8(t *testing.T) {
	table, err := parseCSVArtifact([]byte("\uFEFF日期,电价\n2025-06-01,312.5\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"日期", "电价"}, table.Header)
	require.Equal(t, [][]string{{"2025-06-01", "312.5"}}, table.Rows)
}

func TestParseCSVArtifactGB18030(t *testing.T) {
	raw := gb18030(t, "日期,节点名称,电价\n2025-06-01,晋北节点,312.5\n,,\n")
	table, err := parseCSVArtifact(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"日期", "节点名称", "电价"}, table.Header)
	require.Len(t, table.Rows, 1, "all-empty rows are dropped")
	require.Equal(t, "晋北节点", table.Rows[0][1])
}

const plainTableHTML = `<html><body><table>
<thead><tr><th>时段</th><th>电价</th></tr></thead>
<tbody>
<tr><td>1</td><td>312.5</td></tr>
<tr><td>2</td><td>-80</td></tr>
</tbody></table></body></html>`

func TestParseHTMLArtifactPlainTable(t *testing.T) {
	table, err := parseHTMLArtifact([]byte(plainTableHTML), 0)
	require.NoError(t, err)
	require.Equal(t, []string{"时段", "电价"}, table.Header)
	require.Equal(t, [][]string{{"1", "312.5"}, {"2", "-80"}}, table.Rows)
}

func TestParseHTMLArtifactFineReportTridx(t *testing.T) {
	// tridx rows out of order with a skipped index; the smallest is
	// the header
	html := `<table class="x-table">
<tr tridx="4"><td>2</td><td>290.0</td></tr>
<tr tridx="0"><td>时段</td><td>电价</td></tr>
<tr tridx="2"><td>1</td><td>312.5</td></tr>
</table>`
	table, err := parseHTMLArtifact([]byte(html), 0)
	require.NoError(t, err)
	require.Equal(t, []string{"时段", "电价"}, table.Header)
	require.Equal(t, [][]string{{"1", "312.5"}, {"2", "290.0"}}, table.Rows)
}

func TestParseArtifactDetectsHTMLDisguisedAsXls(t *testing.T) {
	// the portal's .xls exports are HTML documents with an xls name
	table, err := parseArtifact([]byte(plainTableHTML), "报表导出.xls")
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
}

func TestParseArtifactRejectsBinaryWorkbooks(t *testing.T) {
	_, err := parseArtifact([]byte("PK\x03\x04notazip"), "导出.xlsx")
	require.Error(t, err)
	_, err = parseArtifact([]byte{0xD0, 0xCF, 0x11, 0xE0, 0x00}, "导出.xls")
	require.Error(t, err)
}

func TestExportAndScrapeProduceEqualTables(t *testing.T) {
	// the same underlying data served as a CSV export and as a
	// rendered DOM table must extract identically
	fromExport, err := parseCSVArtifact([]byte("时段,电价\n1,312.5\n2,-80\n"))
	require.NoError(t, err)
	fromScrape, err := parseHTMLArtifact([]byte(plainTableHTML), 0)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(fromExport, fromScrape))
}

func TestParseHTMLArtifactNoTheadFirstRowIsHeader(t *testing.T) {
	html := `<table>
<tr><td>日期</td><td>负荷</td></tr>
<tr><td>2025-06-01</td><td>3806.48</td></tr>
</table>`
	table, err := parseHTMLArtifact([]byte(html), 0)
	require.NoError(t, err)
	require.Equal(t, []string{"日期", "负荷"}, table.Header)
	require.Len(t, table.Rows, 1)
}

func TestPadRowAlignsToHeader(t *testing.T) {
	html := `<table>
<tr><td>a</td><td>b</td><td>c</td></tr>
<tr><td>1</td><td>2</td></tr>
</table>`
	table, err := parseHTMLArtifact([]byte(html), 0)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", ""}, table.Rows[0])
}
