package excel

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is an uploaded spreadsheet parsed into generic tables, keyed by
// sheet name. Sheet order is preserved for listing and preferred-sheet scans.
type Workbook struct {
	FileName string
	Order    []string
	Sheets   map[string]*Table
}

// LoadWorkbook parses xlsx bytes into a Workbook. Sheets that fail to read
// are skipped; a workbook with zero readable sheets is an error.
func LoadWorkbook(fileName string, data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", fileName, err)
	}
	defer f.Close()

	wb := &Workbook{FileName: fileName, Sheets: map[string]*Table{}}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		wb.Order = append(wb.Order, name)
		wb.Sheets[name] = tableFromRows(name, rows)
	}
	if len(wb.Order) == 0 {
		return nil, fmt.Errorf("workbook %s has no readable sheets", fileName)
	}
	return wb, nil
}

// tableFromRows treats the first source row as the header row and pads the
// remaining rows to a uniform width.
func tableFromRows(name string, rows [][]string) *Table {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	pad := func(r []string) []string {
		out := make([]string, width)
		copy(out, r)
		return out
	}

	t := &Table{Name: name, Headers: pad(rows[0])}
	for _, r := range rows[1:] {
		t.Rows = append(t.Rows, pad(r))
	}
	return t
}

// Sheet resolves a sheet by exact name first, then case-insensitively.
// The error lists available sheet names so the model can retry.
func (wb *Workbook) Sheet(name string) (*Table, error) {
	if t, ok := wb.Sheets[name]; ok {
		return t, nil
	}
	want := normalizeKey(name)
	for _, n := range wb.Order {
		if normalizeKey(n) == want {
			return wb.Sheets[n], nil
		}
	}
	return nil, fmt.Errorf("sheet %q not found; available sheets: %s", name, strings.Join(wb.Order, ", "))
}

// SheetsPreferredFirst returns all tables with the preferred sheet (if any)
// moved to the front.
func (wb *Workbook) SheetsPreferredFirst(preferred string) []*Table {
	names := make([]string, len(wb.Order))
	copy(names, wb.Order)
	if preferred != "" {
		want := normalizeKey(preferred)
		sort.SliceStable(names, func(i, j int) bool {
			return normalizeKey(names[i]) == want && normalizeKey(names[j]) != want
		})
	}
	out := make([]*Table, 0, len(names))
	for _, n := range names {
		out = append(out, wb.Sheets[n])
	}
	return out
}

// CSV renders a table as CSV text for embedding into the similarity index.
func (t *Table) CSV() string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				sb.WriteByte(',')
			}
			if strings.ContainsAny(c, ",\"\n") {
				c = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
			}
			sb.WriteString(c)
		}
		sb.WriteByte('\n')
	}
	writeRow(t.Headers)
	for _, r := range t.Rows {
		writeRow(r)
	}
	return sb.String()
}
