package excel

import (
	"math"
	"strconv"
	"strings"
)

// Table is a rectangular sheet with no assumed schema: a header row of named
// columns plus data rows. Ragged source rows are padded with empty cells so
// every row has len(Headers) cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Cell returns the cell at (row, col), or "" when out of range.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Column returns all data-row values of one column.
func (t *Table) Column(col int) []string {
	out := make([]string, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, t.Cell(i, col))
	}
	return out
}

// normalizeKey lowercases and trims a header or label for exact matching.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseNumber coerces a cell to a float, stripping thousands separators,
// percent signs and surrounding whitespace. Returns false for anything that
// still fails to parse.
func ParseNumber(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// numericColumn coerces a string column to floats, silently dropping
// non-numeric cells.
func numericColumn(cells []string) []float64 {
	out := make([]float64, 0, len(cells))
	for _, c := range cells {
		if v, ok := ParseNumber(c); ok {
			out = append(out, v)
		}
	}
	return out
}
