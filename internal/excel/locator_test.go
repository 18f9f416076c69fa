package excel

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundTable() *Table {
	return &Table{
		Name:    "Main Funds",
		Headers: []string{"Date", "Fund A", "Fund B"},
		Rows: [][]string{
			{"2023-01-31", "1", "1,000.5"},
			{"2023-02-28", "2", "-3%"},
			{"2023-03-31", "3", "n/a"},
		},
	}
}

func TestLocateSeriesByHeader(t *testing.T) {
	got, err := LocateSeries(fundTable(), "  fund a ")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestLocateSeriesCoercion(t *testing.T) {
	got, err := LocateSeries(fundTable(), "Fund B")
	require.NoError(t, err)
	// Thousands separator and percent sign stripped; "n/a" dropped silently.
	assert.Equal(t, []float64{1000.5, -3}, got)
}

func TestLocateSeriesByFirstRowLabel(t *testing.T) {
	tbl := &Table{
		Name:    "Sheet1",
		Headers: []string{"", "", ""},
		Rows: [][]string{
			{"", "Fund A", "Fund B"},
			{"", "10", "20"},
			{"", "11", "21"},
		},
	}
	got, err := LocateSeries(tbl, "fund a")
	require.NoError(t, err)
	// The label row itself is excluded.
	assert.Equal(t, []float64{10, 11}, got)
}

func TestLocateSeriesNotFoundDiagnostics(t *testing.T) {
	_, err := LocateSeries(fundTable(), "Fund Z")
	require.Error(t, err)
	var nf *ErrNotFound
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, err.Error(), "Fund A")
	assert.Contains(t, err.Error(), "Fund B")
}

func TestLocatePointByMonth(t *testing.T) {
	v, err := LocatePoint(fundTable(), "Fund A", "Feb 2023")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestLocatePointByLabel(t *testing.T) {
	tbl := &Table{
		Name:    "Periods",
		Headers: []string{"Period", "Fund A"},
		Rows: [][]string{
			{"Q1", "5"},
			{"Q2", "6"},
		},
	}
	v, err := LocatePoint(tbl, "Fund A", "q2")
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
}

func TestLocatePointNotFound(t *testing.T) {
	_, err := LocatePoint(fundTable(), "Fund A", "Dec 2019")
	require.Error(t, err)
	var nf *ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func rankingWorkbook() *Workbook {
	other := &Table{
		Name:    "Notes",
		Headers: []string{"Ticker", "a", "b", "c", "d", "e"},
		Rows:    [][]string{{"XYZ", "9", "9", "9", "9", "9"}},
	}
	rankings := &Table{
		Name:    "Rankings",
		Headers: []string{"Ticker", "1Y Rank", "3Y Rank", "Vol Rank", "Sharpe Rank", "MDD Rank"},
		Rows: [][]string{
			{"ABC", "12%", "3", "7", "", "1,024"},
			{"XYZ", "1", "2", "3", "4", "5"},
		},
	}
	return &Workbook{
		FileName: "ranks.xlsx",
		Order:    []string{"Notes", "Rankings"},
		Sheets:   map[string]*Table{"Notes": other, "Rankings": rankings},
	}
}

func TestLocateRankedRowPrefersSheet(t *testing.T) {
	row, err := LocateRankedRow(rankingWorkbook(), "Rankings", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "Rankings", row.Sheet)
	assert.Equal(t, 1.0, row.Metrics["1y_return_rank"])
	assert.Equal(t, 5.0, row.Metrics["max_drawdown_rank"])
}

func TestLocateRankedRowPartialCells(t *testing.T) {
	row, err := LocateRankedRow(rankingWorkbook(), "Rankings", "ABC")
	require.NoError(t, err)
	assert.Equal(t, 12.0, row.Metrics["1y_return_rank"])
	assert.True(t, math.IsNaN(row.Metrics["sharpe_rank"]))
	assert.Equal(t, 1024.0, row.Metrics["max_drawdown_rank"])
}

func TestLocateRankedRowSearchesAllSheets(t *testing.T) {
	wb := rankingWorkbook()
	delete(wb.Sheets, "Rankings")
	wb.Order = []string{"Notes"}
	row, err := LocateRankedRow(wb, "Rankings", "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "Notes", row.Sheet)

	_, err = LocateRankedRow(wb, "", "missing")
	require.Error(t, err)
}

func TestSheetLookupCaseInsensitive(t *testing.T) {
	wb := rankingWorkbook()
	tbl, err := wb.Sheet("rankings")
	require.NoError(t, err)
	assert.Equal(t, "Rankings", tbl.Name)

	_, err = wb.Sheet("Bond Funds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available sheets")
}

func TestTableCSV(t *testing.T) {
	tbl := &Table{
		Name:    "S",
		Headers: []string{"a", "b"},
		Rows:    [][]string{{"1", "x,y"}},
	}
	assert.Equal(t, "a,b\n1,\"x,y\"\n", tbl.CSV())
}
