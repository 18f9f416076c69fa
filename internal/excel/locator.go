package excel

import (
	"fmt"
	"math"
	"strings"

	"portfobot/internal/analytics"
)

// ErrNotFound wraps a lookup failure with diagnostic context (available
// headers or labels) so an LLM retry can self-correct.
type ErrNotFound struct {
	What       string
	Candidates []string
}

func (e *ErrNotFound) Error() string {
	if len(e.Candidates) == 0 {
		return e.What + " not found"
	}
	return fmt.Sprintf("%s not found; candidates: %s", e.What, strings.Join(e.Candidates, ", "))
}

// resolveColumn finds the column for fundName: exact (case and whitespace
// insensitive) header match first, then an exact match against the first
// data row's labels. The second return reports how many leading data rows
// belong to the label, not the series. No fuzzy matching beyond the
// normalization: ambiguity is surfaced, not guessed at.
func resolveColumn(t *Table, fundName string) (col, skipRows int, err error) {
	want := normalizeKey(fundName)

	for i, h := range t.Headers {
		if normalizeKey(h) == want {
			return i, 0, nil
		}
	}
	if len(t.Rows) > 0 {
		for i, cell := range t.Rows[0] {
			if normalizeKey(cell) == want {
				return i, 1, nil
			}
		}
	}

	candidates := make([]string, 0, len(t.Headers)*2)
	for _, h := range t.Headers {
		if strings.TrimSpace(h) != "" {
			candidates = append(candidates, h)
		}
	}
	if len(t.Rows) > 0 {
		for _, c := range t.Rows[0] {
			if strings.TrimSpace(c) != "" {
				candidates = append(candidates, c)
			}
		}
	}
	return 0, 0, &ErrNotFound{What: fmt.Sprintf("fund %q in sheet %q", fundName, t.Name), Candidates: candidates}
}

// LocateSeries returns the numeric series for a fund: the matched header's
// column, or the column below a matching first-row label (the label row
// itself is excluded). Non-numeric cells are dropped silently.
func LocateSeries(t *Table, fundName string) ([]float64, error) {
	col, skip, err := resolveColumn(t, fundName)
	if err != nil {
		return nil, err
	}
	return numericColumn(t.Column(col)[skip:]), nil
}

// LocatePoint returns a single value for a fund at a period. The period
// label is matched against the first column: by month and year when it
// parses as a date, by exact normalized text otherwise.
func LocatePoint(t *Table, fundName, periodLabel string) (float64, error) {
	col, skip, err := resolveColumn(t, fundName)
	if err != nil {
		return 0, err
	}

	wantDate, isDate := analytics.ParseDate(periodLabel)
	wantText := normalizeKey(periodLabel)

	for i := skip; i < len(t.Rows); i++ {
		label := t.Cell(i, 0)
		matched := false
		if isDate {
			if d, ok := analytics.ParseDate(label); ok && analytics.SameMonth(d, wantDate) {
				matched = true
			}
		}
		if !matched && normalizeKey(label) == wantText {
			matched = true
		}
		if !matched {
			continue
		}
		if v, ok := ParseNumber(t.Cell(i, col)); ok {
			return v, nil
		}
		return 0, fmt.Errorf("period %q matched in sheet %q but the %q cell is not numeric", periodLabel, t.Name, fundName)
	}

	labels := make([]string, 0, len(t.Rows))
	for i := skip; i < len(t.Rows) && len(labels) < 20; i++ {
		if l := strings.TrimSpace(t.Cell(i, 0)); l != "" {
			labels = append(labels, l)
		}
	}
	return 0, &ErrNotFound{What: fmt.Sprintf("period %q for %q in sheet %q", periodLabel, fundName, t.Name), Candidates: labels}
}

// Ranking tables carry the fund identifier in the first column and a fixed
// set of ranking dimensions at fixed offsets from it.
var rankingColumns = []struct {
	Name   string
	Offset int
}{
	{"1y_return_rank", 1},
	{"3y_return_rank", 2},
	{"volatility_rank", 3},
	{"sharpe_rank", 4},
	{"max_drawdown_rank", 5},
}

const tickerColumn = 0

// RankedRow is one fund's row in a ranking table. Metric values that were
// missing or unparseable are NaN individually.
type RankedRow struct {
	Sheet   string
	Ticker  string
	Metrics map[string]float64
}

// LocateRankedRow searches the designated identifier column for ticker,
// preferred sheet first, then every other sheet. Not-found only when no
// sheet contains the ticker.
func LocateRankedRow(wb *Workbook, preferredSheet, ticker string) (*RankedRow, error) {
	want := normalizeKey(ticker)
	for _, t := range wb.SheetsPreferredFirst(preferredSheet) {
		for i := range t.Rows {
			if normalizeKey(t.Cell(i, tickerColumn)) != want {
				continue
			}
			row := &RankedRow{Sheet: t.Name, Ticker: strings.TrimSpace(t.Cell(i, tickerColumn)), Metrics: map[string]float64{}}
			for _, rc := range rankingColumns {
				v, ok := ParseNumber(t.Cell(i, tickerColumn+rc.Offset))
				if !ok {
					v = math.NaN()
				}
				row.Metrics[rc.Name] = v
			}
			return row, nil
		}
	}
	return nil, &ErrNotFound{What: fmt.Sprintf("ticker %q in any ranking sheet", ticker), Candidates: wb.Order}
}
