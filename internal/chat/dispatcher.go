package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	oa "github.com/openai/openai-go"

	"portfobot/internal/analytics"
	"portfobot/internal/excel"
	"portfobot/internal/pdfs"
)

// maxToolResultLen caps the text handed back to the model per tool call so
// one oversized sheet cannot blow the context window.
const maxToolResultLen = 8000

const defaultTopK = 4

// Dispatcher runs conversation turns: LLM call, tool execution, synthesis.
type Dispatcher struct {
	LLM    Completer
	Market MarketData
	Charts ChartRenderer
	TopK   int
}

func NewDispatcher(llm Completer, market MarketData, charts ChartRenderer) *Dispatcher {
	return &Dispatcher{LLM: llm, Market: market, Charts: charts, TopK: defaultTopK}
}

// Attachment is a rendered chart produced during a turn.
type Attachment struct {
	Name string
	PNG  []byte
}

// ToolOutcome records one executed tool call for logging and usage stats.
type ToolOutcome struct {
	Name    string
	CallID  string
	Content string
	Err     bool
}

// TurnResult is everything one user turn produced.
type TurnResult struct {
	Reply     string
	Images    []Attachment
	ToolCalls []ToolOutcome
}

// RunTurn executes one user turn against a locked session. The caller holds
// the session lock. The system prompt (with fresh retrieval context) is
// prepended per call and never stored in the session log, so the log holds
// only user, assistant and tool messages.
func (d *Dispatcher) RunTurn(ctx context.Context, sess *Session, userText string) (*TurnResult, error) {
	sess.Messages = append(sess.Messages, oa.UserMessage(userText))

	contextBlock := d.retrieve(ctx, sess, userText)
	first := append(
		[]oa.ChatCompletionMessageParamUnion{oa.SystemMessage(systemPrompt(contextBlock))},
		sess.Messages...,
	)

	resp, err := d.LLM.Complete(ctx, first, toolParams())
	if err != nil {
		return nil, err
	}
	choice := resp.Choices[0]

	if len(choice.Message.ToolCalls) == 0 {
		reply := choice.Message.Content
		sess.Messages = append(sess.Messages, oa.AssistantMessage(reply))
		return &TurnResult{Reply: reply}, nil
	}

	result := &TurnResult{}
	sess.Messages = append(sess.Messages, choice.Message.ToParam())
	for _, tc := range choice.Message.ToolCalls {
		content, img, failed := d.execute(sess, tc.Function.Name, tc.Function.Arguments)
		if len(content) > maxToolResultLen {
			content = content[:maxToolResultLen] + "\n... (truncated)"
		}
		if img != nil {
			result.Images = append(result.Images, *img)
		}
		result.ToolCalls = append(result.ToolCalls, ToolOutcome{
			Name:    tc.Function.Name,
			CallID:  tc.ID,
			Content: content,
			Err:     failed,
		})
		sess.Messages = append(sess.Messages, oa.ToolMessage(content, tc.ID))
	}

	// Synthesis call: same log, no tools, so the model must answer in prose.
	synth := append(
		[]oa.ChatCompletionMessageParamUnion{oa.SystemMessage(systemPrompt(""))},
		sess.Messages...,
	)
	final, err := d.LLM.Complete(ctx, synth, nil)
	if err != nil {
		notice := "I ran the requested analysis but could not compose a reply. Please try again."
		sess.Messages = append(sess.Messages, oa.AssistantMessage(notice))
		result.Reply = notice
		log.Printf("chat: synthesis failed for chat %d: %v", sess.ChatID, err)
		return result, nil
	}
	result.Reply = final.Choices[0].Message.Content
	sess.Messages = append(sess.Messages, oa.AssistantMessage(result.Reply))
	return result, nil
}

func (d *Dispatcher) retrieve(ctx context.Context, sess *Session, query string) string {
	if sess.Index == nil {
		return ""
	}
	passages, err := sess.Index.Search(ctx, query, d.topK())
	if err != nil {
		log.Printf("chat: retrieval failed for chat %d: %v", sess.ChatID, err)
		return ""
	}
	return pdfs.FormatContext(passages)
}

func (d *Dispatcher) topK() int {
	if d.TopK > 0 {
		return d.TopK
	}
	return defaultTopK
}

// Per-tool argument shapes. Booleans whose default is true are pointers so
// an omitted field is distinguishable from an explicit false.
type metricsArgs struct {
	Series            []float64 `json:"series"`
	Dates             []string  `json:"dates"`
	IsPrices          *bool     `json:"is_prices"`
	PeriodsPerYear    int       `json:"periods_per_year"`
	ReturnsArePercent bool      `json:"returns_are_percent"`
}

type excelMetricsArgs struct {
	Sheet             string `json:"sheet"`
	IsPrices          bool   `json:"is_prices"`
	PeriodsPerYear    int    `json:"periods_per_year"`
	ReturnsArePercent bool   `json:"returns_are_percent"`
}

type yearlyArgs struct {
	Dates             []string  `json:"dates"`
	Returns           []float64 `json:"returns"`
	ReturnsArePercent bool      `json:"returns_are_percent"`
}

type drawdownArgs struct {
	Series   []float64 `json:"series"`
	IsPrices *bool     `json:"is_prices"`
	Ticker   string    `json:"ticker"`
	Period   string    `json:"period"`
	Interval string    `json:"interval"`
}

type fundLookupArgs struct {
	Sheet    string `json:"sheet"`
	FundName string `json:"fund_name"`
	Period   string `json:"period"`
}

type rankingArgs struct {
	Ticker string `json:"ticker"`
	Sheet  string `json:"sheet"`
}

type fundMetricsArgs struct {
	FundName          string `json:"fund_name"`
	Sheet             string `json:"sheet"`
	IsPrices          bool   `json:"is_prices"`
	ReturnsArePercent bool   `json:"returns_are_percent"`
}

type excelDataArgs struct {
	Sheet string `json:"sheet"`
	Rows  int    `json:"rows"`
}

type tickerArgs struct {
	Ticker   string `json:"ticker"`
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

type fxArgs struct {
	Pair string `json:"pair"`
}

type chartArgs struct {
	Labels []string  `json:"labels"`
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
	Title  string    `json:"title"`
}

// execute runs one tool call in isolation: any failure, including a panic,
// becomes a textual result for the model rather than an aborted turn.
func (d *Dispatcher) execute(sess *Session, name, rawArgs string) (content string, img *Attachment, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chat: tool %s panicked: %v", name, r)
			content = fmt.Sprintf("Tool %s failed: internal error", name)
			img = nil
			failed = true
		}
	}()

	content, img, err := d.run(sess, name, rawArgs)
	if err != nil {
		log.Printf("chat: tool %s error: %v", name, err)
		return fmt.Sprintf("Tool %s failed: %v", name, err), nil, true
	}
	return content, img, false
}

func (d *Dispatcher) run(sess *Session, name, rawArgs string) (string, *Attachment, error) {
	switch name {
	case toolPortfolioMetrics:
		var a metricsArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		isPrices := boolOr(a.IsPrices, true)
		m := analytics.ComputeMetrics(a.Series, isPrices, a.PeriodsPerYear, a.ReturnsArePercent, analytics.ParseDates(a.Dates))
		return formatMetrics(m), nil, nil

	case toolMetricsFromExcel:
		var a excelMetricsArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		t, err := d.sheet(sess, a.Sheet)
		if err != nil {
			return "", nil, err
		}
		dates := analytics.ParseDates(t.Column(0))
		values := make([]float64, 0, len(t.Rows))
		for i := range t.Rows {
			if v, ok := excel.ParseNumber(t.Cell(i, 1)); ok {
				values = append(values, v)
			}
		}
		m := analytics.ComputeMetrics(values, a.IsPrices, a.PeriodsPerYear, a.ReturnsArePercent, dates)
		return formatMetrics(m), nil, nil

	case toolYearlyPerformance:
		var a yearlyArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		years, err := analytics.YearlyPerformance(a.Dates, a.Returns, a.ReturnsArePercent)
		if err != nil {
			return "", nil, err
		}
		if len(years) == 0 {
			return "No usable (date, return) pairs were provided.", nil, nil
		}
		var sb strings.Builder
		sb.WriteString("Yearly performance:\n")
		for _, y := range years {
			fmt.Fprintf(&sb, "%d: %.2f%%\n", y.Year, y.Return*100)
		}
		return sb.String(), nil, nil

	case toolMaxDrawdown:
		var a drawdownArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return d.maxDrawdown(sess, a)

	case toolFundSeries:
		var a fundLookupArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		t, err := d.sheet(sess, a.Sheet)
		if err != nil {
			return "", nil, err
		}
		series, err := excel.LocateSeries(t, a.FundName)
		if err != nil {
			return "", nil, err
		}
		if len(series) == 0 {
			return fmt.Sprintf("Fund %q matched in sheet %q but its column holds no numeric values.", a.FundName, t.Name), nil, nil
		}
		b, _ := json.Marshal(series)
		return fmt.Sprintf("Series for %q in sheet %q (%d values): %s", a.FundName, t.Name, len(series), b), nil, nil

	case toolFundValue:
		var a fundLookupArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		t, err := d.sheet(sess, a.Sheet)
		if err != nil {
			return "", nil, err
		}
		v, err := excel.LocatePoint(t, a.FundName, a.Period)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s at %s: %g", a.FundName, a.Period, v), nil, nil

	case toolFundRankings:
		var a rankingArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if sess.Workbook == nil {
			return "", nil, fmt.Errorf("no Excel workbook has been uploaded")
		}
		if strings.TrimSpace(a.Ticker) == "" {
			return "", nil, fmt.Errorf("ticker is required")
		}
		sheet := a.Sheet
		if sheet == "" {
			sheet = "Rankings"
		}
		row, err := excel.LocateRankedRow(sess.Workbook, sheet, a.Ticker)
		if err != nil {
			return "", nil, err
		}
		b, err := json.Marshal(map[string]any{
			"ticker":  row.Ticker,
			"sheet":   row.Sheet,
			"metrics": nanToNull(row.Metrics),
		})
		if err != nil {
			return "", nil, err
		}
		return string(b), nil, nil

	case toolFundMetrics:
		var a fundMetricsArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return d.fundMetrics(sess, a)

	case toolExcelData:
		var a excelDataArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		t, err := d.sheet(sess, a.Sheet)
		if err != nil {
			return "", nil, err
		}
		rows := a.Rows
		if rows <= 0 {
			rows = 5
		}
		if rows > len(t.Rows) {
			rows = len(t.Rows)
		}
		out := make([]map[string]string, 0, rows)
		for i := 0; i < rows; i++ {
			rec := map[string]string{}
			for j, h := range t.Headers {
				key := strings.TrimSpace(h)
				if key == "" {
					key = fmt.Sprintf("col%d", j)
				}
				rec[key] = t.Cell(i, j)
			}
			out = append(out, rec)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Sheet %q, first %d of %d rows: %s", t.Name, rows, len(t.Rows), b), nil, nil

	case toolStockQuote:
		var a tickerArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(a.Ticker) == "" {
			return "", nil, fmt.Errorf("ticker is required")
		}
		q, err := d.Market.Quote(a.Ticker)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s: %.4f %s (%+.2f%%) as of %s", q.Symbol, q.Price, q.Currency, q.ChangePct, q.Timestamp), nil, nil

	case toolStockHistory:
		var a tickerArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(a.Ticker) == "" {
			return "", nil, fmt.Errorf("ticker is required")
		}
		points, err := d.Market.History(a.Ticker, a.Period, a.Interval)
		if err != nil {
			return "", nil, err
		}
		if len(points) == 0 {
			return fmt.Sprintf("No price history returned for %s.", a.Ticker), nil, nil
		}
		sess.LastSeries = points
		b, err := json.Marshal(points)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("History for %s (%d points): %s", strings.ToUpper(a.Ticker), len(points), b), nil, nil

	case toolFXRate:
		var a fxArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(a.Pair) == "" {
			return "", nil, fmt.Errorf("pair is required")
		}
		q, err := d.Market.FXRate(a.Pair)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s: %.6f as of %s", strings.ToUpper(a.Pair), q.Price, q.Timestamp), nil, nil

	case toolPieChart:
		var a chartArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if len(a.Labels) == 0 || len(a.Labels) != len(a.Values) {
			return "", nil, fmt.Errorf("labels and values must be non-empty and the same length")
		}
		png, err := d.Charts.Pie(a.Labels, a.Values, a.Title)
		if err != nil {
			return "", nil, err
		}
		return "Pie chart rendered and sent to the user.", &Attachment{Name: chartName(a.Title, "pie"), PNG: png}, nil

	case toolLineChart:
		var a chartArgs
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if len(a.Dates) == 0 || len(a.Dates) != len(a.Values) {
			return "", nil, fmt.Errorf("dates and values must be non-empty and the same length")
		}
		png, err := d.Charts.Line(a.Dates, a.Values, a.Title)
		if err != nil {
			return "", nil, err
		}
		return "Line chart rendered and sent to the user.", &Attachment{Name: chartName(a.Title, "line"), PNG: png}, nil

	default:
		return fmt.Sprintf("Unknown tool call: %s", name), nil, nil
	}
}

// maxDrawdown resolves the series in fallback order: explicit argument, the
// session's cached history, a fresh fetch by ticker.
func (d *Dispatcher) maxDrawdown(sess *Session, a drawdownArgs) (string, *Attachment, error) {
	series := a.Series
	isPrices := boolOr(a.IsPrices, true)
	source := "provided series"

	if len(series) == 0 {
		if cached := sess.lastCloses(); len(cached) > 0 {
			series = cached
			isPrices = true
			source = "most recently fetched price history"
		} else if strings.TrimSpace(a.Ticker) != "" {
			points, err := d.Market.History(a.Ticker, a.Period, a.Interval)
			if err != nil {
				return "", nil, err
			}
			sess.LastSeries = points
			series = sess.lastCloses()
			isPrices = true
			source = fmt.Sprintf("fetched history for %s", strings.ToUpper(a.Ticker))
		} else {
			return "", nil, fmt.Errorf("no series provided, nothing cached, and no ticker to fetch")
		}
	}

	if len(series) < 2 {
		return fmt.Sprintf("Insufficient data for a drawdown (%d values from %s).", len(series), source), nil, nil
	}
	mdd := analytics.MaxDrawdown(series, isPrices)
	if math.IsNaN(mdd) {
		return fmt.Sprintf("Maximum drawdown is undefined for the %s.", source), nil, nil
	}
	return fmt.Sprintf("Maximum drawdown from %s: %.2f%% (%d observations).", source, mdd*100, len(series)), nil, nil
}

// fundMetrics tries the requested sheet (default "Main Funds") first, then
// every other sheet, so a fund can be found without knowing its sheet.
func (d *Dispatcher) fundMetrics(sess *Session, a fundMetricsArgs) (string, *Attachment, error) {
	if sess.Workbook == nil {
		return "", nil, fmt.Errorf("no Excel workbook has been uploaded")
	}
	if strings.TrimSpace(a.FundName) == "" {
		return "", nil, fmt.Errorf("fund_name is required")
	}
	sheet := a.Sheet
	if sheet == "" {
		sheet = "Main Funds"
	}

	var lastErr error
	for _, t := range sess.Workbook.SheetsPreferredFirst(sheet) {
		series, err := excel.LocateSeries(t, a.FundName)
		if err != nil {
			lastErr = err
			continue
		}
		dates := analytics.ParseDates(t.Column(0))
		m := analytics.ComputeMetrics(series, a.IsPrices, 0, a.ReturnsArePercent, dates)
		return fmt.Sprintf("Metrics for %q (sheet %q):\n%s", a.FundName, t.Name, formatMetrics(m)), nil, nil
	}
	if lastErr != nil {
		return "", nil, lastErr
	}
	return "", nil, fmt.Errorf("workbook has no sheets")
}

func (d *Dispatcher) sheet(sess *Session, name string) (*excel.Table, error) {
	if sess.Workbook == nil {
		return nil, fmt.Errorf("no Excel workbook has been uploaded")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("sheet is required; available sheets: %s", strings.Join(sess.Workbook.Order, ", "))
	}
	return sess.Workbook.Sheet(name)
}

// formatMetrics renders a metrics result as text plus a JSON block with NaN
// mapped to null, since NaN is not valid JSON.
func formatMetrics(m analytics.Metrics) string {
	if m.Undefined() {
		return `The series has too few usable observations; every metric is undefined. {"cumulative_return":null,"annualized_return":null,"annualized_volatility":null,"max_drawdown":null}`
	}
	b, _ := json.Marshal(map[string]any{
		"cumulative_return":     nullableFloat(m.CumulativeReturn),
		"annualized_return":     nullableFloat(m.AnnualizedReturn),
		"annualized_volatility": nullableFloat(m.AnnualizedVolatility),
		"max_drawdown":          nullableFloat(m.MaxDrawdown),
	})
	return fmt.Sprintf("Cumulative return: %s\nAnnualized return: %s\nAnnualized volatility: %s\nMax drawdown: %s\n%s",
		pct(m.CumulativeReturn), pct(m.AnnualizedReturn), pct(m.AnnualizedVolatility), pct(m.MaxDrawdown), b)
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "undefined"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func nullableFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nanToNull(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = nullableFloat(v)
	}
	return out
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func chartName(title, kind string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return kind + ".png"
	}
	t = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, t)
	return t + ".png"
}
