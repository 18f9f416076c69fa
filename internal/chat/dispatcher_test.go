package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	oa "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfobot/internal/excel"
	"portfobot/internal/finance"
)

type fakeLLM struct {
	responses []*oa.ChatCompletion
	toolLists [][]oa.ChatCompletionToolParam
	err       error
}

func (f *fakeLLM) Complete(_ context.Context, _ []oa.ChatCompletionMessageParamUnion, tools []oa.ChatCompletionToolParam) (*oa.ChatCompletion, error) {
	f.toolLists = append(f.toolLists, tools)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("fake: no scripted response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func textResponse(content string) *oa.ChatCompletion {
	return &oa.ChatCompletion{
		Choices: []oa.ChatCompletionChoice{{Message: oa.ChatCompletionMessage{Content: content}}},
	}
}

func toolResponse(calls ...oa.ChatCompletionMessageToolCall) *oa.ChatCompletion {
	return &oa.ChatCompletion{
		Choices: []oa.ChatCompletionChoice{{Message: oa.ChatCompletionMessage{ToolCalls: calls}}},
	}
}

func call(id, name, args string) oa.ChatCompletionMessageToolCall {
	return oa.ChatCompletionMessageToolCall{
		ID:       id,
		Function: oa.ChatCompletionMessageToolCallFunction{Name: name, Arguments: args},
	}
}

type fakeMarket struct {
	history []finance.Point
	err     error
}

func (f *fakeMarket) History(string, string, string) ([]finance.Point, error) {
	return f.history, f.err
}

func (f *fakeMarket) Quote(symbol string) (*finance.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &finance.Quote{Symbol: symbol, Price: 101.5, ChangePct: 1.5, Currency: "USD", Timestamp: "2024-05-01 16:00"}, nil
}

func (f *fakeMarket) FXRate(pair string) (*finance.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &finance.Quote{Symbol: pair, Price: 1.3456, Timestamp: "2024-05-01 16:00"}, nil
}

type fakeCharts struct{ fail bool }

func (f fakeCharts) Line([]string, []float64, string) ([]byte, error) {
	if f.fail {
		return nil, fmt.Errorf("render failed")
	}
	return []byte("png-line"), nil
}

func (f fakeCharts) Pie([]string, []float64, string) ([]byte, error) {
	if f.fail {
		return nil, fmt.Errorf("render failed")
	}
	return []byte("png-pie"), nil
}

func newTestDispatcher(llm *fakeLLM, market MarketData) *Dispatcher {
	if market == nil {
		market = &fakeMarket{}
	}
	return NewDispatcher(llm, market, fakeCharts{})
}

func TestRunTurnDirectAnswer(t *testing.T) {
	llm := &fakeLLM{responses: []*oa.ChatCompletion{textResponse("Hello! Upload a statement to begin.")}}
	d := newTestDispatcher(llm, nil)
	sess := NewSession(1, nil)

	res, err := d.RunTurn(context.Background(), sess, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! Upload a statement to begin.", res.Reply)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, res.Images)
	// user message + assistant reply
	assert.Len(t, sess.Messages, 2)
}

func TestRunTurnToolBatchIsolation(t *testing.T) {
	llm := &fakeLLM{responses: []*oa.ChatCompletion{
		toolResponse(
			call("c1", toolPortfolioMetrics, `{"series":[100,110,121],"periods_per_year":12}`),
			call("c2", toolStockQuote, `{}`),
			call("c3", "does_not_exist", `{}`),
		),
		textResponse("Here is the analysis."),
	}}
	d := newTestDispatcher(llm, nil)
	sess := NewSession(1, nil)

	res, err := d.RunTurn(context.Background(), sess, "analyze my series and quote AAPL")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 3)

	assert.False(t, res.ToolCalls[0].Err)
	assert.Contains(t, res.ToolCalls[0].Content, "Cumulative return: 21.00%")

	// Missing ticker fails that call only; the batch and synthesis continue.
	assert.True(t, res.ToolCalls[1].Err)
	assert.Contains(t, res.ToolCalls[1].Content, "ticker is required")

	assert.False(t, res.ToolCalls[2].Err)
	assert.Equal(t, "Unknown tool call: does_not_exist", res.ToolCalls[2].Content)

	assert.Equal(t, "Here is the analysis.", res.Reply)
	// user + assistant(tool calls) + 3 tool results + assistant reply
	assert.Len(t, sess.Messages, 6)
}

func TestRunTurnSynthesisHasNoTools(t *testing.T) {
	llm := &fakeLLM{responses: []*oa.ChatCompletion{
		toolResponse(call("c1", toolFXRate, `{"pair":"USD/SGD"}`)),
		textResponse("The rate is 1.3456."),
	}}
	d := newTestDispatcher(llm, nil)

	_, err := d.RunTurn(context.Background(), NewSession(1, nil), "usd/sgd?")
	require.NoError(t, err)
	require.Len(t, llm.toolLists, 2)
	assert.NotEmpty(t, llm.toolLists[0])
	assert.Empty(t, llm.toolLists[1])
}

func TestRunTurnFirstCallFailure(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("boom")}
	d := newTestDispatcher(llm, nil)
	sess := NewSession(1, nil)

	_, err := d.RunTurn(context.Background(), sess, "hi")
	require.Error(t, err)
	// The user message stays so a retry re-sends it.
	assert.Len(t, sess.Messages, 1)
}

func TestRunTurnSynthesisFailureYieldsNotice(t *testing.T) {
	llm := &fakeLLM{responses: []*oa.ChatCompletion{
		toolResponse(call("c1", toolFXRate, `{"pair":"USD/SGD"}`)),
	}}
	d := newTestDispatcher(llm, nil)
	sess := NewSession(1, nil)

	res, err := d.RunTurn(context.Background(), sess, "usd/sgd?")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "could not compose a reply")
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Err)
}

func TestDrawdownFallbackToCachedHistory(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)
	sess.LastSeries = []finance.Point{
		{Date: "2024-01-01", Close: 100},
		{Date: "2024-01-02", Close: 50},
		{Date: "2024-01-03", Close: 100},
	}

	content, img, failed := d.execute(sess, toolMaxDrawdown, `{}`)
	assert.False(t, failed)
	assert.Nil(t, img)
	assert.Contains(t, content, "-50.00%")
	assert.Contains(t, content, "recently fetched")
}

func TestDrawdownFallbackToFetch(t *testing.T) {
	market := &fakeMarket{history: []finance.Point{
		{Date: "2024-01-01", Close: 10},
		{Date: "2024-01-02", Close: 8},
		{Date: "2024-01-03", Close: 9},
	}}
	d := newTestDispatcher(&fakeLLM{}, market)
	sess := NewSession(1, nil)

	content, _, failed := d.execute(sess, toolMaxDrawdown, `{"ticker":"spy","period":"1y"}`)
	assert.False(t, failed)
	assert.Contains(t, content, "-20.00%")
	assert.Contains(t, content, "SPY")
	// Fetched history is cached for the next question.
	assert.Len(t, sess.LastSeries, 3)
}

func TestDrawdownNoSource(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	content, _, failed := d.execute(NewSession(1, nil), toolMaxDrawdown, `{}`)
	assert.True(t, failed)
	assert.Contains(t, content, "no series provided")
}

func TestStockHistoryCachesSeries(t *testing.T) {
	market := &fakeMarket{history: []finance.Point{
		{Date: "2024-01-01", Close: 10},
		{Date: "2024-01-02", Close: 12},
	}}
	d := newTestDispatcher(&fakeLLM{}, market)
	sess := NewSession(1, nil)

	content, _, failed := d.execute(sess, toolStockHistory, `{"ticker":"aapl","period":"1mo"}`)
	assert.False(t, failed)
	assert.Contains(t, content, "AAPL")
	assert.Contains(t, content, "2024-01-02")
	assert.Len(t, sess.LastSeries, 2)
}

func TestChartToolProducesAttachment(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)

	content, img, failed := d.execute(sess, toolPieChart, `{"labels":["Equity","Bonds"],"values":[70,30],"title":"Asset Allocation"}`)
	assert.False(t, failed)
	require.NotNil(t, img)
	assert.Equal(t, "Asset_Allocation.png", img.Name)
	assert.Equal(t, []byte("png-pie"), img.PNG)
	assert.Contains(t, content, "rendered")
}

func TestChartToolLengthMismatch(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	content, img, failed := d.execute(NewSession(1, nil), toolLineChart, `{"dates":["2024-01"],"values":[1,2]}`)
	assert.True(t, failed)
	assert.Nil(t, img)
	assert.Contains(t, content, "same length")
}

func testWorkbook() *excel.Workbook {
	main := &excel.Table{
		Name:    "Main Funds",
		Headers: []string{"Date", "Alpha Fund", "Beta Fund"},
		Rows: [][]string{
			{"2024-01-31", "1.2", "0.5"},
			{"2024-02-29", "-0.4", "0.1"},
			{"2024-03-31", "2.1", "n/a"},
		},
	}
	ranks := &excel.Table{
		Name:    "Rankings",
		Headers: []string{"Ticker", "R1", "R3", "V", "S", "D"},
		Rows: [][]string{
			{"ALPHA", "1", "2", "3", "4", "5"},
		},
	}
	return &excel.Workbook{
		FileName: "funds.xlsx",
		Order:    []string{"Main Funds", "Rankings"},
		Sheets:   map[string]*excel.Table{"Main Funds": main, "Rankings": ranks},
	}
}

func TestExcelToolsRequireWorkbook(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)
	for _, name := range []string{toolExcelData, toolFundSeries, toolFundRankings, toolFundMetrics} {
		content, _, failed := d.execute(sess, name, `{"sheet":"x","fund_name":"y","ticker":"z"}`)
		assert.True(t, failed, name)
		assert.Contains(t, content, "no Excel workbook", name)
	}
}

func TestGetExcelDataRowsAndDefaults(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)
	sess.Workbook = testWorkbook()

	content, _, failed := d.execute(sess, toolExcelData, `{"sheet":"main funds","rows":2}`)
	assert.False(t, failed)
	assert.Contains(t, content, `"Alpha Fund":"1.2"`)
	assert.Contains(t, content, "first 2 of 3 rows")
	assert.NotContains(t, content, "2024-03-31")
}

func TestFundSeriesAndNotFoundCandidates(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)
	sess.Workbook = testWorkbook()

	content, _, failed := d.execute(sess, toolFundSeries, `{"sheet":"Main Funds","fund_name":"alpha fund"}`)
	assert.False(t, failed)
	assert.Contains(t, content, "[1.2,-0.4,2.1]")

	content, _, failed = d.execute(sess, toolFundSeries, `{"sheet":"Main Funds","fund_name":"Gamma Fund"}`)
	assert.True(t, failed)
	// The error names the real columns so the model can retry.
	assert.Contains(t, content, "Alpha Fund")
	assert.Contains(t, content, "Beta Fund")
}

func TestFundRankingsMapsMissingToNull(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)
	sess.Workbook = testWorkbook()

	content, _, failed := d.execute(sess, toolFundRankings, `{"ticker":"alpha"}`)
	assert.False(t, failed)
	assert.Contains(t, content, `"1y_return_rank":1`)
	assert.Contains(t, content, `"sheet":"Rankings"`)
}

func TestFundMetricsSearchesAllSheets(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	sess := NewSession(1, nil)
	sess.Workbook = testWorkbook()

	// "Quarterly" does not exist; the preferred-first scan still finds the
	// fund in Main Funds.
	content, _, failed := d.execute(sess, toolFundMetrics, `{"fund_name":"Alpha Fund","sheet":"Quarterly","returns_are_percent":true}`)
	assert.False(t, failed)
	assert.Contains(t, content, `sheet "Main Funds"`)
	assert.Contains(t, content, "Cumulative return:")
}

func TestPortfolioMetricsUndefinedResult(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	content, _, failed := d.execute(NewSession(1, nil), toolPortfolioMetrics, `{"series":[]}`)
	assert.False(t, failed)
	assert.Contains(t, content, "undefined")
	assert.Contains(t, content, `"max_drawdown":null`)
}

func TestYearlyPerformanceTool(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	content, _, failed := d.execute(NewSession(1, nil), toolYearlyPerformance,
		`{"dates":["2020-06-30","2021-06-30"],"returns":[0.1,0.2]}`)
	assert.False(t, failed)
	assert.Contains(t, content, "2020: 10.00%")
	assert.Contains(t, content, "2021: 20.00%")
}

func TestYearlyPerformanceLengthMismatchIsToolFailure(t *testing.T) {
	d := newTestDispatcher(&fakeLLM{}, nil)
	content, _, failed := d.execute(NewSession(1, nil), toolYearlyPerformance,
		`{"dates":["2020-06-30","2020-09-30","2020-12-31"],"returns":[0.1,0.2]}`)
	assert.True(t, failed)
	assert.Contains(t, content, "same length")
	assert.Contains(t, content, "3 and 2")
}

func TestToolResultTruncation(t *testing.T) {
	big := make([]finance.Point, 2000)
	for i := range big {
		big[i] = finance.Point{Date: fmt.Sprintf("2020-01-%02d", i%28+1), Close: float64(i)}
	}
	d := newTestDispatcher(&fakeLLM{responses: []*oa.ChatCompletion{
		toolResponse(call("c1", toolStockHistory, `{"ticker":"spy"}`)),
		textResponse("ok"),
	}}, &fakeMarket{history: big})
	sess := NewSession(1, nil)

	res, err := d.RunTurn(context.Background(), sess, "history")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.LessOrEqual(t, len(res.ToolCalls[0].Content), maxToolResultLen+len("\n... (truncated)"))
	assert.True(t, strings.HasSuffix(res.ToolCalls[0].Content, "(truncated)"))
}
