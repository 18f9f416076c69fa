package chat

import (
	"context"

	oa "github.com/openai/openai-go"

	"portfobot/internal/finance"
)

// Completer is the LLM collaborator. Implemented by the openai wrapper;
// faked in tests.
type Completer interface {
	Complete(ctx context.Context, messages []oa.ChatCompletionMessageParamUnion, tools []oa.ChatCompletionToolParam) (*oa.ChatCompletion, error)
}

// MarketData is the live market-data collaborator.
type MarketData interface {
	History(symbol, period, interval string) ([]finance.Point, error)
	Quote(symbol string) (*finance.Quote, error)
	FXRate(pair string) (*finance.Quote, error)
}

// ChartRenderer renders chart tool calls to PNG bytes.
type ChartRenderer interface {
	Line(labels []string, values []float64, title string) ([]byte, error)
	Pie(labels []string, values []float64, title string) ([]byte, error)
}

// LiveMarket routes market-data calls to the Yahoo client.
type LiveMarket struct{}

func (LiveMarket) History(symbol, period, interval string) ([]finance.Point, error) {
	return finance.FetchHistory(symbol, period, interval)
}

func (LiveMarket) Quote(symbol string) (*finance.Quote, error) { return finance.GetQuote(symbol) }

func (LiveMarket) FXRate(pair string) (*finance.Quote, error) { return finance.GetFXRate(pair) }

// PNGCharts routes chart rendering to go-charts.
type PNGCharts struct{}

func (PNGCharts) Line(labels []string, values []float64, title string) ([]byte, error) {
	return finance.RenderLine(labels, values, title)
}

func (PNGCharts) Pie(labels []string, values []float64, title string) ([]byte, error) {
	return finance.RenderPie(labels, values, title)
}
