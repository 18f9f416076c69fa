package chat

import (
	oa "github.com/openai/openai-go"
)

// Tool names. Each name maps to exactly one handler in dispatcher.go; the
// wire names follow the original deployment so fine-tuned behavior carries
// over.
const (
	toolPortfolioMetrics  = "calculate_portfolio_metrics"
	toolMetricsFromExcel  = "calculate_portfolio_metrics_from_excel"
	toolYearlyPerformance = "calculate_yearly_performance"
	toolMaxDrawdown       = "calculate_max_drawdown"
	toolFundSeries        = "get_fund_series"
	toolFundValue         = "get_fund_value"
	toolFundRankings      = "get_fund_rankings"
	toolFundMetrics       = "calculate_fund_metrics"
	toolExcelData         = "get_excel_data"
	toolStockQuote        = "get_stock_quote"
	toolStockHistory      = "get_stock_history"
	toolFXRate            = "get_fx_rate"
	toolPieChart          = "create_pie_chart"
	toolLineChart         = "create_line_chart"
)

func numberArray(desc string) map[string]any {
	p := map[string]any{"type": "array", "items": map[string]any{"type": "number"}}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func stringArray(desc string) map[string]any {
	p := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func str(desc string) map[string]any {
	p := map[string]any{"type": "string"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func boolean(desc string) map[string]any {
	p := map[string]any{"type": "boolean"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func tool(name, description string, properties map[string]any, required ...string) oa.ChatCompletionToolParam {
	if required == nil {
		required = []string{}
	}
	return oa.ChatCompletionToolParam{
		Function: oa.FunctionDefinitionParam{
			Name:        name,
			Description: oa.String(description),
			Parameters: oa.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// toolParams is the canonical tool list passed on the first LLM call of a
// turn. The synthesis call passes no tools at all.
func toolParams() []oa.ChatCompletionToolParam {
	return []oa.ChatCompletionToolParam{
		tool(toolPortfolioMetrics,
			"Calculate cumulative and annualized return, annualized volatility and maximum drawdown from a price or return series. Set 'returns_are_percent' if the return values are in percent form.",
			map[string]any{
				"series":              numberArray("Price levels or period returns."),
				"dates":               stringArray("Optional dates aligned with the series, used to infer sampling frequency."),
				"is_prices":           boolean("True when the series holds price levels (default true)."),
				"periods_per_year":    map[string]any{"type": "integer", "description": "1 yearly, 12 monthly, 252 trading-daily. Inferred when omitted."},
				"returns_are_percent": boolean("True when return values are in percent form."),
			},
			"series"),
		tool(toolMetricsFromExcel,
			"Calculate portfolio metrics from the first two columns of an uploaded Excel sheet. The first column must contain dates.",
			map[string]any{
				"sheet":               str("Sheet name."),
				"is_prices":           boolean("True when the value column holds price levels (default false)."),
				"periods_per_year":    map[string]any{"type": "integer"},
				"returns_are_percent": boolean(""),
			},
			"sheet"),
		tool(toolYearlyPerformance,
			"Aggregate dated period returns into compounded calendar-year returns. Dates and returns must pair up one-to-one.",
			map[string]any{
				"dates":               stringArray(""),
				"returns":             numberArray(""),
				"returns_are_percent": boolean(""),
			},
			"dates", "returns"),
		tool(toolMaxDrawdown,
			"Return the maximum peak-to-trough drawdown (as a negative decimal, e.g. -0.25) from a series of price or return values. Without a series the most recently fetched price history is used, or a fresh fetch when a ticker is given.",
			map[string]any{
				"series":    numberArray(""),
				"is_prices": boolean("Default true."),
				"ticker":    str("Ticker to fetch when no series is available."),
				"period":    str("Fetch period, e.g. 1y."),
				"interval":  str("Fetch interval, e.g. 1d."),
			}),
		tool(toolFundSeries,
			"Return numeric values from the column in the specified Excel sheet whose column header or first-row label matches the provided fund name.",
			map[string]any{
				"sheet":     str("Sheet name."),
				"fund_name": str("Fund name or ticker."),
			},
			"sheet", "fund_name"),
		tool(toolFundValue,
			"Return a single value for a fund at a given period from the specified Excel sheet. The period may be a date (matched by month and year) or a row label.",
			map[string]any{
				"sheet":     str("Sheet name."),
				"fund_name": str("Fund name or ticker."),
				"period":    str("Period label, e.g. 'Mar 2024' or 'Q1'."),
			},
			"sheet", "fund_name", "period"),
		tool(toolFundRankings,
			"Look up a fund ticker in the ranking tables and return its ranking dimensions (1y/3y return, volatility, Sharpe, max drawdown ranks).",
			map[string]any{
				"ticker": str("Fund ticker or identifier."),
				"sheet":  str("Preferred ranking sheet (optional)."),
			},
			"ticker"),
		tool(toolFundMetrics,
			"Find a fund in the uploaded workbook and calculate its portfolio metrics in one step. Combines fund lookup and metrics calculation.",
			map[string]any{
				"fund_name":           str("Name of the fund to analyze."),
				"sheet":               str("Sheet to try first (optional)."),
				"is_prices":           boolean("True when the fund column holds price levels (default false)."),
				"returns_are_percent": boolean(""),
			},
			"fund_name"),
		tool(toolExcelData,
			"Return a JSON array of rows from an uploaded Excel sheet. Use this to inspect tabular data provided by the user.",
			map[string]any{
				"sheet": str("Sheet name."),
				"rows":  map[string]any{"type": "integer", "description": "Row count, default 5."},
			},
			"sheet"),
		tool(toolStockQuote,
			"Return the latest price and percent change for a single equity ticker.",
			map[string]any{"ticker": str("Ticker symbol, e.g. 'AAPL'.")},
			"ticker"),
		tool(toolStockHistory,
			"Fetch historical prices for a ticker as a list of (date, price) pairs so specific dates can be quoted. The result is cached for later drawdown questions.",
			map[string]any{
				"ticker":   str(""),
				"period":   map[string]any{"type": "string", "enum": []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}},
				"interval": map[string]any{"type": "string", "enum": []string{"1m", "5m", "15m", "30m", "60m", "1d", "1wk", "1mo"}},
			},
			"ticker"),
		tool(toolFXRate,
			"Return the latest FX spot rate for a currency pair like 'USD/SGD'.",
			map[string]any{"pair": str("Currency pair, e.g. 'USD/SGD'.")},
			"pair"),
		tool(toolPieChart,
			"Create a pie chart from categorical labels and numeric values.",
			map[string]any{
				"labels": stringArray(""),
				"values": numberArray(""),
				"title":  str(""),
			},
			"labels", "values"),
		tool(toolLineChart,
			"Create a line chart from dates and numeric values.",
			map[string]any{
				"dates":  stringArray(""),
				"values": numberArray(""),
				"title":  str(""),
			},
			"dates", "values"),
	}
}
