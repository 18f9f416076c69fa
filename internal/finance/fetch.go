package finance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var historyPeriods = map[string]string{
	"1d": "1d", "5d": "5d", "1mo": "1mo", "3mo": "3mo", "6mo": "6mo",
	"1y": "1y", "2y": "2y", "5y": "5y", "10y": "10y", "ytd": "ytd", "max": "max",
}

var historyIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true, "60m": true,
	"1d": true, "1wk": true, "1mo": true,
}

// NormalizePeriod maps a caller-supplied period to a Yahoo range parameter,
// defaulting to 1y.
func NormalizePeriod(period string) string {
	if p, ok := historyPeriods[strings.ToLower(strings.TrimSpace(period))]; ok {
		return p
	}
	return "1y"
}

// NormalizeInterval defaults to daily bars.
func NormalizeInterval(interval string) string {
	iv := strings.ToLower(strings.TrimSpace(interval))
	if historyIntervals[iv] {
		return iv
	}
	return "1d"
}

// FetchHistory fetches dated close prices for a ticker. Timestamps are
// formatted as dates for daily and coarser bars, date-time for intraday.
// Negative closes and IQR outliers are filtered out, series stays aligned.
func FetchHistory(symbol, period, interval string) ([]Point, error) {
	interval = NormalizeInterval(interval)
	ts, cl, _, err := fetchSeries(symbol, interval, NormalizePeriod(period))
	if err != nil {
		return nil, err
	}
	ts, cl = filterNonNegative(ts, cl)
	ts, cl = filterIQR(ts, cl, 1.5, 20)

	layout := "2006-01-02"
	if strings.HasSuffix(interval, "m") && interval != "1mo" {
		layout = "2006-01-02 15:04"
	}
	out := make([]Point, 0, len(ts))
	for i := range ts {
		out = append(out, Point{Date: time.Unix(ts[i], 0).UTC().Format(layout), Close: cl[i]})
	}
	if len(out) == 0 {
		return nil, errors.New("no data")
	}
	return out, nil
}

// GetQuote returns the latest price snapshot for a ticker using the chart
// meta block (regular market price and previous close).
func GetQuote(symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	_, _, meta, err := fetchSeries(symbol, "1d", "5d")
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}
	prev := meta.ChartPreviousClose
	if meta.PreviousClose != 0 {
		prev = meta.PreviousClose
	}
	q := &Quote{
		Symbol:    symbol,
		Price:     meta.RegularMarketPrice,
		Currency:  meta.Currency,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
	if prev != 0 {
		q.ChangePct = (meta.RegularMarketPrice/prev - 1) * 100
	}
	return q, nil
}

// GetFXRate resolves a currency pair like "USD/SGD" via the Yahoo FX symbol
// (USDSGD=X) and returns its latest quote.
func GetFXRate(pair string) (*Quote, error) {
	sym, err := FXSymbol(pair)
	if err != nil {
		return nil, err
	}
	q, err := GetQuote(sym)
	if err != nil {
		return nil, err
	}
	q.Symbol = strings.ToUpper(strings.TrimSpace(pair))
	return q, nil
}

// FXSymbol converts "USD/SGD" (or "USDSGD") into Yahoo's "USDSGD=X".
func FXSymbol(pair string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	p = strings.NewReplacer("/", "", "-", "", " ", "").Replace(p)
	if strings.HasSuffix(p, "=X") {
		p = strings.TrimSuffix(p, "=X")
	}
	if len(p) != 6 {
		return "", fmt.Errorf("invalid currency pair %q, expected a form like USD/SGD", pair)
	}
	return p + "=X", nil
}

type chartMeta struct {
	Symbol             string
	Currency           string
	RegularMarketPrice float64
	PreviousClose      float64
	ChartPreviousClose float64
}

// fetchSeries fetches timestamps and close prices for a single symbol using
// the given interval and range, rotating Yahoo hosts with backoff and
// falling back to the spark endpoint when the chart endpoint keeps failing.
func fetchSeries(symbol, interval, rangeParam string) ([]int64, []float64, *chartMeta, error) {
	hosts := []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"}
	backoffs := []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	var yc yahooChartResp
	var lastErr error
	for attempt := 0; attempt < len(backoffs)+1; attempt++ {
		for _, host := range hosts {
			url := fmt.Sprintf("https://%s/v8/finance/chart/%s?range=%s&interval=%s&includePrePost=true&events=div,splits",
				host, symbol, rangeParam, interval)
			body, err := fetchYahooBody(url, host, symbol)
			if err != nil {
				lastErr = err
				continue
			}
			if err := json.Unmarshal(body, &yc); err != nil {
				lastErr = fmt.Errorf("failed to parse yahoo json: %v; body: %s", err, preview(body))
				continue
			}
			lastErr = nil
			break
		}
		if lastErr == nil {
			break
		}
		if attempt < len(backoffs) {
			time.Sleep(backoffs[attempt])
		}
	}

	if lastErr != nil {
		// Spark fallback
		var sp yahooSparkResp
		for attempt := 0; attempt < len(backoffs)+1 && lastErr != nil; attempt++ {
			for _, host := range hosts {
				url := fmt.Sprintf("https://%s/v7/finance/spark?symbols=%s&range=%s&interval=%s",
					host, strings.ToUpper(symbol), rangeParam, interval)
				body, err := fetchYahooBody(url, host, symbol)
				if err != nil {
					lastErr = err
					continue
				}
				if err := json.Unmarshal(body, &sp); err != nil {
					lastErr = fmt.Errorf("failed to parse yahoo spark json: %v", err)
					continue
				}
				if len(sp.Spark.Result) > 0 && len(sp.Spark.Result[0].Response) > 0 {
					r := sp.Spark.Result[0].Response[0]
					return r.Timestamp, r.Close, nil, nil
				}
			}
			if attempt < len(backoffs) {
				time.Sleep(backoffs[attempt])
			}
		}
		if lastErr != nil {
			return nil, nil, nil, lastErr
		}
	}

	if len(yc.Chart.Result) == 0 {
		return nil, nil, nil, errors.New("no data")
	}
	res := yc.Chart.Result[0]
	meta := &chartMeta{
		Symbol:             res.Meta.Symbol,
		Currency:           res.Meta.Currency,
		RegularMarketPrice: res.Meta.RegularMarketPrice,
		PreviousClose:      res.Meta.PreviousClose,
		ChartPreviousClose: res.Meta.ChartPreviousClose,
	}
	if len(res.Indicators.Quote) == 0 {
		return nil, nil, meta, nil
	}
	return res.Timestamp, res.Indicators.Quote[0].Close, meta, nil
}

// fetchYahooBody performs one GET with browser-ish headers and screens out
// 429s and non-JSON bodies.
func fetchYahooBody(url, host, symbol string) ([]byte, error) {
	req, _ := http.NewRequest("GET", url, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", fmt.Sprintf("https://finance.yahoo.com/quote/%s/chart", strings.ToUpper(symbol)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read yahoo response: %w", readErr)
	}
	if resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(string(body), "Edge: Too Many Requests") {
		return nil, fmt.Errorf("yahoo %s returned 429: Edge: Too Many Requests", host)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s returned %d: %s", host, resp.StatusCode, preview(body))
	}
	if strings.HasPrefix(string(body), "<") || strings.HasPrefix(string(body), "Edge:") {
		return nil, fmt.Errorf("yahoo returned non-json body: %s", preview(body))
	}
	return body, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
