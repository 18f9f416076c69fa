package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Metrics holds the standardized risk/return outputs. A value of NaN means
// the metric is undefined for the given input (empty series, <2 usable
// observations, cumulative loss of 100% or more). Undefined is a valid
// result, not an error.
type Metrics struct {
	CumulativeReturn     float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	MaxDrawdown          float64
}

// Undefined returns true when every metric is NaN.
func (m Metrics) Undefined() bool {
	return math.IsNaN(m.CumulativeReturn) && math.IsNaN(m.AnnualizedReturn) &&
		math.IsNaN(m.AnnualizedVolatility) && math.IsNaN(m.MaxDrawdown)
}

func undefinedMetrics() Metrics {
	nan := math.NaN()
	return Metrics{CumulativeReturn: nan, AnnualizedReturn: nan, AnnualizedVolatility: nan, MaxDrawdown: nan}
}

// NormalizeToReturns converts a raw series into canonical decimal returns.
// If isPrices, values are differenced into period-over-period fractional
// changes (the first observation is consumed by the first return). If
// returnsArePercent, the result is divided by 100 after differencing.
// Invalid entries (NaN, Inf, zero prior price) are dropped. Empty input
// yields an empty slice.
func NormalizeToReturns(series []float64, isPrices, returnsArePercent bool) []float64 {
	var returns []float64
	if isPrices {
		returns = make([]float64, 0, max(len(series)-1, 0))
		for i := 1; i < len(series); i++ {
			prev := series[i-1]
			if prev == 0 || math.IsNaN(prev) || math.IsNaN(series[i]) {
				returns = append(returns, math.NaN())
				continue
			}
			returns = append(returns, (series[i]-prev)/prev)
		}
	} else {
		returns = make([]float64, len(series))
		copy(returns, series)
	}

	out := make([]float64, 0, len(returns))
	for _, r := range returns {
		if returnsArePercent {
			r = r / 100.0
		}
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MaxDrawdown returns the maximum peak-to-trough decline as a negative
// decimal. With isPrices=false the values are arithmetic period returns and
// are first compounded into a synthetic price curve starting at 1.
// Empty input yields NaN; a non-decreasing curve yields exactly 0.
func MaxDrawdown(series []float64, isPrices bool) float64 {
	if len(series) == 0 {
		return math.NaN()
	}

	prices := make([]float64, len(series))
	if isPrices {
		copy(prices, series)
	} else {
		acc := 1.0
		for i, r := range series {
			acc *= 1.0 + r
			prices[i] = acc
		}
	}

	peak := prices[0]
	worst := 0.0
	for _, v := range prices {
		if v > peak {
			peak = v
		}
		dd := (v - peak) / peak
		if dd < worst || math.IsNaN(dd) {
			worst = dd
		}
	}
	return worst
}

// ComputeMetrics computes cumulative return, annualized return, annualized
// volatility and maximum drawdown from a raw series. periodsPerYear <= 0
// triggers inference: from date spacing when dates are supplied, else from
// the series length. Drawdown is computed from the raw price curve when
// isPrices, and from the normalized returns recompounded into a synthetic
// curve otherwise; the two paths differ once normalization has dropped
// observations and both are contractual.
func ComputeMetrics(series []float64, isPrices bool, periodsPerYear int, returnsArePercent bool, dates []time.Time) Metrics {
	returns := NormalizeToReturns(series, isPrices, returnsArePercent)

	if periodsPerYear <= 0 {
		periodsPerYear = InferPeriodsPerYear(dates, len(returns))
	}

	if len(returns) == 0 {
		return undefinedMetrics()
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1.0 + r
	}
	cumulative -= 1.0

	// Geometric-mean decomposition: per-period geometric mean implied by the
	// cumulative return, compounded out to the annual frequency. A cumulative
	// loss of 100% or more leaves no positive base for the fractional power.
	annualized := math.NaN()
	if 1.0+cumulative > 0 {
		geoMean := math.Pow(1.0+cumulative, 1.0/float64(len(returns))) - 1.0
		annualized = math.Pow(1.0+geoMean, float64(periodsPerYear)) - 1.0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	// Population variance (divide by N), matching the original engine.
	variance /= float64(len(returns))
	volatility := math.Sqrt(variance) * math.Sqrt(float64(periodsPerYear))

	var mdd float64
	if isPrices {
		mdd = MaxDrawdown(series, true)
	} else {
		mdd = MaxDrawdown(returns, false)
	}

	return Metrics{
		CumulativeReturn:     cumulative,
		AnnualizedReturn:     annualized,
		AnnualizedVolatility: volatility,
		MaxDrawdown:          mdd,
	}
}

// YearReturn is one calendar year's compounded return.
type YearReturn struct {
	Year   int
	Return float64
}

// YearlyPerformance groups period returns by the calendar year of their date
// and compounds them within each year. Dates and returns must pair up
// one-to-one; a length mismatch is an error, never a truncation. Rows with
// an unparseable date or missing return are dropped as a pair. Output is
// sorted ascending by year.
func YearlyPerformance(dates []string, returns []float64, returnsArePercent bool) ([]YearReturn, error) {
	if len(dates) != len(returns) {
		return nil, fmt.Errorf("dates and returns must be the same length (got %d and %d)", len(dates), len(returns))
	}
	acc := map[int]float64{}
	for i := range dates {
		t, ok := ParseDate(dates[i])
		if !ok {
			continue
		}
		r := returns[i]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		if returnsArePercent {
			r = r / 100.0
		}
		y := t.Year()
		if _, seen := acc[y]; !seen {
			acc[y] = 1.0
		}
		acc[y] *= 1.0 + r
	}

	out := make([]YearReturn, 0, len(acc))
	for y, v := range acc {
		out = append(out, YearReturn{Year: y, Return: v - 1.0})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

// InferPeriodsPerYear maps a date sequence to periods per year by median
// spacing (~365d yearly, 28-31d monthly, ~1d trading-daily). When dates are
// absent or the spacing falls outside every bucket, a length heuristic is
// used: up to 12 observations reads as yearly, up to 60 as monthly, else
// trading-daily. The tiers are deliberate; annualization is very sensitive
// to this parameter.
func InferPeriodsPerYear(dates []time.Time, n int) int {
	if len(dates) > 1 {
		sorted := make([]time.Time, len(dates))
		copy(sorted, dates)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

		gaps := make([]float64, 0, len(sorted)-1)
		for i := 1; i < len(sorted); i++ {
			gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Hours()/24.0)
		}
		sort.Float64s(gaps)
		median := gaps[len(gaps)/2]
		if len(gaps)%2 == 0 {
			median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2.0
		}

		switch {
		case median >= 350 && median <= 370:
			return 1
		case median >= 27 && median <= 31:
			return 12
		case median >= 0.5 && median <= 1.5:
			return 252
		}
	}

	switch {
	case n <= 12:
		return 1
	case n <= 60:
		return 12
	default:
		return 252
	}
}
