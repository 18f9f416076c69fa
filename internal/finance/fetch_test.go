package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePeriod(t *testing.T) {
	assert.Equal(t, "6mo", NormalizePeriod(" 6MO "))
	assert.Equal(t, "ytd", NormalizePeriod("ytd"))
	assert.Equal(t, "1y", NormalizePeriod(""))
	assert.Equal(t, "1y", NormalizePeriod("6 months"))
}

func TestNormalizeInterval(t *testing.T) {
	assert.Equal(t, "1wk", NormalizeInterval("1wk"))
	assert.Equal(t, "1d", NormalizeInterval(""))
	assert.Equal(t, "1d", NormalizeInterval("hourly"))
}

func TestFXSymbol(t *testing.T) {
	for in, want := range map[string]string{
		"USD/SGD":  "USDSGD=X",
		"usd-sgd":  "USDSGD=X",
		"EURUSD":   "EURUSD=X",
		"EURUSD=X": "EURUSD=X",
	} {
		got, err := FXSymbol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := FXSymbol("USD")
	assert.Error(t, err)
	_, err = FXSymbol("USD/SGD/JPY")
	assert.Error(t, err)
}

func TestFilterNonNegative(t *testing.T) {
	ts, cl := filterNonNegative([]int64{1, 2, 3}, []float64{10, -1, 12})
	assert.Equal(t, []int64{1, 3}, ts)
	assert.Equal(t, []float64{10, 12}, cl)
}

func TestFilterIQRKeepsShortSeries(t *testing.T) {
	ts := []int64{1, 2, 3}
	cl := []float64{10, 1000, 12}
	gotTs, gotCl := filterIQR(ts, cl, 1.5, 20)
	assert.Equal(t, ts, gotTs)
	assert.Equal(t, cl, gotCl)
}

func TestFilterIQRDropsOutliers(t *testing.T) {
	ts := make([]int64, 0, 40)
	cl := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		ts = append(ts, int64(i))
		v := 100.0 + float64(i%5)
		if i == 20 {
			v = 10000
		}
		cl = append(cl, v)
	}
	_, gotCl := filterIQR(ts, cl, 1.5, 20)
	require.Len(t, gotCl, 39)
	for _, v := range gotCl {
		assert.Less(t, v, 1000.0)
	}
}
