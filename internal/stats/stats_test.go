package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newestFirst(oldestFirst ...float64) []float64 {
	out := make([]float64, len(oldestFirst))
	for i, v := range oldestFirst {
		out[len(oldestFirst)-1-i] = v
	}
	return out
}

func TestAnalyzeInsufficientData(t *testing.T) {
	for n := 0; n < 7; n++ {
		values := make([]float64, n)
		a, err := Analyze(values, DefaultOptions())

		var insufficient *InsufficientDataError
		require.True(t, errors.As(err, &insufficient), "n=%d", n)
		assert.Equal(t, n, insufficient.Have)
		assert.Equal(t, 7, insufficient.Need)
		assert.Zero(t, a.Points)
		assert.Nil(t, a.Averages)
	}
}

func TestAnalyzeAverageIsMeanOfNewestSeven(t *testing.T) {
	values := []float64{101.25, 99.5, 100.75, 98.125, 102.5, 97.0, 103.375, 50, 60, 70}
	a, err := Analyze(values, DefaultOptions())
	require.NoError(t, err)

	var sum float64
	for _, v := range values[:7] {
		sum += v
	}
	avg7, ok := a.Average(7)
	require.True(t, ok)
	assert.InDelta(t, sum/7, avg7, 1e-9)

	_, ok = a.Average(30)
	assert.False(t, ok, "30 day average needs 30 points")
	_, ok = a.Average(90)
	assert.False(t, ok)
}

func TestAnalyzeStrictlyIncreasingTenDays(t *testing.T) {
	values := newestFirst(100, 101, 102, 103, 104, 105, 106, 107, 108, 109)
	a, err := Analyze(values, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 109.0, a.Current)
	assert.Equal(t, TrendUp, a.Trend7d)
	assert.Greater(t, a.Change7d, 0.0)
	assert.InDelta(t, (109.0/103.0-1)*100, a.Change7d, 1e-9)
	assert.InDelta(t, (109.0/108.0-1)*100, a.Change1d, 1e-9)
	assert.Nil(t, a.RSI, "RSI needs 15 points")
	assert.Equal(t, 0.0, a.Change30d)
	assert.Equal(t, TrendFlat, a.Trend30d)
	assert.Equal(t, 100.0, a.Percentile)
}

func TestRSIWithoutLossesIsHundred(t *testing.T) {
	values := newestFirst(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	rsi := RSI(values, 14)
	require.NotNil(t, rsi)
	assert.Equal(t, 100.0, *rsi)

	flat := make([]float64, 15)
	rsi = RSI(flat, 14)
	require.NotNil(t, rsi)
	assert.Equal(t, 100.0, *rsi)
}

func TestRSIUsesNewestFifteenPoints(t *testing.T) {
	// 14 deltas: seven gains of 2 and seven losses of 1, then older noise that must be ignored.
	oldestFirst := []float64{500, 1, 10}
	price := 10.0
	for i := 0; i < 7; i++ {
		price += 2
		oldestFirst = append(oldestFirst, price)
		price--
		oldestFirst = append(oldestFirst, price)
	}
	values := newestFirst(oldestFirst...)
	require.Len(t, values, 17)

	rsi := RSI(values, 14)
	require.NotNil(t, rsi)
	// avgGain = 14/14, avgLoss = 7/14, RS = 2
	assert.InDelta(t, 100-100/3.0, *rsi, 1e-9)
}

func TestPercentileConstantSeries(t *testing.T) {
	values := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	a, err := Analyze(values, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 50.0, a.Percentile)
	assert.Equal(t, 0.0, a.Volatility[7])
	assert.Equal(t, TrendFlat, a.Trend7d)
}

func TestPercentileWindowIsCapped(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = 50
	}
	values[0] = 60
	values[199] = 1000 // outside the 180 point window

	a, err := Analyze(values, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.Percentile)
}

func TestChangeGuardsZeroDenominator(t *testing.T) {
	values := []float64{10, 0, 3, 3, 3, 3, 0}
	a, err := Analyze(values, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Change1d)
	assert.Equal(t, 0.0, a.Change7d)
	assert.False(t, math.IsInf(a.Change7d, 0))
}

func TestAbsoluteChangeMode(t *testing.T) {
	opts := DefaultOptions()
	opts.Change = ChangeAbsolute
	values := []float64{40, 35, 30, 30, 30, 30, 28}

	a, err := Analyze(values, opts)
	require.NoError(t, err)
	assert.Equal(t, 5.0, a.Change1d)
	assert.Equal(t, 12.0, a.Change7d)
	assert.Equal(t, TrendUp, a.Trend7d)
}

func TestVolatilityMatchesPopulationStdDev(t *testing.T) {
	values := []float64{104, 98, 101, 97, 103, 99, 100}
	a, err := Analyze(values, DefaultOptions())
	require.NoError(t, err)

	var sum, sq float64
	for _, v := range values {
		sum += v
	}
	m := sum / 7
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	want := math.Sqrt(sq/7) / m * 100

	got, ok := a.VolatilityOver(7)
	require.True(t, ok)
	assert.InDelta(t, want, got, 1e-6)
	_, ok = a.VolatilityOver(30)
	assert.False(t, ok)
}

func TestLevelsUseFiveExtremes(t *testing.T) {
	window := []float64{10, 1, 9, 2, 8, 3, 7, 4, 6, 5, 100}
	support, resistance := Levels(window, 5)
	assert.Equal(t, 3.0, support)
	assert.Equal(t, (100.0+10+9+8+7)/5, resistance)
}

func TestTrendOf(t *testing.T) {
	assert.Equal(t, TrendUp, TrendOf(0.01))
	assert.Equal(t, TrendDown, TrendOf(-0.01))
	assert.Equal(t, TrendFlat, TrendOf(0))
}
