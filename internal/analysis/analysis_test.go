package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-advisor/internal/classify"
	"btc-advisor/internal/series"
	"btc-advisor/internal/stats"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// build returns points oldest-first values, stored newest first.
func build(ind series.Indicator, oldestFirst ...float64) series.Collection {
	points := make([]series.Point, 0, len(oldestFirst))
	for i, v := range oldestFirst {
		ts := day0.AddDate(0, 0, i)
		p := series.Point{Timestamp: ts.Unix(), Date: ts.Format("2006-01-02")}
		switch ind {
		case series.BTCPrice:
			p.Timestamp = ts.UnixMilli()
			p.Price = series.Float(v)
		case series.AHR999:
			p.AHR999 = series.Float(v)
		case series.FearGreed:
			p.Value = series.Float(v)
			p.Classification = fmt.Sprintf("class-%d", i)
		}
		points = append(points, p)
	}
	// deliberately oldest first; the engine sorts
	return series.Collection{Indicator: ind, Points: points}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	c, err := classify.New(classify.DefaultThresholds())
	require.NoError(t, err)
	return NewEngine(c, 0, zerolog.Nop())
}

func TestRunWithEmptySources(t *testing.T) {
	e := newEngine(t)
	r := e.Run(map[series.Indicator]series.Collection{
		series.BTCPrice:  {Indicator: series.BTCPrice},
		series.AHR999:    {Indicator: series.AHR999},
		series.FearGreed: {Indicator: series.FearGreed},
	}, day0)

	assert.Equal(t, StatusError, r.Status)
	assert.Contains(t, r.Message, "price data")
	assert.Equal(t, "observe/hold", r.Overall.Action)
	assert.Empty(t, r.Recommendations)
	assert.Equal(t, StatusError, r.AHR999.Status)
}

func TestIndicatorIncreasingPrice(t *testing.T) {
	e := newEngine(t)
	res := e.Indicator(build(series.BTCPrice, 100, 101, 102, 103, 104, 105, 106, 107, 108, 109))

	require.True(t, res.OK(), res.Message)
	assert.Equal(t, 109.0, res.Stats.Current)
	assert.Equal(t, stats.TrendUp, res.Stats.Trend7d)
	assert.Nil(t, res.Stats.RSI)
	assert.Equal(t, "2024-03-10", res.LatestDate)
	require.NotNil(t, res.Recommendation)
	assert.Equal(t, series.BTCPrice, res.Recommendation.Source)
}

func TestIndicatorInsufficientData(t *testing.T) {
	e := newEngine(t)
	res := e.Indicator(build(series.AHR999, 0.5, 0.6, 0.7))
	assert.False(t, res.OK())
	assert.Contains(t, res.Message, "only 3 days")
	assert.Nil(t, res.Recommendation)
}

func TestIndicatorFearGreedUsesAbsoluteChange(t *testing.T) {
	e := newEngine(t)
	res := e.Indicator(build(series.FearGreed, 50, 50, 50, 50, 50, 50, 50, 50, 50, 62))

	require.True(t, res.OK())
	assert.Equal(t, 12.0, res.Stats.Change1d)
	assert.Equal(t, 12.0, res.Stats.Change7d)
	assert.Equal(t, classify.MoodClearlyImproving, res.Mood)
	assert.Equal(t, "class-9", res.ProviderClass)
	require.NotNil(t, res.Classification)
	assert.Equal(t, classify.Greed, res.Classification.State)
	require.NotNil(t, res.Recommendation)
	assert.Equal(t, "cautious hold", res.Recommendation.Action)
}

func TestIndicatorRespectsPeriod(t *testing.T) {
	c, err := classify.New(classify.DefaultThresholds())
	require.NoError(t, err)
	e := NewEngine(c, 10, zerolog.Nop())

	values := make([]float64, 40)
	for i := range values {
		values[i] = float64(i + 1)
	}
	res := e.Indicator(build(series.BTCPrice, values...))
	require.True(t, res.OK())
	assert.Equal(t, 10, res.Stats.Points)
}

func TestRunAggregatesAvailableIndicators(t *testing.T) {
	e := newEngine(t)
	r := e.Run(map[series.Indicator]series.Collection{
		series.BTCPrice: build(series.BTCPrice, 100, 101, 102, 103, 104, 105, 106, 107, 108, 109),
		series.AHR999:   build(series.AHR999, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3),
	}, day0)

	assert.Equal(t, StatusSuccess, r.Status)
	assert.Len(t, r.Recommendations, 2)
	assert.Equal(t, StatusError, r.FearGreed.Status)
	assert.Equal(t, "regular buy", r.AHR999.Recommendation.Action)
	assert.NotEmpty(t, r.Overall.Action)
}
