package classify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-advisor/internal/series"
)

func TestClassifyAHR999Boundaries(t *testing.T) {
	c, err := New(DefaultThresholds())
	require.NoError(t, err)

	cases := []struct {
		value float64
		want  State
	}{
		{0, AHRExtremeValue},
		{0.2499, AHRExtremeValue},
		{0.25, AHRBottom},
		{0.4499, AHRBottom},
		{0.45, AHRAccumulation},
		{0.8, AHRFairValue},
		{1.1999, AHRFairValue},
		{1.2, AHRProfitTaking},
		{1.8, AHRBubble},
		{12, AHRBubble},
	}
	for _, tc := range cases {
		got, err := c.Classify(series.AHR999, tc.value)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.State, "value %.4f", tc.value)
		assert.NotEmpty(t, got.Description)
	}
}

func TestClassifyFearGreedBoundaries(t *testing.T) {
	c, err := New(DefaultThresholds())
	require.NoError(t, err)

	cases := map[float64]State{
		0: ExtremeFear, 19: ExtremeFear, 20: Fear, 39: Fear, 40: Neutral,
		59: Neutral, 60: Greed, 79: Greed, 80: ExtremeGreed, 100: ExtremeGreed,
	}
	for value, want := range cases {
		got, err := c.Classify(series.FearGreed, value)
		require.NoError(t, err)
		assert.Equal(t, want, got.State, "value %.0f", value)
	}
}

func TestClassifyIsPure(t *testing.T) {
	c, err := New(DefaultThresholds())
	require.NoError(t, err)

	first, _ := c.Classify(series.AHR999, 0.7)
	second, _ := c.Classify(series.AHR999, 0.7)
	assert.Equal(t, first, second)
}

func TestClassifyUnknownIndicator(t *testing.T) {
	c, err := New(DefaultThresholds())
	require.NoError(t, err)
	_, err = c.Classify(series.BTCPrice, 1)
	assert.ErrorIs(t, err, series.ErrUnknownIndicator)
}

func TestAlternateTablesAreIsolated(t *testing.T) {
	th := DefaultThresholds()
	custom, err := th[series.FearGreed].WithBounds([]float64{10, 30, 70, 90})
	require.NoError(t, err)
	th[series.FearGreed] = custom

	c, err := New(th)
	require.NoError(t, err)

	got, _ := c.Classify(series.FearGreed, 15)
	assert.Equal(t, Fear, got.State)

	// mutating the caller's table after construction has no effect
	th[series.FearGreed][0].Upper = 50
	got, _ = c.Classify(series.FearGreed, 15)
	assert.Equal(t, Fear, got.State)

	def, _ := New(DefaultThresholds())
	got, _ = def.Classify(series.FearGreed, 15)
	assert.Equal(t, ExtremeFear, got.State)
}

func TestWithBoundsRejectsBadTables(t *testing.T) {
	base := DefaultThresholds()[series.AHR999]
	_, err := base.WithBounds([]float64{0.5, 0.4, 0.8, 1.2, 1.8})
	assert.Error(t, err)
	_, err = base.WithBounds([]float64{0.5})
	assert.Error(t, err)

	_, err = New(Thresholds{series.AHR999: {{Upper: 1, State: AHRBottom}}})
	assert.Error(t, err, "last range must be unbounded")

	_, err = New(Thresholds{series.AHR999: {{Upper: math.Inf(1), State: AHRBubble}}})
	assert.NoError(t, err)
}

func TestMoodChange(t *testing.T) {
	assert.Equal(t, MoodClearlyImproving, MoodChange(11))
	assert.Equal(t, MoodSlightlyImproving, MoodChange(10))
	assert.Equal(t, MoodStable, MoodChange(5))
	assert.Equal(t, MoodStable, MoodChange(-5))
	assert.Equal(t, MoodSlightlyWorsening, MoodChange(-6))
	assert.Equal(t, MoodClearlyWorsening, MoodChange(-11))
}
