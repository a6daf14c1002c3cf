package classify

import (
	"errors"
	"fmt"
	"math"

	"btc-advisor/internal/series"
)

// State is the discrete market state of one indicator.
type State string

const (
	AHRExtremeValue State = "extreme-value"
	AHRBottom       State = "bottom"
	AHRAccumulation State = "accumulation"
	AHRFairValue    State = "fair-value"
	AHRProfitTaking State = "profit-taking"
	AHRBubble       State = "bubble"

	ExtremeFear  State = "extreme-fear"
	Fear         State = "fear"
	Neutral      State = "neutral"
	Greed        State = "greed"
	ExtremeGreed State = "extreme-greed"
)

// Range is one band of a threshold table; values below Upper fall into it.
type Range struct {
	Upper       float64
	State       State
	Description string
}

// Table is an ascending list of ranges; the last one is unbounded above.
type Table []Range

// Thresholds holds the classification tables per indicator. It is treated as
// immutable once handed to New.
type Thresholds map[series.Indicator]Table

// DefaultThresholds returns the reference AHR999 and Fear & Greed tables.
func DefaultThresholds() Thresholds {
	return Thresholds{
		series.AHR999: {
			{Upper: 0.25, State: AHRExtremeValue, Description: "deep undervaluation, historically rare buying zone"},
			{Upper: 0.45, State: AHRBottom, Description: "bottom zone, accumulate in size"},
			{Upper: 0.8, State: AHRAccumulation, Description: "undervalued, suitable for regular accumulation"},
			{Upper: 1.2, State: AHRFairValue, Description: "fair value range, dollar-cost averaging"},
			{Upper: 1.8, State: AHRProfitTaking, Description: "overvalued, consider taking profit"},
			{Upper: math.Inf(1), State: AHRBubble, Description: "bubble territory, high risk"},
		},
		series.FearGreed: {
			{Upper: 20, State: ExtremeFear, Description: "extreme fear, often a good buying opportunity"},
			{Upper: 40, State: Fear, Description: "fear, consider buying gradually"},
			{Upper: 60, State: Neutral, Description: "neutral sentiment, regular investing is reasonable"},
			{Upper: 80, State: Greed, Description: "greed, mind the risk and consider trimming"},
			{Upper: math.Inf(1), State: ExtremeGreed, Description: "extreme greed, be cautious and consider selling gradually"},
		},
	}
}

// WithBounds returns a copy of t with the finite upper bounds replaced.
// bounds must have exactly len(t)-1 entries.
func (t Table) WithBounds(bounds []float64) (Table, error) {
	if len(bounds) != len(t)-1 {
		return nil, fmt.Errorf("expected %d bounds, got %d", len(t)-1, len(bounds))
	}
	out := make(Table, len(t))
	copy(out, t)
	for i, b := range bounds {
		out[i].Upper = b
	}
	return out, out.validate()
}

func (t Table) validate() error {
	if len(t) == 0 {
		return errors.New("empty threshold table")
	}
	for i := 1; i < len(t); i++ {
		if !(t[i].Upper > t[i-1].Upper) {
			return fmt.Errorf("threshold %d (%v) must exceed threshold %d (%v)", i, t[i].Upper, i-1, t[i-1].Upper)
		}
	}
	if !math.IsInf(t[len(t)-1].Upper, 1) {
		return errors.New("last threshold range must be unbounded")
	}
	return nil
}

// Classification is the outcome of classifying one value.
type Classification struct {
	Indicator   series.Indicator `json:"indicator"`
	Value       float64          `json:"value"`
	State       State            `json:"state"`
	Description string           `json:"description"`
}

// Classifier maps indicator values to states. It holds no mutable state.
type Classifier struct {
	tables Thresholds
}

// New validates the tables and copies them.
func New(th Thresholds) (*Classifier, error) {
	tables := make(Thresholds, len(th))
	for ind, table := range th {
		if err := table.validate(); err != nil {
			return nil, fmt.Errorf("%s thresholds: %w", ind, err)
		}
		tables[ind] = append(Table(nil), table...)
	}
	return &Classifier{tables: tables}, nil
}

// Classify returns the first range whose upper bound exceeds value.
func (c *Classifier) Classify(ind series.Indicator, value float64) (Classification, error) {
	table, ok := c.tables[ind]
	if !ok {
		return Classification{}, fmt.Errorf("no thresholds for %s: %w", ind, series.ErrUnknownIndicator)
	}
	for _, r := range table {
		if value < r.Upper {
			return Classification{Indicator: ind, Value: value, State: r.State, Description: r.Description}, nil
		}
	}
	// NaN compares false against every bound.
	last := table[len(table)-1]
	return Classification{Indicator: ind, Value: value, State: last.State, Description: last.Description}, nil
}

// Mood describes how sentiment moved over a week.
type Mood string

const (
	MoodClearlyImproving  Mood = "clearly improving"
	MoodSlightlyImproving Mood = "slightly improving"
	MoodStable            Mood = "stable"
	MoodSlightlyWorsening Mood = "slightly worsening"
	MoodClearlyWorsening  Mood = "clearly worsening"
)

// MoodChange labels a 7 day Fear & Greed change expressed in index points.
func MoodChange(change7d float64) Mood {
	switch {
	case change7d > 10:
		return MoodClearlyImproving
	case change7d > 5:
		return MoodSlightlyImproving
	case change7d < -10:
		return MoodClearlyWorsening
	case change7d < -5:
		return MoodSlightlyWorsening
	default:
		return MoodStable
	}
}
