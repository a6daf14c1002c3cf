package stats

import (
	"fmt"
	"math"
	"sort"

	talib "github.com/markcheno/go-talib"
)

// Trend is the direction label derived from a change value.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// ChangeMode selects how changes between two observations are expressed.
type ChangeMode int

const (
	// ChangePercent reports (current/previous - 1) * 100.
	ChangePercent ChangeMode = iota
	// ChangeAbsolute reports current - previous, for indices already on a fixed scale.
	ChangeAbsolute
)

// InsufficientDataError is returned when a series is shorter than the smallest window.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d points, need %d", e.Have, e.Need)
}

// Options configures the window statistics.
type Options struct {
	Windows           []int
	VolatilityWindows []int
	RSIPeriod         int
	PercentileWindow  int
	LevelWindow       int
	LevelCount        int
	Change            ChangeMode
}

// DefaultOptions returns the 7/30/90 day configuration.
func DefaultOptions() Options {
	return Options{
		Windows:           []int{7, 30, 90},
		VolatilityWindows: []int{7, 30},
		RSIPeriod:         14,
		PercentileWindow:  180,
		LevelWindow:       30,
		LevelCount:        5,
		Change:            ChangePercent,
	}
}

// MinPoints is the length of the smallest window.
func (o Options) MinPoints() int {
	min := 0
	for _, w := range o.Windows {
		if w > 0 && (min == 0 || w < min) {
			min = w
		}
	}
	return min
}

// Analysis is the rolling statistics of one series, computed fresh per call.
type Analysis struct {
	Points     int             `json:"points"`
	Current    float64         `json:"current_value"`
	Averages   map[int]float64 `json:"averages"`
	Change1d   float64         `json:"change_1d"`
	Change7d   float64         `json:"change_7d"`
	Change30d  float64         `json:"change_30d"`
	Volatility map[int]float64 `json:"volatility,omitempty"`
	RSI        *float64        `json:"rsi_14d,omitempty"`
	Percentile float64         `json:"percentile"`
	Support    float64         `json:"support"`
	Resistance float64         `json:"resistance"`
	Trend7d    Trend           `json:"trend_7d"`
	Trend30d   Trend           `json:"trend_30d"`
}

// Average returns the simple moving average over the newest k points.
func (a Analysis) Average(k int) (float64, bool) {
	v, ok := a.Averages[k]
	return v, ok
}

// VolatilityOver returns the volatility over the newest k points.
func (a Analysis) VolatilityOver(k int) (float64, bool) {
	v, ok := a.Volatility[k]
	return v, ok
}

// Analyze computes window statistics for values ordered newest first.
func Analyze(values []float64, opts Options) (Analysis, error) {
	need := opts.MinPoints()
	if need == 0 {
		need = 1
	}
	if len(values) < need {
		return Analysis{}, &InsufficientDataError{Have: len(values), Need: need}
	}

	a := Analysis{
		Points:     len(values),
		Current:    values[0],
		Averages:   make(map[int]float64, len(opts.Windows)),
		Volatility: make(map[int]float64, len(opts.VolatilityWindows)),
	}

	for _, k := range opts.Windows {
		if k > 0 && len(values) >= k {
			a.Averages[k] = sma(values[:k])
		}
	}
	for _, k := range opts.VolatilityWindows {
		if k > 0 && len(values) >= k {
			a.Volatility[k] = volatility(values[:k])
		}
	}

	a.Change1d = change(values, 2, opts.Change)
	a.Change7d = change(values, 7, opts.Change)
	a.Change30d = change(values, 30, opts.Change)
	a.Trend7d = TrendOf(a.Change7d)
	a.Trend30d = TrendOf(a.Change30d)

	a.RSI = RSI(values, opts.RSIPeriod)

	a.Percentile = Percentile(head(values, opts.PercentileWindow))

	levelWindow := head(values, opts.LevelWindow)
	a.Support, a.Resistance = Levels(levelWindow, opts.LevelCount)

	return a, nil
}

// TrendOf labels a change. Exactly zero is flat.
func TrendOf(change float64) Trend {
	switch {
	case change > 0:
		return TrendUp
	case change < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}

// change compares values[0] with values[k-1]; 0 when the series is shorter than k.
func change(values []float64, k int, mode ChangeMode) float64 {
	if len(values) < k || k < 2 {
		return 0
	}
	cur, prev := values[0], values[k-1]
	if mode == ChangeAbsolute {
		return cur - prev
	}
	if prev == 0 {
		return 0
	}
	return (cur/prev - 1) * 100
}

// RSI computes the relative strength index over the newest period+1 values
// using simple averages of gains and losses. It returns nil when fewer than
// period+1 values exist; a window without losses yields exactly 100.
func RSI(values []float64, period int) *float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}

	var gains, losses float64
	// values[period] is the oldest point of the window, values[0] the newest.
	for i := period; i > 0; i-- {
		delta := values[i-1] - values[i]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		v := 100.0
		return &v
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return &v
}

// Percentile ranks values[0] between the window's extremes. A constant window yields 50.
func Percentile(values []float64) float64 {
	if len(values) == 0 {
		return 50
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return 50
	}
	return (values[0] - lo) / (hi - lo) * 100
}

// Levels returns support and resistance as the mean of the n lowest and n
// highest values of the window.
func Levels(values []float64, n int) (support, resistance float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n <= 0 || n > len(sorted) {
		n = len(sorted)
	}
	return mean(sorted[:n]), mean(sorted[len(sorted)-n:])
}

func sma(window []float64) float64 {
	out := talib.Sma(window, len(window))
	return out[len(out)-1]
}

func volatility(window []float64) float64 {
	m := sma(window)
	if m == 0 {
		return 0
	}
	std := talib.StdDev(window, len(window), 1)
	return std[len(std)-1] / m * 100
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func head(values []float64, n int) []float64 {
	if n > 0 && len(values) > n {
		return values[:n]
	}
	return values
}
