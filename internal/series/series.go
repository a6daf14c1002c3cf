package series

import (
	"errors"
	"fmt"
	"time"
)

// Indicator names one tracked time series.
type Indicator string

const (
	BTCPrice  Indicator = "btc_price"
	AHR999    Indicator = "ahr999"
	FearGreed Indicator = "fear_greed"
)

// ErrUnknownIndicator is returned for indicator names outside All().
var ErrUnknownIndicator = errors.New("series: unknown indicator")

// All lists the indicators in their fixed evaluation order.
func All() []Indicator {
	return []Indicator{BTCPrice, AHR999, FearGreed}
}

// ParseIndicator validates a raw indicator name.
func ParseIndicator(raw string) (Indicator, error) {
	for _, ind := range All() {
		if string(ind) == raw {
			return ind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIndicator, raw)
}

// CacheFile is the per-source cache document name.
func (i Indicator) CacheFile() string {
	if i == BTCPrice {
		return "btc_price_history.json"
	}
	return string(i) + "_history.json"
}

// Label is the human readable indicator name.
func (i Indicator) Label() string {
	switch i {
	case BTCPrice:
		return "BTC price"
	case AHR999:
		return "AHR999 index"
	case FearGreed:
		return "Fear & Greed index"
	default:
		return string(i)
	}
}

// Point is one observation of one indicator. The value lives in the field
// named after the indicator so persisted documents stay readable by other tools.
type Point struct {
	Timestamp      int64    `json:"timestamp"`
	Date           string   `json:"date"`
	Price          *float64 `json:"price,omitempty"`
	AHR999         *float64 `json:"ahr999,omitempty"`
	MA200          *float64 `json:"ma200,omitempty"`
	PriceMARatio   *float64 `json:"price_ma_ratio,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	Classification string   `json:"value_classification,omitempty"`
}

// ValueOf returns the primary value of the point for the indicator.
func (p Point) ValueOf(ind Indicator) (float64, bool) {
	var v *float64
	switch ind {
	case BTCPrice:
		v = p.Price
	case AHR999:
		v = p.AHR999
	case FearGreed:
		v = p.Value
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Time converts the timestamp, which may be in seconds or milliseconds.
func (p Point) Time() time.Time {
	if p.Timestamp > 1e12 {
		return time.UnixMilli(p.Timestamp).UTC()
	}
	return time.Unix(p.Timestamp, 0).UTC()
}

// Float wraps v for the optional point fields.
func Float(v float64) *float64 {
	return &v
}

// Collection is the ordered series of one indicator, newest first once merged.
type Collection struct {
	Indicator Indicator
	Points    []Point
}

// Len reports the number of points.
func (c Collection) Len() int {
	return len(c.Points)
}

// Values extracts the indicator values in collection order, skipping points
// that do not carry one. At most limit values are returned when limit > 0.
func (c Collection) Values(limit int) []float64 {
	out := make([]float64, 0, len(c.Points))
	for _, p := range c.Points {
		if limit > 0 && len(out) >= limit {
			break
		}
		if v, ok := p.ValueOf(c.Indicator); ok {
			out = append(out, v)
		}
	}
	return out
}

// Latest returns the newest point.
func (c Collection) Latest() (Point, bool) {
	if len(c.Points) == 0 {
		return Point{}, false
	}
	return c.Points[0], true
}
