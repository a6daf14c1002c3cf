package monitor

import (
	"fmt"
	"time"

	"btc-advisor/internal/stats"
)

const (
	SymbolUp   = "📈"
	SymbolDown = "📉"
	SymbolFlat = "➡️"
)

// Change compares one metric between two records.
type Change struct {
	Metric    Metric
	Old       float64
	New       float64
	ChangePct float64
	Symbol    string
}

// Changes compares every metric present in both records. A zero old value
// reports a zero percent change.
func Changes(old, cur Record) []Change {
	out := make([]Change, 0, len(Metrics()))
	for _, m := range Metrics() {
		o, ok := old.Value(m)
		if !ok {
			continue
		}
		n, ok := cur.Value(m)
		if !ok {
			continue
		}
		c := Change{Metric: m, Old: o, New: n}
		if o != 0 {
			c.ChangePct = (n - o) / o * 100
		}
		switch {
		case c.ChangePct > 0:
			c.Symbol = SymbolUp
		case c.ChangePct < 0:
			c.Symbol = SymbolDown
		default:
			c.Symbol = SymbolFlat
		}
		out = append(out, c)
	}
	return out
}

// WeekTrend is the current value against its seven-day mean.
type WeekTrend struct {
	Metric  Metric
	Current float64
	Avg7d   float64
	Trend   stats.Trend
}

// Analyze7d summarises protocol yield and TVL over records from the last
// seven days, oldest first. It returns nil without records.
func Analyze7d(records []Record) []WeekTrend {
	if len(records) == 0 {
		return nil
	}
	latest := records[len(records)-1]

	var out []WeekTrend
	for _, m := range []Metric{MetricProtocolYield, MetricTVL} {
		var sum float64
		var n int
		for _, r := range records {
			if v, ok := r.Value(m); ok {
				sum += v
				n++
			}
		}
		cur, ok := latest.Value(m)
		if !ok || n == 0 {
			continue
		}
		w := WeekTrend{Metric: m, Current: cur, Avg7d: sum / float64(n), Trend: stats.TrendDown}
		if cur > w.Avg7d {
			w.Trend = stats.TrendUp
		}
		out = append(out, w)
	}
	return out
}

// Thresholds trigger monitor alerts.
type Thresholds struct {
	MinAPY           float64
	MinTVL           float64
	ExtremeFear      float64
	ExtremeGreed     float64
	AHR999Oversold   float64
	AHR999Overbought float64
}

// DefaultThresholds mirror the stock monitor configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAPY:           10,
		MinTVL:           100_000_000,
		ExtremeFear:      20,
		ExtremeGreed:     80,
		AHR999Oversold:   0.45,
		AHR999Overbought: 1.2,
	}
}

// AlertKind groups alerts for metrics labels.
type AlertKind string

const (
	AlertLowYield     AlertKind = "low_yield"
	AlertLowTVL       AlertKind = "low_tvl"
	AlertExtremeFear  AlertKind = "extreme_fear"
	AlertExtremeGreed AlertKind = "extreme_greed"
	AlertOversold     AlertKind = "ahr999_oversold"
	AlertOverbought   AlertKind = "ahr999_overbought"
)

// Alert is a threshold crossing in the latest record.
type Alert struct {
	Kind    AlertKind
	Message string
}

// Alerts evaluates the thresholds against r.
func Alerts(r Record, th Thresholds) []Alert {
	var out []Alert
	add := func(kind AlertKind, format string, args ...any) {
		out = append(out, Alert{Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	if r.Ethena.ProtocolYield < th.MinAPY {
		add(AlertLowYield, "Protocol yield %.2f%% is below %.2f%%", r.Ethena.ProtocolYield, th.MinAPY)
	}
	if r.Ethena.TVL < th.MinTVL {
		add(AlertLowTVL, "TVL $%.0f is below $%.0f", r.Ethena.TVL, th.MinTVL)
	}
	if fg, ok := r.Value(MetricFearGreed); ok {
		switch {
		case fg <= th.ExtremeFear:
			add(AlertExtremeFear, "Fear & Greed %.0f signals extreme fear", fg)
		case fg >= th.ExtremeGreed:
			add(AlertExtremeGreed, "Fear & Greed %.0f signals extreme greed", fg)
		}
	}
	if ahr, ok := r.Value(MetricAHR999); ok {
		switch {
		case ahr < th.AHR999Oversold:
			add(AlertOversold, "AHR999 %.3f is below the oversold line %.2f", ahr, th.AHR999Oversold)
		case ahr > th.AHR999Overbought:
			add(AlertOverbought, "AHR999 %.3f is above the overbought line %.2f", ahr, th.AHR999Overbought)
		}
	}
	return out
}

// LastOn returns the newest record stamped on day (YYYY-MM-DD).
func LastOn(records []Record, day string) (Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Date() == day {
			return records[i], true
		}
	}
	return Record{}, false
}

// Yesterday renders the previous calendar day of now in loc.
func Yesterday(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).AddDate(0, 0, -1).Format("2006-01-02")
}
