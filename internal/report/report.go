package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"btc-advisor/internal/advice"
	"btc-advisor/internal/analysis"
	"btc-advisor/internal/series"
)

const (
	header = "=============== BTC investment advice report ==============="
	footer = "=============== end of report ==============="

	timeLayout = "2006-01-02 15:04:05"
)

// Format renders an advice run as the fixed-section plain-text report.
// Every section is always present; missing inputs are stated explicitly.
func Format(r analysis.Result) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", header)
	line("Generated: %s", r.GeneratedAt.Format(timeLayout))
	if r.Status == analysis.StatusError && r.Message != "" {
		line("Status: error (%s)", r.Message)
	}
	line("")

	writePrice(line, r.Price, r.Period)
	line("")

	line("[Market sentiment]")
	writeAHR999(line, r.AHR999)
	line("")
	writeFearGreed(line, r.FearGreed)
	line("")

	line("[Advice]")
	for _, ind := range []analysis.IndicatorResult{r.Price, r.AHR999, r.FearGreed} {
		label := "Based on " + ind.Indicator.Label()
		if !ind.OK() || ind.Recommendation == nil {
			line("%s: unavailable: %s", label, reasonOf(ind))
			continue
		}
		rec := ind.Recommendation
		line("%s: %s (confidence: %s)", label, rec.Action, rec.Confidence)
		line("  reason: %s", rec.Reason)
	}
	line("")
	writeOverall(line, r.Overall)

	b.WriteString("\n" + footer)
	return b.String()
}

type lineFunc func(format string, args ...any)

func writePrice(line lineFunc, p analysis.IndicatorResult, period int) {
	line("[Price]")
	if !p.OK() {
		line("unavailable: %s", reasonOf(p))
		return
	}
	a := p.Stats
	line("Latest date: %s", orUnknown(p.LatestDate))
	line("Current price: %s", usd(a.Current))
	for _, k := range []int{7, 30, 90} {
		if v, ok := a.Average(k); ok {
			line("%d-day average: %s", k, usd(v))
		} else {
			line("%d-day average: unavailable: fewer than %d days", k, k)
		}
	}
	line("24h change: %.2f%%", a.Change1d)
	line("7-day change: %.2f%%", a.Change7d)
	line("30-day change: %.2f%%", a.Change30d)
	for _, k := range []int{7, 30} {
		if v, ok := a.VolatilityOver(k); ok {
			line("%d-day volatility: %.2f%%", k, v)
		} else {
			line("%d-day volatility: unavailable: fewer than %d days", k, k)
		}
	}
	if a.RSI != nil {
		line("14-day RSI: %.2f", *a.RSI)
	} else {
		line("14-day RSI: unavailable: fewer than 15 days")
	}
	line("Support: %s", usd(a.Support))
	line("Resistance: %s", usd(a.Resistance))
	line("Trend: 7d %s, 30d %s", a.Trend7d, a.Trend30d)
	line("Current price sits at the %.2f%% percentile of the %d-day range", a.Percentile, period)
}

func writeAHR999(line lineFunc, r analysis.IndicatorResult) {
	line("%s:", series.AHR999.Label())
	if !r.OK() {
		line("  unavailable: %s", reasonOf(r))
		return
	}
	a := r.Stats
	state := "unclassified"
	if r.Classification != nil {
		state = string(r.Classification.State)
	}
	line("  current: %.3f (%s)", a.Current, state)
	writeAverages(line, r, "%.3f")
	line("  7-day trend: %s (%.2f%%)", a.Trend7d, a.Change7d)
	line("  30-day trend: %s (%.2f%%)", a.Trend30d, a.Change30d)
	line("  percentile: %.2f%%", a.Percentile)
}

func writeFearGreed(line lineFunc, r analysis.IndicatorResult) {
	line("%s:", series.FearGreed.Label())
	if !r.OK() {
		line("  unavailable: %s", reasonOf(r))
		return
	}
	a := r.Stats
	line("  current: %.0f (%s)", a.Current, orUnknown(r.ProviderClass))
	writeAverages(line, r, "%.2f")
	line("  7-day trend: %s (%+.0f)", a.Trend7d, a.Change7d)
	line("  30-day trend: %s (%+.0f)", a.Trend30d, a.Change30d)
	if r.Classification != nil {
		line("  market mood: %s", r.Classification.State)
	}
	line("  mood change: %s", r.Mood)
}

func writeAverages(line lineFunc, r analysis.IndicatorResult, verb string) {
	for _, k := range []int{7, 30} {
		if v, ok := r.Stats.Average(k); ok {
			line("  %d-day average: "+verb, k, v)
		} else {
			line("  %d-day average: unavailable: fewer than %d days", k, k)
		}
	}
}

func writeOverall(line lineFunc, o advice.Overall) {
	line("Overall:")
	line("  action: %s", o.Action)
	line("  reason: %s", o.Reason)
	line("  confidence: %s", o.Confidence)
}

func reasonOf(r analysis.IndicatorResult) string {
	if r.Message != "" {
		return r.Message
	}
	if r.OK() {
		return "no recommendation for current state"
	}
	return "no data"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// usd formats an amount with thousands separators and two decimals.
func usd(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}
