package report

import (
	"fmt"
	"strings"

	"btc-advisor/internal/monitor"
)

// Digest is one monitor tick as posted to chat channels.
type Digest struct {
	Latest monitor.Record
	// Changes against yesterday's last record; empty when there was none.
	Changes []monitor.Change
	Week    []monitor.WeekTrend
	Alerts  []monitor.Alert
}

// FormatDigest renders the monitor digest.
func FormatDigest(d Digest) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	r := d.Latest
	line("Time: %s", r.Timestamp)
	line("")
	line("[Ethena]")
	line("📈 Protocol yield: %.2f%%", r.Ethena.ProtocolYield)
	line("📊 Staking yield: %.2f%%", r.Ethena.StakingYield)
	line("💎 TVL: %s", usd(r.Ethena.TVL))
	if r.Ethena.SUSDeRate != nil {
		line("🔁 sUSDe rate: %.6f USDe", *r.Ethena.SUSDeRate)
	}

	line("")
	line("[Market]")
	if v, ok := r.Value(monitor.MetricBTCPrice); ok {
		line("💰 BTC price: %s", usd(v))
	} else {
		line("💰 BTC price: unavailable")
	}
	if v, ok := r.Value(monitor.MetricAHR999); ok {
		line("📉 AHR999: %.4f", v)
	}
	if v, ok := r.Value(monitor.MetricFearGreed); ok {
		line("😱 Fear & Greed: %.0f", v)
	}

	if len(d.Changes) > 0 {
		line("")
		line("[Since yesterday]")
		for _, c := range d.Changes {
			line("%s %s: %s -> %s (%+.2f%%)", c.Symbol, c.Metric.Label(), metricValue(c.Metric, c.Old), metricValue(c.Metric, c.New), c.ChangePct)
		}
	}

	if len(d.Week) > 0 {
		line("")
		line("[7-day]")
		for _, w := range d.Week {
			line("%s: current %s, 7-day average %s, trend %s", w.Metric.Label(), metricValue(w.Metric, w.Current), metricValue(w.Metric, w.Avg7d), w.Trend)
		}
	}

	line("")
	if len(d.Alerts) == 0 {
		b.WriteString("No alerts")
		return b.String()
	}
	line("[Alerts]")
	for i, a := range d.Alerts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("⚠️ " + a.Message)
	}
	return b.String()
}

func metricValue(m monitor.Metric, v float64) string {
	switch m {
	case monitor.MetricTVL, monitor.MetricBTCPrice:
		return usd(v)
	case monitor.MetricProtocolYield, monitor.MetricStakingYield:
		return fmt.Sprintf("%.2f%%", v)
	case monitor.MetricAHR999:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
