package advice

import (
	"fmt"
	"sort"
	"strings"

	"btc-advisor/internal/classify"
	"btc-advisor/internal/series"
	"btc-advisor/internal/stats"
)

// Confidence is the certainty attached to a recommendation.
type Confidence string

const (
	Low        Confidence = "low"
	Medium     Confidence = "medium"
	MediumHigh Confidence = "medium-high"
	High       Confidence = "high"
)

// Weight is the vote weight of a confidence level. Unknown levels count as medium.
func (c Confidence) Weight() int {
	switch c {
	case Low:
		return 1
	case Medium:
		return 2
	case MediumHigh:
		return 3
	case High:
		return 4
	default:
		return 2
	}
}

// ConfidenceFor buckets an accumulated vote weight.
func ConfidenceFor(weight int) Confidence {
	switch {
	case weight >= 7:
		return High
	case weight >= 5:
		return MediumHigh
	case weight >= 3:
		return Medium
	default:
		return Low
	}
}

// Recommendation is the advice derived from a single indicator.
type Recommendation struct {
	Source     series.Indicator `json:"source"`
	Action     string           `json:"action"`
	Reason     string           `json:"reason"`
	Confidence Confidence       `json:"confidence"`
}

// Overall is the aggregated recommendation.
type Overall struct {
	Action     string         `json:"action"`
	Reason     string         `json:"reason"`
	Confidence Confidence     `json:"confidence"`
	Weights    map[string]int `json:"weights,omitempty"`
}

// Fallback values used when no indicator produced a recommendation.
const (
	FallbackAction = "observe/hold"
	FallbackReason = "insufficient data"
)

// Fallback is returned by Aggregate for an empty input.
func Fallback() Overall {
	return Overall{Action: FallbackAction, Reason: FallbackReason, Confidence: Low}
}

// sourceRank fixes the evaluation order used for tie-breaking.
func sourceRank(ind series.Indicator) int {
	for i, s := range series.All() {
		if s == ind {
			return i
		}
	}
	return len(series.All())
}

// Aggregate combines recommendations by confidence-weighted vote. Equal
// weights resolve to the action seen first in price, AHR999, Fear & Greed
// order, independent of the order of recs.
func Aggregate(recs []Recommendation) Overall {
	if len(recs) == 0 {
		return Fallback()
	}

	ordered := append([]Recommendation(nil), recs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return sourceRank(ordered[i].Source) < sourceRank(ordered[j].Source)
	})

	weights := make(map[string]int, len(ordered))
	var seen []string
	for _, r := range ordered {
		if _, ok := weights[r.Action]; !ok {
			seen = append(seen, r.Action)
		}
		weights[r.Action] += r.Confidence.Weight()
	}

	winner := seen[0]
	for _, action := range seen[1:] {
		if weights[action] > weights[winner] {
			winner = action
		}
	}

	var reasons []string
	for _, r := range ordered {
		if r.Action == winner {
			reasons = append(reasons, r.Reason)
		}
	}

	return Overall{
		Action:     winner,
		Reason:     "Combined: " + strings.Join(reasons, "; "),
		Confidence: ConfidenceFor(weights[winner]),
		Weights:    weights,
	}
}

// anyTrend matches every trend in a decision row.
const anyTrend stats.Trend = "*"

type priceRule struct {
	trend30d   stats.Trend
	trend7d    []stats.Trend
	when       func(stats.Analysis) bool
	action     string
	reason     string
	confidence Confidence
}

func (r priceRule) matches(a stats.Analysis) bool {
	if r.trend30d != anyTrend && r.trend30d != a.Trend30d {
		return false
	}
	ok := false
	for _, t := range r.trend7d {
		if t == anyTrend || t == a.Trend7d {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	return r.when == nil || r.when(a)
}

// priceRules is evaluated top to bottom; the first matching row wins.
var priceRules = []priceRule{
	{stats.TrendUp, []stats.Trend{stats.TrendUp}, func(a stats.Analysis) bool { return a.Change7d > 10 },
		"watch or trim", "price rose quickly in the short term, a pullback is possible", Medium},
	{stats.TrendUp, []stats.Trend{stats.TrendUp}, nil,
		"hold", "price keeps a steady uptrend", Medium},
	{stats.TrendUp, []stats.Trend{stats.TrendDown}, func(a stats.Analysis) bool { return a.Change7d < -7 },
		"buy the dip (small)", "short-term pullback inside a medium-term uptrend", Medium},
	{stats.TrendUp, []stats.Trend{stats.TrendDown, stats.TrendFlat}, nil,
		"hold", "minor pullback, medium-term trend still up", Medium},
	{stats.TrendDown, []stats.Trend{stats.TrendUp}, nil,
		"cautious hold", "possibly a short rebound within a medium-term downtrend", Low},
	{stats.TrendDown, []stats.Trend{anyTrend}, func(a stats.Analysis) bool { return a.Change30d < -20 },
		"cautious small buy", "price may be bottoming after a deep decline", Low},
	{stats.TrendDown, []stats.Trend{anyTrend}, nil,
		"observe", "price is in a downtrend, wait for stabilisation", Medium},
	{stats.TrendFlat, []stats.Trend{stats.TrendUp}, nil,
		"hold", "medium-term flat with short-term strength", Low},
	{anyTrend, []stats.Trend{anyTrend}, nil,
		"observe", "no clear price trend", Low},
}

// ForPrice looks the price analysis up in the price decision table.
func ForPrice(a stats.Analysis) Recommendation {
	for _, r := range priceRules {
		if r.matches(a) {
			return Recommendation{Source: series.BTCPrice, Action: r.action, Reason: r.reason, Confidence: r.confidence}
		}
	}
	// unreachable: the last row matches everything
	return Recommendation{Source: series.BTCPrice, Action: FallbackAction, Reason: FallbackReason, Confidence: Low}
}

type stateAdvice struct {
	action     string
	reason     string
	confidence Confidence
}

var stateTables = map[series.Indicator]map[classify.State]stateAdvice{
	series.AHR999: {
		classify.AHRExtremeValue: {"heavy buy", "AHR999 (%.3f) shows extreme undervaluation", High},
		classify.AHRBottom:       {"regular buy", "AHR999 (%.3f) shows undervaluation", MediumHigh},
		classify.AHRAccumulation: {"small buy", "AHR999 (%.3f) is near the lower end of fair value", Medium},
		classify.AHRFairValue:    {"hold", "AHR999 (%.3f) is near the upper end of fair value", Medium},
		classify.AHRProfitTaking: {"small reduce", "AHR999 (%.3f) shows overvaluation", MediumHigh},
		classify.AHRBubble:       {"heavy reduce", "AHR999 (%.3f) shows extreme overvaluation", High},
	},
	series.FearGreed: {
		classify.ExtremeFear:  {"gradual buy", "Fear & Greed (%.0f) shows extreme fear, usually a buying opportunity", MediumHigh},
		classify.Fear:         {"small buy", "Fear & Greed (%.0f) shows fear", Medium},
		classify.Neutral:      {"hold", "Fear & Greed (%.0f) shows neutral sentiment", Medium},
		classify.Greed:        {"cautious hold", "Fear & Greed (%.0f) shows greed", Medium},
		classify.ExtremeGreed: {"consider reducing", "Fear & Greed (%.0f) shows extreme greed, mind the risk", MediumHigh},
	},
}

// ForState looks a classified indicator up in its state table.
func ForState(c classify.Classification) (Recommendation, bool) {
	table, ok := stateTables[c.Indicator]
	if !ok {
		return Recommendation{}, false
	}
	sa, ok := table[c.State]
	if !ok {
		return Recommendation{}, false
	}
	return Recommendation{
		Source:     c.Indicator,
		Action:     sa.action,
		Reason:     fmt.Sprintf(sa.reason, c.Value),
		Confidence: sa.confidence,
	}, true
}
