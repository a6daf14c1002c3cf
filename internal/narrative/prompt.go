package narrative

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"text/template"
	"time"

	"btc-advisor/internal/advice"
	"btc-advisor/internal/daily"
)

const systemPrompt = "You are a professional Bitcoin investment advisor with deep crypto market experience and strict risk management. Base every statement only on the data provided."

var promptTemplate = template.Must(template.New("advice").Parse(`Provide a complete analysis and concrete, executable investment advice based on the current market data ({{.Date}}).

# TL;DR
Open with a summary under 50 words covering:
- market state: bull / bear / range
- decision: add / reduce / full position / exit / hold
- key reason

Portfolio:
- total budget: ${{printf "%.0f" .Budget}}
- risk appetite: moderate, maximum drawdown 30%
- horizon: medium to long term (6-18 months)

Rule-based signal from the indicator model:
- action: {{.Overall.Action}}
- confidence: {{.Overall.Confidence}}
- reason: {{.Overall.Reason}}

Daily market data ({{.Count}} records, JSON, newest first, from {{.From}} to {{.To}}):
{{.DataJSON}}

Structure the answer as:
## 1. Market cycle
Where the market is in its cycle (accumulation / markup / distribution / markdown), key support and resistance, and what AHR999 and Fear & Greed imply.
## 2. Indicators
Price trend, AHR999 valuation and Fear & Greed sentiment against their history in the data.
## 3. Decision
Position size as a percentage of the budget, entry levels and stop levels.
## 4. Risks
The main risks and what would invalidate the decision.
`))

// PromptData fills the advice prompt.
type PromptData struct {
	Date     string
	Budget   float64
	Overall  advice.Overall
	Count    int
	From     string
	To       string
	DataJSON string
}

// BuildPrompt renders the user prompt for records (newest first).
func BuildPrompt(records []daily.Record, overall advice.Overall, budget float64, now time.Time) (string, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	data := PromptData{
		Date:     now.Format("2006-01-02"),
		Budget:   budget,
		Overall:  overall,
		Count:    len(records),
		DataJSON: string(payload),
	}
	if len(records) > 0 {
		data.From = records[len(records)-1].Date
		data.To = records[0].Date
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// fallbackRecords caps the record set used when nothing falls in the window.
const fallbackRecords = 100

// SelectRecords keeps records dated within months*30 days of now, newest
// first. When none qualify the newest 100 records are used instead.
func SelectRecords(records []daily.Record, months int, now time.Time) []daily.Record {
	sorted := make([]daily.Record, 0, len(records))
	for _, r := range records {
		if r.Date != "" {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })

	if months <= 0 {
		months = 3
	}
	start := now.AddDate(0, 0, -30*months).Format("2006-01-02")

	var out []daily.Record
	for _, r := range sorted {
		if r.Date >= start {
			out = append(out, r)
		}
	}
	if len(out) > 0 {
		return out
	}
	if len(sorted) > fallbackRecords {
		sorted = sorted[:fallbackRecords]
	}
	return sorted
}
