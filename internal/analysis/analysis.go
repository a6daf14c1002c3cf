package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/advice"
	"btc-advisor/internal/classify"
	"btc-advisor/internal/series"
	"btc-advisor/internal/stats"
)

// Status is the outcome of one analysis step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DefaultPeriod is the number of newest points considered per indicator.
const DefaultPeriod = 180

// IndicatorResult is the analysis of one indicator. Fields other than
// Indicator, Status and Message are only meaningful on success.
type IndicatorResult struct {
	Indicator      series.Indicator         `json:"indicator"`
	Status         Status                   `json:"status"`
	Message        string                   `json:"message,omitempty"`
	LatestDate     string                   `json:"latest_date,omitempty"`
	Stats          stats.Analysis           `json:"stats"`
	Classification *classify.Classification `json:"classification,omitempty"`
	ProviderClass  string                   `json:"provider_classification,omitempty"`
	Mood           classify.Mood            `json:"mood_change,omitempty"`
	Recommendation *advice.Recommendation   `json:"recommendation,omitempty"`
}

// OK reports whether the indicator was analysed.
func (r IndicatorResult) OK() bool {
	return r.Status == StatusSuccess
}

// Result is the outcome of one advice run.
type Result struct {
	Status          Status                  `json:"status"`
	Message         string                  `json:"message,omitempty"`
	GeneratedAt     time.Time               `json:"generated_at"`
	Period          int                     `json:"period"`
	Price           IndicatorResult         `json:"price"`
	AHR999          IndicatorResult         `json:"ahr999"`
	FearGreed       IndicatorResult         `json:"fear_greed"`
	Recommendations []advice.Recommendation `json:"recommendations"`
	Overall         advice.Overall          `json:"overall"`
	FormattedOutput string                  `json:"formatted_output"`
}

// Sentiment returns the sentiment indicators in evaluation order.
func (r Result) Sentiment() []IndicatorResult {
	return []IndicatorResult{r.AHR999, r.FearGreed}
}

// Engine runs statistics, classification and advice over the series.
type Engine struct {
	classifier *classify.Classifier
	period     int
	logger     zerolog.Logger
}

// NewEngine builds an engine. A non-positive period selects DefaultPeriod.
func NewEngine(classifier *classify.Classifier, period int, logger zerolog.Logger) *Engine {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Engine{
		classifier: classifier,
		period:     period,
		logger:     logger.With().Str("component", "analysis").Logger(),
	}
}

// Period returns the analysis window in points.
func (e *Engine) Period() int {
	return e.period
}

// OptionsFor returns the window statistics configuration of an indicator.
func OptionsFor(ind series.Indicator, period int) stats.Options {
	opts := stats.DefaultOptions()
	opts.PercentileWindow = period
	switch ind {
	case series.AHR999:
		opts.Windows = []int{7, 30}
		opts.VolatilityWindows = nil
	case series.FearGreed:
		opts.Windows = []int{7, 30}
		opts.VolatilityWindows = nil
		opts.Change = stats.ChangeAbsolute
	}
	return opts
}

// Indicator analyses one collection. It never returns an error; failures are
// reported through the result status.
func (e *Engine) Indicator(c series.Collection) IndicatorResult {
	res := IndicatorResult{Indicator: c.Indicator, Status: StatusError}

	points := append([]series.Point(nil), c.Points...)
	series.SortNewestFirst(points)
	if len(points) > e.period {
		points = points[:e.period]
	}
	window := series.Collection{Indicator: c.Indicator, Points: points}
	if window.Len() == 0 {
		res.Message = fmt.Sprintf("no %s data", c.Indicator.Label())
		e.logger.Warn().Str("indicator", string(c.Indicator)).Msg(res.Message)
		return res
	}

	a, err := stats.Analyze(window.Values(0), OptionsFor(c.Indicator, e.period))
	if err != nil {
		var insufficient *stats.InsufficientDataError
		if errors.As(err, &insufficient) {
			res.Message = fmt.Sprintf("%s: only %d days, need at least %d", c.Indicator.Label(), insufficient.Have, insufficient.Need)
		} else {
			res.Message = fmt.Sprintf("%s: %v", c.Indicator.Label(), err)
		}
		e.logger.Warn().Err(err).Str("indicator", string(c.Indicator)).Msg("analysis skipped")
		return res
	}

	res.Status = StatusSuccess
	res.Stats = a
	for _, p := range points {
		if p.Date != "" {
			res.LatestDate = p.Date
			break
		}
	}

	if c.Indicator == series.BTCPrice {
		rec := advice.ForPrice(a)
		res.Recommendation = &rec
		return res
	}

	cls, err := e.classifier.Classify(c.Indicator, a.Current)
	if err != nil {
		e.logger.Warn().Err(err).Str("indicator", string(c.Indicator)).Msg("classification unavailable")
		return res
	}
	res.Classification = &cls
	if c.Indicator == series.FearGreed {
		res.ProviderClass = points[0].Classification
		res.Mood = classify.MoodChange(a.Change7d)
	}
	if rec, ok := advice.ForState(cls); ok {
		res.Recommendation = &rec
	}
	return res
}

// Run analyses every indicator and aggregates their advice. Without a
// usable price series the result has status error and the fallback advice.
func (e *Engine) Run(sources map[series.Indicator]series.Collection, now time.Time) Result {
	collection := func(ind series.Indicator) series.Collection {
		c, ok := sources[ind]
		if !ok {
			return series.Collection{Indicator: ind}
		}
		c.Indicator = ind
		return c
	}

	r := Result{
		GeneratedAt: now,
		Period:      e.period,
		Price:       e.Indicator(collection(series.BTCPrice)),
		AHR999:      e.Indicator(collection(series.AHR999)),
		FearGreed:   e.Indicator(collection(series.FearGreed)),
	}

	if !r.Price.OK() {
		r.Status = StatusError
		r.Message = "cannot generate advice: missing price data (" + r.Price.Message + ")"
		r.Overall = advice.Fallback()
		e.logger.Error().Str("reason", r.Price.Message).Msg("advice generation failed")
		return r
	}

	for _, ind := range []IndicatorResult{r.Price, r.AHR999, r.FearGreed} {
		if ind.OK() && ind.Recommendation != nil {
			r.Recommendations = append(r.Recommendations, *ind.Recommendation)
		}
	}
	if !r.AHR999.OK() && !r.FearGreed.OK() {
		e.logger.Warn().Msg("sentiment analysis unavailable; advice based on price only")
	}
	r.Status = StatusSuccess
	r.Overall = advice.Aggregate(r.Recommendations)
	return r
}
