package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/series"
)

// FearGreedOptions parameterise the alternative.me fetcher.
type FearGreedOptions struct {
	URL      string
	Location *time.Location
	HTTP     HTTPOptions
	Now      func() time.Time
}

// FearGreed fetches the Fear & Greed index history.
type FearGreed struct {
	opts FearGreedOptions
	http *jsonClient
}

// NewFearGreed constructs a Fear & Greed fetcher.
func NewFearGreed(opts FearGreedOptions, logger zerolog.Logger) *FearGreed {
	if opts.URL == "" {
		opts.URL = "https://api.alternative.me/fng/?limit=0"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FearGreed{opts: opts, http: newJSONClient("fear_greed", opts.HTTP, logger)}
}

// Indicator implements SeriesFetcher.
func (f *FearGreed) Indicator() series.Indicator {
	return series.FearGreed
}

type fngResponse struct {
	Data []struct {
		Value          json.RawMessage `json:"value"`
		Classification string          `json:"value_classification"`
		Timestamp      json.RawMessage `json:"timestamp"`
	} `json:"data"`
}

// FetchSeries returns the rows published within the last days, newest first.
func (f *FearGreed) FetchSeries(ctx context.Context, days int) (series.Collection, error) {
	var resp fngResponse
	if err := f.http.getJSON(ctx, f.opts.URL, &resp); err != nil {
		return series.Collection{}, err
	}

	var cutoff time.Time
	if days > 0 {
		cutoff = f.opts.Now().Add(-time.Duration(days) * 24 * time.Hour)
	}

	points := make([]series.Point, 0, len(resp.Data))
	for i, row := range resp.Data {
		ts, ok, err := number(row.Timestamp)
		if err != nil || !ok {
			f.http.logger.Debug().Int("row", i).Msg("skipping fear & greed row without timestamp")
			continue
		}
		value, ok, err := number(row.Value)
		if err != nil || !ok {
			f.http.logger.Debug().Int("row", i).Msg("skipping fear & greed row without value")
			continue
		}
		p := series.Point{Timestamp: int64(ts), Classification: row.Classification}
		p.Value = series.Float(float64(int(value)))
		if !cutoff.IsZero() && p.Time().Before(cutoff) {
			continue
		}
		p.Date = dayOf(p.Time(), f.opts.Location)
		points = append(points, p)
	}
	if len(points) == 0 {
		return series.Collection{}, fmt.Errorf("fear & greed returned no rows within %d days", days)
	}

	series.SortNewestFirst(points)
	return series.Collection{Indicator: series.FearGreed, Points: points}, nil
}

var _ SeriesFetcher = (*FearGreed)(nil)
