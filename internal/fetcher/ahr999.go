package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/series"
)

// AHR999Options parameterise the AHR999 index fetcher.
type AHR999Options struct {
	URL      string
	Location *time.Location
	// KeepExtra retains price, ma200 and the price/ma ratio on each point.
	KeepExtra bool
	HTTP      HTTPOptions
}

// AHR999 fetches the AHR999 index history.
type AHR999 struct {
	opts AHR999Options
	http *jsonClient
}

// NewAHR999 constructs an AHR999 fetcher.
func NewAHR999(opts AHR999Options, logger zerolog.Logger) *AHR999 {
	if opts.URL == "" {
		opts.URL = "https://dncapi.flink1.com/api/v2/index/arh999?code=bitcoin&webp=1"
	}
	return &AHR999{opts: opts, http: newJSONClient("ahr999", opts.HTTP, logger)}
}

// Indicator implements SeriesFetcher.
func (a *AHR999) Indicator() series.Indicator {
	return series.AHR999
}

type ahr999Response struct {
	Code json.RawMessage     `json:"code"`
	Data [][]json.RawMessage `json:"data"`
}

// accepted reports whether the envelope code signals success. Absent, 0 and
// 200 are all used by the provider.
func (r ahr999Response) accepted() bool {
	code, ok, err := number(r.Code)
	if err != nil {
		return false
	}
	return !ok || code == 0 || code == 200
}

// FetchSeries returns the newest days rows, newest first. Rows are
// [timestamp(s), ahr999, price, ma200, price/ma200].
func (a *AHR999) FetchSeries(ctx context.Context, days int) (series.Collection, error) {
	var resp ahr999Response
	if err := a.http.getJSON(ctx, a.opts.URL, &resp); err != nil {
		return series.Collection{}, err
	}
	if !resp.accepted() {
		return series.Collection{}, fmt.Errorf("ahr999 api returned code %s", resp.Code)
	}

	rows := resp.Data
	if days > 0 && len(rows) > days {
		rows = rows[len(rows)-days:]
	}

	points := make([]series.Point, 0, len(rows))
	for i, row := range rows {
		p, err := a.parseRow(row)
		if err != nil {
			a.http.logger.Debug().Err(err).Int("row", i).Msg("skipping ahr999 row")
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return series.Collection{}, fmt.Errorf("ahr999 returned no usable rows")
	}

	series.SortNewestFirst(points)
	return series.Collection{Indicator: series.AHR999, Points: points}, nil
}

func (a *AHR999) parseRow(row []json.RawMessage) (series.Point, error) {
	if len(row) < 2 {
		return series.Point{}, fmt.Errorf("row has %d fields", len(row))
	}
	ts, ok, err := number(row[0])
	if err != nil || !ok {
		return series.Point{}, fmt.Errorf("missing timestamp")
	}
	value, ok, err := number(row[1])
	if err != nil || !ok {
		return series.Point{}, fmt.Errorf("missing ahr999 value")
	}

	p := series.Point{Timestamp: int64(ts), AHR999: series.Float(value)}
	p.Date = dayOf(p.Time(), a.opts.Location)

	if a.opts.KeepExtra && len(row) >= 5 {
		extras := []**float64{&p.Price, &p.MA200, &p.PriceMARatio}
		for i, dst := range extras {
			if v, ok, err := number(row[i+2]); err == nil && ok {
				*dst = series.Float(v)
			}
		}
	}
	return p, nil
}

var _ SeriesFetcher = (*AHR999)(nil)
