package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/series"
)

const maxKlineLimit = 1000

// BinanceOptions parameterise the daily kline fetcher.
type BinanceOptions struct {
	BaseURL  string
	Symbol   string
	Location *time.Location
	HTTP     HTTPOptions
}

// Binance fetches daily closes from the spot klines endpoint.
type Binance struct {
	opts    BinanceOptions
	baseURL string
	http    *jsonClient
}

// NewBinance constructs a BTC price fetcher.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if opts.Symbol == "" {
		opts.Symbol = "BTCUSDT"
	}
	return &Binance{opts: opts, baseURL: baseURL, http: newJSONClient("binance", opts.HTTP, logger)}
}

// Indicator implements SeriesFetcher.
func (b *Binance) Indicator() series.Indicator {
	return series.BTCPrice
}

// FetchSeries returns up to days daily closes, newest first.
func (b *Binance) FetchSeries(ctx context.Context, days int) (series.Collection, error) {
	limit := days
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	q := url.Values{}
	q.Set("symbol", b.opts.Symbol)
	q.Set("interval", "1d")
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := b.http.getJSON(ctx, b.baseURL+"/api/v3/klines?"+q.Encode(), &rows); err != nil {
		return series.Collection{}, err
	}

	points := make([]series.Point, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			b.http.logger.Debug().Int("row", i).Msg("skipping short kline row")
			continue
		}
		openTime, ok, err := number(row[0])
		if err != nil || !ok {
			b.http.logger.Debug().Int("row", i).Msg("skipping kline without open time")
			continue
		}
		closePrice, ok, err := number(row[4])
		if err != nil || !ok {
			b.http.logger.Debug().Int("row", i).Msg("skipping kline without close")
			continue
		}
		ts := int64(openTime)
		points = append(points, series.Point{
			Timestamp: ts,
			Date:      dayOf(time.UnixMilli(ts), b.opts.Location),
			Price:     series.Float(closePrice),
		})
	}
	if len(points) == 0 {
		return series.Collection{}, fmt.Errorf("binance returned no usable klines")
	}

	series.SortNewestFirst(points)
	return series.Collection{Indicator: series.BTCPrice, Points: points}, nil
}

var _ SeriesFetcher = (*Binance)(nil)
