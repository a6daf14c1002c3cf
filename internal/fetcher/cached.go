package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/series"
)

// Cached serves a series from the file cache while it is fresh and merges
// remote history into it otherwise.
type Cached struct {
	source SeriesFetcher
	store  *series.Store
	maxAge time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewCached wraps source with the cache kept in store.
func NewCached(source SeriesFetcher, store *series.Store, maxAge time.Duration, logger zerolog.Logger) *Cached {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Cached{
		source: source,
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With().Str("component", "series_cache").Str("indicator", string(source.Indicator())).Logger(),
	}
}

// Indicator implements SeriesFetcher.
func (c *Cached) Indicator() series.Indicator {
	return c.source.Indicator()
}

// FetchSeries returns the cached series when fresh. Otherwise it fetches,
// merges by date and persists. A failed fetch falls back to whatever is cached.
func (c *Cached) FetchSeries(ctx context.Context, days int) (series.Collection, error) {
	return c.fetch(ctx, days, false)
}

// Refresh skips the freshness check.
func (c *Cached) Refresh(ctx context.Context, days int) (series.Collection, error) {
	return c.fetch(ctx, days, true)
}

func (c *Cached) fetch(ctx context.Context, days int, force bool) (series.Collection, error) {
	cached := c.store.Load(c.Indicator())
	if !force && series.IsFresh(cached, c.maxAge, c.now()) {
		c.logger.Debug().Int("points", cached.Len()).Msg("using fresh cache")
		return cached, nil
	}

	fetched, err := c.source.FetchSeries(ctx, days)
	if err != nil {
		if cached.Len() > 0 {
			c.logger.Warn().Err(err).Int("points", cached.Len()).Msg("fetch failed; serving stale cache")
			return cached, nil
		}
		return series.Collection{Indicator: c.Indicator()}, err
	}

	merged := series.Merge(cached, fetched)
	if err := c.store.Save(merged); err != nil {
		c.logger.Warn().Err(err).Msg("persist merged series failed")
	}
	c.logger.Info().Int("fetched", fetched.Len()).Int("total", merged.Len()).Msg("series refreshed")
	return merged, nil
}

var _ SeriesFetcher = (*Cached)(nil)
