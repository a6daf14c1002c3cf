package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"btc-advisor/internal/daily"
	"btc-advisor/internal/metrics"
	"btc-advisor/internal/series"
)

// ErrNoMarketData means no indicator has any point after a refresh.
var ErrNoMarketData = errors.New("no market data available")

type forceRefresher interface {
	Refresh(ctx context.Context, days int) (series.Collection, error)
}

// Refresh returns the combined historical document, refetching the sources
// when it is older than the freshness window or force is set. Sources are
// fetched concurrently; a failed source keeps its previously stored series.
// When every source fails the stored document is returned unchanged.
func (s *Service) Refresh(ctx context.Context, force bool) (series.Historical, error) {
	store := s.deps.Store
	h, ok := store.LoadHistorical()
	if ok && !force && !h.Empty() {
		if age := s.now().Sub(h.UpdatedAt()); age < s.opts.HistoricalMaxAge {
			s.logger.Info().Dur("age", age).Msg("historical data is fresh; skipping refresh")
			return h, nil
		}
	}

	fetched := make([]series.Collection, len(s.deps.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.deps.Sources {
		g.Go(func() error {
			var (
				c   series.Collection
				err error
			)
			if r, ok := src.(forceRefresher); ok && force {
				c, err = r.Refresh(gctx, s.opts.HistoryDays)
			} else {
				c, err = src.FetchSeries(gctx, s.opts.HistoryDays)
			}
			if err != nil {
				s.logger.Warn().Err(err).Str("indicator", string(src.Indicator())).Msg("source refresh failed; keeping stored series")
				return nil
			}
			fetched[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return h, err
	}
	if err := ctx.Err(); err != nil {
		return h, err
	}

	updated := 0
	for i, src := range s.deps.Sources {
		if fetched[i].Len() == 0 {
			continue
		}
		ind := src.Indicator()
		h.Set(series.Merge(h.Collection(ind), fetched[i]))
		updated++
	}
	if h.Empty() {
		return h, ErrNoMarketData
	}
	// last_updated 只在拿到新数据时推进，全部失败时下次运行会重新拉取。
	if updated == 0 {
		s.logger.Warn().Time("last_updated", h.UpdatedAt()).Msg("every source failed; serving stored historical data")
		return h, nil
	}

	h.LastUpdated = s.now().Unix()
	if err := store.SaveHistorical(h); err != nil {
		return h, fmt.Errorf("save historical data: %w", err)
	}
	s.publishLatest(h)

	if _, err := s.Reorganize(ctx, h); err != nil {
		s.logger.Warn().Err(err).Msg("daily data regeneration failed")
	}
	return h, nil
}

// Reorganize rebuilds daily_data.json from h and mirrors it to PostgreSQL
// when configured.
func (s *Service) Reorganize(ctx context.Context, h series.Historical) ([]daily.Record, error) {
	records := daily.FromHistorical(h)
	if len(records) == 0 {
		s.logger.Warn().Msg("no daily records to write")
		return records, nil
	}
	if s.opts.DailyPath != "" {
		if err := daily.Save(s.opts.DailyPath, daily.NewDocument(records, s.now().In(s.opts.Location))); err != nil {
			return records, err
		}
		s.logger.Info().Int("records", len(records)).Str("path", s.opts.DailyPath).Msg("daily data written")
	}
	if s.deps.Daily != nil {
		n, err := s.deps.Daily.UpsertDaily(ctx, records)
		switch {
		case optional(err):
		case err != nil:
			s.logger.Error().Err(err).Msg("mirror daily records failed")
		default:
			s.logger.Debug().Int("rows", n).Msg("daily records mirrored")
		}
	}
	return records, nil
}

func (s *Service) publishLatest(h series.Historical) {
	for _, ind := range series.All() {
		p, ok := h.Collection(ind).Latest()
		if !ok {
			continue
		}
		if v, ok := p.ValueOf(ind); ok {
			metrics.SetIndicator(string(ind), v)
		}
	}
}

// sourcesOf exposes the historical document to the analysis engine.
func sourcesOf(h series.Historical) map[series.Indicator]series.Collection {
	out := make(map[series.Indicator]series.Collection, 3)
	for _, ind := range series.All() {
		out[ind] = h.Collection(ind)
	}
	return out
}
