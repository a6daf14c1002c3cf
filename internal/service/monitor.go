package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"btc-advisor/internal/alerting"
	"btc-advisor/internal/metrics"
	"btc-advisor/internal/monitor"
	"btc-advisor/internal/report"
	"btc-advisor/internal/series"
)

const digestTitle = "Ethena & BTC market monitor"

// Tick adapts MonitorTick to the scheduler and records job metrics.
func (s *Service) Tick(ctx context.Context, bucket time.Time) error {
	return s.runJob(ctx, "monitor", func(ctx context.Context) error {
		_, err := s.MonitorTick(ctx, bucket)
		return err
	})
}

// MonitorTick collects one record, appends it to the monitor log, prunes
// old records and posts the digest.
func (s *Service) MonitorTick(ctx context.Context, at time.Time) (report.Digest, error) {
	if s.deps.MonitorLog == nil {
		return report.Digest{}, errors.New("monitor log not configured")
	}
	if s.deps.Protocol == nil {
		return report.Digest{}, errors.New("protocol fetcher not configured")
	}
	if at.IsZero() {
		at = s.now()
	}

	rec, err := s.collect(ctx, at)
	if err != nil {
		return report.Digest{}, err
	}

	log := s.deps.MonitorLog
	if err := log.Append(ctx, rec); err != nil {
		return report.Digest{}, fmt.Errorf("append monitor record: %w", err)
	}
	if _, err := log.Prune(ctx, at.AddDate(0, 0, -s.opts.MonitorMaxDays)); err != nil {
		s.logger.Warn().Err(err).Msg("prune monitor log failed")
	}

	recent, err := log.Since(ctx, at.AddDate(0, 0, -8))
	if err != nil {
		s.logger.Warn().Err(err).Msg("read recent monitor records failed")
	}

	d := report.Digest{Latest: rec, Alerts: monitor.Alerts(rec, s.opts.Thresholds)}
	if prev, ok := monitor.LastOn(recent, monitor.Yesterday(at, s.opts.Location)); ok {
		d.Changes = monitor.Changes(prev, rec)
	}
	d.Week = monitor.Analyze7d(withinDays(recent, at, 7, s.opts.Location))

	for _, a := range d.Alerts {
		metrics.RecordAlert(string(a.Kind))
	}
	s.logger.Info().Str("timestamp", rec.Timestamp).Int("alerts", len(d.Alerts)).Msg("monitor record stored")

	if s.opts.AlwaysSend || len(d.Alerts) > 0 {
		s.notify(ctx, alerting.Notification{Kind: alerting.KindMonitor, Title: digestTitle, Body: report.FormatDigest(d)})
	}
	return d, nil
}

func (s *Service) collect(ctx context.Context, at time.Time) (monitor.Record, error) {
	rec := monitor.NewRecord(at, s.opts.Location)

	snap, err := s.deps.Protocol.FetchProtocol(ctx)
	if err != nil {
		return rec, fmt.Errorf("fetch ethena data: %w", err)
	}
	rec.Ethena.ProtocolYield = snap.ProtocolYield
	rec.Ethena.StakingYield = snap.StakingYield
	rec.Ethena.TVL = snap.TVL

	if s.deps.Vault != nil {
		if rate, block, err := s.deps.Vault.FetchRate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("vault rate unavailable")
		} else {
			v := rate.InexactFloat64()
			rec.Ethena.SUSDeRate = &v
			s.logger.Debug().Uint64("block", block).Float64("rate", v).Msg("vault rate read")
		}
	}

	var mu sync.Mutex
	latest := make(map[series.Indicator]float64, len(s.deps.Market))
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.deps.Market {
		g.Go(func() error {
			c, err := src.FetchSeries(gctx, 2)
			if err != nil {
				s.logger.Warn().Err(err).Str("indicator", string(src.Indicator())).Msg("market value unavailable")
				return nil
			}
			p, ok := c.Latest()
			if !ok {
				return nil
			}
			if v, ok := p.ValueOf(src.Indicator()); ok {
				mu.Lock()
				latest[src.Indicator()] = v
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if v, ok := latest[series.BTCPrice]; ok {
		rec.Market.BTC.Price = &v
	}
	if v, ok := latest[series.AHR999]; ok {
		rec.Market.Sentiment.AHR999 = &v
	}
	if v, ok := latest[series.FearGreed]; ok {
		rec.Market.Sentiment.FearGreed = &v
	}
	for ind, v := range latest {
		metrics.SetIndicator(string(ind), v)
	}
	metrics.SetIndicator("ethena_protocol_yield", rec.Ethena.ProtocolYield)
	metrics.SetIndicator("ethena_tvl", rec.Ethena.TVL)
	return rec, nil
}

func withinDays(records []monitor.Record, at time.Time, days int, loc *time.Location) []monitor.Record {
	cutoff := at.AddDate(0, 0, -days)
	out := make([]monitor.Record, 0, len(records))
	for _, r := range records {
		t, err := r.Time(loc)
		if err != nil || t.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}
