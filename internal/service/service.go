package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-advisor/internal/alerting"
	"btc-advisor/internal/analysis"
	"btc-advisor/internal/fetcher"
	"btc-advisor/internal/metrics"
	"btc-advisor/internal/monitor"
	"btc-advisor/internal/narrative"
	"btc-advisor/internal/series"
	"btc-advisor/internal/storage"
)

// Options tune the pipeline.
type Options struct {
	HistoryDays      int
	HistoricalMaxAge time.Duration
	ReportsDir       string
	// DailyPath is where daily_data.json is written after each refresh.
	DailyPath        string
	Push             bool
	Narrate          bool
	LockKey          int64

	// RunRetention prunes stored advice runs older than this; 0 keeps all.
	RunRetention time.Duration

	MonitorMaxDays int
	Thresholds     monitor.Thresholds
	AlwaysSend     bool

	Location *time.Location
	Now      func() time.Time
}

// Deps are the collaborators of the service. Optional ones may be nil.
type Deps struct {
	// Sources serve the analysis history, usually cache-backed.
	Sources  []fetcher.SeriesFetcher
	// Market serve the monitor's latest values without caching.
	Market   []fetcher.SeriesFetcher
	Protocol fetcher.ProtocolFetcher
	Vault    fetcher.VaultRateFetcher

	Store      *series.Store
	Engine     *analysis.Engine
	MonitorLog monitor.Log
	Notifier   alerting.Notifier
	Narrator   *narrative.Advisor

	Daily  storage.DailyStore
	Runs   storage.RunStore
	Locker storage.AdvisoryLocker
}

// Service orchestrates fetching, analysis, persistence, and notification.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

// New constructs the service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 365
	}
	if opts.HistoricalMaxAge <= 0 {
		opts.HistoricalMaxAge = 12 * time.Hour
	}
	if opts.ReportsDir == "" {
		opts.ReportsDir = "reports"
	}
	if opts.MonitorMaxDays <= 0 {
		opts.MonitorMaxDays = 30
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{deps: deps, opts: opts, logger: logger.With().Str("component", "service").Logger()}
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

// runJob wraps a scheduled job with the advisory lock and job metrics.
func (s *Service) runJob(ctx context.Context, job string, fn func(context.Context) error) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		metrics.RecordJob(job, 0, err)
		return err
	}
	if !proceed {
		s.logger.Debug().Str("job", job).Msg("skip job because advisory lock held elsewhere")
		metrics.RecordJobSkipped(job)
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	err = fn(ctx)
	metrics.RecordJob(job, time.Since(started), err)
	return err
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) notify(ctx context.Context, note alerting.Notification) {
	if s.deps.Notifier == nil {
		return
	}
	if note.SentAt.IsZero() {
		note.SentAt = s.now().In(s.opts.Location)
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch notification")
	}
}

// optional reports whether err only means an optional backend is absent.
func optional(err error) bool {
	return errors.Is(err, storage.ErrNotConfigured)
}
