package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"btc-advisor/internal/alerting"
	"btc-advisor/internal/analysis"
	"btc-advisor/internal/classify"
	"btc-advisor/internal/config"
	"btc-advisor/internal/daily"
	"btc-advisor/internal/fetcher"
	"btc-advisor/internal/metrics"
	"btc-advisor/internal/monitor"
	"btc-advisor/internal/narrative"
	"btc-advisor/internal/scheduler"
	"btc-advisor/internal/series"
	"btc-advisor/internal/service"
	"btc-advisor/internal/storage"
	"btc-advisor/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) now() time.Time {
	return time.Now().In(a.Config.App.Location())
}

func (a *App) dailyPath() string {
	return filepath.Join(a.Config.Data.Dir, daily.FileName)
}

func (a *App) httpOptions() fetcher.HTTPOptions {
	src := a.Config.Sources
	return fetcher.HTTPOptions{
		Timeout:    src.RequestTimeout,
		RateLimit:  src.RateLimit,
		Burst:      src.Burst,
		MaxRetries: src.MaxRetries,
		Backoff:    src.RetryBackoff,
		UserAgent:  src.UserAgent,
	}
}

// newSeriesFetchers builds the raw providers in evaluation order.
func (a *App) newSeriesFetchers() []fetcher.SeriesFetcher {
	loc := a.Config.App.Location()
	httpOpts := a.httpOptions()
	return []fetcher.SeriesFetcher{
		fetcher.NewBinance(fetcher.BinanceOptions{
			BaseURL:  a.Config.Sources.BinanceURL,
			Symbol:   a.Config.Sources.Symbol,
			Location: loc,
			HTTP:     httpOpts,
		}, a.Logger),
		fetcher.NewAHR999(fetcher.AHR999Options{
			URL:       a.Config.Sources.AHR999URL,
			Location:  loc,
			KeepExtra: true,
			HTTP:      httpOpts,
		}, a.Logger),
		fetcher.NewFearGreed(fetcher.FearGreedOptions{
			URL:      a.Config.Sources.FearGreedURL,
			Location: loc,
			HTTP:     httpOpts,
		}, a.Logger),
	}
}

func (a *App) newCachedSources(store *series.Store) []fetcher.SeriesFetcher {
	raw := a.newSeriesFetchers()
	out := make([]fetcher.SeriesFetcher, len(raw))
	for i, src := range raw {
		out[i] = fetcher.NewCached(src, store, a.Config.Data.CacheMaxAge, a.Logger)
	}
	return out
}

func (a *App) newProtocol() fetcher.ProtocolFetcher {
	return fetcher.NewEthena(fetcher.EthenaOptions{
		DefiLlamaURL: a.Config.Sources.DefiLlamaURL,
		YieldURL:     a.Config.Sources.EthenaYieldURL,
		HTTP:         a.httpOptions(),
	}, a.Logger)
}

// newVault returns nil when no RPC endpoint is configured.
func (a *App) newVault() fetcher.VaultRateFetcher {
	vault := fetcher.NewVault(fetcher.VaultOptions{
		RPCURL:       a.Config.Ethereum.RPCURL,
		SUSDEAddress: a.Config.Ethereum.SUSDEAddress,
		Timeout:      a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
	if !vault.Configured() {
		return nil
	}
	return vault
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return nil
	}
	var out alerting.Multi
	if cfg.Webhook.Enabled {
		out = append(out, alerting.NewWebhookNotifier(cfg.Webhook.URL, cfg.Timeout, a.Logger))
	}
	if cfg.Telegram.Enabled {
		out = append(out, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (a *App) newEngine() (*analysis.Engine, error) {
	th := classify.DefaultThresholds()
	if b := a.Config.Signals.AHR999Bounds; len(b) > 0 {
		table, err := th[series.AHR999].WithBounds(b)
		if err != nil {
			return nil, fmt.Errorf("signals.ahr999_bounds: %w", err)
		}
		th[series.AHR999] = table
	}
	if b := a.Config.Signals.FearGreedBounds; len(b) > 0 {
		table, err := th[series.FearGreed].WithBounds(b)
		if err != nil {
			return nil, fmt.Errorf("signals.fear_greed_bounds: %w", err)
		}
		th[series.FearGreed] = table
	}
	cls, err := classify.New(th)
	if err != nil {
		return nil, err
	}
	return analysis.NewEngine(cls, a.Config.Data.AnalysisPeriod, a.Logger), nil
}

func (a *App) newNarrator(offline bool, months int) *narrative.Advisor {
	cfg := a.Config.Narrative
	if months <= 0 {
		months = cfg.Months
	}
	return narrative.New(narrative.Options{
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		APIKey:       cfg.APIKey,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		MaxRetries:   cfg.MaxRetries,
		Timeout:      cfg.Timeout,
		Months:       months,
		Budget:       cfg.Budget,
		Offline:      offline || cfg.Offline,
		ResponsesDir: a.Config.Data.ResponsesDir,
	}, a.Logger)
}

func (a *App) openMonitorLog() (monitor.Log, error) {
	cfg := a.Config.Monitor
	path := filepath.Join(a.Config.Data.Dir, cfg.File)
	if monitor.Backend(cfg.Backend) == monitor.BackendSQLite {
		path = filepath.Join(a.Config.Data.Dir, cfg.SQLitePath)
	}
	return monitor.Open(monitor.Backend(cfg.Backend), path, a.Config.App.Location(), a.Logger)
}

func (a *App) thresholds() monitor.Thresholds {
	cfg := a.Config.Monitor
	return monitor.Thresholds{
		MinAPY:           cfg.MinAPYAlert,
		MinTVL:           cfg.MinTVLAlert,
		ExtremeFear:      cfg.ExtremeFear,
		ExtremeGreed:     cfg.ExtremeGreed,
		AHR999Oversold:   cfg.AHR999Oversold,
		AHR999Overbought: cfg.AHR999Overbought,
	}
}

// openStore connects PostgreSQL when configured. The returned store is never
// nil; without a DSN its methods report storage.ErrNotConfigured.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// services bundles what newService opened so callers can release it.
type services struct {
	svc   *service.Service
	close func()
}

type serviceOptions struct {
	monitor  bool
	narrator *narrative.Advisor
}

func (a *App) newService(ctx context.Context, so serviceOptions) (*services, error) {
	engine, err := a.newEngine()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if !store.Configured() {
		a.Logger.Debug().Msg("database.dsn not configured; persistence disabled")
	}
	closers := []func(){closeStore}

	seriesStore := series.NewStore(a.Config.Data.Dir, a.Logger)
	deps := service.Deps{
		Sources:  a.newCachedSources(seriesStore),
		Store:    seriesStore,
		Engine:   engine,
		Notifier: a.newNotifier(),
		Narrator: so.narrator,
		Daily:    store,
		Runs:     store,
		Locker:   store,
	}

	if so.monitor {
		log, err := a.openMonitorLog()
		if err != nil {
			closeStore()
			return nil, err
		}
		closers = append(closers, func() {
			if err := log.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close monitor log failed")
			}
		})
		deps.MonitorLog = log
		deps.Market = a.newSeriesFetchers()
		deps.Protocol = a.newProtocol()
		deps.Vault = a.newVault()
	}

	svc := service.New(deps, service.Options{
		HistoryDays:      a.Config.Data.HistoryDays,
		HistoricalMaxAge: a.Config.Data.HistoricalMaxAge,
		ReportsDir:       a.Config.Data.ReportsDir,
		DailyPath:        a.dailyPath(),
		Push:             a.Config.Report.Push,
		Narrate:          a.Config.Report.Narrate,
		LockKey:          a.Config.Scheduler.AdvisoryLockKey,
		RunRetention:     a.Config.Report.RunRetention,
		MonitorMaxDays:   a.Config.Monitor.MaxDays,
		Thresholds:       a.thresholds(),
		AlwaysSend:       a.Config.Monitor.AlwaysSend,
		Location:         a.Config.App.Location(),
	}, a.Logger)

	return &services{svc: svc, close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}}, nil
}

// Run executes the long-running service: monitor ticks on the interval
// scheduler, the report job on its cron schedule and the metrics endpoint.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var narrator *narrative.Advisor
	if a.Config.Report.Narrate {
		narrator = a.newNarrator(false, 0)
	}
	s, err := a.newService(ctx, serviceOptions{monitor: true, narrator: narrator})
	if err != nil {
		return err
	}
	defer s.close()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   true,
	}, a.Logger)

	jobs := scheduler.NewCron(config.CronParser(), a.Config.App.Location(), a.Logger)
	if a.Config.Report.Schedule != "" {
		if err := jobs.Add("report", a.Config.Report.Schedule, s.svc.ReportJob); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx, s.svc.Tick) })
	g.Go(func() error { return jobs.Run(gctx) })
	if a.Config.Metrics.Enabled {
		metrics.Init()
		g.Go(func() error { return metrics.Serve(gctx, a.Config.Metrics.Addr, a.Logger) })
	}

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Str("report_schedule", a.Config.Report.Schedule).
		Time("next_report", jobs.Next()).
		Str("version", version.Version).
		Msg("starting advisor service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("advisor service stopped")
	return nil
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Force bool
	Quiet bool
	Push  bool
}

// AdviseOptions configure the narrative command.
type AdviseOptions struct {
	Months  int
	Offline bool
}

// ExportOptions hold parameters for exporting daily records.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
	// Secondary names the indicator drawn on the secondary axis.
	Secondary string
	// FromDB reads the PostgreSQL mirror instead of daily_data.json.
	FromDB bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Runs  bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   *time.Time
	To     *time.Time
	DryRun bool
	// Refresh regenerates daily_data.json from a forced refresh first.
	Refresh bool
}
