package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"btc-advisor/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. BTCADVISOR_NARRATIVE_API_KEY.
const EnvPrefix = "BTCADVISOR"

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Sources   SourcesConfig   `mapstructure:"sources" yaml:"sources"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum" yaml:"ethereum"`
	Signals   SignalsConfig   `mapstructure:"signals" yaml:"signals"`
	Monitor   MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Narrative NarrativeConfig `mapstructure:"narrative" yaml:"narrative"`
	Alerting  AlertingConfig  `mapstructure:"alerting" yaml:"alerting"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	// Timezone used to render calendar dates of fetched points.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DataConfig locates the file stores and tunes analysis windows.
type DataConfig struct {
	Dir              string        `mapstructure:"dir" yaml:"dir"`
	ReportsDir       string        `mapstructure:"reports_dir" yaml:"reports_dir"`
	ResponsesDir     string        `mapstructure:"responses_dir" yaml:"responses_dir"`
	HistoryDays      int           `mapstructure:"history_days" yaml:"history_days"`
	AnalysisPeriod   int           `mapstructure:"analysis_period" yaml:"analysis_period"`
	CacheMaxAge      time.Duration `mapstructure:"cache_max_age" yaml:"cache_max_age"`
	HistoricalMaxAge time.Duration `mapstructure:"historical_max_age" yaml:"historical_max_age"`
}

// SourcesConfig captures the market data endpoints.
type SourcesConfig struct {
	BinanceURL     string        `mapstructure:"binance_url" yaml:"binance_url"`
	Symbol         string        `mapstructure:"symbol" yaml:"symbol"`
	AHR999URL      string        `mapstructure:"ahr999_url" yaml:"ahr999_url"`
	FearGreedURL   string        `mapstructure:"fear_greed_url" yaml:"fear_greed_url"`
	DefiLlamaURL   string        `mapstructure:"defillama_url" yaml:"defillama_url"`
	EthenaYieldURL string        `mapstructure:"ethena_yield_url" yaml:"ethena_yield_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst          int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url" yaml:"rpc_url"`
	SUSDEAddress   string        `mapstructure:"susde_address" yaml:"susde_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SignalsConfig overrides the finite classification bounds.
type SignalsConfig struct {
	AHR999Bounds    []float64 `mapstructure:"ahr999_bounds" yaml:"ahr999_bounds"`
	FearGreedBounds []float64 `mapstructure:"fear_greed_bounds" yaml:"fear_greed_bounds"`
}

// MonitorConfig drives the continuous monitor.
type MonitorConfig struct {
	Backend          string  `mapstructure:"backend" yaml:"backend"`
	File             string  `mapstructure:"file" yaml:"file"`
	SQLitePath       string  `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MaxDays          int     `mapstructure:"max_days" yaml:"max_days"`
	MinAPYAlert      float64 `mapstructure:"min_apy_alert" yaml:"min_apy_alert"`
	MinTVLAlert      float64 `mapstructure:"min_tvl_alert" yaml:"min_tvl_alert"`
	ExtremeFear      float64 `mapstructure:"extreme_fear" yaml:"extreme_fear"`
	ExtremeGreed     float64 `mapstructure:"extreme_greed" yaml:"extreme_greed"`
	AHR999Oversold   float64 `mapstructure:"ahr999_oversold" yaml:"ahr999_oversold"`
	AHR999Overbought float64 `mapstructure:"ahr999_overbought" yaml:"ahr999_overbought"`
	AlwaysSend       bool    `mapstructure:"always_send" yaml:"always_send"`
}

// ReportConfig schedules and routes the advice report.
type ReportConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	Push     bool   `mapstructure:"push" yaml:"push"`
	Narrate  bool   `mapstructure:"narrate" yaml:"narrate"`

	// RunRetention bounds how long advice runs stay in PostgreSQL; 0 keeps all.
	RunRetention time.Duration `mapstructure:"run_retention" yaml:"run_retention"`
}

// NarrativeConfig configures the chat completion client.
type NarrativeConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int64         `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Months      int           `mapstructure:"months" yaml:"months"`
	Budget      float64       `mapstructure:"budget" yaml:"budget"`
	Offline     bool          `mapstructure:"offline" yaml:"offline"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Channels []string       `mapstructure:"channels" yaml:"channels"`
	Timeout  time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	Webhook  WebhookConfig  `mapstructure:"webhook" yaml:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// WebhookConfig 描述群机器人 webhook 参数。
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	APIBase  string `mapstructure:"api_base" yaml:"api_base"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// SchedulerConfig governs the monitor cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval" yaml:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket" yaml:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key" yaml:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points" yaml:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads .env without overriding variables already set.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "btcadvisor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "UTC")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.reports_dir", "reports")
	v.SetDefault("data.responses_dir", "responses")
	v.SetDefault("data.history_days", 365)
	v.SetDefault("data.analysis_period", 180)
	v.SetDefault("data.cache_max_age", "24h")
	v.SetDefault("data.historical_max_age", "12h")

	v.SetDefault("sources.binance_url", "https://api.binance.com")
	v.SetDefault("sources.symbol", "BTCUSDT")
	v.SetDefault("sources.ahr999_url", "https://dncapi.flink1.com/api/v2/index/arh999?code=bitcoin&webp=1")
	v.SetDefault("sources.fear_greed_url", "https://api.alternative.me/fng/?limit=0")
	v.SetDefault("sources.defillama_url", "https://api.llama.fi/protocol/ethena")
	v.SetDefault("sources.ethena_yield_url", "https://ethena.fi/api/yields/protocol-and-staking-yield")
	v.SetDefault("sources.request_timeout", "30s")
	v.SetDefault("sources.rate_limit", 2.0)
	v.SetDefault("sources.burst", 2)
	v.SetDefault("sources.max_retries", 3)
	v.SetDefault("sources.retry_backoff", "2s")
	v.SetDefault("sources.user_agent", "btcadvisor/1.0")

	// 无默认值的键也要注册，否则 AutomaticEnv 不会在 Unmarshal 时读取对应的环境变量。
	v.SetDefault("ethereum.rpc_url", "")
	v.SetDefault("ethereum.susde_address", "0x9D39A5DE30e57443BfF2A8307A4256c8797A3497")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("signals.ahr999_bounds", []float64{0.25, 0.45, 0.8, 1.2, 1.8})
	v.SetDefault("signals.fear_greed_bounds", []float64{20, 40, 60, 80})

	v.SetDefault("monitor.backend", "jsonl")
	v.SetDefault("monitor.file", "market_data.txt")
	v.SetDefault("monitor.sqlite_path", "market_data.db")
	v.SetDefault("monitor.max_days", 30)
	v.SetDefault("monitor.min_apy_alert", 10.0)
	v.SetDefault("monitor.min_tvl_alert", 1e8)
	v.SetDefault("monitor.extreme_fear", 20.0)
	v.SetDefault("monitor.extreme_greed", 80.0)
	v.SetDefault("monitor.ahr999_oversold", 0.45)
	v.SetDefault("monitor.ahr999_overbought", 1.2)
	v.SetDefault("monitor.always_send", true)

	v.SetDefault("report.schedule", "0 0 8 * * *")
	v.SetDefault("report.push", false)
	v.SetDefault("report.narrate", false)
	v.SetDefault("report.run_retention", "2160h")

	v.SetDefault("narrative.base_url", "https://api.deepseek.com")
	v.SetDefault("narrative.model", "deepseek-chat")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.temperature", 0.7)
	v.SetDefault("narrative.max_tokens", 4000)
	v.SetDefault("narrative.max_retries", 3)
	v.SetDefault("narrative.timeout", "120s")
	v.SetDefault("narrative.months", 3)
	v.SetDefault("narrative.budget", 1000)
	v.SetDefault("narrative.offline", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"webhook"})
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.url", "")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x62746361))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("export.max_data_points", 5000)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if c.Data.HistoryDays <= 0 {
		return fmt.Errorf("data.history_days must be greater than zero")
	}
	if c.Data.AnalysisPeriod < 7 {
		return fmt.Errorf("data.analysis_period must be at least 7")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Sources.RateLimit < 0 {
		return fmt.Errorf("sources.rate_limit cannot be negative")
	}
	if c.Monitor.MaxDays <= 0 {
		return fmt.Errorf("monitor.max_days must be greater than zero")
	}
	switch c.Monitor.Backend {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("monitor.backend must be jsonl or sqlite, got %q", c.Monitor.Backend)
	}
	if c.Report.Schedule != "" {
		if _, err := cron.NewParser(cronFields).Parse(c.Report.Schedule); err != nil {
			return fmt.Errorf("report.schedule: %w", err)
		}
	}
	if c.Narrative.Months <= 0 {
		return fmt.Errorf("narrative.months must be greater than zero")
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url 必须配置")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// cronFields accepts an optional leading seconds field.
const cronFields = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// CronParser parses report schedules with the same field set Validate uses.
func CronParser() cron.Parser {
	return cron.NewParser(cronFields)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
