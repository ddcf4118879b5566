// Package config handles configuration loading and validation for the dashboard.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the dashboard
type Config struct {
	Poller    PollerConfig    `mapstructure:"poller"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Price     PriceConfig     `mapstructure:"price"`
	History   HistoryConfig   `mapstructure:"history"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	API       APIConfig       `mapstructure:"api"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	NewRelic  NewRelicConfig  `mapstructure:"newrelic"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Log       LogConfig       `mapstructure:"log"`
}

// PollerConfig defines the tick cadence
type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxParallel  int           `mapstructure:"max_parallel"`
}

// SourcesConfig defines the local node and miner endpoints
type SourcesConfig struct {
	DataAPIURL     string        `mapstructure:"data_api_url"`
	XMRigURL       string        `mapstructure:"xmrig_url"`
	XMRigToken     string        `mapstructure:"xmrig_token"`
	MonerodURL     string        `mapstructure:"monerod_url"`
	BlockTime      time.Duration `mapstructure:"block_time"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LedgerConfig selects the payout-sharing ledger (p2pool observer).
// Observers are tried in order; later entries are failover targets.
type LedgerConfig struct {
	Wallet              string        `mapstructure:"wallet"`
	Observers           []string      `mapstructure:"observers"`
	ShareLimit          int           `mapstructure:"share_limit"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	MaxFailures         int           `mapstructure:"max_failures"`
	RecoveryThreshold   int           `mapstructure:"recovery_threshold"`
}

// PriceConfig defines fiat price lookups
type PriceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Fiat     string        `mapstructure:"fiat"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// HistoryConfig defines retention and persistence of samples
type HistoryConfig struct {
	Retention    time.Duration `mapstructure:"retention"`
	Backend      string        `mapstructure:"backend"`
	Path         string        `mapstructure:"path"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// AnalyticsConfig defines averaging and estimator policies
type AnalyticsConfig struct {
	AveragePolicy       string        `mapstructure:"average_policy"`
	FixedWindow         time.Duration `mapstructure:"fixed_window"`
	MaxWindow           time.Duration `mapstructure:"max_window"`
	PayoutStrategy      string        `mapstructure:"payout_strategy"`
	MinPayoutThreshold  float64       `mapstructure:"min_payout_threshold"`
	MiningStarted       string        `mapstructure:"mining_started"`
	UnclePenaltyPercent float64       `mapstructure:"uncle_penalty_percent"`
	RecentPayments      int           `mapstructure:"recent_payments"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig defines API server settings
type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Bind        string   `mapstructure:"bind"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// NotifyConfig defines payout webhook settings
type NotifyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	DashboardURL string `mapstructure:"dashboard_url"`
}

// NewRelicConfig defines APM settings
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// ProfilingConfig enables pprof routes on the API server
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Averaging policies
const (
	AverageDynamic = "dynamic"
	AverageFixed   = "fixed"
)

// Payout interval strategies
const (
	PayoutThreshold = "threshold"
	PayoutBlockTime = "blocktime"
)

// History backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/p2pool-dashboard")
	}

	v.SetEnvPrefix("P2POOL_DASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("poller.interval", "10s")
	v.SetDefault("poller.fetch_timeout", "8s")
	v.SetDefault("poller.max_parallel", 4)

	v.SetDefault("sources.data_api_url", "http://127.0.0.1:8080")
	v.SetDefault("sources.xmrig_url", "")
	v.SetDefault("sources.monerod_url", "http://127.0.0.1:18081/json_rpc")
	v.SetDefault("sources.block_time", "120s")
	v.SetDefault("sources.request_timeout", "5s")

	v.SetDefault("ledger.share_limit", 2160)
	v.SetDefault("ledger.health_check_interval", "30s")
	v.SetDefault("ledger.max_failures", 3)
	v.SetDefault("ledger.recovery_threshold", 2)

	v.SetDefault("price.enabled", true)
	v.SetDefault("price.fiat", "eur")
	v.SetDefault("price.cache_ttl", "5m")

	v.SetDefault("history.retention", "168h")
	v.SetDefault("history.backend", BackendFile)
	v.SetDefault("history.path", "./p2pool-data/stats_log.json")
	v.SetDefault("history.save_interval", "10s")

	v.SetDefault("analytics.average_policy", AverageDynamic)
	v.SetDefault("analytics.fixed_window", "600s")
	v.SetDefault("analytics.max_window", "24h")
	v.SetDefault("analytics.payout_strategy", PayoutThreshold)
	v.SetDefault("analytics.min_payout_threshold", 0.01)
	v.SetDefault("analytics.uncle_penalty_percent", 0)
	v.SetDefault("analytics.recent_payments", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "0.0.0.0:8090")
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("newrelic.app_name", "p2pool-dashboard")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Poller.Interval < 5*time.Second || c.Poller.Interval > 30*time.Second {
		return fmt.Errorf("poller.interval must be between 5s and 30s")
	}

	if c.Poller.MaxParallel < 1 {
		return fmt.Errorf("poller.max_parallel must be >= 1")
	}

	if c.Sources.DataAPIURL == "" {
		return fmt.Errorf("sources.data_api_url is required")
	}

	if c.Sources.BlockTime <= 0 {
		return fmt.Errorf("sources.block_time must be positive")
	}

	if c.History.Retention <= 0 {
		return fmt.Errorf("history.retention must be positive")
	}

	switch c.History.Backend {
	case BackendMemory:
	case BackendFile:
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required for the file backend")
		}
	case BackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("history.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("history.backend must be one of memory, file, redis")
	}

	switch c.Analytics.AveragePolicy {
	case AverageDynamic, AverageFixed:
	default:
		return fmt.Errorf("analytics.average_policy must be dynamic or fixed")
	}

	if c.Analytics.AveragePolicy == AverageFixed && c.Analytics.FixedWindow <= 0 {
		return fmt.Errorf("analytics.fixed_window must be positive")
	}

	switch c.Analytics.PayoutStrategy {
	case PayoutThreshold, PayoutBlockTime:
	default:
		return fmt.Errorf("analytics.payout_strategy must be threshold or blocktime")
	}

	if c.Analytics.UnclePenaltyPercent < 0 || c.Analytics.UnclePenaltyPercent > 100 {
		return fmt.Errorf("analytics.uncle_penalty_percent must be between 0 and 100")
	}

	if c.Analytics.MiningStarted != "" {
		if _, err := c.MiningStartedAt(); err != nil {
			return fmt.Errorf("analytics.mining_started: %w", err)
		}
	}

	return nil
}

// LedgerEnabled returns true if a wallet and at least one observer are configured
func (c *Config) LedgerEnabled() bool {
	return c.Ledger.Wallet != "" && len(c.Ledger.Observers) > 0
}

// ObserverBase returns the ledger base URL in use (the first configured observer)
func (c *Config) ObserverBase() string {
	if len(c.Ledger.Observers) == 0 {
		return ""
	}
	return strings.TrimRight(c.Ledger.Observers[0], "/")
}

// MiningStartedAt parses analytics.mining_started as RFC3339 or a date.
// The zero time is returned when unset.
func (c *Config) MiningStartedAt() (time.Time, error) {
	s := strings.TrimSpace(c.Analytics.MiningStarted)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
