package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ExchangeConfig holds market data gateway configuration
type ExchangeConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	QuoteCurrency     string        `mapstructure:"quote_currency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	OrderBookDepth    int           `mapstructure:"order_book_depth"`
}

// MonitorConfig holds scoring and scan cadence configuration
type MonitorConfig struct {
	HistoryLength         int           `mapstructure:"history_length"`
	VolumeSpikeMultiplier float64       `mapstructure:"volume_spike_multiplier"`
	StackingThreshold     int           `mapstructure:"stacking_threshold"`
	TradeBurstThreshold   int           `mapstructure:"trade_burst_threshold"`
	AlertThreshold        int           `mapstructure:"alert_threshold"`
	BidDepth              int           `mapstructure:"bid_depth"`
	NotionalFloor         float64       `mapstructure:"notional_floor"`
	MinQuoteVolume        float64       `mapstructure:"min_quote_volume"`
	Workers               int           `mapstructure:"workers"`
	ScanInterval          time.Duration `mapstructure:"scan_interval"`
	RefreshInterval       time.Duration `mapstructure:"refresh_interval"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// StorageConfig holds durable alert log configuration
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	DBPath      string `mapstructure:"db_path"`
	DSN         string `mapstructure:"dsn"`
	CSVPath     string `mapstructure:"csv_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisStream string `mapstructure:"redis_stream"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PUMPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Exchange defaults
	v.SetDefault("exchange.base_url", "https://api.kucoin.com")
	v.SetDefault("exchange.quote_currency", "USDT")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.requests_per_second", 10.0)
	v.SetDefault("exchange.burst", 5)
	v.SetDefault("exchange.max_retries", 2)
	v.SetDefault("exchange.order_book_depth", 20)

	// Monitor defaults
	v.SetDefault("monitor.history_length", 100)
	v.SetDefault("monitor.volume_spike_multiplier", 5.0)
	v.SetDefault("monitor.stacking_threshold", 5)
	v.SetDefault("monitor.trade_burst_threshold", 10)
	v.SetDefault("monitor.alert_threshold", 5)
	v.SetDefault("monitor.bid_depth", 10)
	v.SetDefault("monitor.notional_floor", 50.0)
	v.SetDefault("monitor.min_quote_volume", 100000.0)
	v.SetDefault("monitor.workers", 10)
	v.SetDefault("monitor.scan_interval", "15s")
	v.SetDefault("monitor.refresh_interval", "1h")
	v.SetDefault("monitor.request_timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")

	// Storage defaults
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.db_path", "./data/pumpwatch.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.csv_path", "./data/signals.csv")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_stream", "pumpwatch:alerts")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Exchange config
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.QuoteCurrency == "" {
		return fmt.Errorf("exchange.quote_currency is required")
	}
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("exchange.timeout must be positive")
	}
	if c.Exchange.RequestsPerSecond <= 0 {
		return fmt.Errorf("exchange.requests_per_second must be positive")
	}
	if c.Exchange.Burst < 1 {
		return fmt.Errorf("exchange.burst must be at least 1")
	}
	if c.Exchange.MaxRetries < 0 {
		return fmt.Errorf("exchange.max_retries must not be negative")
	}
	if c.Exchange.OrderBookDepth < c.Monitor.BidDepth {
		return fmt.Errorf("exchange.order_book_depth must be at least monitor.bid_depth")
	}

	// Validate Monitor config
	if c.Monitor.HistoryLength < 1 {
		return fmt.Errorf("monitor.history_length must be at least 1")
	}
	if c.Monitor.VolumeSpikeMultiplier <= 0 {
		return fmt.Errorf("monitor.volume_spike_multiplier must be positive")
	}
	if c.Monitor.StackingThreshold < 1 {
		return fmt.Errorf("monitor.stacking_threshold must be at least 1")
	}
	if c.Monitor.TradeBurstThreshold < 0 {
		return fmt.Errorf("monitor.trade_burst_threshold must not be negative")
	}
	if c.Monitor.AlertThreshold < 1 {
		return fmt.Errorf("monitor.alert_threshold must be at least 1")
	}
	if c.Monitor.BidDepth < 1 {
		return fmt.Errorf("monitor.bid_depth must be at least 1")
	}
	if c.Monitor.NotionalFloor < 0 {
		return fmt.Errorf("monitor.notional_floor must not be negative")
	}
	if c.Monitor.MinQuoteVolume < 0 {
		return fmt.Errorf("monitor.min_quote_volume must not be negative")
	}
	if c.Monitor.Workers < 1 {
		return fmt.Errorf("monitor.workers must be at least 1")
	}
	if c.Monitor.ScanInterval < time.Second {
		return fmt.Errorf("monitor.scan_interval must be at least 1 second")
	}
	if c.Monitor.RefreshInterval < time.Minute {
		return fmt.Errorf("monitor.refresh_interval must be at least 1 minute")
	}
	if c.Monitor.RequestTimeout <= 0 {
		return fmt.Errorf("monitor.request_timeout must be positive")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case "csv":
		if c.Storage.CSVPath == "" {
			return fmt.Errorf("storage.csv_path is required for the csv backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
		if c.Storage.RedisStream == "" {
			return fmt.Errorf("storage.redis_stream is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: sqlite, postgres, csv, redis")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
