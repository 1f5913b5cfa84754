// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBIWATCH_* environment
// variables.
type Config struct {
	Exchanges []ExchangeConfig `toml:"exchange"`
	Monitor   MonitorConfig    `toml:"monitor"`
	Arbitrage ArbitrageConfig  `toml:"arbitrage"`
	FX        FXConfig         `toml:"fx"`
	Postgres  PostgresConfig   `toml:"postgres"`
	Redis     RedisConfig      `toml:"redis"`
	S3        S3Config         `toml:"s3"`
	Notify    NotifyConfig     `toml:"notify"`
	Mode      string           `toml:"mode"`
	LogLevel  string           `toml:"log_level"`
}

// ExchangeConfig describes one monitored exchange.
type ExchangeConfig struct {
	ID   string `toml:"id"`
	Pair string `toml:"pair"` // e.g. "BTC/CZK"

	// Transport selects the quote source: "rest" (default) or "ws" where the
	// exchange supports a streaming ticker.
	Transport string `toml:"transport"`

	BaseURL string `toml:"base_url"`
	WsURL   string `toml:"ws_url"`

	// StaticFeePct is the taker fee used when dynamic lookup is disabled or
	// fails, as a percentage (0.26 means 0.26%).
	StaticFeePct float64 `toml:"static_fee_pct"`

	// DynamicFees enables fetching the effective fee from the exchange.
	DynamicFees bool `toml:"dynamic_fees"`

	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	ClientID  string `toml:"client_id"` // Coinmate only
}

// MonitorConfig holds poll-cycle parameters.
type MonitorConfig struct {
	PollInterval duration `toml:"poll_interval"`
	FetchTimeout duration `toml:"fetch_timeout"`

	// CycleTimeout, when non-zero, bounds the wait for the whole fan-out;
	// still-pending fetches are cancelled and counted as timeouts. Zero means
	// wait for every fetch (each individually bounded by FetchTimeout).
	CycleTimeout duration `toml:"cycle_timeout"`

	// DownThreshold is the number of consecutive failures after which an
	// exchange is classified DOWN.
	DownThreshold int `toml:"down_threshold"`
}

// ArbitrageConfig holds detection parameters.
type ArbitrageConfig struct {
	// MinProfitPct is the minimum net profit, as a percentage of the buy
	// price, for an opportunity to be emitted. Must be strictly positive.
	MinProfitPct float64 `toml:"min_profit_pct"`

	// DefaultFeePct is the fee used for an exchange with no static fee
	// configured and no dynamic fee available.
	DefaultFeePct float64 `toml:"default_fee_pct"`

	// FeeRefreshInterval controls how often dynamic fees are re-fetched.
	FeeRefreshInterval duration `toml:"fee_refresh_interval"`
}

// FXConfig holds currency-conversion parameters.
type FXConfig struct {
	BaseURL string `toml:"base_url"`

	// TTL is the refresh interval for cached rates.
	TTL duration `toml:"ttl"`

	// StaleCeiling is the hard maximum age after which a cached rate is no
	// longer usable and conversion fails closed.
	StaleCeiling duration `toml:"stale_ceiling"`
}

// PostgresConfig holds TimescaleDB/PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the shared FX-rate cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the cycle
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchanges: []ExchangeConfig{
			{
				ID:           "kraken",
				Pair:         "BTC/USD",
				Transport:    "rest",
				BaseURL:      "https://api.kraken.com",
				WsURL:        "wss://ws.kraken.com",
				StaticFeePct: 0.26,
			},
			{
				ID:           "coinmate",
				Pair:         "BTC/CZK",
				Transport:    "rest",
				BaseURL:      "https://coinmate.io/api",
				StaticFeePct: 0.35,
			},
		},
		Monitor: MonitorConfig{
			PollInterval:  duration{5 * time.Second},
			FetchTimeout:  duration{10 * time.Second},
			CycleTimeout:  duration{0},
			DownThreshold: 3,
		},
		Arbitrage: ArbitrageConfig{
			MinProfitPct:       0.1,
			DefaultFeePct:      0.25,
			FeeRefreshInterval: duration{15 * time.Minute},
		},
		FX: FXConfig{
			BaseURL:      "https://api.exchangerate-api.com",
			TTL:          duration{5 * time.Minute},
			StaleCeiling: duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbiwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbiwatch-data",
			Prefix:         "cycles",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "exchange_down"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"probe":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validTransports enumerates the accepted exchange transports.
var validTransports = map[string]bool{
	"":     true, // defaults to rest
	"rest": true,
	"ws":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Fee, threshold, and
// interval mistakes are fatal here rather than at runtime.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, probe)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchanges
	if len(c.Exchanges) < 2 {
		errs = append(errs, fmt.Sprintf("at least 2 exchanges are required for arbitrage, got %d", len(c.Exchanges)))
	}
	seen := map[string]bool{}
	for i, ex := range c.Exchanges {
		if ex.ID == "" {
			errs = append(errs, fmt.Sprintf("exchange[%d]: id must not be empty", i))
			continue
		}
		if seen[ex.ID] {
			errs = append(errs, fmt.Sprintf("exchange %q configured twice", ex.ID))
		}
		seen[ex.ID] = true
		if !strings.Contains(ex.Pair, "/") {
			errs = append(errs, fmt.Sprintf("exchange %s: pair %q must be of the form BASE/QUOTE", ex.ID, ex.Pair))
		}
		if !validTransports[ex.Transport] {
			errs = append(errs, fmt.Sprintf("exchange %s: unknown transport %q (valid: rest, ws)", ex.ID, ex.Transport))
		}
		if ex.StaticFeePct < 0 || ex.StaticFeePct >= 100 {
			errs = append(errs, fmt.Sprintf("exchange %s: static_fee_pct must be in [0, 100), got %g", ex.ID, ex.StaticFeePct))
		}
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.FetchTimeout.Duration <= 0 {
		errs = append(errs, "monitor: fetch_timeout must be > 0")
	}
	if ct := c.Monitor.CycleTimeout.Duration; ct != 0 && ct < c.Monitor.FetchTimeout.Duration {
		errs = append(errs, "monitor: cycle_timeout must be 0 or >= fetch_timeout")
	}
	if c.Monitor.DownThreshold < 1 {
		errs = append(errs, "monitor: down_threshold must be >= 1")
	}

	// Arbitrage
	if c.Arbitrage.MinProfitPct <= 0 {
		errs = append(errs, "arbitrage: min_profit_pct must be > 0")
	}
	if c.Arbitrage.DefaultFeePct < 0 || c.Arbitrage.DefaultFeePct >= 100 {
		errs = append(errs, fmt.Sprintf("arbitrage: default_fee_pct must be in [0, 100), got %g", c.Arbitrage.DefaultFeePct))
	}

	// FX
	if c.FX.BaseURL == "" {
		errs = append(errs, "fx: base_url must not be empty")
	}
	if c.FX.TTL.Duration <= 0 {
		errs = append(errs, "fx: ttl must be > 0")
	}
	if c.FX.StaleCeiling.Duration < c.FX.TTL.Duration {
		errs = append(errs, "fx: stale_ceiling must be >= ttl")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Notify — token and chat ID go together.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Exchange returns the configuration for the given exchange ID.
func (c *Config) Exchange(id string) (ExchangeConfig, bool) {
	for _, ex := range c.Exchanges {
		if ex.ID == id {
			return ex, true
		}
	}
	return ExchangeConfig{}, false
}
