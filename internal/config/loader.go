package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBIWATCH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBIWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Per-exchange credentials use the uppercased exchange ID, e.g.
// ARBIWATCH_KRAKEN_API_KEY.
func applyEnvOverrides(cfg *Config) {
	// ── Per-exchange credentials ──
	for i := range cfg.Exchanges {
		prefix := "ARBIWATCH_" + strings.ToUpper(cfg.Exchanges[i].ID)
		setStr(&cfg.Exchanges[i].ApiKey, prefix+"_API_KEY")
		setStr(&cfg.Exchanges[i].ApiSecret, prefix+"_API_SECRET")
		setStr(&cfg.Exchanges[i].ClientID, prefix+"_CLIENT_ID")
	}

	// ── Monitor ──
	setDuration(&cfg.Monitor.PollInterval, "ARBIWATCH_MONITOR_POLL_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "ARBIWATCH_MONITOR_FETCH_TIMEOUT")
	setDuration(&cfg.Monitor.CycleTimeout, "ARBIWATCH_MONITOR_CYCLE_TIMEOUT")
	setInt(&cfg.Monitor.DownThreshold, "ARBIWATCH_MONITOR_DOWN_THRESHOLD")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinProfitPct, "ARBIWATCH_MIN_PROFIT_PCT")
	setFloat64(&cfg.Arbitrage.DefaultFeePct, "ARBIWATCH_DEFAULT_FEE_PCT")
	setDuration(&cfg.Arbitrage.FeeRefreshInterval, "ARBIWATCH_FEE_REFRESH_INTERVAL")

	// ── FX ──
	setStr(&cfg.FX.BaseURL, "ARBIWATCH_FX_BASE_URL")
	setDuration(&cfg.FX.TTL, "ARBIWATCH_FX_TTL")
	setDuration(&cfg.FX.StaleCeiling, "ARBIWATCH_FX_STALE_CEILING")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBIWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBIWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBIWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBIWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBIWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBIWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBIWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBIWATCH_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "ARBIWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBIWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBIWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBIWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBIWATCH_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "ARBIWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBIWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBIWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBIWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBIWATCH_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARBIWATCH_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARBIWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBIWATCH_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBIWATCH_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBIWATCH_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBIWATCH_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBIWATCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBIWATCH_MODE")
	setStr(&cfg.LogLevel, "ARBIWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
