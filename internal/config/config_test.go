package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if len(cfg.Exchanges) < 2 {
		t.Fatalf("defaults must configure at least 2 exchanges, got %d", len(cfg.Exchanges))
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Arbitrage.MinProfitPct = 0
	cfg.Arbitrage.DefaultFeePct = 100
	cfg.Exchanges[0].StaticFeePct = -1
	cfg.Monitor.DownThreshold = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	for _, want := range []string{
		"unknown mode",
		"min_profit_pct",
		"default_fee_pct",
		"static_fee_pct",
		"down_threshold",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got:\n%s", want, err)
		}
	}
}

func TestValidateCycleTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Monitor.FetchTimeout = duration{10 * time.Second}

	cfg.Monitor.CycleTimeout = duration{0}
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero cycle_timeout disables the bound, got: %v", err)
	}

	cfg.Monitor.CycleTimeout = duration{15 * time.Second}
	if err := cfg.Validate(); err != nil {
		t.Errorf("cycle_timeout >= fetch_timeout is valid, got: %v", err)
	}

	cfg.Monitor.CycleTimeout = duration{5 * time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("cycle_timeout below fetch_timeout must be rejected")
	}
}

func TestValidateRequiresTwoExchanges(t *testing.T) {
	cfg := Defaults()
	cfg.Exchanges = cfg.Exchanges[:1]
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least 2 exchanges") {
		t.Fatalf("expected exchange-count error, got: %v", err)
	}
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Error("telegram token without chat ID must be rejected")
	}
	cfg.Notify.TelegramChatID = "12345"
	if err := cfg.Validate(); err != nil {
		t.Errorf("token and chat ID together are valid, got: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	content := `
mode = "probe"
log_level = "debug"

[monitor]
poll_interval = "2s"

[arbitrage]
min_profit_pct = 0.5
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "probe" {
		t.Errorf("mode = %q, want probe", cfg.Mode)
	}
	if cfg.Monitor.PollInterval.Duration != 2*time.Second {
		t.Errorf("poll_interval = %v, want 2s", cfg.Monitor.PollInterval.Duration)
	}
	if cfg.Arbitrage.MinProfitPct != 0.5 {
		t.Errorf("min_profit_pct = %g, want 0.5", cfg.Arbitrage.MinProfitPct)
	}
	// Untouched sections keep their defaults.
	if cfg.Monitor.FetchTimeout.Duration != 10*time.Second {
		t.Errorf("fetch_timeout = %v, want default 10s", cfg.Monitor.FetchTimeout.Duration)
	}
	if len(cfg.Exchanges) != 2 {
		t.Errorf("expected default exchanges, got %d", len(cfg.Exchanges))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBIWATCH_KRAKEN_API_KEY", "key-from-env")
	t.Setenv("ARBIWATCH_MIN_PROFIT_PCT", "0.3")
	t.Setenv("ARBIWATCH_REDIS_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	ex, ok := cfg.Exchange("kraken")
	if !ok {
		t.Fatal("kraken exchange missing from defaults")
	}
	if ex.ApiKey != "key-from-env" {
		t.Errorf("api key = %q, want env value", ex.ApiKey)
	}
	if cfg.Arbitrage.MinProfitPct != 0.3 {
		t.Errorf("min_profit_pct = %g, want 0.3", cfg.Arbitrage.MinProfitPct)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis enabled override not applied")
	}
}
