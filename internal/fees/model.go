// Package fees resolves the effective taker fee percentage per exchange.
package fees

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// Model resolves the effective taker fee for an exchange: a dynamic lookup
// result when enabled and fresh, otherwise the configured static fee,
// otherwise the global default.
//
// Dynamic lookups happen only in Refresh, which the cycle coordinator calls
// before detection; FeeFor itself never blocks.
type Model struct {
	static  map[string]float64
	dynamic map[string]domain.FeeProvider
	def     float64

	refreshEvery time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	fetched     map[string]float64
	lastRefresh map[string]time.Time
}

// Config configures a fee Model.
type Config struct {
	// StaticFees maps exchange ID to its configured taker fee percentage.
	StaticFees map[string]float64

	// Providers maps exchange ID to its dynamic fee source. Exchanges absent
	// from this map use static fees only.
	Providers map[string]domain.FeeProvider

	// DefaultFeePct is used for exchanges with no static fee configured.
	DefaultFeePct float64

	// RefreshInterval bounds how often a dynamic fee is re-fetched.
	RefreshInterval time.Duration
}

// New validates the configured fees and creates a Model. Fees outside
// [0, 100) are a configuration error.
func New(cfg Config, logger *slog.Logger) (*Model, error) {
	if cfg.DefaultFeePct < 0 || cfg.DefaultFeePct >= 100 {
		return nil, fmt.Errorf("fees: default fee %g%% out of range [0, 100)", cfg.DefaultFeePct)
	}
	for exchange, fee := range cfg.StaticFees {
		if fee < 0 || fee >= 100 {
			return nil, fmt.Errorf("fees: %s fee %g%% out of range [0, 100)", exchange, fee)
		}
	}

	static := make(map[string]float64, len(cfg.StaticFees))
	for k, v := range cfg.StaticFees {
		static[k] = v
	}
	dynamic := make(map[string]domain.FeeProvider, len(cfg.Providers))
	for k, v := range cfg.Providers {
		dynamic[k] = v
	}

	refreshEvery := cfg.RefreshInterval
	if refreshEvery <= 0 {
		refreshEvery = 15 * time.Minute
	}

	return &Model{
		static:       static,
		dynamic:      dynamic,
		def:          cfg.DefaultFeePct,
		refreshEvery: refreshEvery,
		logger:       logger.With(slog.String("component", "fee_model")),
		now:          time.Now,
		fetched:      make(map[string]float64),
		lastRefresh:  make(map[string]time.Time),
	}, nil
}

// Refresh re-fetches dynamic fees whose last lookup is older than the refresh
// interval. A failed lookup is logged and leaves the fallback chain intact;
// it never fails the cycle.
func (m *Model) Refresh(ctx context.Context) {
	now := m.now()

	for exchange, provider := range m.dynamic {
		m.mu.Lock()
		last := m.lastRefresh[exchange]
		m.mu.Unlock()
		if !last.IsZero() && now.Sub(last) < m.refreshEvery {
			continue
		}

		fee, err := provider.FetchFee(ctx)
		if err != nil {
			m.logger.WarnContext(ctx, "dynamic fee lookup failed",
				slog.String("exchange", exchange),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fee < 0 || fee >= 100 {
			m.logger.WarnContext(ctx, "dynamic fee out of range, ignoring",
				slog.String("exchange", exchange),
				slog.Float64("fee_pct", fee),
			)
			continue
		}

		m.mu.Lock()
		m.fetched[exchange] = fee
		m.lastRefresh[exchange] = now
		m.mu.Unlock()

		m.logger.DebugContext(ctx, "dynamic fee updated",
			slog.String("exchange", exchange),
			slog.Float64("fee_pct", fee),
		)
	}
}

// FeeFor returns the effective taker fee percentage for the exchange. It is
// non-blocking: dynamic values come from the last successful Refresh.
func (m *Model) FeeFor(exchange string) float64 {
	m.mu.Lock()
	fee, ok := m.fetched[exchange]
	m.mu.Unlock()
	if ok {
		return fee
	}
	if fee, ok := m.static[exchange]; ok {
		return fee
	}
	return m.def
}
