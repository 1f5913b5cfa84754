// Package monitor runs the periodic poll cycle: concurrent quote fetches
// with per-fetch timeouts, fan-in, USD normalization, and per-exchange health
// tracking.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
	"github.com/janhruby/arbiwatch/internal/fx"
)

// Config holds the cycle parameters.
type Config struct {
	// FetchTimeout bounds each individual adapter fetch.
	FetchTimeout time.Duration

	// CycleTimeout, when non-zero, bounds the wait for the whole fan-out.
	// Fetches still pending at that point are cancelled and recorded as
	// timeout failures. Must be >= FetchTimeout when set.
	CycleTimeout time.Duration

	// DownThreshold is the number of consecutive failures after which an
	// exchange is classified DOWN.
	DownThreshold int
}

// Monitor polls all configured adapters each cycle. Health and the snapshot
// are mutated only by the coordinating goroutine; fetch goroutines write
// their results into per-task slots merged after the fan-in barrier.
type Monitor struct {
	adapters   []domain.PriceAdapter
	pairs      map[string]string // exchange ID -> trading pair
	normalizer *fx.Normalizer
	cfg        Config
	logger     *slog.Logger

	health map[string]*domain.ExchangeHealth
}

// New creates a Monitor. pairs maps each adapter's name to the trading pair
// it should fetch.
func New(adapters []domain.PriceAdapter, pairs map[string]string, normalizer *fx.Normalizer, cfg Config, logger *slog.Logger) *Monitor {
	health := make(map[string]*domain.ExchangeHealth, len(adapters))
	for _, a := range adapters {
		health[a.Name()] = &domain.ExchangeHealth{
			Exchange: a.Name(),
			State:    domain.HealthActive,
		}
	}
	return &Monitor{
		adapters:   adapters,
		pairs:      pairs,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "exchange_monitor")),
		health:     health,
	}
}

// fetchResult is one adapter's outcome, written into its own slot by the
// fetch goroutine and read by the coordinator after all tasks settle.
type fetchResult struct {
	exchange string
	quote    domain.Quote
	err      error
}

// RunCycle fans out one fetch per adapter, waits for all of them to complete,
// fail, or be cancelled, then merges the survivors into a normalized
// snapshot and updates health. A failed fetch is simply absent from the
// snapshot; there are no retries within a cycle.
func (m *Monitor) RunCycle(ctx context.Context) domain.CycleSnapshot {
	cycleCtx := ctx
	if m.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, m.cfg.CycleTimeout)
		defer cancel()
	}

	results := make([]fetchResult, len(m.adapters))
	var wg sync.WaitGroup
	for i, adapter := range m.adapters {
		wg.Add(1)
		go func(slot int, a domain.PriceAdapter) {
			defer wg.Done()
			results[slot] = m.fetch(cycleCtx, a)
		}(i, adapter)
	}
	wg.Wait() // fan-in barrier

	cycle := time.Now()
	snap := domain.CycleSnapshot{Cycle: cycle}

	for _, res := range results {
		if res.err != nil {
			m.recordFailure(res.exchange, res.err)
			continue
		}
		m.recordSuccess(res.exchange, res.quote.Latency)

		priceUSD, err := m.normalizer.ToUSD(ctx, res.quote.Price, res.quote.Currency)
		if err != nil {
			// Conversion failure drops the quote from this cycle; the fetch
			// itself still counted as a success for health purposes.
			m.logger.Warn("quote dropped, conversion failed",
				slog.String("exchange", res.exchange),
				slog.String("currency", res.quote.Currency),
				slog.String("error", err.Error()),
			)
			continue
		}
		quote := res.quote
		quote.PriceUSD = priceUSD
		snap.Quotes = append(snap.Quotes, quote)
	}

	if len(snap.Quotes) < 2 {
		snap.Insufficient = true
		m.logger.Info("insufficient quotes this cycle",
			slog.Int("quotes", len(snap.Quotes)),
			slog.Int("adapters", len(m.adapters)),
		)
	}
	return snap
}

// fetch runs a single bounded fetch. Cancellation is scoped: the timeout
// context is released before returning so the underlying connection cannot
// leak past the fetch.
func (m *Monitor) fetch(ctx context.Context, adapter domain.PriceAdapter) fetchResult {
	name := adapter.Name()
	pair, ok := m.pairs[name]
	if !ok {
		return fetchResult{exchange: name, err: domain.NewFetchError(name, domain.FetchProtocol, errors.New("no trading pair configured"))}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	quote, err := adapter.FetchQuote(fetchCtx, pair)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewFetchError(name, domain.FetchTimeout, err)
		}
		return fetchResult{exchange: name, err: err}
	}

	quote.Exchange = name
	if quote.Latency == 0 {
		quote.Latency = time.Since(start)
	}
	if quote.FetchedAt.IsZero() {
		quote.FetchedAt = time.Now()
	}
	if quote.Price <= 0 {
		return fetchResult{exchange: name, err: domain.NewFetchError(name, domain.FetchProtocol, errors.New("non-positive price"))}
	}
	return fetchResult{exchange: name, quote: quote}
}

// recordSuccess resets the failure counter and marks the exchange ACTIVE.
func (m *Monitor) recordSuccess(exchange string, latency time.Duration) {
	h := m.health[exchange]
	if h == nil {
		return
	}
	if h.State != domain.HealthActive {
		m.logger.Info("exchange recovered",
			slog.String("exchange", exchange),
			slog.String("previous_state", string(h.State)),
		)
	}
	h.State = domain.HealthActive
	h.ConsecutiveFailures = 0
	h.LastSuccessAt = time.Now()
	h.LastLatency = latency
}

// recordFailure bumps the failure counter: DEGRADED from the first failure,
// DOWN once the threshold is reached. A DOWN exchange keeps being polled;
// its continued absence is expected and logged quietly.
func (m *Monitor) recordFailure(exchange string, err error) {
	h := m.health[exchange]
	if h == nil {
		return
	}
	h.ConsecutiveFailures++

	switch {
	case h.ConsecutiveFailures >= m.cfg.DownThreshold:
		if h.State != domain.HealthDown {
			h.State = domain.HealthDown
			m.logger.Error("exchange down",
				slog.String("exchange", exchange),
				slog.Int("consecutive_failures", h.ConsecutiveFailures),
				slog.String("error", err.Error()),
			)
		} else {
			m.logger.Debug("exchange still down",
				slog.String("exchange", exchange),
				slog.Int("consecutive_failures", h.ConsecutiveFailures),
			)
		}
	default:
		h.State = domain.HealthDegraded
		m.logger.Warn("exchange fetch failed",
			slog.String("exchange", exchange),
			slog.Int("consecutive_failures", h.ConsecutiveFailures),
			slog.String("error", err.Error()),
		)
	}
}

// Health returns a copy of the current per-exchange health states.
func (m *Monitor) Health() []domain.ExchangeHealth {
	out := make([]domain.ExchangeHealth, 0, len(m.health))
	for _, a := range m.adapters {
		if h := m.health[a.Name()]; h != nil {
			out = append(out, *h)
		}
	}
	return out
}
