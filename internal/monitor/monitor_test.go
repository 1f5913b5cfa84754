package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
	"github.com/janhruby/arbiwatch/internal/fx"
)

type fakeAdapter struct {
	name  string
	quote domain.Quote
	err   error
	delay time.Duration
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchQuote(ctx context.Context, _ string) (domain.Quote, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Quote{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return f.quote, nil
}

type fakeRates struct {
	rates map[string]float64
	err   error
}

func (f *fakeRates) FetchRates(context.Context) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNormalizer(source domain.RateSource) *fx.Normalizer {
	return fx.NewNormalizer(fx.NormalizerConfig{
		Source:       source,
		TTL:          5 * time.Minute,
		StaleCeiling: 24 * time.Hour,
		Logger:       testLogger(),
	})
}

func usdQuote(exchange string, price float64) domain.Quote {
	return domain.Quote{
		Exchange: exchange,
		Pair:     "BTC/USD",
		Price:    price,
		Currency: "USD",
		Volume:   1,
	}
}

func newTestMonitor(adapters []domain.PriceAdapter, source domain.RateSource, cfg Config) *Monitor {
	pairs := make(map[string]string, len(adapters))
	for _, a := range adapters {
		pairs[a.Name()] = "BTC/USD"
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = time.Second
	}
	if cfg.DownThreshold == 0 {
		cfg.DownThreshold = 3
	}
	return New(adapters, pairs, testNormalizer(source), cfg, testLogger())
}

func TestRunCycleCollectsQuotes(t *testing.T) {
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", quote: usdQuote("b", 50100)},
	}
	m := newTestMonitor(adapters, &fakeRates{}, Config{})

	snap := m.RunCycle(context.Background())
	if snap.Insufficient {
		t.Fatal("two successful fetches must not mark the cycle insufficient")
	}
	if len(snap.Quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(snap.Quotes))
	}
	for _, q := range snap.Quotes {
		if q.PriceUSD != q.Price {
			t.Errorf("%s: USD quote should pass through, got %g", q.Exchange, q.PriceUSD)
		}
		if q.FetchedAt.IsZero() {
			t.Errorf("%s: FetchedAt must be set", q.Exchange)
		}
	}
	for _, h := range m.Health() {
		if h.State != domain.HealthActive {
			t.Errorf("%s: expected ACTIVE, got %s", h.Exchange, h.State)
		}
	}
}

func TestRunCycleFailureDegrades(t *testing.T) {
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", err: errors.New("connection refused")},
		&fakeAdapter{name: "c", quote: usdQuote("c", 50200)},
	}
	m := newTestMonitor(adapters, &fakeRates{}, Config{})

	snap := m.RunCycle(context.Background())
	if len(snap.Quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(snap.Quotes))
	}
	if snap.Insufficient {
		t.Error("two quotes are enough for detection")
	}

	health := m.Health()
	if health[1].Exchange != "b" || health[1].State != domain.HealthDegraded {
		t.Errorf("expected b DEGRADED, got %+v", health[1])
	}
	if health[1].ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", health[1].ConsecutiveFailures)
	}
}

func TestRunCycleFetchTimeout(t *testing.T) {
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", quote: usdQuote("b", 50100), delay: time.Second},
	}
	m := newTestMonitor(adapters, &fakeRates{}, Config{FetchTimeout: 20 * time.Millisecond})

	start := time.Now()
	snap := m.RunCycle(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cycle should settle at the fetch timeout, took %v", elapsed)
	}

	if len(snap.Quotes) != 1 {
		t.Fatalf("expected only the fast quote, got %d", len(snap.Quotes))
	}
	if !snap.Insufficient {
		t.Error("one quote must mark the cycle insufficient")
	}

	health := m.Health()
	if health[1].State != domain.HealthDegraded {
		t.Errorf("timed-out exchange should be DEGRADED, got %s", health[1].State)
	}
}

func TestRunCycleCycleTimeout(t *testing.T) {
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", quote: usdQuote("b", 50100), delay: 2 * time.Second},
	}
	m := newTestMonitor(adapters, &fakeRates{}, Config{
		FetchTimeout: time.Second,
		CycleTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	snap := m.RunCycle(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cycle should settle at the cycle timeout, took %v", elapsed)
	}

	if len(snap.Quotes) != 1 {
		t.Fatalf("expected only the fast quote, got %d", len(snap.Quotes))
	}
	if snap.Quotes[0].Exchange != "a" {
		t.Errorf("surviving quote = %s, want a", snap.Quotes[0].Exchange)
	}
	if !snap.Insufficient {
		t.Error("one quote must mark the cycle insufficient")
	}

	health := m.Health()
	if health[1].State != domain.HealthDegraded {
		t.Errorf("cut-off exchange should be DEGRADED, got %s", health[1].State)
	}
	if health[1].ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", health[1].ConsecutiveFailures)
	}
}

func TestDownThresholdAndRecovery(t *testing.T) {
	failing := &fakeAdapter{name: "b", err: errors.New("connection refused")}
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		failing,
	}
	m := newTestMonitor(adapters, &fakeRates{}, Config{DownThreshold: 2})

	m.RunCycle(context.Background())
	if state := m.Health()[1].State; state != domain.HealthDegraded {
		t.Fatalf("after 1 failure: expected DEGRADED, got %s", state)
	}

	m.RunCycle(context.Background())
	if state := m.Health()[1].State; state != domain.HealthDown {
		t.Fatalf("after 2 failures: expected DOWN, got %s", state)
	}

	// A DOWN exchange keeps being polled and recovers on the next success.
	failing.err = nil
	failing.quote = usdQuote("b", 50100)
	m.RunCycle(context.Background())

	h := m.Health()[1]
	if h.State != domain.HealthActive {
		t.Fatalf("after recovery: expected ACTIVE, got %s", h.State)
	}
	if h.ConsecutiveFailures != 0 {
		t.Errorf("recovery must reset the failure counter, got %d", h.ConsecutiveFailures)
	}
	if h.LastSuccessAt.IsZero() {
		t.Error("recovery must stamp LastSuccessAt")
	}
}

func TestRunCycleRejectsNonPositivePrice(t *testing.T) {
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", quote: usdQuote("b", 0)},
	}
	m := newTestMonitor(adapters, &fakeRates{}, Config{})

	snap := m.RunCycle(context.Background())
	if len(snap.Quotes) != 1 {
		t.Fatalf("non-positive price must be rejected, got %d quotes", len(snap.Quotes))
	}
	if m.Health()[1].State != domain.HealthDegraded {
		t.Errorf("bad payload counts against health, got %s", m.Health()[1].State)
	}
}

func TestRunCycleConvertsCurrency(t *testing.T) {
	czk := domain.Quote{Exchange: "b", Pair: "BTC/CZK", Price: 1_000_000, Currency: "CZK", Volume: 1}
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", quote: czk},
	}
	m := newTestMonitor(adapters, &fakeRates{rates: map[string]float64{"CZK": 0.04}}, Config{})

	snap := m.RunCycle(context.Background())
	if len(snap.Quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(snap.Quotes))
	}
	for _, q := range snap.Quotes {
		if q.Exchange != "b" {
			continue
		}
		if math.Abs(q.PriceUSD-40000) > 1e-6 {
			t.Errorf("CZK quote: PriceUSD = %g, want 40000", q.PriceUSD)
		}
		if q.Price != 1_000_000 {
			t.Errorf("native price must be preserved, got %g", q.Price)
		}
	}
}

func TestRunCycleDropsQuoteOnConversionFailure(t *testing.T) {
	czk := domain.Quote{Exchange: "b", Pair: "BTC/CZK", Price: 1_000_000, Currency: "CZK", Volume: 1}
	adapters := []domain.PriceAdapter{
		&fakeAdapter{name: "a", quote: usdQuote("a", 50000)},
		&fakeAdapter{name: "b", quote: czk},
	}
	m := newTestMonitor(adapters, &fakeRates{err: errors.New("rate service down")}, Config{})

	snap := m.RunCycle(context.Background())
	if len(snap.Quotes) != 1 {
		t.Fatalf("unconvertible quote must be dropped, got %d quotes", len(snap.Quotes))
	}
	if !snap.Insufficient {
		t.Error("one usable quote must mark the cycle insufficient")
	}

	// The fetch itself succeeded, so health stays ACTIVE.
	if state := m.Health()[1].State; state != domain.HealthActive {
		t.Errorf("conversion failure is not a fetch failure, got %s", state)
	}
}
