package fx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// Normalizer expresses prices in USD. Rates are refreshed from a RateSource
// when their age exceeds the TTL; on refresh failure the last good rate keeps
// being used until it crosses the hard staleness ceiling, after which
// conversion fails closed with a ConversionError.
type Normalizer struct {
	source domain.RateSource
	cache  domain.RateCache // optional shared cache, may be nil
	ttl    time.Duration
	ceil   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	rates map[string]domain.ExchangeRate
}

// NormalizerConfig configures a Normalizer.
type NormalizerConfig struct {
	Source       domain.RateSource
	Cache        domain.RateCache // nil disables the shared cache
	TTL          time.Duration
	StaleCeiling time.Duration
	Logger       *slog.Logger
}

// NewNormalizer creates a Normalizer with an empty rate table.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	return &Normalizer{
		source: cfg.Source,
		cache:  cfg.Cache,
		ttl:    cfg.TTL,
		ceil:   cfg.StaleCeiling,
		logger: cfg.Logger.With(slog.String("component", "fx_normalizer")),
		now:    time.Now,
		rates:  make(map[string]domain.ExchangeRate),
	}
}

// ToUSD converts price from the given currency to USD. USD passes through
// unchanged, and USDT is treated as USD. The conversion is a straight
// multiplication at full float64 precision.
func (n *Normalizer) ToUSD(ctx context.Context, price float64, currency string) (float64, error) {
	if currency == "USD" || currency == "USDT" {
		return price, nil
	}

	rate, err := n.rateFor(ctx, currency)
	if err != nil {
		return 0, err
	}
	return price * rate.Rate, nil
}

// rateFor returns a usable rate for the currency, refreshing the table when
// the cached entry is older than the TTL.
func (n *Normalizer) rateFor(ctx context.Context, currency string) (domain.ExchangeRate, error) {
	now := n.now()

	n.mu.Lock()
	rate, ok := n.rates[currency]
	n.mu.Unlock()

	// Cold start: try the shared cache before hitting the source.
	if !ok && n.cache != nil {
		if cached, err := n.cache.Get(ctx, currency); err == nil {
			rate, ok = cached, true
			n.mu.Lock()
			n.rates[currency] = cached
			n.mu.Unlock()
		}
	}

	if ok && rate.Age(now) <= n.ttl {
		return rate, nil
	}

	if err := n.refresh(ctx); err != nil {
		n.logger.WarnContext(ctx, "rate refresh failed",
			slog.String("currency", currency),
			slog.String("error", err.Error()),
		)
		if !ok {
			return domain.ExchangeRate{}, &domain.ConversionError{
				Currency: currency,
				Err:      domain.ErrNoRate,
			}
		}
		if age := rate.Age(now); age > n.ceil {
			return domain.ExchangeRate{}, &domain.ConversionError{
				Currency: currency,
				Age:      age,
				Err:      domain.ErrStaleRate,
			}
		}
		// Stale but usable.
		n.logger.DebugContext(ctx, "using stale rate",
			slog.String("currency", currency),
			slog.Duration("age", rate.Age(now)),
		)
		return rate, nil
	}

	n.mu.Lock()
	rate, ok = n.rates[currency]
	n.mu.Unlock()
	if !ok {
		return domain.ExchangeRate{}, &domain.ConversionError{
			Currency: currency,
			Err:      domain.ErrNoRate,
		}
	}
	return rate, nil
}

// refresh replaces the in-memory rate table with a fresh one from the source
// and mirrors it into the shared cache best-effort.
func (n *Normalizer) refresh(ctx context.Context) error {
	table, err := n.source.FetchRates(ctx)
	if err != nil {
		return err
	}

	now := n.now()
	fresh := make(map[string]domain.ExchangeRate, len(table))
	for currency, rateUSD := range table {
		fresh[currency] = domain.ExchangeRate{
			Currency:  currency,
			Rate:      rateUSD,
			FetchedAt: now,
		}
	}

	n.mu.Lock()
	n.rates = fresh
	n.mu.Unlock()

	if n.cache != nil {
		for _, r := range fresh {
			if err := n.cache.Set(ctx, r); err != nil {
				if !errors.Is(err, context.Canceled) {
					n.logger.DebugContext(ctx, "rate cache write failed",
						slog.String("currency", r.Currency),
						slog.String("error", err.Error()),
					)
				}
				break
			}
		}
	}

	n.logger.DebugContext(ctx, "rate table refreshed", slog.Int("currencies", len(fresh)))
	return nil
}
