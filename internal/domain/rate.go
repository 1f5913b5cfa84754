package domain

import (
	"context"
	"time"
)

// ExchangeRate is a cached currency-conversion rate to USD.
type ExchangeRate struct {
	Currency  string    `json:"currency"` // e.g. "CZK"
	Rate      float64   `json:"rate"`     // 1 unit of Currency in USD
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the rate was fetched.
func (r ExchangeRate) Age(now time.Time) time.Duration {
	return now.Sub(r.FetchedAt)
}

// RateSource fetches the full table of conversion rates to USD, keyed by
// currency code.
type RateSource interface {
	FetchRates(ctx context.Context) (map[string]float64, error)
}

// RateCache shares FX rates across processes so a restarted monitor can pick
// up the last good rates without waiting for a refresh. Implementations
// return ErrNotFound for unknown currencies. All methods are best-effort from
// the normalizer's point of view.
type RateCache interface {
	Get(ctx context.Context, currency string) (ExchangeRate, error)
	Set(ctx context.Context, rate ExchangeRate) error
}
