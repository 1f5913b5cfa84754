// Package domain defines the core types and interfaces shared by the
// arbitrage monitor: quotes, cycle snapshots, exchange health, FX rates,
// opportunities, and the ports implemented by exchange adapters and sinks.
package domain

import (
	"context"
	"time"
)

// Quote is a single price observation for a trading pair from one exchange.
// It is created by a PriceAdapter, normalized to USD by the monitor, and
// discarded at the end of the cycle that fetched it.
type Quote struct {
	Exchange  string        `json:"exchange"`
	Pair      string        `json:"pair"`
	Price     float64       `json:"price"`     // in Currency
	PriceUSD  float64       `json:"price_usd"` // set during normalization
	Currency  string        `json:"currency"`
	Volume    float64       `json:"volume"`
	FetchedAt time.Time     `json:"fetched_at"`
	Latency   time.Duration `json:"latency"`
}

// CycleSnapshot is the set of quotes that succeeded in one poll cycle, each
// already normalized to USD. Quotes from different cycles are never mixed.
type CycleSnapshot struct {
	Cycle  time.Time `json:"cycle"`
	Quotes []Quote   `json:"quotes"`

	// Insufficient is set when fewer than two exchanges produced a fresh
	// quote, so no pairwise comparison is possible this cycle.
	Insufficient bool `json:"insufficient"`
}

// PriceAdapter is the capability each exchange client implements: fetch one
// fresh quote for a pair. Implementations must honor ctx cancellation and
// release the underlying connection when the fetch is cancelled.
type PriceAdapter interface {
	Name() string
	FetchQuote(ctx context.Context, pair string) (Quote, error)
}

// FeeProvider returns the current taker fee percentage for one exchange via a
// dynamic lookup (e.g. the exchange's fee endpoint). Failure falls back to
// the configured static fee.
type FeeProvider interface {
	FetchFee(ctx context.Context) (float64, error)
}
