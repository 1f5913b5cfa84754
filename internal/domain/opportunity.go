package domain

import "time"

// Opportunity is a directed, fee-aware arbitrage opportunity computed from one
// cycle's quotes. Instances are immutable once created and handed to sinks by
// value.
type Opportunity struct {
	ID           string  `json:"id"`
	BuyExchange  string  `json:"buy_exchange"`
	SellExchange string  `json:"sell_exchange"`
	BuyPriceUSD  float64 `json:"buy_price_usd"`
	SellPriceUSD float64 `json:"sell_price_usd"`
	BuyFeePct    float64 `json:"buy_fee_pct"`
	SellFeePct   float64 `json:"sell_fee_pct"`

	// GrossSpreadUSD is sell price minus buy price before fees.
	GrossSpreadUSD float64 `json:"gross_spread_usd"`

	// NetProfitUSD is the gross spread minus round-trip fees charged on the
	// full notional of both legs.
	NetProfitUSD float64 `json:"net_profit_usd"`

	// NetProfitPct is NetProfitUSD as a percentage of the buy price.
	NetProfitPct float64 `json:"net_profit_pct"`

	// VolumeLimit is the maximum size executable on both legs, bounded by the
	// lesser of the two reported volumes; zero when either leg reports none.
	VolumeLimit float64 `json:"volume_limit"`

	ComputedAt time.Time `json:"computed_at"`
}
