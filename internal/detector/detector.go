// Package detector turns a cycle's normalized quotes into fee-aware,
// threshold-filtered arbitrage opportunities.
package detector

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/janhruby/arbiwatch/internal/domain"
	"github.com/janhruby/arbiwatch/internal/fees"
)

// Detector evaluates every directed pair of exchanges present in a snapshot.
// All arithmetic is synchronous; fee values come from the fee model's cache,
// so Detect never blocks on I/O.
type Detector struct {
	fees         *fees.Model
	minProfitPct float64
	logger       *slog.Logger
}

// New creates a Detector. minProfitPct is the emission threshold as a
// percentage of the buy price and must be strictly positive (validated at
// startup by config).
func New(feeModel *fees.Model, minProfitPct float64, logger *slog.Logger) *Detector {
	return &Detector{
		fees:         feeModel,
		minProfitPct: minProfitPct,
		logger:       logger.With(slog.String("component", "arb_detector")),
	}
}

// Detect computes all profitable directed opportunities from one cycle's
// snapshot, ordered by descending net profit percentage. Feeding the same
// snapshot twice yields the same ordered list (IDs aside). Quotes are only
// ever compared within the snapshot, never across cycles.
func (d *Detector) Detect(snap domain.CycleSnapshot) []domain.Opportunity {
	if snap.Insufficient || len(snap.Quotes) < 2 {
		return nil
	}

	var opps []domain.Opportunity
	for i, buy := range snap.Quotes {
		for j, sell := range snap.Quotes {
			if i == j || buy.Exchange == sell.Exchange {
				continue
			}
			if opp, ok := d.evaluate(buy, sell, snap.Cycle); ok {
				opps = append(opps, opp)
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].NetProfitPct != opps[j].NetProfitPct {
			return opps[i].NetProfitPct > opps[j].NetProfitPct
		}
		// Deterministic order for equal profits.
		if opps[i].BuyExchange != opps[j].BuyExchange {
			return opps[i].BuyExchange < opps[j].BuyExchange
		}
		return opps[i].SellExchange < opps[j].SellExchange
	})

	if len(opps) > 0 {
		d.logger.Debug("opportunities detected",
			slog.Int("count", len(opps)),
			slog.Float64("best_net_profit_pct", opps[0].NetProfitPct),
		)
	}
	return opps
}

// evaluate computes one direction (buy, sell). Fees are charged on the full
// notional of both legs, not only on the spread: a fee is paid on the whole
// buy amount and the whole sell amount.
func (d *Detector) evaluate(buy, sell domain.Quote, cycle time.Time) (domain.Opportunity, bool) {
	gross := sell.PriceUSD - buy.PriceUSD
	if gross <= 0 {
		return domain.Opportunity{}, false
	}

	buyFee := d.fees.FeeFor(buy.Exchange)
	sellFee := d.fees.FeeFor(sell.Exchange)

	netUSD := gross - (buy.PriceUSD+sell.PriceUSD)*(buyFee+sellFee)/100
	netPct := netUSD / buy.PriceUSD * 100
	if netPct < d.minProfitPct {
		return domain.Opportunity{}, false
	}

	// Conservative default: no volume information on either leg means no
	// tradable volume.
	volumeLimit := math.Min(buy.Volume, sell.Volume)
	if buy.Volume <= 0 || sell.Volume <= 0 {
		volumeLimit = 0
	}

	return domain.Opportunity{
		ID:             uuid.NewString(),
		BuyExchange:    buy.Exchange,
		SellExchange:   sell.Exchange,
		BuyPriceUSD:    buy.PriceUSD,
		SellPriceUSD:   sell.PriceUSD,
		BuyFeePct:      buyFee,
		SellFeePct:     sellFee,
		GrossSpreadUSD: gross,
		NetProfitUSD:   netUSD,
		NetProfitPct:   netPct,
		VolumeLimit:    volumeLimit,
		ComputedAt:     cycle,
	}, true
}
