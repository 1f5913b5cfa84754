package detector

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
	"github.com/janhruby/arbiwatch/internal/fees"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testModel(t *testing.T, static map[string]float64, def float64) *fees.Model {
	t.Helper()
	m, err := fees.New(fees.Config{StaticFees: static, DefaultFeePct: def}, testLogger())
	if err != nil {
		t.Fatalf("fees.New: %v", err)
	}
	return m
}

func quote(exchange string, priceUSD, volume float64) domain.Quote {
	return domain.Quote{
		Exchange: exchange,
		Pair:     "BTC/USD",
		Price:    priceUSD,
		PriceUSD: priceUSD,
		Currency: "USD",
		Volume:   volume,
	}
}

func snapshot(quotes ...domain.Quote) domain.CycleSnapshot {
	return domain.CycleSnapshot{Cycle: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), Quotes: quotes}
}

func TestDetectZeroFees(t *testing.T) {
	model := testModel(t, map[string]float64{"a": 0, "b": 0}, 0)
	d := New(model, 0.1, testLogger())

	opps := d.Detect(snapshot(quote("a", 100, 3), quote("b", 101, 5)))
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	opp := opps[0]
	if opp.BuyExchange != "a" || opp.SellExchange != "b" {
		t.Errorf("wrong direction: buy=%s sell=%s", opp.BuyExchange, opp.SellExchange)
	}
	if opp.GrossSpreadUSD != 1 {
		t.Errorf("gross spread = %g, want 1", opp.GrossSpreadUSD)
	}
	if opp.NetProfitUSD != 1 {
		t.Errorf("net profit USD = %g, want 1", opp.NetProfitUSD)
	}
	if opp.NetProfitPct != 1 {
		t.Errorf("net profit pct = %g, want 1", opp.NetProfitPct)
	}
	if opp.VolumeLimit != 3 {
		t.Errorf("volume limit = %g, want 3", opp.VolumeLimit)
	}
	if opp.ID == "" {
		t.Error("opportunity ID must be set")
	}
	if !opp.ComputedAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("computed at = %v, want the cycle timestamp", opp.ComputedAt)
	}
}

func TestDetectFeesEatSpread(t *testing.T) {
	// 1 USD gross on ~200 USD notional loses to 0.26% + 0.35% fees.
	model := testModel(t, map[string]float64{"kraken": 0.26, "coinmate": 0.35}, 0.25)
	d := New(model, 0.1, testLogger())

	opps := d.Detect(snapshot(quote("kraken", 100, 1), quote("coinmate", 101, 1)))
	if len(opps) != 0 {
		t.Fatalf("expected fee-eaten spread to be suppressed, got %d opportunities", len(opps))
	}
}

func TestDetectFullNotionalFees(t *testing.T) {
	model := testModel(t, map[string]float64{"a": 0.5, "b": 0.5}, 0.25)
	d := New(model, 0.1, testLogger())

	opps := d.Detect(snapshot(quote("a", 100, 1), quote("b", 110, 1)))
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	// net = 10 - (100+110) * (0.5+0.5)/100 = 10 - 2.1 = 7.9
	want := 10.0 - 210.0*1.0/100.0
	if diff := math.Abs(opps[0].NetProfitUSD - want); diff > 1e-9 {
		t.Errorf("net profit USD = %g, want %g", opps[0].NetProfitUSD, want)
	}
	wantPct := want / 100.0 * 100.0
	if diff := math.Abs(opps[0].NetProfitPct - wantPct); diff > 1e-9 {
		t.Errorf("net profit pct = %g, want %g", opps[0].NetProfitPct, wantPct)
	}
}

func TestDetectOrdering(t *testing.T) {
	model := testModel(t, map[string]float64{"a": 0, "b": 0, "c": 0}, 0)
	d := New(model, 0.1, testLogger())

	opps := d.Detect(snapshot(quote("a", 100, 1), quote("b", 102, 1), quote("c", 104, 1)))
	if len(opps) != 3 {
		t.Fatalf("expected 3 opportunities, got %d", len(opps))
	}
	for i := 1; i < len(opps); i++ {
		if opps[i].NetProfitPct > opps[i-1].NetProfitPct {
			t.Errorf("opportunities not in descending order at %d: %g > %g",
				i, opps[i].NetProfitPct, opps[i-1].NetProfitPct)
		}
	}
	if opps[0].BuyExchange != "a" || opps[0].SellExchange != "c" {
		t.Errorf("best opportunity should be a->c, got %s->%s",
			opps[0].BuyExchange, opps[0].SellExchange)
	}
}

func TestDetectDeterministic(t *testing.T) {
	model := testModel(t, map[string]float64{"a": 0.1, "b": 0.1, "c": 0.1}, 0.25)
	d := New(model, 0.1, testLogger())

	snap := snapshot(quote("a", 100, 2), quote("b", 103, 4), quote("c", 105, 1))
	first := d.Detect(snap)
	second := d.Detect(snap)

	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		a.ID, b.ID = "", ""
		if a != b {
			t.Errorf("runs differ at %d: %+v vs %+v", i, a, b)
		}
	}
}

func TestDetectSkipsSameExchange(t *testing.T) {
	model := testModel(t, nil, 0)
	d := New(model, 0.1, testLogger())

	opps := d.Detect(snapshot(quote("a", 100, 1), quote("a", 110, 1)))
	if len(opps) != 0 {
		t.Fatalf("same-exchange pair must not produce opportunities, got %d", len(opps))
	}
}

func TestDetectInsufficientSnapshot(t *testing.T) {
	model := testModel(t, nil, 0)
	d := New(model, 0.1, testLogger())

	if opps := d.Detect(domain.CycleSnapshot{Insufficient: true}); opps != nil {
		t.Errorf("insufficient snapshot must yield nil, got %v", opps)
	}
	if opps := d.Detect(snapshot(quote("a", 100, 1))); opps != nil {
		t.Errorf("single-quote snapshot must yield nil, got %v", opps)
	}
}

func TestDetectVolumeLimit(t *testing.T) {
	model := testModel(t, map[string]float64{"a": 0, "b": 0}, 0)
	d := New(model, 0.1, testLogger())

	opps := d.Detect(snapshot(quote("a", 100, 7), quote("b", 110, 2)))
	if len(opps) != 1 || opps[0].VolumeLimit != 2 {
		t.Fatalf("volume limit should be min of legs, got %+v", opps)
	}

	opps = d.Detect(snapshot(quote("a", 100, 0), quote("b", 110, 2)))
	if len(opps) != 1 || opps[0].VolumeLimit != 0 {
		t.Fatalf("missing volume on a leg should force limit 0, got %+v", opps)
	}
}

func TestDetectRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	exchanges := []string{"a", "b", "c", "d"}
	const minProfit = 0.1

	for iter := 0; iter < 200; iter++ {
		static := make(map[string]float64, len(exchanges))
		for _, ex := range exchanges {
			static[ex] = rng.Float64() // [0, 1)
		}
		model := testModel(t, static, 0.25)
		d := New(model, minProfit, testLogger())

		n := 2 + rng.Intn(3)
		quotes := make([]domain.Quote, 0, n)
		for i := 0; i < n; i++ {
			quotes = append(quotes, quote(exchanges[i], 100+100*rng.Float64(), 10*rng.Float64()))
		}

		for _, opp := range d.Detect(snapshot(quotes...)) {
			if opp.SellPriceUSD <= opp.BuyPriceUSD {
				t.Fatalf("iter %d: sell %g <= buy %g", iter, opp.SellPriceUSD, opp.BuyPriceUSD)
			}
			if opp.NetProfitPct < minProfit {
				t.Fatalf("iter %d: net profit pct %g below threshold", iter, opp.NetProfitPct)
			}
			wantNet := (opp.SellPriceUSD - opp.BuyPriceUSD) -
				(opp.BuyPriceUSD+opp.SellPriceUSD)*(opp.BuyFeePct+opp.SellFeePct)/100
			if math.Abs(opp.NetProfitUSD-wantNet) > 1e-9 {
				t.Fatalf("iter %d: net profit %g, recomputed %g", iter, opp.NetProfitUSD, wantNet)
			}
			if opp.VolumeLimit < 0 {
				t.Fatalf("iter %d: negative volume limit %g", iter, opp.VolumeLimit)
			}
		}
	}
}
