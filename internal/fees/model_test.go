package fees

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
)

type fakeProvider struct {
	fee   float64
	err   error
	calls int
}

func (f *fakeProvider) FetchFee(context.Context) (float64, error) {
	f.calls++
	return f.fee, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsOutOfRangeFees(t *testing.T) {
	if _, err := New(Config{DefaultFeePct: 100}, testLogger()); err == nil {
		t.Error("default fee 100 must be rejected")
	}
	if _, err := New(Config{DefaultFeePct: -0.1}, testLogger()); err == nil {
		t.Error("negative default fee must be rejected")
	}
	if _, err := New(Config{StaticFees: map[string]float64{"kraken": -1}, DefaultFeePct: 0.25}, testLogger()); err == nil {
		t.Error("negative static fee must be rejected")
	}
	if _, err := New(Config{StaticFees: map[string]float64{"kraken": 0}, DefaultFeePct: 0}, testLogger()); err != nil {
		t.Errorf("zero fees are valid: %v", err)
	}
}

func TestFeeForFallbackChain(t *testing.T) {
	m, err := New(Config{
		StaticFees:    map[string]float64{"kraken": 0.26},
		DefaultFeePct: 0.25,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := m.FeeFor("kraken"); got != 0.26 {
		t.Errorf("static fee: got %g, want 0.26", got)
	}
	if got := m.FeeFor("unknown"); got != 0.25 {
		t.Errorf("default fee: got %g, want 0.25", got)
	}
}

func TestRefreshUsesDynamicFee(t *testing.T) {
	provider := &fakeProvider{fee: 0.16}
	m, err := New(Config{
		StaticFees:    map[string]float64{"kraken": 0.26},
		Providers:     map[string]domain.FeeProvider{"kraken": provider},
		DefaultFeePct: 0.25,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := m.FeeFor("kraken"); got != 0.26 {
		t.Errorf("before refresh: got %g, want static 0.26", got)
	}

	m.Refresh(context.Background())
	if got := m.FeeFor("kraken"); got != 0.16 {
		t.Errorf("after refresh: got %g, want dynamic 0.16", got)
	}
}

func TestRefreshFailureKeepsFallback(t *testing.T) {
	provider := &fakeProvider{err: errors.New("credentials rejected")}
	m, err := New(Config{
		StaticFees:    map[string]float64{"kraken": 0.26},
		Providers:     map[string]domain.FeeProvider{"kraken": provider},
		DefaultFeePct: 0.25,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.Refresh(context.Background())
	if got := m.FeeFor("kraken"); got != 0.26 {
		t.Errorf("failed lookup must keep static fee, got %g", got)
	}
}

func TestRefreshIgnoresOutOfRangeDynamicFee(t *testing.T) {
	provider := &fakeProvider{fee: 150}
	m, err := New(Config{
		StaticFees:    map[string]float64{"kraken": 0.26},
		Providers:     map[string]domain.FeeProvider{"kraken": provider},
		DefaultFeePct: 0.25,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.Refresh(context.Background())
	if got := m.FeeFor("kraken"); got != 0.26 {
		t.Errorf("out-of-range dynamic fee must be ignored, got %g", got)
	}
}

func TestRefreshHonorsInterval(t *testing.T) {
	provider := &fakeProvider{fee: 0.16}
	m, err := New(Config{
		Providers:       map[string]domain.FeeProvider{"kraken": provider},
		DefaultFeePct:   0.25,
		RefreshInterval: 15 * time.Minute,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.Refresh(context.Background())
	m.Refresh(context.Background())
	if provider.calls != 1 {
		t.Fatalf("expected 1 lookup within the interval, got %d", provider.calls)
	}

	m.now = func() time.Time { return base.Add(16 * time.Minute) }
	m.Refresh(context.Background())
	if provider.calls != 2 {
		t.Fatalf("expected re-fetch after the interval, got %d lookups", provider.calls)
	}
}
