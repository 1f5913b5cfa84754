package exchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/janhruby/arbiwatch/internal/domain"
)

func newTestWS() *KrakenWS {
	return NewKrakenWS(KrakenWSConfig{
		Pair:   "BTC/USD",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestKrakenWSHandleTickerFrame(t *testing.T) {
	ws := newTestWS()
	ws.handleMessage([]byte(`[340,{"c":["50000.1","0.01"],"v":["10.0","25.5"]},"ticker","XBT/USD"]`))

	quote, err := ws.FetchQuote(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if quote.Price != 50000.1 {
		t.Errorf("price = %g, want 50000.1", quote.Price)
	}
	if quote.Volume != 25.5 {
		t.Errorf("volume = %g, want 24h volume 25.5", quote.Volume)
	}
	if quote.Pair != "BTC/USD" {
		t.Errorf("pair = %q, want BTC/USD", quote.Pair)
	}
	if quote.Currency != "USD" {
		t.Errorf("currency = %q, want USD", quote.Currency)
	}
}

func TestKrakenWSIgnoresNonTickerFrames(t *testing.T) {
	ws := newTestWS()
	ws.handleMessage([]byte(`{"event":"heartbeat"}`))
	ws.handleMessage([]byte(`{"event":"subscriptionStatus","status":"subscribed"}`))
	ws.handleMessage([]byte(`[340,{"c":["not-a-number"]},"ticker","XBT/USD"]`))
	ws.handleMessage([]byte(`garbage`))

	if _, err := ws.FetchQuote(context.Background(), "BTC/USD"); err == nil {
		t.Fatal("expected error before any valid ticker arrives")
	}
}

func TestKrakenWSNoQuoteYet(t *testing.T) {
	ws := newTestWS()
	_, err := ws.FetchQuote(context.Background(), "BTC/USD")
	if err == nil {
		t.Fatal("expected error with no streamed quote")
	}
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
}
