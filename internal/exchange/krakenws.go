package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// wsMaxQuoteAge bounds how old a streamed ticker may be before FetchQuote
// reports the stream as unavailable instead of serving it.
const wsMaxQuoteAge = 30 * time.Second

// KrakenWS is a streaming price adapter for Kraken's public WebSocket v1
// ticker feed. A background goroutine keeps the latest ticker in memory;
// FetchQuote serves from that without any network round trip, so a slow
// stream surfaces as a fetch failure rather than a blocked cycle.
type KrakenWS struct {
	wsURL  string
	pair   string // Kraken ws form, e.g. "XBT/USD"
	logger *slog.Logger

	mu     sync.RWMutex
	last   domain.Quote
	hasOne bool
}

// KrakenWSConfig configures a KrakenWS adapter.
type KrakenWSConfig struct {
	WsURL  string
	Pair   string // configured form, e.g. "BTC/USD"
	Logger *slog.Logger
}

// NewKrakenWS creates the adapter. Start must be called before quotes become
// available.
func NewKrakenWS(cfg KrakenWSConfig) *KrakenWS {
	wsURL := cfg.WsURL
	if wsURL == "" {
		wsURL = "wss://ws.kraken.com"
	}
	return &KrakenWS{
		wsURL:  wsURL,
		pair:   strings.ReplaceAll(cfg.Pair, "BTC", "XBT"),
		logger: cfg.Logger.With(slog.String("component", "kraken_ws")),
	}
}

// Name returns the adapter identifier. The streaming variant deliberately
// shares the REST adapter's name; both feed the same exchange slot.
func (k *KrakenWS) Name() string { return "kraken" }

// Start runs the read loop until ctx is cancelled, reconnecting with a fixed
// backoff after connection drops.
func (k *KrakenWS) Start(ctx context.Context) error {
	const backoff = 5 * time.Second
	for {
		if err := k.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn("websocket disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// readLoop dials, subscribes to the ticker channel, and consumes messages
// until the connection breaks or ctx is cancelled.
func (k *KrakenWS) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, k.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", k.wsURL, err)
	}
	defer conn.Close()

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	sub := map[string]any{
		"event":        "subscribe",
		"pair":         []string{k.pair},
		"subscription": map[string]string{"name": "ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	k.logger.Info("subscribed to ticker", slog.String("pair", k.pair))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		k.handleMessage(msg)
	}
}

// handleMessage parses one frame. Ticker updates arrive as arrays:
// [channelID, {"c": [...], "v": [...]}, "ticker", "XBT/USD"]; everything else
// (heartbeats, subscription status) is JSON objects and ignored.
func (k *KrakenWS) handleMessage(msg []byte) {
	if len(msg) == 0 || msg[0] != '[' {
		return
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 4 {
		return
	}

	var payload struct {
		C []string `json:"c"`
		V []string `json:"v"`
	}
	if err := json.Unmarshal(frame[1], &payload); err != nil || len(payload.C) == 0 {
		return
	}

	price, err := strconv.ParseFloat(payload.C[0], 64)
	if err != nil || price <= 0 {
		return
	}
	var volume float64
	if len(payload.V) > 1 {
		volume, _ = strconv.ParseFloat(payload.V[1], 64)
	}

	pair := strings.ReplaceAll(k.pair, "XBT", "BTC")
	k.mu.Lock()
	k.last = domain.Quote{
		Exchange:  k.Name(),
		Pair:      pair,
		Price:     price,
		Currency:  quoteCurrency(pair),
		Volume:    volume,
		FetchedAt: time.Now(),
	}
	k.hasOne = true
	k.mu.Unlock()
}

// FetchQuote returns the most recent streamed ticker. A missing or outdated
// ticker is reported as a network failure so the monitor counts it against
// the exchange's health like any other fetch error.
func (k *KrakenWS) FetchQuote(_ context.Context, _ string) (domain.Quote, error) {
	k.mu.RLock()
	quote, ok := k.last, k.hasOne
	k.mu.RUnlock()

	if !ok {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchNetwork,
			errors.New("no ticker received yet"))
	}
	if age := time.Since(quote.FetchedAt); age > wsMaxQuoteAge {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchTimeout,
			fmt.Errorf("last ticker is %s old", age.Round(time.Second)))
	}
	return quote, nil
}

var _ domain.PriceAdapter = (*KrakenWS)(nil)
