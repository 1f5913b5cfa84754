// Package exchange contains the per-exchange price adapters and dynamic fee
// providers consumed by the monitor.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// Kraken is the REST client for the Kraken exchange API.
// Based on https://docs.kraken.com/api/
type Kraken struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// KrakenConfig configures a Kraken client. Credentials are only needed for
// the private endpoints backing dynamic fee lookup.
type KrakenConfig struct {
	BaseURL   string
	ApiKey    string
	ApiSecret string
}

// NewKraken creates a Kraken REST client.
func NewKraken(cfg KrakenConfig) *Kraken {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}
	return &Kraken{
		baseURL:   baseURL,
		apiKey:    cfg.ApiKey,
		apiSecret: cfg.ApiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the adapter identifier.
func (k *Kraken) Name() string { return "kraken" }

// krakenTickerResponse is the envelope of /0/public/Ticker. The result is
// keyed by Kraken's own pair naming, which differs from the requested one
// (BTC is XBT, USD pairs get the XXBTZUSD form).
type krakenTickerResponse struct {
	Error  []string                     `json:"error"`
	Result map[string]krakenTickerEntry `json:"result"`
}

type krakenTickerEntry struct {
	// C is the last trade closed: [price, lot volume].
	C []string `json:"c"`
	// V is the volume: [today, last 24 hours].
	V []string `json:"v"`
}

// FetchQuote fetches the last traded price for the pair (e.g. "BTC/USD")
// from the public Ticker endpoint.
func (k *Kraken) FetchQuote(ctx context.Context, pair string) (domain.Quote, error) {
	krakenPair := normalizeKrakenPair(pair)

	start := time.Now()
	endpoint := fmt.Sprintf("%s/0/public/Ticker?pair=%s", k.baseURL, url.QueryEscape(krakenPair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchProtocol, err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, classifyTransportError(k.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchProtocol,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed krakenTickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchProtocol, err)
	}
	if len(parsed.Error) > 0 {
		reason := domain.FetchProtocol
		if strings.HasPrefix(parsed.Error[0], "EAPI") || strings.HasPrefix(parsed.Error[0], "EAuth") {
			reason = domain.FetchAuth
		}
		return domain.Quote{}, domain.NewFetchError(k.Name(), reason,
			fmt.Errorf("kraken api error: %s", strings.Join(parsed.Error, "; ")))
	}

	// Kraken uses different pair formats in the result keys.
	entry, ok := lookupKrakenPair(parsed.Result, krakenPair)
	if !ok {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchProtocol,
			fmt.Errorf("no pair data for %s in response", krakenPair))
	}
	if len(entry.C) == 0 {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchProtocol,
			errors.New("no last trade data in response"))
	}

	price, err := strconv.ParseFloat(entry.C[0], 64)
	if err != nil || price <= 0 {
		return domain.Quote{}, domain.NewFetchError(k.Name(), domain.FetchProtocol,
			fmt.Errorf("bad price %q", entry.C[0]))
	}

	var volume float64
	if len(entry.V) > 1 {
		volume, _ = strconv.ParseFloat(entry.V[1], 64)
	}

	return domain.Quote{
		Exchange:  k.Name(),
		Pair:      pair,
		Price:     price,
		Currency:  quoteCurrency(pair),
		Volume:    volume,
		FetchedAt: time.Now(),
		Latency:   time.Since(start),
	}, nil
}

// FetchFee reads the account's taker fee tier for BTC/USD from the private
// TradeVolume endpoint. Requires API credentials.
func (k *Kraken) FetchFee(ctx context.Context) (float64, error) {
	if k.apiKey == "" || k.apiSecret == "" {
		return 0, errors.New("kraken: API credentials required for fee lookup")
	}

	path := "/0/private/TradeVolume"
	data := url.Values{}
	data.Set("pair", "XBTUSD")
	data.Set("fee-info", "true")

	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	data.Set("nonce", nonce)

	signature, err := k.sign(path, data, nonce)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path,
		strings.NewReader(data.Encode()))
	if err != nil {
		return 0, fmt.Errorf("kraken: create request: %w", err)
	}
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("kraken: fee request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("kraken: fee request status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Error  []string `json:"error"`
		Result struct {
			Fees map[string]struct {
				Fee string `json:"fee"`
			} `json:"fees"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("kraken: decode fee response: %w", err)
	}
	if len(parsed.Error) > 0 {
		return 0, fmt.Errorf("kraken: fee api error: %s", strings.Join(parsed.Error, "; "))
	}

	for _, tier := range parsed.Result.Fees {
		fee, err := strconv.ParseFloat(tier.Fee, 64)
		if err != nil {
			return 0, fmt.Errorf("kraken: bad fee value %q", tier.Fee)
		}
		return fee, nil
	}
	return 0, errors.New("kraken: no fee data in response")
}

// sign builds the API-Sign header: HMAC-SHA512 over
// path + SHA256(nonce + postdata), keyed with the base64-decoded secret.
func (k *Kraken) sign(path string, data url.Values, nonce string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(k.apiSecret)
	if err != nil {
		return "", fmt.Errorf("kraken: decode api secret: %w", err)
	}

	inner := sha256.Sum256([]byte(nonce + data.Encode()))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// normalizeKrakenPair converts "BTC/USD" into Kraken's request form "XBTUSD".
func normalizeKrakenPair(pair string) string {
	p := strings.ReplaceAll(pair, "/", "")
	p = strings.ReplaceAll(p, "BTC", "XBT")
	return p
}

// lookupKrakenPair resolves the result entry for a pair across the aliases
// Kraken responds with.
func lookupKrakenPair(result map[string]krakenTickerEntry, pair string) (krakenTickerEntry, bool) {
	for _, key := range []string{pair, "XXBTZUSD", "XBTUSD", "BTCUSD"} {
		if entry, ok := result[key]; ok {
			return entry, true
		}
	}
	// Single-pair requests get exactly one entry; accept it whatever the key.
	if len(result) == 1 {
		for _, entry := range result {
			return entry, true
		}
	}
	return krakenTickerEntry{}, false
}

// quoteCurrency extracts the quote leg of a "BASE/QUOTE" pair.
func quoteCurrency(pair string) string {
	if idx := strings.IndexByte(pair, '/'); idx >= 0 {
		return pair[idx+1:]
	}
	return pair
}

// classifyTransportError maps an http.Client error to a FetchError reason.
func classifyTransportError(exchange string, err error) *domain.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewFetchError(exchange, domain.FetchTimeout, err)
	}
	return domain.NewFetchError(exchange, domain.FetchNetwork, err)
}

var (
	_ domain.PriceAdapter = (*Kraken)(nil)
	_ domain.FeeProvider  = (*Kraken)(nil)
)
