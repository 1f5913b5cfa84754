package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// Coinmate is the REST client for the Coinmate exchange.
// Based on https://coinmate.docs.apiary.io/
type Coinmate struct {
	baseURL    string
	pair       string
	apiKey     string
	apiSecret  string
	clientID   string
	httpClient *http.Client
}

// CoinmateConfig configures a Coinmate client. ClientID, ApiKey, and
// ApiSecret are only needed for the private traderFees endpoint; Pair is the
// pair whose fee tier that endpoint reads.
type CoinmateConfig struct {
	BaseURL   string
	Pair      string // e.g. "BTC/CZK"
	ApiKey    string
	ApiSecret string
	ClientID  string
}

// NewCoinmate creates a Coinmate REST client.
func NewCoinmate(cfg CoinmateConfig) *Coinmate {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://coinmate.io/api"
	}
	pair := cfg.Pair
	if pair == "" {
		pair = "BTC/CZK"
	}
	return &Coinmate{
		baseURL:   baseURL,
		pair:      pair,
		apiKey:    cfg.ApiKey,
		apiSecret: cfg.ApiSecret,
		clientID:  cfg.ClientID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the adapter identifier.
func (c *Coinmate) Name() string { return "coinmate" }

// coinmateEnvelope is the common Coinmate response wrapper.
type coinmateEnvelope struct {
	Error        bool            `json:"error"`
	ErrorMessage string          `json:"errorMessage"`
	Data         json.RawMessage `json:"data"`
}

// FetchQuote fetches the last traded price for the pair (e.g. "BTC/CZK")
// from the public ticker endpoint.
func (c *Coinmate) FetchQuote(ctx context.Context, pair string) (domain.Quote, error) {
	currencyPair := strings.ReplaceAll(pair, "/", "_")

	start := time.Now()
	endpoint := fmt.Sprintf("%s/ticker?currencyPair=%s", c.baseURL, url.QueryEscape(currencyPair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, domain.NewFetchError(c.Name(), domain.FetchProtocol, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, classifyTransportError(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, domain.NewFetchError(c.Name(), domain.FetchProtocol,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var envelope coinmateEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.Quote{}, domain.NewFetchError(c.Name(), domain.FetchProtocol, err)
	}
	if envelope.Error {
		reason := domain.FetchProtocol
		if strings.Contains(strings.ToLower(envelope.ErrorMessage), "access denied") {
			reason = domain.FetchAuth
		}
		return domain.Quote{}, domain.NewFetchError(c.Name(), reason,
			fmt.Errorf("coinmate api error: %s", envelope.ErrorMessage))
	}

	var ticker struct {
		Last   float64 `json:"last"`
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(envelope.Data, &ticker); err != nil {
		return domain.Quote{}, domain.NewFetchError(c.Name(), domain.FetchProtocol, err)
	}
	if ticker.Last <= 0 {
		return domain.Quote{}, domain.NewFetchError(c.Name(), domain.FetchProtocol,
			errors.New("non-positive last price in response"))
	}

	return domain.Quote{
		Exchange:  c.Name(),
		Pair:      pair,
		Price:     ticker.Last,
		Currency:  quoteCurrency(pair),
		Volume:    ticker.Amount,
		FetchedAt: time.Now(),
		Latency:   time.Since(start),
	}, nil
}

// FetchFee reads the account's taker fee from the private traderFees
// endpoint. Requires full API credentials.
func (c *Coinmate) FetchFee(ctx context.Context) (float64, error) {
	if c.apiKey == "" || c.apiSecret == "" || c.clientID == "" {
		return 0, errors.New("coinmate: API credentials required for fee lookup")
	}

	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)

	form := url.Values{}
	form.Set("currencyPair", strings.ReplaceAll(c.pair, "/", "_"))
	form.Set("clientId", c.clientID)
	form.Set("publicKey", c.apiKey)
	form.Set("nonce", nonce)
	form.Set("signature", c.sign(nonce))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/traderFees",
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("coinmate: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coinmate: fee request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coinmate: fee request status %d", resp.StatusCode)
	}

	var envelope coinmateEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return 0, fmt.Errorf("coinmate: decode fee response: %w", err)
	}
	if envelope.Error {
		return 0, fmt.Errorf("coinmate: fee api error: %s", envelope.ErrorMessage)
	}

	var fees struct {
		Taker float64 `json:"taker"`
	}
	if err := json.Unmarshal(envelope.Data, &fees); err != nil {
		return 0, fmt.Errorf("coinmate: decode fee data: %w", err)
	}
	return fees.Taker, nil
}

// sign builds the request signature: HMAC-SHA256 over
// nonce + clientId + publicKey, hex-encoded uppercase.
func (c *Coinmate) sign(nonce string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(nonce + c.clientID + c.apiKey))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

var (
	_ domain.PriceAdapter = (*Coinmate)(nil)
	_ domain.FeeProvider  = (*Coinmate)(nil)
)
