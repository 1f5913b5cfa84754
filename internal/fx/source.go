// Package fx converts quote prices to the reference currency (USD) using a
// cached, periodically refreshed rate table with stale-rate fallback.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches the full USD rate table from an exchangerate-api.com
// compatible endpoint. Rates are returned inverted, i.e. keyed by currency
// with the value being 1 unit of that currency in USD.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a rate-source client for the given API root, e.g.
// "https://api.exchangerate-api.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ratesResponse is the shape of GET /v4/latest/USD.
type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// FetchRates retrieves the latest USD-based rate table and inverts it so that
// each entry is the USD value of one unit of the currency.
func (c *Client) FetchRates(ctx context.Context) (map[string]float64, error) {
	url := c.baseURL + "/v4/latest/USD"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fx: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx: fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fx: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("fx: decode response: %w", err)
	}
	if len(parsed.Rates) == 0 {
		return nil, fmt.Errorf("fx: empty rate table in response")
	}

	inverted := make(map[string]float64, len(parsed.Rates))
	for currency, usdPer := range parsed.Rates {
		if usdPer <= 0 {
			continue
		}
		inverted[currency] = 1.0 / usdPer
	}
	return inverted, nil
}
