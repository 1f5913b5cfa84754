package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// RateCache implements domain.RateCache using Redis hashes. Each currency's
// rate is stored as a hash at key "fxrate:{currency}" with fields "rate" and
// "ts" (Unix nanosecond timestamp), so a restarted monitor can reuse the
// last good rates instead of starting cold.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(currency string) string {
	return "fxrate:" + currency
}

// Set stores the rate and its fetch timestamp for a currency.
func (rc *RateCache) Set(ctx context.Context, rate domain.ExchangeRate) error {
	key := rateKey(rate.Currency)
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate.Rate, 'f', -1, 64),
		"ts":   strconv.FormatInt(rate.FetchedAt.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", rate.Currency, err)
	}
	return nil
}

// Get retrieves the cached rate for a currency. It returns domain.ErrNotFound
// when the key does not exist.
func (rc *RateCache) Get(ctx context.Context, currency string) (domain.ExchangeRate, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(currency)).Result()
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: get rate %s: %w", currency, err)
	}
	if len(vals) == 0 {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate %s: %w", currency, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse ts %s: %w", currency, err)
	}

	return domain.ExchangeRate{
		Currency:  currency,
		Rate:      rate,
		FetchedAt: time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
