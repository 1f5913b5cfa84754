package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// QuoteStore implements domain.QuoteStore using PostgreSQL.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// InsertQuotes stores all quotes from one cycle in a single batch.
func (s *QuoteStore) InsertQuotes(ctx context.Context, snap domain.CycleSnapshot) error {
	if len(snap.Quotes) == 0 {
		return nil
	}

	const query = `
		INSERT INTO quotes (time, exchange, pair, price, price_usd, currency, volume, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, q := range snap.Quotes {
		batch.Queue(query,
			snap.Cycle, q.Exchange, q.Pair, q.Price, q.PriceUSD,
			q.Currency, q.Volume, q.Latency.Milliseconds(),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range snap.Quotes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert quotes: %w", err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteStore = (*QuoteStore)(nil)
