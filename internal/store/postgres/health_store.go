package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// HealthStore implements domain.HealthStore using PostgreSQL.
type HealthStore struct {
	pool *pgxpool.Pool
}

// NewHealthStore creates a new HealthStore backed by the given connection
// pool.
func NewHealthStore(pool *pgxpool.Pool) *HealthStore {
	return &HealthStore{pool: pool}
}

// Upsert writes the latest health state for an exchange.
func (s *HealthStore) Upsert(ctx context.Context, health domain.ExchangeHealth) error {
	const query = `
		INSERT INTO exchange_health (exchange, state, consecutive_failures, last_success_at, last_latency_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (exchange) DO UPDATE SET
			state                = EXCLUDED.state,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_success_at      = EXCLUDED.last_success_at,
			last_latency_ms      = EXCLUDED.last_latency_ms,
			updated_at           = NOW()`

	var lastSuccess *time.Time
	if !health.LastSuccessAt.IsZero() {
		lastSuccess = &health.LastSuccessAt
	}

	_, err := s.pool.Exec(ctx, query,
		health.Exchange, string(health.State), health.ConsecutiveFailures,
		lastSuccess, health.LastLatency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert health %s: %w", health.Exchange, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.HealthStore = (*HealthStore)(nil)
