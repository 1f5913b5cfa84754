package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, buy_exchange, sell_exchange, buy_price_usd, sell_price_usd,
	buy_fee_pct, sell_fee_pct, gross_spread_usd, net_profit_usd, net_profit_pct,
	volume_limit, computed_at`

// Insert stores a detected arbitrage opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	query := `
		INSERT INTO arbitrage_opportunities (` + opportunityCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.BuyExchange, opp.SellExchange, opp.BuyPriceUSD, opp.SellPriceUSD,
		opp.BuyFeePct, opp.SellFeePct, opp.GrossSpreadUSD, opp.NetProfitUSD,
		opp.NetProfitPct, opp.VolumeLimit, opp.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM arbitrage_opportunities ORDER BY computed_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		if err := rows.Scan(
			&opp.ID, &opp.BuyExchange, &opp.SellExchange, &opp.BuyPriceUSD, &opp.SellPriceUSD,
			&opp.BuyFeePct, &opp.SellFeePct, &opp.GrossSpreadUSD, &opp.NetProfitUSD,
			&opp.NetProfitPct, &opp.VolumeLimit, &opp.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
