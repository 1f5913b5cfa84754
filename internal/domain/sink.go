package domain

import "context"

// QuoteStore persists per-cycle quote observations. Best-effort: the monitor
// operates identically whether the store is present, absent, or failing.
type QuoteStore interface {
	InsertQuotes(ctx context.Context, snap CycleSnapshot) error
}

// OpportunityStore persists detected arbitrage opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// HealthStore persists the latest per-exchange health states.
type HealthStore interface {
	Upsert(ctx context.Context, health ExchangeHealth) error
}

// SnapshotArchiver writes whole cycle results to cold storage.
type SnapshotArchiver interface {
	Archive(ctx context.Context, snap CycleSnapshot, opps []Opportunity) error
}
