package app

import (
	"context"
	"log/slog"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// cycleResult carries everything produced by one poll cycle to the sink
// dispatcher.
type cycleResult struct {
	snapshot      domain.CycleSnapshot
	opportunities []domain.Opportunity
	health        []domain.ExchangeHealth
	downEvents    []domain.ExchangeHealth
}

// dispatcher fans cycle results out to the configured sinks off the poll
// loop. Sinks are strictly best effort: a slow or failing sink never delays
// the next cycle, and results are dropped with a warning when the queue is
// full.
type dispatcher struct {
	deps   *Dependencies
	queue  chan cycleResult
	logger *slog.Logger
}

func newDispatcher(deps *Dependencies, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		deps:   deps,
		queue:  make(chan cycleResult, 16),
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Submit enqueues a cycle result without blocking. When the queue is full the
// result is dropped.
func (d *dispatcher) Submit(res cycleResult) {
	select {
	case d.queue <- res:
	default:
		d.logger.Warn("sink queue full, dropping cycle result",
			slog.Time("cycle", res.snapshot.Cycle),
		)
	}
}

// Run drains the queue until the context is cancelled. Remaining queued
// results are discarded on shutdown.
func (d *dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-d.queue:
			d.flush(ctx, res)
		}
	}
}

func (d *dispatcher) flush(ctx context.Context, res cycleResult) {
	if d.deps.QuoteStore != nil && len(res.snapshot.Quotes) > 0 {
		if err := d.deps.QuoteStore.InsertQuotes(ctx, res.snapshot); err != nil {
			d.logger.Warn("persist quotes failed", slog.String("error", err.Error()))
		}
	}

	if d.deps.OpportunityStore != nil {
		for _, opp := range res.opportunities {
			if err := d.deps.OpportunityStore.Insert(ctx, opp); err != nil {
				d.logger.Warn("persist opportunity failed",
					slog.String("id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if d.deps.HealthStore != nil {
		for _, h := range res.health {
			if err := d.deps.HealthStore.Upsert(ctx, h); err != nil {
				d.logger.Warn("persist health failed",
					slog.String("exchange", h.Exchange),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if d.deps.Archiver != nil {
		if err := d.deps.Archiver.Archive(ctx, res.snapshot, res.opportunities); err != nil {
			d.logger.Warn("archive cycle failed", slog.String("error", err.Error()))
		}
	}

	if d.deps.Notifier != nil {
		for _, opp := range res.opportunities {
			d.deps.Notifier.NotifyOpportunity(ctx, opp)
		}
		for _, h := range res.downEvents {
			d.deps.Notifier.NotifyExchangeDown(ctx, h)
		}
	}
}
