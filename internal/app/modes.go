package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// MonitorMode runs the continuous poll loop: every poll interval it refreshes
// dynamic fees, fans out to all adapters, detects arbitrage opportunities,
// and hands the results to the sink dispatcher.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, ws := range deps.Streamers {
		ws := ws
		g.Go(func() error {
			return ws.Start(ctx)
		})
	}

	disp := newDispatcher(deps, a.logger)
	g.Go(func() error {
		return disp.Run(ctx)
	})

	g.Go(func() error {
		return a.pollLoop(ctx, deps, disp)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) pollLoop(ctx context.Context, deps *Dependencies, disp *dispatcher) error {
	ticker := time.NewTicker(a.cfg.Monitor.PollInterval.Duration)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "poll loop started",
		slog.Duration("interval", a.cfg.Monitor.PollInterval.Duration),
	)

	// Track health states across cycles so DOWN notifications fire once per
	// transition rather than every cycle.
	lastState := make(map[string]domain.HealthState)

	runOnce := func() {
		deps.FeeModel.Refresh(ctx)

		snap := deps.Monitor.RunCycle(ctx)
		opps := deps.Detector.Detect(snap)
		health := deps.Monitor.Health()

		var downEvents []domain.ExchangeHealth
		for _, h := range health {
			if h.State == domain.HealthDown && lastState[h.Exchange] != domain.HealthDown {
				downEvents = append(downEvents, h)
			}
			lastState[h.Exchange] = h.State
		}

		disp.Submit(cycleResult{
			snapshot:      snap,
			opportunities: opps,
			health:        health,
			downEvents:    downEvents,
		})
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

// ProbeMode runs a single poll cycle and logs the outcome. It is meant for
// configuration and connectivity checks; sinks are not involved.
func (a *App) ProbeMode(ctx context.Context, deps *Dependencies) error {
	deps.FeeModel.Refresh(ctx)

	snap := deps.Monitor.RunCycle(ctx)
	for _, q := range snap.Quotes {
		a.logger.InfoContext(ctx, "quote",
			slog.String("exchange", q.Exchange),
			slog.String("pair", q.Pair),
			slog.Float64("price", q.Price),
			slog.Float64("price_usd", q.PriceUSD),
			slog.String("currency", q.Currency),
			slog.Float64("volume", q.Volume),
			slog.Duration("latency", q.Latency),
		)
	}
	for _, h := range deps.Monitor.Health() {
		a.logger.InfoContext(ctx, "exchange health",
			slog.String("exchange", h.Exchange),
			slog.String("state", string(h.State)),
			slog.Int("consecutive_failures", h.ConsecutiveFailures),
		)
	}

	opps := deps.Detector.Detect(snap)
	if len(opps) == 0 {
		a.logger.InfoContext(ctx, "no arbitrage opportunities found")
		return nil
	}
	for _, opp := range opps {
		a.logger.InfoContext(ctx, "arbitrage opportunity",
			slog.String("buy_exchange", opp.BuyExchange),
			slog.String("sell_exchange", opp.SellExchange),
			slog.Float64("buy_price_usd", opp.BuyPriceUSD),
			slog.Float64("sell_price_usd", opp.SellPriceUSD),
			slog.Float64("net_profit_usd", opp.NetProfitUSD),
			slog.Float64("net_profit_pct", opp.NetProfitPct),
			slog.Float64("volume_limit", opp.VolumeLimit),
		)
	}
	return nil
}
