// Package notify delivers best-effort alerts about detected opportunities
// and exchange health changes. Notifications are dispatched to all registered
// senders (Telegram, Discord) and can be filtered by event type; a failing
// sender is logged and never affects the detection loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Event types used for filtering.
const (
	EventOpportunity  = "opportunity"
	EventExchangeDown = "exchange_down"
)

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed event types; events outside the set are dropped silently.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded; an empty list
// allows all event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyOpportunity formats and delivers an arbitrage opportunity alert.
// Delivery is best-effort; errors are logged and swallowed.
func (n *Notifier) NotifyOpportunity(ctx context.Context, opp domain.Opportunity) {
	if !n.allowed(EventOpportunity) {
		return
	}

	title := "Arbitrage opportunity"
	message := fmt.Sprintf(
		"Buy on %s at $%.2f\nSell on %s at $%.2f\nNet profit: $%.2f (%.2f%%)\nVolume limit: %.4f BTC",
		opp.BuyExchange, opp.BuyPriceUSD,
		opp.SellExchange, opp.SellPriceUSD,
		opp.NetProfitUSD, opp.NetProfitPct,
		opp.VolumeLimit,
	)
	n.dispatch(ctx, title, message)
}

// NotifyExchangeDown delivers an alert when an exchange crosses the DOWN
// threshold.
func (n *Notifier) NotifyExchangeDown(ctx context.Context, health domain.ExchangeHealth) {
	if !n.allowed(EventExchangeDown) {
		return
	}

	title := fmt.Sprintf("Exchange %s is DOWN", health.Exchange)
	message := fmt.Sprintf(
		"%d consecutive fetch failures; last success %s",
		health.ConsecutiveFailures,
		formatLastSuccess(health),
	)
	n.dispatch(ctx, title, message)
}

func (n *Notifier) allowed(event string) bool {
	if len(n.events) == 0 {
		return true
	}
	return n.events[event]
}

// dispatch iterates over all senders. A single sender failure does not
// prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

func formatLastSuccess(health domain.ExchangeHealth) string {
	if health.LastSuccessAt.IsZero() {
		return "never"
	}
	return health.LastSuccessAt.UTC().Format("2006-01-02 15:04:05 UTC")
}
