package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aurayield/engine/internal/domain"
)

// Listener subscribes to the stake and market channels and turns settlement
// signals into operator notifications. Wager placements and day recordings
// pass through the bus too but are never forwarded; only terminal events
// reach the senders.
type Listener struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewListener creates a Listener over the given signal bus.
func NewListener(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// Run consumes both channels until ctx is cancelled. It returns nil on
// cancellation and an error only if a subscription cannot be established.
func (l *Listener) Run(ctx context.Context) error {
	if !l.notifier.Enabled() {
		l.logger.InfoContext(ctx, "no senders configured, listener idle")
		<-ctx.Done()
		return nil
	}

	stakes, err := l.bus.Subscribe(ctx, domain.ChannelStakes)
	if err != nil {
		return fmt.Errorf("notify: subscribe stakes: %w", err)
	}
	markets, err := l.bus.Subscribe(ctx, domain.ChannelMarkets)
	if err != nil {
		return fmt.Errorf("notify: subscribe markets: %w", err)
	}

	l.logger.InfoContext(ctx, "settlement listener started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-stakes:
			if !ok {
				return nil
			}
			l.handleStake(ctx, payload)
		case payload, ok := <-markets:
			if !ok {
				return nil
			}
			l.handleMarket(ctx, payload)
		}
	}
}

func (l *Listener) handleStake(ctx context.Context, payload []byte) {
	var ev domain.StakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.WarnContext(ctx, "malformed stake event", slog.Any("error", err))
		return
	}
	if ev.Type != "stake_settled" {
		return
	}

	var title, msg string
	switch ev.Status {
	case domain.StakeStatusCompleted:
		title = "Stake completed"
		msg = fmt.Sprintf("Stake %s completed at %d%% confidence. Payout: %s.",
			ev.StakeID, ev.Confidence, formatCents(ev.PayoutCents))
	case domain.StakeStatusForfeited:
		title = "Stake forfeited"
		msg = fmt.Sprintf("Stake %s forfeited. Returned to owner: %s.",
			ev.StakeID, formatCents(ev.PayoutCents))
	default:
		return
	}

	if err := l.notifier.Notify(ctx, "stake_settled", title, msg); err != nil {
		l.logger.WarnContext(ctx, "stake notification failed",
			slog.String("stake_id", ev.StakeID), slog.Any("error", err))
	}
}

func (l *Listener) handleMarket(ctx context.Context, payload []byte) {
	var ev domain.MarketEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.WarnContext(ctx, "malformed market event", slog.Any("error", err))
		return
	}
	if ev.Type != "market_resolved" {
		return
	}

	pool := formatCents(ev.YesPoolCents + ev.NoPoolCents)

	var event, title, msg string
	switch ev.Status {
	case domain.MarketStatusVoid:
		event = "market_voided"
		title = "Market voided"
		msg = fmt.Sprintf("Market %s was voided; all wagers (%s) refunded.", ev.MarketID, pool)
	case domain.MarketStatusResolvedYes, domain.MarketStatusResolvedNo:
		event = "market_resolved"
		title = "Market resolved"
		msg = fmt.Sprintf("Market %s resolved %s. Pool distributed: %s.",
			ev.MarketID, ev.Status, pool)
	default:
		return
	}

	if err := l.notifier.Notify(ctx, event, title, msg); err != nil {
		l.logger.WarnContext(ctx, "market notification failed",
			slog.String("market_id", ev.MarketID), slog.Any("error", err))
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
