// Package score maintains Aura, the reputation number shown next to every
// account. Settlement outcomes feed it deltas through deterministic events so
// a replayed settlement can never move a score twice.
package score

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurayield/engine/internal/domain"
)

// Aura deltas per settlement outcome. BaseAura is the score every new
// account starts with; Aura is clamped at zero by the store.
const (
	BaseAura       = 100
	CompletedDelta = 25
	ForfeitedDelta = -40
	WagerWonDelta  = 10

	// Wagers below this size win money but not reputation.
	MinScoringWagerCents int64 = 10_00
)

// Aggregator applies score events and mirrors the result to the leaderboard.
type Aggregator struct {
	scores   domain.ScoreStore
	accounts domain.AccountStore
	board    domain.Leaderboard
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. board may be nil when no leaderboard
// cache is configured.
func NewAggregator(scores domain.ScoreStore, accounts domain.AccountStore, board domain.Leaderboard, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		scores:   scores,
		accounts: accounts,
		board:    board,
		logger:   logger,
	}
}

// StakeCompleted awards the completion delta for a settled stake.
func (a *Aggregator) StakeCompleted(ctx context.Context, stake domain.Stake) error {
	return a.apply(ctx, domain.ScoreStakeCompleted, stake.ID, stake.AccountID, CompletedDelta)
}

// StakeForfeited applies the forfeiture penalty for a failed stake.
func (a *Aggregator) StakeForfeited(ctx context.Context, stake domain.Stake) error {
	return a.apply(ctx, domain.ScoreStakeForfeited, stake.ID, stake.AccountID, ForfeitedDelta)
}

// WagerWon awards the win delta for a settled winning wager. Wagers below
// MinScoringWagerCents are ignored.
func (a *Aggregator) WagerWon(ctx context.Context, wager domain.Wager) error {
	if wager.AmountCents < MinScoringWagerCents {
		return nil
	}
	return a.apply(ctx, domain.ScoreWagerWon, wager.ID, wager.AccountID, WagerWonDelta)
}

func (a *Aggregator) apply(ctx context.Context, kind domain.ScoreEventKind, entityID, accountID string, delta int) error {
	event := domain.ScoreEvent{
		ID:        domain.ScoreEventID(kind, entityID, accountID),
		Kind:      kind,
		AccountID: accountID,
		EntityID:  entityID,
		Delta:     delta,
		CreatedAt: time.Now().UTC(),
	}

	applied, err := a.scores.Apply(ctx, event)
	if err != nil {
		return fmt.Errorf("score: apply %s: %w", event.ID, err)
	}
	if !applied {
		a.logger.DebugContext(ctx, "score event already applied", slog.String("event_id", event.ID))
		return nil
	}

	a.logger.InfoContext(ctx, "aura updated",
		slog.String("account_id", accountID),
		slog.String("kind", string(kind)),
		slog.Int("delta", delta))

	a.mirror(ctx, accountID)
	return nil
}

// mirror pushes the account's new Aura into the leaderboard cache. Cache
// failures are logged and swallowed; the database stays authoritative.
func (a *Aggregator) mirror(ctx context.Context, accountID string) {
	if a.board == nil {
		return
	}
	acct, err := a.accounts.GetByID(ctx, accountID)
	if err != nil {
		a.logger.WarnContext(ctx, "leaderboard mirror: load account failed",
			slog.String("account_id", accountID), slog.Any("error", err))
		return
	}
	if err := a.board.Set(ctx, acct.ID, acct.Handle, acct.Aura); err != nil {
		a.logger.WarnContext(ctx, "leaderboard mirror failed",
			slog.String("account_id", accountID), slog.Any("error", err))
	}
}

// Events lists an account's score history.
func (a *Aggregator) Events(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.ScoreEvent, error) {
	events, err := a.scores.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("score: list events: %w", err)
	}
	return events, nil
}

// Top returns the leaderboard, preferring the cache and falling back to the
// database when the cache is empty or unavailable.
func (a *Aggregator) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}
	if a.board != nil {
		entries, err := a.board.Top(ctx, n)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			a.logger.WarnContext(ctx, "leaderboard cache read failed", slog.Any("error", err))
		}
	}

	entries, err := a.accounts.TopByAura(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("score: leaderboard fallback: %w", err)
	}
	return entries, nil
}
