package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurayield/engine/internal/domain"
	"github.com/aurayield/engine/internal/ledger"
	"github.com/aurayield/engine/internal/score"
)

// MarketConfig tunes market validation and the sweeper.
type MarketConfig struct {
	// VoidAfter is how long past its deadline an unresolved market may sit
	// before the sweeper voids it and refunds everyone.
	VoidAfter time.Duration
	LockTTL   time.Duration
}

func (c MarketConfig) withDefaults() MarketConfig {
	if c.VoidAfter <= 0 {
		c.VoidAfter = 72 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	return c
}

// Quote is a prospective payout for a wager that has not been placed yet.
type Quote struct {
	MarketID    string
	Side        domain.Side
	AmountCents int64
	PayoutCents int64
}

// MarketEngine runs pari-mutuel markets: pooled wagers, on-demand odds, and
// conservation-exact resolution. The market lock serializes PlaceWager and
// Resolve so a wager can never land in a resolved pool.
type MarketEngine struct {
	cfg     MarketConfig
	markets domain.MarketStore
	wagers  domain.WagerStore
	ledger  *ledger.Ledger
	scores  *score.Aggregator
	locks   domain.LockManager
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewMarketEngine creates a MarketEngine. bus may be nil.
func NewMarketEngine(
	cfg MarketConfig,
	markets domain.MarketStore,
	wagers domain.WagerStore,
	ldg *ledger.Ledger,
	scores *score.Aggregator,
	locks domain.LockManager,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketEngine {
	return &MarketEngine{
		cfg:     cfg.withDefaults(),
		markets: markets,
		wagers:  wagers,
		ledger:  ldg,
		scores:  scores,
		locks:   locks,
		bus:     bus,
		logger:  logger,
	}
}

// CreateMarket opens a market on a claimed goal outcome. The creator's Aura
// is snapshotted so readers can judge how much to trust the claim.
func (e *MarketEngine) CreateMarket(ctx context.Context, creatorID, claim string, goalID domain.GoalType, deadline time.Time) (domain.Market, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return domain.Market{}, fmt.Errorf("engine: create market: empty claim")
	}
	if _, err := domain.GoalByID(goalID); err != nil {
		return domain.Market{}, domain.ErrInvalidGoal
	}
	if !deadline.After(time.Now()) {
		return domain.Market{}, domain.ErrInvalidDeadline
	}

	creator, err := e.ledger.Get(ctx, creatorID)
	if err != nil {
		return domain.Market{}, err
	}
	if !creator.Active {
		return domain.Market{}, domain.ErrAccountInactive
	}

	now := time.Now().UTC()
	market := domain.Market{
		ID:          uuid.NewString(),
		CreatorID:   creatorID,
		Claim:       claim,
		Goal:        goalID,
		CreatorAura: creator.Aura,
		Deadline:    deadline.UTC(),
		Status:      domain.MarketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}

	e.logger.InfoContext(ctx, "market created",
		slog.String("market_id", market.ID),
		slog.String("creator_id", creatorID),
		slog.Time("deadline", market.Deadline))

	e.publishMarket(ctx, "market_created", market)
	return market, nil
}

// Get returns a market by id.
func (e *MarketEngine) Get(ctx context.Context, id string) (domain.Market, error) {
	market, err := e.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: get market: %w", err)
	}
	return market, nil
}

// ListOpen returns markets still accepting wagers.
func (e *MarketEngine) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := e.markets.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}
	return markets, nil
}

// QuoteWager returns what a wager of amountCents on side would pay out if
// that side wins, with the prospective wager included in both pools.
func (e *MarketEngine) QuoteWager(ctx context.Context, marketID string, side domain.Side, amountCents int64) (Quote, error) {
	if !side.Valid() {
		return Quote{}, fmt.Errorf("engine: quote: invalid side %q", side)
	}
	if amountCents <= 0 {
		return Quote{}, domain.ErrInvalidAmount
	}

	market, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return Quote{}, fmt.Errorf("engine: get market: %w", err)
	}
	if !market.AcceptingWagers(time.Now()) {
		return Quote{}, domain.ErrMarketClosed
	}

	return Quote{
		MarketID:    marketID,
		Side:        side,
		AmountCents: amountCents,
		PayoutCents: market.QuotePayoutCents(side, amountCents),
	}, nil
}

// PlaceWager debits the account and adds the amount to the chosen pool.
func (e *MarketEngine) PlaceWager(ctx context.Context, marketID, accountID string, side domain.Side, amountCents int64) (domain.Wager, error) {
	if !side.Valid() {
		return domain.Wager{}, fmt.Errorf("engine: place wager: invalid side %q", side)
	}
	if amountCents <= 0 {
		return domain.Wager{}, domain.ErrInvalidAmount
	}

	unlock, err := e.locks.Acquire(ctx, "market:"+marketID, e.cfg.LockTTL)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("engine: lock market: %w", err)
	}
	defer unlock()

	market, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("engine: get market: %w", err)
	}
	if !market.AcceptingWagers(time.Now()) {
		return domain.Wager{}, domain.ErrMarketClosed
	}

	if err := e.ledger.Debit(ctx, accountID, amountCents, "wager"); err != nil {
		return domain.Wager{}, err
	}

	if err := e.markets.AddToPool(ctx, marketID, side, amountCents); err != nil {
		e.refund(ctx, accountID, amountCents, "wager_rollback")
		return domain.Wager{}, fmt.Errorf("engine: add to pool: %w", err)
	}

	wager := domain.Wager{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		AccountID:   accountID,
		Side:        side,
		AmountCents: amountCents,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.wagers.Create(ctx, wager); err != nil {
		if perr := e.markets.AddToPool(ctx, marketID, side, -amountCents); perr != nil {
			e.logger.ErrorContext(ctx, "pool rollback failed",
				slog.String("market_id", marketID), slog.Any("error", perr))
		}
		e.refund(ctx, accountID, amountCents, "wager_rollback")
		return domain.Wager{}, fmt.Errorf("engine: create wager: %w", err)
	}

	if side == domain.SideYes {
		market.YesPoolCents += amountCents
	} else {
		market.NoPoolCents += amountCents
	}

	e.logger.InfoContext(ctx, "wager placed",
		slog.String("market_id", marketID),
		slog.String("account_id", accountID),
		slog.String("side", string(side)),
		slog.Int64("amount_cents", amountCents))

	e.publishMarket(ctx, "wager_placed", market)
	return wager, nil
}

// Resolve settles a market against the externally determined outcome. A
// resolved market stays resolved: repeats get ErrAlreadyResolved. Before the
// deadline the outcome must be certified early or the call gets ErrTooEarly.
// Payouts to the winning side sum exactly to the total pool; the last winner
// absorbs the rounding dust. Void refunds every wager at face value.
func (e *MarketEngine) Resolve(ctx context.Context, marketID string, outcome domain.MarketOutcome, certifiedEarly bool) (domain.Market, error) {
	unlock, err := e.locks.Acquire(ctx, "market:"+marketID, e.cfg.LockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: lock market: %w", err)
	}
	defer unlock()

	market, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: get market: %w", err)
	}
	if market.Status.Resolved() {
		return domain.Market{}, domain.ErrAlreadyResolved
	}
	if time.Now().Before(market.Deadline) && !certifiedEarly {
		return domain.Market{}, domain.ErrTooEarly
	}

	wagers, err := e.wagers.ListByMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: list wagers: %w", err)
	}

	switch outcome {
	case domain.OutcomeVoid:
		if err := e.refundAll(ctx, wagers); err != nil {
			return domain.Market{}, err
		}
		market.Status = domain.MarketStatusVoid
	case domain.OutcomeYes, domain.OutcomeNo:
		winSide := domain.SideYes
		market.Status = domain.MarketStatusResolvedYes
		if outcome == domain.OutcomeNo {
			winSide = domain.SideNo
			market.Status = domain.MarketStatusResolvedNo
		}
		if err := e.payOut(ctx, &market, wagers, winSide); err != nil {
			return domain.Market{}, err
		}
	default:
		return domain.Market{}, fmt.Errorf("engine: resolve: invalid outcome %q", outcome)
	}

	now := time.Now().UTC()
	market.ResolvedAt = &now
	market.UpdatedAt = now
	if err := e.markets.Update(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("engine: update market: %w", err)
	}

	e.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int64("total_pool_cents", market.TotalPoolCents()))

	e.publishMarket(ctx, "market_resolved", market)
	return market, nil
}

// payOut distributes the total pool across the winning side pro rata. Credits
// are keyed per wager and already-settled wagers are skipped, so a resolution
// that failed after paying some winners can be replayed without paying them
// again.
func (e *MarketEngine) payOut(ctx context.Context, market *domain.Market, wagers []domain.Wager, winSide domain.Side) error {
	total := market.TotalPoolCents()
	winPool := market.PoolCents(winSide)

	var winners, losers []domain.Wager
	for _, w := range wagers {
		if w.Side == winSide {
			winners = append(winners, w)
		} else {
			losers = append(losers, w)
		}
	}

	// Nobody backed the truth: the pool has no claimants and goes to the
	// treasury rather than back to the losing side.
	if len(winners) == 0 || winPool == 0 {
		if total > 0 {
			if err := e.ledger.CreditOnce(ctx, domain.TreasuryAccountID, total, "unclaimed_pool", "unclaimed_pool:"+market.ID); err != nil {
				return err
			}
		}
		return e.settleWagers(ctx, losers, nil)
	}

	// Payouts are computed over every winning wager, settled or not, so a
	// replay assigns each one the same amount.
	payouts := make([]int64, len(winners))
	var distributed int64
	for i, w := range winners {
		payouts[i] = w.AmountCents * total / winPool
		distributed += payouts[i]
	}
	// Floor division strands a few cents; the last winner takes them so the
	// payouts sum exactly to the pool.
	payouts[len(payouts)-1] += total - distributed

	for i, w := range winners {
		if w.Settled {
			continue
		}
		if err := e.ledger.CreditOnce(ctx, w.AccountID, payouts[i], "wager_payout", "wager_payout:"+w.ID); err != nil {
			return err
		}
	}
	if err := e.settleWagers(ctx, losers, nil); err != nil {
		return err
	}
	if err := e.settleWagers(ctx, winners, payouts); err != nil {
		return err
	}

	for _, w := range winners {
		if err := e.scores.WagerWon(ctx, w); err != nil {
			e.logger.ErrorContext(ctx, "wager score event failed",
				slog.String("wager_id", w.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (e *MarketEngine) refundAll(ctx context.Context, wagers []domain.Wager) error {
	for _, w := range wagers {
		if w.Settled {
			continue
		}
		if err := e.ledger.CreditOnce(ctx, w.AccountID, w.AmountCents, "wager_refund", "wager_refund:"+w.ID); err != nil {
			return err
		}
		if err := e.wagers.MarkSettled(ctx, w.ID, w.AmountCents); err != nil {
			return fmt.Errorf("engine: settle wager %s: %w", w.ID, err)
		}
	}
	return nil
}

// settleWagers marks wagers settled, skipping ones a previous resolution
// attempt already settled. payouts is nil for losers (payout 0) or
// index-aligned with wagers.
func (e *MarketEngine) settleWagers(ctx context.Context, wagers []domain.Wager, payouts []int64) error {
	for i, w := range wagers {
		if w.Settled {
			continue
		}
		var p int64
		if payouts != nil {
			p = payouts[i]
		}
		if err := e.wagers.MarkSettled(ctx, w.ID, p); err != nil {
			return fmt.Errorf("engine: settle wager %s: %w", w.ID, err)
		}
	}
	return nil
}

// VoidExpired voids every market still unresolved VoidAfter past its
// deadline, refunding all wagers. It returns how many markets were voided.
func (e *MarketEngine) VoidExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.cfg.VoidAfter)
	expired, err := e.markets.ListExpiredUnresolved(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("engine: list expired markets: %w", err)
	}

	voided := 0
	for _, m := range expired {
		if _, err := e.Resolve(ctx, m.ID, domain.OutcomeVoid, false); err != nil {
			if errors.Is(err, domain.ErrAlreadyResolved) {
				continue
			}
			e.logger.ErrorContext(ctx, "sweeper void failed",
				slog.String("market_id", m.ID), slog.Any("error", err))
			continue
		}
		voided++
	}
	if voided > 0 {
		e.logger.InfoContext(ctx, "swept expired markets", slog.Int("voided", voided))
	}
	return voided, nil
}

func (e *MarketEngine) refund(ctx context.Context, accountID string, amountCents int64, reason string) {
	if err := e.ledger.Credit(ctx, accountID, amountCents, reason); err != nil {
		e.logger.ErrorContext(ctx, "wager refund failed",
			slog.String("account_id", accountID), slog.Any("error", err))
	}
}

func (e *MarketEngine) publishMarket(ctx context.Context, eventType string, market domain.Market) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.MarketEvent{
		Type:         eventType,
		MarketID:     market.ID,
		Status:       market.Status,
		YesPoolCents: market.YesPoolCents,
		NoPoolCents:  market.NoPoolCents,
		At:           time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelMarkets, payload); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WarnContext(ctx, "market event publish failed",
			slog.String("market_id", market.ID), slog.Any("error", err))
	}
}
