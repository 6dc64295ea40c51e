// Package engine implements the stake lifecycle and the pari-mutuel market
// mechanics on top of the ledger, oracle, and score components.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aurayield/engine/internal/domain"
	"github.com/aurayield/engine/internal/ledger"
	"github.com/aurayield/engine/internal/oracle"
	"github.com/aurayield/engine/internal/score"
	"github.com/aurayield/engine/internal/yield"
)

// StakeConfig tunes stake validation and settlement.
type StakeConfig struct {
	MaxPrincipalCents int64
	AllowedDurations  []int
	// MinPassRate is the fraction of verified days required to complete a
	// stake. 1.0 means every single day must verify.
	MinPassRate float64
	LockTTL     time.Duration
}

func (c StakeConfig) withDefaults() StakeConfig {
	if c.MaxPrincipalCents <= 0 {
		c.MaxPrincipalCents = 500_00
	}
	if len(c.AllowedDurations) == 0 {
		c.AllowedDurations = []int{7, 14, 21, 30}
	}
	if c.MinPassRate <= 0 || c.MinPassRate > 1 {
		c.MinPassRate = 1.0
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	return c
}

// StakeEngine drives stakes from creation through daily verification to
// settlement. All mutations of a stake run under its distributed lock.
type StakeEngine struct {
	cfg    StakeConfig
	stakes domain.StakeStore
	ledger *ledger.Ledger
	oracle *oracle.Oracle
	yield  *yield.Calculator
	scores *score.Aggregator
	locks  domain.LockManager
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewStakeEngine creates a StakeEngine. bus may be nil when event fan-out is
// not configured.
func NewStakeEngine(
	cfg StakeConfig,
	stakes domain.StakeStore,
	ldg *ledger.Ledger,
	orc *oracle.Oracle,
	yld *yield.Calculator,
	scores *score.Aggregator,
	locks domain.LockManager,
	bus domain.SignalBus,
	logger *slog.Logger,
) *StakeEngine {
	return &StakeEngine{
		cfg:    cfg.withDefaults(),
		stakes: stakes,
		ledger: ldg,
		oracle: orc,
		yield:  yld,
		scores: scores,
		locks:  locks,
		bus:    bus,
		logger: logger,
	}
}

// Initiate validates the request, escrows the principal, and activates a new
// stake. The debit happens before the insert; if the insert fails the escrow
// is credited back.
func (e *StakeEngine) Initiate(ctx context.Context, accountID string, goalID domain.GoalType, target, principalCents int64, durationDays int, sourceID domain.SourceID) (domain.Stake, error) {
	if _, err := domain.GoalByID(goalID); err != nil {
		return domain.Stake{}, domain.ErrInvalidGoal
	}
	if target <= 0 {
		return domain.Stake{}, domain.ErrInvalidGoal
	}
	if principalCents <= 0 || principalCents > e.cfg.MaxPrincipalCents {
		return domain.Stake{}, domain.ErrInvalidAmount
	}
	if !e.durationAllowed(durationDays) {
		return domain.Stake{}, domain.ErrInvalidDuration
	}
	if _, err := domain.SourceByID(sourceID); err != nil {
		return domain.Stake{}, err
	}
	connected, err := e.ledger.HasSource(ctx, accountID, sourceID)
	if err != nil {
		return domain.Stake{}, err
	}
	if !connected {
		return domain.Stake{}, domain.ErrNoVerificationSource
	}

	projected, err := e.yield.Projected(principalCents, durationDays)
	if err != nil {
		return domain.Stake{}, err
	}

	if err := e.ledger.Debit(ctx, accountID, principalCents, "stake_escrow"); err != nil {
		return domain.Stake{}, err
	}

	now := time.Now().UTC()
	stake := domain.Stake{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Goal:           goalID,
		Target:         target,
		PrincipalCents: principalCents,
		DurationDays:   durationDays,
		Measurements:   make([]int64, durationDays),
		Outcomes:       make([]domain.DayResult, durationDays),
		Confidences:    make([]int, durationDays),
		SourceID:       sourceID,
		Status:         domain.StakeStatusActive,
		YieldCents:     projected,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.stakes.Create(ctx, stake); err != nil {
		if cerr := e.ledger.Credit(ctx, accountID, principalCents, "stake_escrow_rollback"); cerr != nil {
			e.logger.ErrorContext(ctx, "escrow rollback failed",
				slog.String("account_id", accountID), slog.Any("error", cerr))
		}
		return domain.Stake{}, fmt.Errorf("engine: create stake: %w", err)
	}

	if err := e.ledger.AddLifetime(ctx, accountID, principalCents, 0); err != nil {
		e.logger.WarnContext(ctx, "lifetime staked update failed",
			slog.String("stake_id", stake.ID), slog.Any("error", err))
	}

	e.logger.InfoContext(ctx, "stake initiated",
		slog.String("stake_id", stake.ID),
		slog.String("account_id", accountID),
		slog.String("goal", string(goalID)),
		slog.Int64("principal_cents", principalCents),
		slog.Int("duration_days", durationDays))

	e.publishStake(ctx, "stake_created", stake)
	return stake, nil
}

// Get returns a stake by id.
func (e *StakeEngine) Get(ctx context.Context, id string) (domain.Stake, error) {
	stake, err := e.stakes.GetByID(ctx, id)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("engine: get stake: %w", err)
	}
	return stake, nil
}

// ListActiveByAccount returns the account's active stakes.
func (e *StakeEngine) ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Stake, error) {
	stakes, err := e.stakes.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("engine: list stakes: %w", err)
	}
	return stakes, nil
}

// RecordDailyMeasurement records the reading for the stake's next day,
// verifies it against the goal, and settles the stake when the final day has
// been recorded. Days arrive strictly in order; re-submitting the most recent
// day with the same reading is a no-op returning the stored state, so feed
// retries are safe.
func (e *StakeEngine) RecordDailyMeasurement(ctx context.Context, stakeID string, dayIndex int, rawValue int64) (domain.Stake, error) {
	unlock, err := e.locks.Acquire(ctx, "stake:"+stakeID, e.cfg.LockTTL)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("engine: lock stake: %w", err)
	}
	defer unlock()

	stake, err := e.stakes.GetByID(ctx, stakeID)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("engine: get stake: %w", err)
	}
	if stake.Status != domain.StakeStatusActive {
		return domain.Stake{}, domain.ErrStakeNotActive
	}

	// Replay of the last recorded day with an identical reading.
	if dayIndex == stake.CurrentDay-1 && dayIndex >= 0 &&
		stake.Outcomes[dayIndex] != domain.DayUnset && stake.Measurements[dayIndex] == rawValue {
		return stake, nil
	}
	if dayIndex != stake.CurrentDay {
		return domain.Stake{}, domain.ErrOutOfSequence
	}

	verified, confidence, err := e.oracle.Verify(stake.Goal, stake.Target, rawValue, stake.SourceID)
	if err != nil {
		// An oracle failure never blocks the day; it just cannot vouch for it.
		e.logger.WarnContext(ctx, "oracle verification failed, recording unverified",
			slog.String("stake_id", stakeID),
			slog.Int("day_index", dayIndex),
			slog.Any("error", err))
		verified, confidence = false, 0
	}

	stake.Measurements[dayIndex] = rawValue
	if verified {
		stake.Outcomes[dayIndex] = domain.DayVerified
	} else {
		stake.Outcomes[dayIndex] = domain.DayUnverified
	}
	stake.Confidences[dayIndex] = confidence
	stake.CurrentDay++
	stake.Confidence = meanConfidence(stake.Confidences[:stake.CurrentDay])
	stake.UpdatedAt = time.Now().UTC()

	eventType := "day_recorded"
	if stake.CurrentDay == stake.DurationDays {
		if err := e.settle(ctx, &stake); err != nil {
			return domain.Stake{}, err
		}
		eventType = "stake_settled"
	}

	if err := e.stakes.Update(ctx, stake); err != nil {
		return domain.Stake{}, fmt.Errorf("engine: update stake: %w", err)
	}

	if stake.Status.Terminal() {
		e.applyStakeScore(ctx, stake)
	}

	e.logger.InfoContext(ctx, "measurement recorded",
		slog.String("stake_id", stakeID),
		slog.Int("day_index", dayIndex),
		slog.Bool("verified", verified),
		slog.Int("confidence", confidence),
		slog.String("status", string(stake.Status)))

	e.publishStake(ctx, eventType, stake)
	return stake, nil
}

// settle decides the terminal state once every day is recorded and moves the
// escrowed money. It mutates stake in place; the caller persists it. Every
// credit is keyed by the stake, so a settlement aborted mid-way (ledger or
// store failure) can be retried without paying anything twice.
func (e *StakeEngine) settle(ctx context.Context, stake *domain.Stake) error {
	now := time.Now().UTC()
	passRate := float64(stake.VerifiedDays()) / float64(stake.DurationDays)

	if passRate >= e.cfg.MinPassRate {
		payout := stake.PrincipalCents + stake.YieldCents
		if err := e.ledger.CreditOnce(ctx, stake.AccountID, payout, "stake_completed", "stake_payout:"+stake.ID); err != nil {
			return err
		}
		if err := e.ledger.AddLifetime(ctx, stake.AccountID, 0, stake.YieldCents); err != nil {
			e.logger.WarnContext(ctx, "lifetime earned update failed",
				slog.String("stake_id", stake.ID), slog.Any("error", err))
		}
		stake.Status = domain.StakeStatusCompleted
		stake.PayoutCents = payout
	} else {
		forfeit := e.yield.Forfeiture(stake.PrincipalCents)
		refund := stake.PrincipalCents - forfeit
		if refund > 0 {
			if err := e.ledger.CreditOnce(ctx, stake.AccountID, refund, "stake_forfeited_refund", "stake_refund:"+stake.ID); err != nil {
				return err
			}
		}
		if forfeit > 0 {
			if err := e.ledger.CreditOnce(ctx, domain.TreasuryAccountID, forfeit, "stake_forfeiture", "stake_forfeit:"+stake.ID); err != nil {
				return err
			}
		}
		stake.Status = domain.StakeStatusForfeited
		stake.YieldCents = 0
		stake.PayoutCents = refund
	}

	stake.SettledAt = &now
	stake.UpdatedAt = now
	return nil
}

// Cancel voids a stake before any day has been recorded and refunds the full
// principal. Once day 0 is in, the commitment stands.
func (e *StakeEngine) Cancel(ctx context.Context, stakeID string) (domain.Stake, error) {
	unlock, err := e.locks.Acquire(ctx, "stake:"+stakeID, e.cfg.LockTTL)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("engine: lock stake: %w", err)
	}
	defer unlock()

	stake, err := e.stakes.GetByID(ctx, stakeID)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("engine: get stake: %w", err)
	}
	if stake.Status != domain.StakeStatusActive {
		return domain.Stake{}, domain.ErrStakeNotActive
	}
	if stake.RecordedDays() > 0 {
		return domain.Stake{}, domain.ErrCancelAfterStart
	}

	if err := e.ledger.CreditOnce(ctx, stake.AccountID, stake.PrincipalCents, "stake_cancelled", "stake_cancel:"+stake.ID); err != nil {
		return domain.Stake{}, err
	}

	now := time.Now().UTC()
	stake.Status = domain.StakeStatusCancelled
	stake.YieldCents = 0
	stake.PayoutCents = stake.PrincipalCents
	stake.SettledAt = &now
	stake.UpdatedAt = now

	if err := e.stakes.Update(ctx, stake); err != nil {
		return domain.Stake{}, fmt.Errorf("engine: update stake: %w", err)
	}

	e.logger.InfoContext(ctx, "stake cancelled",
		slog.String("stake_id", stakeID),
		slog.Int64("refund_cents", stake.PrincipalCents))

	e.publishStake(ctx, "stake_cancelled", stake)
	return stake, nil
}

// applyStakeScore emits the settlement's score event. Scoring is idempotent,
// so a failure here is logged rather than unwinding the settlement; the next
// replay applies it.
func (e *StakeEngine) applyStakeScore(ctx context.Context, stake domain.Stake) {
	var err error
	switch stake.Status {
	case domain.StakeStatusCompleted:
		err = e.scores.StakeCompleted(ctx, stake)
	case domain.StakeStatusForfeited:
		err = e.scores.StakeForfeited(ctx, stake)
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "score event failed",
			slog.String("stake_id", stake.ID), slog.Any("error", err))
	}
}

func (e *StakeEngine) durationAllowed(days int) bool {
	for _, d := range e.cfg.AllowedDurations {
		if d == days {
			return true
		}
	}
	return false
}

func (e *StakeEngine) publishStake(ctx context.Context, eventType string, stake domain.Stake) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.StakeEvent{
		Type:        eventType,
		StakeID:     stake.ID,
		AccountID:   stake.AccountID,
		Status:      stake.Status,
		CurrentDay:  stake.CurrentDay,
		Confidence:  stake.Confidence,
		PayoutCents: stake.PayoutCents,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelStakes, payload); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WarnContext(ctx, "stake event publish failed",
			slog.String("stake_id", stake.ID), slog.Any("error", err))
	}
}

// meanConfidence is the floor of the mean of the recorded per-day confidences.
func meanConfidence(recorded []int) int {
	if len(recorded) == 0 {
		return 0
	}
	sum := 0
	for _, c := range recorded {
		sum += c
	}
	return sum / len(recorded)
}
