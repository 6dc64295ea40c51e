package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurayield/engine/internal/domain"
	"github.com/aurayield/engine/internal/score"
)

func TestInitiateValidation(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 500_00, domain.SourceOura)
	ctx := context.Background()

	tests := []struct {
		name      string
		goal      domain.GoalType
		target    int64
		principal int64
		duration  int
		source    domain.SourceID
		wantErr   error
	}{
		{"unknown goal", "vo2max", 50, 50_00, 7, domain.SourceOura, domain.ErrInvalidGoal},
		{"zero target", domain.GoalSteps, 0, 50_00, 7, domain.SourceOura, domain.ErrInvalidGoal},
		{"zero principal", domain.GoalSteps, 10_000, 0, 7, domain.SourceOura, domain.ErrInvalidAmount},
		{"principal above cap", domain.GoalSteps, 10_000, 500_01, 7, domain.SourceOura, domain.ErrInvalidAmount},
		{"duration not in catalog", domain.GoalSteps, 10_000, 50_00, 10, domain.SourceOura, domain.ErrInvalidDuration},
		{"unknown source", domain.GoalSteps, 10_000, 50_00, 7, "pebble", domain.ErrUnknownSource},
		{"source not connected", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceFitbit, domain.ErrNoVerificationSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.stakeEng.Initiate(ctx, "ada", tt.goal, tt.target, tt.principal, tt.duration, tt.source)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing was debited by any rejected attempt.
	assert.Equal(t, int64(500_00), e.balance("ada"))
}

func TestInitiateInsufficientFunds(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 10_00, domain.SourceOura)

	_, err := e.stakeEng.Initiate(context.Background(), "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(10_00), e.balance("ada"))
}

func TestInitiateEscrowsPrincipal(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)

	stake, err := e.stakeEng.Initiate(context.Background(), "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	assert.Equal(t, domain.StakeStatusActive, stake.Status)
	assert.Equal(t, int64(50_00), e.balance("ada"))
	assert.Equal(t, 0, stake.CurrentDay)
	assert.Len(t, stake.Measurements, 7)
	assert.Len(t, stake.Outcomes, 7)
	assert.Len(t, stake.Confidences, 7)
	assert.Equal(t, int64(12), stake.YieldCents) // 50.00 * 12% * 7/365
}

func TestRecordOutOfSequence(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 3, 12_000)
	assert.ErrorIs(t, err, domain.ErrOutOfSequence)

	_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 0, 12_000)
	require.NoError(t, err)

	_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 0, 13_000)
	assert.ErrorIs(t, err, domain.ErrOutOfSequence, "same day with a different reading is not a replay")
}

func TestRecordReplayIsIdempotent(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	first, err := e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 0, 12_000)
	require.NoError(t, err)
	replay, err := e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 0, 12_000)
	require.NoError(t, err)

	assert.Equal(t, first.CurrentDay, replay.CurrentDay)
	assert.Equal(t, first.Confidence, replay.Confidence)
}

// Full lifecycle: a 7-day steps stake where days 0-3 verify, day 4 has no
// reading, and days 5-6 verify again. Nothing settles until the last day is
// in; then one miss under the all-days threshold forfeits the stake.
func TestStakeForfeitureLifecycle(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	e.seedAccount(domain.TreasuryAccountID, 0)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)
	assert.Equal(t, int64(50_00), e.balance("ada"))

	for day := 0; day < 4; day++ {
		s, err := e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, day, 12_000)
		require.NoError(t, err)
		assert.Equal(t, domain.StakeStatusActive, s.Status)
	}

	// Day 4: no reading arrived.
	s, err := e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StakeStatusActive, s.Status, "a failed day must not settle early")
	assert.Equal(t, domain.DayUnverified, s.Outcomes[4])

	s, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 5, 11_000)
	require.NoError(t, err)
	assert.Equal(t, domain.StakeStatusActive, s.Status)

	s, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 6, 10_500)
	require.NoError(t, err)

	assert.Equal(t, domain.StakeStatusForfeited, s.Status)
	assert.Equal(t, 6, s.VerifiedDays())
	assert.Equal(t, int64(0), s.YieldCents)
	assert.Equal(t, int64(40_00), s.PayoutCents, "80% of principal returned")
	assert.Equal(t, int64(90_00), e.balance("ada"))
	assert.Equal(t, int64(10_00), e.balance(domain.TreasuryAccountID))
	assert.Equal(t, score.BaseAura+score.ForfeitedDelta, e.aura("ada"))

	// The settled stake accepts nothing further.
	_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 7, 12_000)
	assert.ErrorIs(t, err, domain.ErrStakeNotActive)
}

// A forfeiture settlement that dies between the refund and the treasury
// credit must be retryable without refunding twice. The treasury account is
// missing on the first attempt, so the refund lands but the forfeit credit
// fails and the stake stays active at the same day.
func TestSettlementRetryAfterPartialCredit(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	for day := 0; day < 6; day++ {
		_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, day, 12_000)
		require.NoError(t, err)
	}

	// Final day fails verification; settlement refunds ada, then errors
	// crediting the absent treasury.
	_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 6, 0)
	require.Error(t, err)
	assert.Equal(t, int64(90_00), e.balance("ada"), "refund already applied before the failure")

	stored, err := e.stakeEng.Get(ctx, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StakeStatusActive, stored.Status)
	assert.Equal(t, 6, stored.CurrentDay, "failed settlement persists nothing")

	// Treasury appears; the retried final day settles cleanly without paying
	// the refund a second time.
	e.seedAccount(domain.TreasuryAccountID, 0)
	s, err := e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 6, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.StakeStatusForfeited, s.Status)
	assert.Equal(t, int64(90_00), e.balance("ada"))
	assert.Equal(t, int64(10_00), e.balance(domain.TreasuryAccountID))
}

func TestStakeCompletionLifecycle(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	var s domain.Stake
	for day := 0; day < 7; day++ {
		s, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, day, 10_000+int64(day))
		require.NoError(t, err)
	}

	assert.Equal(t, domain.StakeStatusCompleted, s.Status)
	assert.Equal(t, int64(12), s.YieldCents)
	assert.Equal(t, int64(50_12), s.PayoutCents)
	assert.Equal(t, int64(100_12), e.balance("ada"))
	assert.Equal(t, score.BaseAura+score.CompletedDelta, e.aura("ada"))
	assert.Equal(t, 95, s.Confidence, "all verified days carry full source reliability")

	acct, err := e.accounts.GetByID(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(50_00), acct.LifetimeStakedCents)
	assert.Equal(t, int64(12), acct.LifetimeEarnedCents)
}

func TestConfidenceIsFloorMean(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	s, err := e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 0, 12_000) // 95
	require.NoError(t, err)
	assert.Equal(t, 95, s.Confidence)

	s, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 1, 5_000) // 47
	require.NoError(t, err)
	assert.Equal(t, 71, s.Confidence, "(95+47)/2 floored")
}

func TestCancelBeforeFirstDay(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)

	cancelled, err := e.stakeEng.Cancel(ctx, stake.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StakeStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(100_00), e.balance("ada"), "full principal refunded")
	assert.Equal(t, score.BaseAura, e.aura("ada"), "cancellation never moves the score")

	_, err = e.stakeEng.Cancel(ctx, stake.ID)
	assert.ErrorIs(t, err, domain.ErrStakeNotActive)
}

func TestCancelAfterRecordedDayRejected(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)
	_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, 0, 12_000)
	require.NoError(t, err)

	_, err = e.stakeEng.Cancel(ctx, stake.ID)
	assert.ErrorIs(t, err, domain.ErrCancelAfterStart)
}

func TestSettlementScoreIsIdempotent(t *testing.T) {
	e := newEnv()
	e.seedAccount("ada", 100_00, domain.SourceOura)
	ctx := context.Background()

	stake, err := e.stakeEng.Initiate(ctx, "ada", domain.GoalSteps, 10_000, 50_00, 7, domain.SourceOura)
	require.NoError(t, err)
	for day := 0; day < 7; day++ {
		_, err = e.stakeEng.RecordDailyMeasurement(ctx, stake.ID, day, 12_000)
		require.NoError(t, err)
	}
	require.Equal(t, score.BaseAura+score.CompletedDelta, e.aura("ada"))

	// Replaying the settlement event directly cannot double-apply.
	applied, err := e.scores.Apply(ctx, domain.ScoreEvent{
		ID:        domain.ScoreEventID(domain.ScoreStakeCompleted, stake.ID, "ada"),
		Kind:      domain.ScoreStakeCompleted,
		AccountID: "ada",
		EntityID:  stake.ID,
		Delta:     score.CompletedDelta,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, score.BaseAura+score.CompletedDelta, e.aura("ada"))
}
