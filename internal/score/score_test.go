package score

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurayield/engine/internal/domain"
)

type fakeScoreStore struct {
	events map[string]domain.ScoreEvent
}

func newFakeScoreStore() *fakeScoreStore {
	return &fakeScoreStore{events: make(map[string]domain.ScoreEvent)}
}

func (f *fakeScoreStore) Apply(_ context.Context, event domain.ScoreEvent) (bool, error) {
	if _, ok := f.events[event.ID]; ok {
		return false, nil
	}
	f.events[event.ID] = event
	return true, nil
}

func (f *fakeScoreStore) ListByAccount(_ context.Context, accountID string, _ domain.ListOpts) ([]domain.ScoreEvent, error) {
	var out []domain.ScoreEvent
	for _, e := range f.events {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAccounts struct {
	domain.AccountStore
	accounts map[string]domain.Account
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (domain.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) TopByAura(_ context.Context, _ int) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	for _, a := range f.accounts {
		out = append(out, domain.LeaderboardEntry{AccountID: a.ID, Handle: a.Handle, Aura: a.Aura})
	}
	return out, nil
}

type fakeBoard struct {
	set map[string]int
}

func (f *fakeBoard) Set(_ context.Context, accountID, _ string, aura int) error {
	f.set[accountID] = aura
	return nil
}

func (f *fakeBoard) Top(_ context.Context, _ int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func newAggregator(t *testing.T) (*Aggregator, *fakeScoreStore, *fakeBoard) {
	t.Helper()
	scores := newFakeScoreStore()
	accounts := &fakeAccounts{accounts: map[string]domain.Account{
		"acct-1": {ID: "acct-1", Handle: "ada", Aura: BaseAura},
	}}
	board := &fakeBoard{set: make(map[string]int)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAggregator(scores, accounts, board, logger), scores, board
}

func TestStakeCompletedAppliesOnce(t *testing.T) {
	agg, scores, board := newAggregator(t)
	stake := domain.Stake{ID: "stake-1", AccountID: "acct-1"}

	require.NoError(t, agg.StakeCompleted(context.Background(), stake))
	require.NoError(t, agg.StakeCompleted(context.Background(), stake))

	assert.Len(t, scores.events, 1, "replayed settlement must not add a second event")
	id := domain.ScoreEventID(domain.ScoreStakeCompleted, "stake-1", "acct-1")
	assert.Equal(t, CompletedDelta, scores.events[id].Delta)
	assert.Contains(t, board.set, "acct-1")
}

func TestStakeForfeitedDelta(t *testing.T) {
	agg, scores, _ := newAggregator(t)

	require.NoError(t, agg.StakeForfeited(context.Background(), domain.Stake{ID: "stake-2", AccountID: "acct-1"}))

	id := domain.ScoreEventID(domain.ScoreStakeForfeited, "stake-2", "acct-1")
	assert.Equal(t, ForfeitedDelta, scores.events[id].Delta)
}

func TestWagerWonBelowThresholdIgnored(t *testing.T) {
	agg, scores, _ := newAggregator(t)

	small := domain.Wager{ID: "wager-1", AccountID: "acct-1", AmountCents: MinScoringWagerCents - 1}
	require.NoError(t, agg.WagerWon(context.Background(), small))
	assert.Empty(t, scores.events)

	big := domain.Wager{ID: "wager-2", AccountID: "acct-1", AmountCents: MinScoringWagerCents}
	require.NoError(t, agg.WagerWon(context.Background(), big))
	assert.Len(t, scores.events, 1)
}

func TestTopFallsBackToStore(t *testing.T) {
	agg, _, _ := newAggregator(t)

	entries, err := agg.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada", entries[0].Handle)
}
