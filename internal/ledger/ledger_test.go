package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurayield/engine/internal/domain"
)

type memAccounts struct {
	mu      sync.Mutex
	m       map[string]*domain.Account
	credits map[string]bool
}

func newMemAccounts() *memAccounts {
	return &memAccounts{m: make(map[string]*domain.Account), credits: make(map[string]bool)}
}

func (s *memAccounts) Create(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.m {
		if a.Handle == acct.Handle {
			return domain.ErrAlreadyExists
		}
	}
	s.m[acct.ID] = &acct
	return nil
}

func (s *memAccounts) GetByID(_ context.Context, id string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *a, nil
}

func (s *memAccounts) GetByHandle(_ context.Context, handle string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.m {
		if a.Handle == handle {
			return *a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (s *memAccounts) Debit(_ context.Context, id string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	if a.BalanceCents < amountCents {
		return domain.ErrInsufficientFunds
	}
	a.BalanceCents -= amountCents
	return nil
}

func (s *memAccounts) Credit(_ context.Context, id string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.BalanceCents += amountCents
	return nil
}

func (s *memAccounts) CreditOnce(_ context.Context, id string, amountCents int64, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credits[key] {
		return false, nil
	}
	a, ok := s.m[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	s.credits[key] = true
	a.BalanceCents += amountCents
	return true, nil
}

func (s *memAccounts) Transfer(ctx context.Context, fromID, toID string, amountCents int64) error {
	if err := s.Debit(ctx, fromID, amountCents); err != nil {
		return err
	}
	return s.Credit(ctx, toID, amountCents)
}

func (s *memAccounts) AddLifetime(_ context.Context, id string, stakedDelta, earnedDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.LifetimeStakedCents += stakedDelta
	a.LifetimeEarnedCents += earnedDelta
	return nil
}

func (s *memAccounts) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Active = active
	return nil
}

func (s *memAccounts) AddSource(_ context.Context, id string, source domain.SourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Sources = append(a.Sources, source)
	return nil
}

func (s *memAccounts) HasSource(_ context.Context, id string, source domain.SourceID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, src := range a.Sources {
		if src == source {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccounts) TopByAura(_ context.Context, _ int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *recordingAudit) ListBefore(context.Context, time.Time) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *recordingAudit) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newLedger() (*Ledger, *memAccounts, *recordingAudit) {
	accounts := newMemAccounts()
	audit := &recordingAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(accounts, audit, logger), accounts, audit
}

func TestGetOrCreateIsStableByHandle(t *testing.T) {
	ctx := context.Background()
	ldg, _, audit := newLedger()

	first, err := ldg.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 100, first.Aura)
	assert.True(t, first.Active)
	assert.Zero(t, first.BalanceCents)

	second, err := ldg.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, []string{"account_created"}, audit.events)
}

func TestDebitRequiresFundsAndActiveAccount(t *testing.T) {
	ctx := context.Background()
	ldg, accounts, _ := newLedger()

	acct, err := ldg.GetOrCreate(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, ldg.Credit(ctx, acct.ID, 50_00, "deposit"))

	err = ldg.Debit(ctx, acct.ID, 60_00, "stake_escrow")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, ldg.Debit(ctx, acct.ID, 30_00, "stake_escrow"))
	got, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20_00), got.BalanceCents)

	require.NoError(t, ldg.Deactivate(ctx, acct.ID))
	err = ldg.Debit(ctx, acct.ID, 1_00, "stake_escrow")
	assert.ErrorIs(t, err, domain.ErrAccountInactive)

	// Settlement credits still land on a deactivated account.
	assert.NoError(t, ldg.Credit(ctx, acct.ID, 5_00, "stake_completed"))
}

func TestMoneyMovementRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	ldg, _, _ := newLedger()

	acct, err := ldg.GetOrCreate(ctx, "carol")
	require.NoError(t, err)

	assert.ErrorIs(t, ldg.Debit(ctx, acct.ID, 0, "x"), domain.ErrInvalidAmount)
	assert.ErrorIs(t, ldg.Credit(ctx, acct.ID, -5, "x"), domain.ErrInvalidAmount)
	assert.ErrorIs(t, ldg.Transfer(ctx, acct.ID, "other", 0, "x"), domain.ErrInvalidAmount)
}

func TestConnectSourceValidatesCatalog(t *testing.T) {
	ctx := context.Background()
	ldg, _, _ := newLedger()

	acct, err := ldg.GetOrCreate(ctx, "dave")
	require.NoError(t, err)

	err = ldg.ConnectSource(ctx, acct.ID, domain.SourceID("pedometer3000"))
	assert.ErrorIs(t, err, domain.ErrUnknownSource)

	require.NoError(t, ldg.ConnectSource(ctx, acct.ID, domain.SourceOura))
	ok, err := ldg.HasSource(ctx, acct.ID, domain.SourceOura)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ldg.HasSource(ctx, acct.ID, domain.SourceWhoop)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreditOnceAppliesKeyOnce(t *testing.T) {
	ctx := context.Background()
	ldg, accounts, audit := newLedger()

	acct, err := ldg.GetOrCreate(ctx, "grace")
	require.NoError(t, err)

	require.NoError(t, ldg.CreditOnce(ctx, acct.ID, 25_00, "stake_completed", "stake_payout:s1"))
	require.NoError(t, ldg.CreditOnce(ctx, acct.ID, 25_00, "stake_completed", "stake_payout:s1"))

	got, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25_00), got.BalanceCents)

	// The replayed key is silent: one audit credit, not two.
	var credits int
	for _, e := range audit.events {
		if e == "credit" {
			credits++
		}
	}
	assert.Equal(t, 1, credits)

	// A fresh key applies normally.
	require.NoError(t, ldg.CreditOnce(ctx, acct.ID, 10_00, "stake_completed", "stake_payout:s2"))
	got, _ = accounts.GetByID(ctx, acct.ID)
	assert.Equal(t, int64(35_00), got.BalanceCents)

	assert.ErrorIs(t, ldg.CreditOnce(ctx, acct.ID, 0, "x", "k"), domain.ErrInvalidAmount)
}

func TestTransferMovesFundsWithAudit(t *testing.T) {
	ctx := context.Background()
	ldg, accounts, audit := newLedger()

	from, err := ldg.GetOrCreate(ctx, "erin")
	require.NoError(t, err)
	to, err := ldg.GetOrCreate(ctx, "frank")
	require.NoError(t, err)
	require.NoError(t, ldg.Credit(ctx, from.ID, 40_00, "deposit"))

	require.NoError(t, ldg.Transfer(ctx, from.ID, to.ID, 15_00, "forfeiture"))

	fromAcct, _ := accounts.GetByID(ctx, from.ID)
	toAcct, _ := accounts.GetByID(ctx, to.ID)
	assert.Equal(t, int64(25_00), fromAcct.BalanceCents)
	assert.Equal(t, int64(15_00), toAcct.BalanceCents)
	assert.Contains(t, audit.events, "transfer")
}
