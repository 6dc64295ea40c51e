package engine

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aurayield/engine/internal/domain"
	"github.com/aurayield/engine/internal/ledger"
	"github.com/aurayield/engine/internal/oracle"
	"github.com/aurayield/engine/internal/score"
	"github.com/aurayield/engine/internal/yield"
)

// In-memory store fakes. They implement just enough semantics for the engine
// tests: copy-on-read, ErrNotFound, and atomic-enough balance checks.

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
	if _, ok := s.m[acct.ID]; ok {
		return domain.ErrAlreadyExists
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

func (s *memAccounts) TopByAura(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LeaderboardEntry
	for _, a := range s.m {
		out = append(out, domain.LeaderboardEntry{AccountID: a.ID, Handle: a.Handle, Aura: a.Aura})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Aura > out[j].Aura })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memStakes struct {
	mu sync.Mutex
	m  map[string]domain.Stake
}

func newMemStakes() *memStakes {
	return &memStakes{m: make(map[string]domain.Stake)}
}

func (s *memStakes) Create(_ context.Context, stake domain.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[stake.ID] = cloneStake(stake)
	return nil
}

func (s *memStakes) GetByID(_ context.Context, id string) (domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stake, ok := s.m[id]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	return cloneStake(stake), nil
}

func (s *memStakes) Update(_ context.Context, stake domain.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[stake.ID]; !ok {
		return domain.ErrNotFound
	}
	s.m[stake.ID] = cloneStake(stake)
	return nil
}

func (s *memStakes) ListActiveByAccount(_ context.Context, accountID string) ([]domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stake
	for _, st := range s.m {
		if st.AccountID == accountID && st.Status == domain.StakeStatusActive {
			out = append(out, cloneStake(st))
		}
	}
	return out, nil
}

func (s *memStakes) ListActive(_ context.Context, _ domain.ListOpts) ([]domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stake
	for _, st := range s.m {
		if st.Status == domain.StakeStatusActive {
			out = append(out, cloneStake(st))
		}
	}
	return out, nil
}

func (s *memStakes) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stake
	for _, st := range s.m {
		if st.SettledAt != nil && st.SettledAt.Before(before) {
			out = append(out, cloneStake(st))
		}
	}
	return out, nil
}

func (s *memStakes) DeleteSettledBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, st := range s.m {
		if st.SettledAt != nil && st.SettledAt.Before(before) {
			delete(s.m, id)
			n++
		}
	}
	return n, nil
}

func cloneStake(s domain.Stake) domain.Stake {
	c := s
	c.Measurements = append([]int64(nil), s.Measurements...)
	c.Outcomes = append([]domain.DayResult(nil), s.Outcomes...)
	c.Confidences = append([]int(nil), s.Confidences...)
	return c
}

type memMarkets struct {
	mu sync.Mutex
	m  map[string]domain.Market

	// updateErr fails the next Update call once, for exercising recovery
	// from a store write that dies mid-settlement.
	updateErr error
}

func newMemMarkets() *memMarkets {
	return &memMarkets{m: make(map[string]domain.Market)}
}

func (s *memMarkets) Create(_ context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[market.ID] = market
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) Update(_ context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return err
	}
	if _, ok := s.m[market.ID]; !ok {
		return domain.ErrNotFound
	}
	s.m[market.ID] = market
	return nil
}

func (s *memMarkets) AddToPool(_ context.Context, id string, side domain.Side, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	if side == domain.SideYes {
		m.YesPoolCents += amountCents
	} else {
		m.NoPoolCents += amountCents
	}
	s.m[id] = m
	return nil
}

func (s *memMarkets) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.m {
		if m.Status == domain.MarketStatusOpen {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) ListExpiredUnresolved(_ context.Context, deadlineBefore time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.m {
		if m.Status == domain.MarketStatusOpen && m.Deadline.Before(deadlineBefore) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) ListResolvedBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.m {
		if m.Status.Resolved() && m.ResolvedAt != nil && m.ResolvedAt.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) DeleteResolvedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.m {
		if m.Status.Resolved() && m.ResolvedAt != nil && m.ResolvedAt.Before(before) {
			delete(s.m, id)
			n++
		}
	}
	return n, nil
}

type memWagers struct {
	mu sync.Mutex
	m  map[string]domain.Wager
}

func newMemWagers() *memWagers {
	return &memWagers{m: make(map[string]domain.Wager)}
}

func (s *memWagers) Create(_ context.Context, wager domain.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[wager.ID] = wager
	return nil
}

func (s *memWagers) GetByID(_ context.Context, id string) (domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.m[id]
	if !ok {
		return domain.Wager{}, domain.ErrNotFound
	}
	return w, nil
}

func (s *memWagers) ListByMarket(_ context.Context, marketID string) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.m {
		if w.MarketID == marketID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memWagers) ListByAccount(_ context.Context, accountID string, _ domain.ListOpts) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.m {
		if w.AccountID == accountID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memWagers) MarkSettled(_ context.Context, id string, payoutCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.Settled = true
	w.PayoutCents = payoutCents
	s.m[id] = w
	return nil
}

type memScores struct {
	mu     sync.Mutex
	events map[string]domain.ScoreEvent
	accts  *memAccounts
}

func newMemScores(accts *memAccounts) *memScores {
	return &memScores{events: make(map[string]domain.ScoreEvent), accts: accts}
}

func (s *memScores) Apply(_ context.Context, event domain.ScoreEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return false, nil
	}
	s.events[event.ID] = event
	s.accts.mu.Lock()
	defer s.accts.mu.Unlock()
	if a, ok := s.accts.m[event.AccountID]; ok {
		a.Aura += event.Delta
		if a.Aura < 0 {
			a.Aura = 0
		}
	}
	return true, nil
}

func (s *memScores) ListByAccount(_ context.Context, accountID string, _ domain.ListOpts) ([]domain.ScoreEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScoreEvent
	for _, e := range s.events {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

type noopLocks struct{}

func (noopLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	return func() {}, nil
}

// env wires real ledger/oracle/yield/score components over the fakes.
type env struct {
	accounts *memAccounts
	stakes   *memStakes
	markets  *memMarkets
	wagers   *memWagers
	scores   *memScores
	ledger   *ledger.Ledger
	stakeEng *StakeEngine
	mktEng   *MarketEngine
}

func newEnv() *env {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := newMemAccounts()
	scores := newMemScores(accounts)
	ldg := ledger.New(accounts, nil, logger)
	agg := score.NewAggregator(scores, accounts, nil, logger)

	e := &env{
		accounts: accounts,
		stakes:   newMemStakes(),
		markets:  newMemMarkets(),
		wagers:   newMemWagers(),
		scores:   scores,
		ledger:   ldg,
	}
	e.stakeEng = NewStakeEngine(StakeConfig{}, e.stakes, ldg, oracle.New(), yield.NewCalculator(0.12, 0.20), agg, noopLocks{}, nil, logger)
	e.mktEng = NewMarketEngine(MarketConfig{}, e.markets, e.wagers, ldg, agg, noopLocks{}, nil, logger)
	return e
}

func (e *env) seedAccount(id string, balanceCents int64, sources ...domain.SourceID) {
	e.accounts.m[id] = &domain.Account{
		ID:           id,
		Handle:       id,
		BalanceCents: balanceCents,
		Aura:         score.BaseAura,
		Sources:      sources,
		Active:       true,
	}
}

func (e *env) balance(id string) int64 {
	a, _ := e.accounts.GetByID(context.Background(), id)
	return a.BalanceCents
}

func (e *env) aura(id string) int {
	a, _ := e.accounts.GetByID(context.Background(), id)
	return a.Aura
}
