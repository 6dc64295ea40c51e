package domain

import "time"

// MarketStatus represents the resolution state of a prediction market.
type MarketStatus string

const (
	MarketStatusOpen        MarketStatus = "open"
	MarketStatusResolvedYes MarketStatus = "resolved_yes"
	MarketStatusResolvedNo  MarketStatus = "resolved_no"
	MarketStatusVoid        MarketStatus = "void"
)

// Resolved reports whether the market has reached a terminal state.
func (s MarketStatus) Resolved() bool {
	return s != MarketStatusOpen
}

// Side is one of the two wager pools of a market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether the side is a recognized pool name.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// MarketOutcome is the externally determined truth used to resolve a market.
type MarketOutcome string

const (
	OutcomeYes  MarketOutcome = "yes"
	OutcomeNo   MarketOutcome = "no"
	OutcomeVoid MarketOutcome = "void"
)

// Market is a pari-mutuel wager on whether a claimed goal outcome will hold.
// Pools only grow while the market is open; odds are derived from the pools
// on demand and never stored.
type Market struct {
	ID           string
	CreatorID    string
	Claim        string
	Goal         GoalType
	YesPoolCents int64
	NoPoolCents  int64
	CreatorAura  int // creator's reputation snapshot at creation, for trust display
	Deadline     time.Time
	Status       MarketStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// TotalPoolCents returns the combined size of both pools.
func (m *Market) TotalPoolCents() int64 {
	return m.YesPoolCents + m.NoPoolCents
}

// PoolCents returns the pool for one side.
func (m *Market) PoolCents(side Side) int64 {
	if side == SideYes {
		return m.YesPoolCents
	}
	return m.NoPoolCents
}

// AcceptingWagers reports whether a wager may still be placed at the given
// instant.
func (m *Market) AcceptingWagers(now time.Time) bool {
	return m.Status == MarketStatusOpen && now.Before(m.Deadline)
}

// ImpliedProbability returns the pool-implied probability of a side. The
// second return is false when the total pool is empty and no odds exist yet.
func (m *Market) ImpliedProbability(side Side) (float64, bool) {
	total := m.TotalPoolCents()
	if total == 0 {
		return 0, false
	}
	return float64(m.PoolCents(side)) / float64(total), true
}

// PayoutMultiplier returns total/pool(side). The second return is false when
// the side's pool is empty, in which case the multiplier is undefined.
func (m *Market) PayoutMultiplier(side Side) (float64, bool) {
	pool := m.PoolCents(side)
	if pool == 0 {
		return 0, false
	}
	return float64(m.TotalPoolCents()) / float64(pool), true
}

// QuotePayoutCents returns the payout a prospective wager of amountCents on
// side would receive if that side wins, including the wager's own effect on
// both the total and the side pool. Quoting from the current pools alone
// understates the payout.
func (m *Market) QuotePayoutCents(side Side, amountCents int64) int64 {
	if amountCents <= 0 {
		return 0
	}
	total := m.TotalPoolCents() + amountCents
	pool := m.PoolCents(side) + amountCents
	return amountCents * total / pool
}

// Wager is a single bet on one side of a market. It is immutable once placed;
// settlement records the payout separately.
type Wager struct {
	ID          string
	MarketID    string
	AccountID   string
	Side        Side
	AmountCents int64
	PayoutCents int64
	Settled     bool
	CreatedAt   time.Time
}
