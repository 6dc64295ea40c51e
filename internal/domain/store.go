package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists accounts and performs atomic balance movements.
// Debit, Credit, and Transfer run inside a single database transaction and
// either fully apply or leave no trace; Debit and Transfer return
// ErrInsufficientFunds when the available balance cannot cover the amount.
type AccountStore interface {
	Create(ctx context.Context, acct Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	GetByHandle(ctx context.Context, handle string) (Account, error)
	Debit(ctx context.Context, id string, amountCents int64) error
	Credit(ctx context.Context, id string, amountCents int64) error
	// CreditOnce credits amountCents at most once per idempotency key. A
	// replayed key applies nothing and returns applied=false, so settlement
	// retries cannot pay twice.
	CreditOnce(ctx context.Context, id string, amountCents int64, key string) (applied bool, err error)
	Transfer(ctx context.Context, fromID, toID string, amountCents int64) error
	AddLifetime(ctx context.Context, id string, stakedDelta, earnedDelta int64) error
	SetActive(ctx context.Context, id string, active bool) error
	AddSource(ctx context.Context, id string, source SourceID) error
	HasSource(ctx context.Context, id string, source SourceID) (bool, error)
	TopByAura(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// StakeStore persists stakes including their per-day measurement arrays.
type StakeStore interface {
	Create(ctx context.Context, stake Stake) error
	GetByID(ctx context.Context, id string) (Stake, error)
	Update(ctx context.Context, stake Stake) error
	ListActiveByAccount(ctx context.Context, accountID string) ([]Stake, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Stake, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Stake, error)
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
}

// MarketStore persists prediction markets. AddToPool atomically grows one
// side's pool; pools never shrink while a market is open.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	Update(ctx context.Context, market Market) error
	AddToPool(ctx context.Context, id string, side Side, amountCents int64) error
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	ListExpiredUnresolved(ctx context.Context, deadlineBefore time.Time) ([]Market, error)
	ListResolvedBefore(ctx context.Context, before time.Time) ([]Market, error)
	DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error)
}

// WagerStore persists wagers and their settlement payouts.
type WagerStore interface {
	Create(ctx context.Context, wager Wager) error
	GetByID(ctx context.Context, id string) (Wager, error)
	ListByMarket(ctx context.Context, marketID string) ([]Wager, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Wager, error)
	MarkSettled(ctx context.Context, id string, payoutCents int64) error
}

// ScoreStore persists score events and applies their deltas to account Aura.
// Apply is idempotent per event id: inserting an already-recorded event
// returns applied=false and leaves the score untouched. Aura never drops
// below zero.
type ScoreStore interface {
	Apply(ctx context.Context, event ScoreEvent) (applied bool, err error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]ScoreEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
