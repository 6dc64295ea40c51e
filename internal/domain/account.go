package domain

import "time"

// Account holds a user's balance and reputation. Balances are integer cents;
// only the account ledger mutates them. Accounts are created on first
// interaction and deactivated rather than deleted.
type Account struct {
	ID                  string
	Handle              string
	BalanceCents        int64
	Aura                int
	LifetimeStakedCents int64
	LifetimeEarnedCents int64
	Sources             []SourceID
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TreasuryAccountID is the reserved account that receives forfeited principal.
const TreasuryAccountID = "treasury"
