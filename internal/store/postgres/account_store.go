package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurayield/engine/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL. Balance
// movements lock the affected rows with SELECT ... FOR UPDATE so concurrent
// debits cannot overdraw.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account row.
func (s *AccountStore) Create(ctx context.Context, acct domain.Account) error {
	const query = `
		INSERT INTO accounts (
			id, handle, balance_cents, aura,
			lifetime_staked_cents, lifetime_earned_cents,
			active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		acct.ID, acct.Handle, acct.BalanceCents, acct.Aura,
		acct.LifetimeStakedCents, acct.LifetimeEarnedCents,
		acct.Active, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create account %s: %w", acct.ID, err)
	}
	return nil
}

// GetByID fetches an account and its connected sources.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return s.get(ctx, "id = $1", id)
}

// GetByHandle fetches an account by its unique handle.
func (s *AccountStore) GetByHandle(ctx context.Context, handle string) (domain.Account, error) {
	return s.get(ctx, "handle = $1", handle)
}

func (s *AccountStore) get(ctx context.Context, where, arg string) (domain.Account, error) {
	query := `
		SELECT id, handle, balance_cents, aura,
		       lifetime_staked_cents, lifetime_earned_cents,
		       active, created_at, updated_at
		FROM accounts WHERE ` + where

	var a domain.Account
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Handle, &a.BalanceCents, &a.Aura,
		&a.LifetimeStakedCents, &a.LifetimeEarnedCents,
		&a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT source FROM account_sources WHERE account_id = $1 ORDER BY created_at", a.ID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return domain.Account{}, fmt.Errorf("postgres: scan account source: %w", err)
		}
		a.Sources = append(a.Sources, domain.SourceID(src))
	}
	if err := rows.Err(); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: iterate account sources: %w", err)
	}
	return a, nil
}

// Debit subtracts amountCents inside a transaction, failing with
// ErrInsufficientFunds when the balance cannot cover it.
func (s *AccountStore) Debit(ctx context.Context, id string, amountCents int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, id)
		if err != nil {
			return err
		}
		if balance < amountCents {
			return domain.ErrInsufficientFunds
		}
		_, err = tx.Exec(ctx,
			"UPDATE accounts SET balance_cents = balance_cents - $2, updated_at = NOW() WHERE id = $1",
			id, amountCents)
		return err
	})
}

// Credit adds amountCents to the account.
func (s *AccountStore) Credit(ctx context.Context, id string, amountCents int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE accounts SET balance_cents = balance_cents + $2, updated_at = NOW() WHERE id = $1",
		id, amountCents)
	if err != nil {
		return fmt.Errorf("postgres: credit account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreditOnce records the idempotency key and applies the credit in one
// transaction. A key seen before leaves the balance untouched.
func (s *AccountStore) CreditOnce(ctx context.Context, id string, amountCents int64, key string) (bool, error) {
	var applied bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ledger_credits (key, account_id, amount_cents)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING`,
			key, id, amountCents)
		if err != nil {
			return fmt.Errorf("postgres: record credit key %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx,
			"UPDATE accounts SET balance_cents = balance_cents + $2, updated_at = NOW() WHERE id = $1",
			id, amountCents)
		if err != nil {
			return fmt.Errorf("postgres: credit account %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		applied = true
		return nil
	})
	return applied, err
}

// Transfer moves amountCents from one account to another in a single
// transaction. Rows are locked in id order to avoid deadlocks.
func (s *AccountStore) Transfer(ctx context.Context, fromID, toID string, amountCents int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		if _, err := lockBalance(ctx, tx, first); err != nil {
			return err
		}
		if _, err := lockBalance(ctx, tx, second); err != nil {
			return err
		}

		var balance int64
		if err := tx.QueryRow(ctx,
			"SELECT balance_cents FROM accounts WHERE id = $1", fromID).Scan(&balance); err != nil {
			return err
		}
		if balance < amountCents {
			return domain.ErrInsufficientFunds
		}
		if _, err := tx.Exec(ctx,
			"UPDATE accounts SET balance_cents = balance_cents - $2, updated_at = NOW() WHERE id = $1",
			fromID, amountCents); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"UPDATE accounts SET balance_cents = balance_cents + $2, updated_at = NOW() WHERE id = $1",
			toID, amountCents)
		return err
	})
}

// AddLifetime bumps the lifetime staked/earned counters.
func (s *AccountStore) AddLifetime(ctx context.Context, id string, stakedDelta, earnedDelta int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET lifetime_staked_cents = lifetime_staked_cents + $2,
		    lifetime_earned_cents = lifetime_earned_cents + $3,
		    updated_at = NOW()
		WHERE id = $1`,
		id, stakedDelta, earnedDelta)
	if err != nil {
		return fmt.Errorf("postgres: add lifetime %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetActive flips the account's active flag.
func (s *AccountStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE accounts SET active = $2, updated_at = NOW() WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("postgres: set active %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddSource links a wearable source to the account. Re-linking is a no-op.
func (s *AccountStore) AddSource(ctx context.Context, id string, source domain.SourceID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_sources (account_id, source)
		VALUES ($1, $2)
		ON CONFLICT (account_id, source) DO NOTHING`,
		id, string(source))
	if err != nil {
		return fmt.Errorf("postgres: add source %s/%s: %w", id, source, err)
	}
	return nil
}

// HasSource reports whether the account has linked the source.
func (s *AccountStore) HasSource(ctx context.Context, id string, source domain.SourceID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM account_sources WHERE account_id = $1 AND source = $2)",
		id, string(source)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has source %s/%s: %w", id, source, err)
	}
	return exists, nil
}

// TopByAura returns the highest-scored accounts for the leaderboard fallback.
func (s *AccountStore) TopByAura(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, handle, aura FROM accounts
		WHERE active AND id <> $1
		ORDER BY aura DESC, handle ASC
		LIMIT $2`,
		domain.TreasuryAccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top by aura: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Handle, &e.Aura); err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func lockBalance(ctx context.Context, tx pgx.Tx, id string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		"SELECT balance_cents FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

func (s *AccountStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}
