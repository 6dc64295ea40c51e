package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurayield/engine/internal/domain"
)

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

var _ domain.WagerStore = (*WagerStore)(nil)

// NewWagerStore creates a new WagerStore backed by the given pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

const wagerColumns = `
	id, market_id, account_id, side, amount_cents, payout_cents, settled, created_at`

// Create inserts a new wager row.
func (s *WagerStore) Create(ctx context.Context, w domain.Wager) error {
	const query = `
		INSERT INTO wagers (` + wagerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.MarketID, w.AccountID, string(w.Side),
		w.AmountCents, w.PayoutCents, w.Settled, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, err)
	}
	return nil
}

// GetByID fetches a single wager.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.Wager, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+wagerColumns+" FROM wagers WHERE id = $1", id)
	w, err := scanWager(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wager{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("postgres: get wager %s: %w", id, err)
	}
	return w, nil
}

// ListByMarket returns every wager on a market in placement order.
func (s *WagerStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Wager, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+wagerColumns+" FROM wagers WHERE market_id = $1 ORDER BY created_at, id",
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers by market: %w", err)
	}
	return collectWagers(rows)
}

// ListByAccount returns an account's wagers, newest first.
func (s *WagerStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Wager, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+wagerColumns+" FROM wagers WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		accountID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers by account: %w", err)
	}
	return collectWagers(rows)
}

// MarkSettled records the wager's final payout.
func (s *WagerStore) MarkSettled(ctx context.Context, id string, payoutCents int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE wagers SET settled = TRUE, payout_cents = $2 WHERE id = $1",
		id, payoutCents)
	if err != nil {
		return fmt.Errorf("postgres: settle wager %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanWager(row pgx.Row) (domain.Wager, error) {
	var (
		w    domain.Wager
		side string
	)
	err := row.Scan(
		&w.ID, &w.MarketID, &w.AccountID, &side,
		&w.AmountCents, &w.PayoutCents, &w.Settled, &w.CreatedAt,
	)
	if err != nil {
		return domain.Wager{}, err
	}
	w.Side = domain.Side(side)
	return w, nil
}

func collectWagers(rows pgx.Rows) ([]domain.Wager, error) {
	defer rows.Close()
	var out []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wager: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
