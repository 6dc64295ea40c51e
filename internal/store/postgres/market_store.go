package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurayield/engine/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `
	id, creator_id, claim, goal, yes_pool_cents, no_pool_cents,
	creator_aura, deadline, status, created_at, updated_at, resolved_at`

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (` + marketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.CreatorID, m.Claim, string(m.Goal),
		m.YesPoolCents, m.NoPoolCents, m.CreatorAura,
		m.Deadline, string(m.Status),
		m.CreatedAt, m.UpdatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID fetches a single market.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+marketColumns+" FROM markets WHERE id = $1", id)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update persists the mutable state of a market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			yes_pool_cents = $2, no_pool_cents = $3, status = $4,
			updated_at = $5, resolved_at = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.YesPoolCents, m.NoPoolCents, string(m.Status),
		m.UpdatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddToPool atomically grows one side's pool by amountCents. A negative
// amount only appears when a failed wager is being compensated.
func (s *MarketStore) AddToPool(ctx context.Context, id string, side domain.Side, amountCents int64) error {
	column := "no_pool_cents"
	if side == domain.SideYes {
		column = "yes_pool_cents"
	}
	query := fmt.Sprintf(
		"UPDATE markets SET %s = %s + $2, updated_at = NOW() WHERE id = $1", column, column)

	tag, err := s.pool.Exec(ctx, query, id, amountCents)
	if err != nil {
		return fmt.Errorf("postgres: add to pool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns open markets, soonest deadline first.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+marketColumns+" FROM markets WHERE status = $1 ORDER BY deadline ASC LIMIT $2 OFFSET $3",
		string(domain.MarketStatusOpen), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open markets: %w", err)
	}
	return collectMarkets(rows)
}

// ListExpiredUnresolved returns open markets whose deadline passed before the
// cutoff. The sweeper voids these.
func (s *MarketStore) ListExpiredUnresolved(ctx context.Context, deadlineBefore time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+marketColumns+" FROM markets WHERE status = $1 AND deadline < $2 ORDER BY deadline",
		string(domain.MarketStatusOpen), deadlineBefore)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired markets: %w", err)
	}
	return collectMarkets(rows)
}

// ListResolvedBefore returns terminal markets resolved before the cutoff.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+marketColumns+" FROM markets WHERE resolved_at IS NOT NULL AND resolved_at < $1 ORDER BY resolved_at",
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets: %w", err)
	}
	return collectMarkets(rows)
}

// DeleteResolvedBefore prunes archived terminal markets and their wagers.
func (s *MarketStore) DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM wagers WHERE market_id IN (
			SELECT id FROM markets WHERE resolved_at IS NOT NULL AND resolved_at < $1
		)`, before); err != nil {
		return 0, fmt.Errorf("postgres: delete wagers of resolved markets: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"DELETE FROM markets WHERE resolved_at IS NOT NULL AND resolved_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete resolved markets: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m      domain.Market
		goal   string
		status string
	)
	err := row.Scan(
		&m.ID, &m.CreatorID, &m.Claim, &goal,
		&m.YesPoolCents, &m.NoPoolCents, &m.CreatorAura,
		&m.Deadline, &status,
		&m.CreatedAt, &m.UpdatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Goal = domain.GoalType(goal)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	defer rows.Close()
	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
