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

// StakeStore implements domain.StakeStore using PostgreSQL. The per-day
// measurement, outcome, and confidence slices map to postgres arrays.
type StakeStore struct {
	pool *pgxpool.Pool
}

var _ domain.StakeStore = (*StakeStore)(nil)

// NewStakeStore creates a new StakeStore backed by the given pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

const stakeColumns = `
	id, account_id, goal, target, principal_cents, duration_days, current_day,
	measurements, outcomes, confidences, confidence, source_id, status,
	yield_cents, payout_cents, created_at, updated_at, settled_at`

// Create inserts a new stake row.
func (s *StakeStore) Create(ctx context.Context, stake domain.Stake) error {
	const query = `
		INSERT INTO stakes (` + stakeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := s.pool.Exec(ctx, query,
		stake.ID, stake.AccountID, string(stake.Goal), stake.Target,
		stake.PrincipalCents, stake.DurationDays, stake.CurrentDay,
		stake.Measurements, outcomesToInts(stake.Outcomes), stake.Confidences,
		stake.Confidence, string(stake.SourceID), string(stake.Status),
		stake.YieldCents, stake.PayoutCents,
		stake.CreatedAt, stake.UpdatedAt, stake.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create stake %s: %w", stake.ID, err)
	}
	return nil
}

// GetByID fetches a single stake.
func (s *StakeStore) GetByID(ctx context.Context, id string) (domain.Stake, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+stakeColumns+" FROM stakes WHERE id = $1", id)
	stake, err := scanStake(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stake{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Stake{}, fmt.Errorf("postgres: get stake %s: %w", id, err)
	}
	return stake, nil
}

// Update persists the full mutable state of a stake.
func (s *StakeStore) Update(ctx context.Context, stake domain.Stake) error {
	const query = `
		UPDATE stakes SET
			current_day = $2, measurements = $3, outcomes = $4, confidences = $5,
			confidence = $6, status = $7, yield_cents = $8, payout_cents = $9,
			updated_at = $10, settled_at = $11
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		stake.ID, stake.CurrentDay,
		stake.Measurements, outcomesToInts(stake.Outcomes), stake.Confidences,
		stake.Confidence, string(stake.Status),
		stake.YieldCents, stake.PayoutCents,
		stake.UpdatedAt, stake.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update stake %s: %w", stake.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActiveByAccount returns the account's active stakes, newest first.
func (s *StakeStore) ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+stakeColumns+" FROM stakes WHERE account_id = $1 AND status = $2 ORDER BY created_at DESC",
		accountID, string(domain.StakeStatusActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes by account: %w", err)
	}
	return collectStakes(rows)
}

// ListActive returns active stakes across all accounts.
func (s *StakeStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Stake, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+stakeColumns+" FROM stakes WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		string(domain.StakeStatusActive), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active stakes: %w", err)
	}
	return collectStakes(rows)
}

// ListSettledBefore returns terminal stakes settled before the cutoff.
func (s *StakeStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+stakeColumns+" FROM stakes WHERE settled_at IS NOT NULL AND settled_at < $1 ORDER BY settled_at",
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled stakes: %w", err)
	}
	return collectStakes(rows)
}

// DeleteSettledBefore prunes archived terminal stakes from the hot store.
func (s *StakeStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM stakes WHERE settled_at IS NOT NULL AND settled_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled stakes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanStake(row pgx.Row) (domain.Stake, error) {
	var (
		st       domain.Stake
		goal     string
		source   string
		status   string
		outcomes []int16
		confs    []int16
	)
	err := row.Scan(
		&st.ID, &st.AccountID, &goal, &st.Target,
		&st.PrincipalCents, &st.DurationDays, &st.CurrentDay,
		&st.Measurements, &outcomes, &confs,
		&st.Confidence, &source, &status,
		&st.YieldCents, &st.PayoutCents,
		&st.CreatedAt, &st.UpdatedAt, &st.SettledAt,
	)
	if err != nil {
		return domain.Stake{}, err
	}
	st.Goal = domain.GoalType(goal)
	st.SourceID = domain.SourceID(source)
	st.Status = domain.StakeStatus(status)
	st.Outcomes = intsToOutcomes(outcomes)
	st.Confidences = make([]int, len(confs))
	for i, c := range confs {
		st.Confidences[i] = int(c)
	}
	return st, nil
}

func collectStakes(rows pgx.Rows) ([]domain.Stake, error) {
	defer rows.Close()
	var out []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func outcomesToInts(outcomes []domain.DayResult) []int16 {
	out := make([]int16, len(outcomes))
	for i, o := range outcomes {
		out[i] = int16(o)
	}
	return out
}

func intsToOutcomes(ints []int16) []domain.DayResult {
	out := make([]domain.DayResult, len(ints))
	for i, v := range ints {
		out[i] = domain.DayResult(v)
	}
	return out
}
