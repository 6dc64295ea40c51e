package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurayield/engine/internal/domain"
)

// ScoreStore implements domain.ScoreStore using PostgreSQL. The event id is
// the primary key, so re-applying a settlement is a conflict-free no-op.
type ScoreStore struct {
	pool *pgxpool.Pool
}

var _ domain.ScoreStore = (*ScoreStore)(nil)

// NewScoreStore creates a new ScoreStore backed by the given pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// Apply inserts the event and, if it is new, applies its delta to the
// account's Aura in the same transaction. Aura is clamped at zero.
func (s *ScoreStore) Apply(ctx context.Context, event domain.ScoreEvent) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO score_events (id, kind, account_id, entity_id, delta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Kind), event.AccountID, event.EntityID, event.Delta, event.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert score event %s: %w", event.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts
		SET aura = GREATEST(0, aura + $2), updated_at = NOW()
		WHERE id = $1`,
		event.AccountID, event.Delta,
	); err != nil {
		return false, fmt.Errorf("postgres: apply aura delta %s: %w", event.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return true, nil
}

// ListByAccount returns an account's score history, newest first.
func (s *ScoreStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.ScoreEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, account_id, entity_id, delta, created_at
		FROM score_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list score events: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoreEvent
	for rows.Next() {
		var (
			e    domain.ScoreEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.AccountID, &e.EntityID, &e.Delta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan score event: %w", err)
		}
		e.Kind = domain.ScoreEventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
