package domain

import (
	"fmt"
	"time"
)

// ScoreEventKind enumerates the settlement outcomes that move an account's
// Aura score.
type ScoreEventKind string

const (
	ScoreStakeCompleted ScoreEventKind = "stake_completed"
	ScoreStakeForfeited ScoreEventKind = "stake_forfeited"
	ScoreWagerWon       ScoreEventKind = "wager_won"
)

// ScoreEvent records one reputation-affecting settlement. The ID is derived
// from (kind, entity, account) so replaying the same settlement produces the
// same event and cannot double-apply.
type ScoreEvent struct {
	ID        string
	Kind      ScoreEventKind
	AccountID string
	EntityID  string // stake or wager id
	Delta     int
	CreatedAt time.Time
}

// ScoreEventID builds the deterministic idempotency key for a score event.
func ScoreEventID(kind ScoreEventKind, entityID, accountID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, entityID, accountID)
}

// LeaderboardEntry is one row of the Aura leaderboard.
type LeaderboardEntry struct {
	AccountID string
	Handle    string
	Aura      int
}
