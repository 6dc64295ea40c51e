package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aurayield/engine/internal/domain"
)

const (
	leaderboardKey = "aura:leaderboard"
	handlesKey     = "aura:handles"
)

// Leaderboard implements domain.Leaderboard with a Redis sorted set keyed by
// Aura score plus a hash of account handles for display. The score aggregator
// mirrors every Aura change into it; postgres stays the source of truth.
type Leaderboard struct {
	rdb *redis.Client
}

var _ domain.Leaderboard = (*Leaderboard)(nil)

// NewLeaderboard creates a Leaderboard backed by the given Client.
func NewLeaderboard(c *Client) *Leaderboard {
	return &Leaderboard{rdb: c.Underlying()}
}

// Set records the account's current Aura and handle.
func (l *Leaderboard) Set(ctx context.Context, accountID, handle string, aura int) error {
	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(aura), Member: accountID})
	pipe.HSet(ctx, handlesKey, accountID, handle)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: leaderboard set %s: %w", accountID, err)
	}
	return nil
}

// Top returns the n highest-scored accounts, best first.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	zs, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard top: %w", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i] = z.Member.(string)
	}
	handles, err := l.rdb.HMGet(ctx, handlesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard handles: %w", err)
	}

	out := make([]domain.LeaderboardEntry, len(zs))
	for i, z := range zs {
		handle := ""
		if h, ok := handles[i].(string); ok {
			handle = h
		}
		out[i] = domain.LeaderboardEntry{
			AccountID: ids[i],
			Handle:    handle,
			Aura:      int(z.Score),
		}
	}
	return out, nil
}
