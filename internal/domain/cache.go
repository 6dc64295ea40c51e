package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking. Each account, stake, and market
// is a serialization boundary; the engines acquire the entity's lock before
// mutating it so concurrent operations against the same entity linearize.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Leaderboard maintains the Aura ranking for fast top-N reads.
type Leaderboard interface {
	Set(ctx context.Context, accountID, handle string, aura int) error
	Top(ctx context.Context, n int) ([]LeaderboardEntry, error)
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live event fan-out and durable streams for
// the wearable reading hand-off.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
