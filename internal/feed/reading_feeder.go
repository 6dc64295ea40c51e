// Package feed consumes wearable readings from the durable stream and drives
// daily stake verification. The stream is the hand-off point for the data
// collaborator: it appends one entry per account-day and this consumer is the
// only reader.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aurayield/engine/internal/domain"
)

// Recorder is the slice of the stake engine the feeder needs.
type Recorder interface {
	RecordDailyMeasurement(ctx context.Context, stakeID string, dayIndex int, rawValue int64) (domain.Stake, error)
}

// Options configures the feeder's polling behaviour.
type Options struct {
	BatchSize    int
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// ReadingFeeder tails the readings stream and records each measurement
// against its stake. Malformed entries and domain rejections (stale days,
// settled stakes) are logged and skipped so one bad reading never stalls the
// stream.
type ReadingFeeder struct {
	bus    domain.SignalBus
	stakes Recorder
	opts   Options
	logger *slog.Logger

	lastID string
}

// NewReadingFeeder creates a feeder that starts from the beginning of the
// stream. Replayed entries are harmless: recording the same day twice with
// the same value is a no-op.
func NewReadingFeeder(bus domain.SignalBus, stakes Recorder, opts Options, logger *slog.Logger) *ReadingFeeder {
	return &ReadingFeeder{
		bus:    bus,
		stakes: stakes,
		opts:   opts.withDefaults(),
		logger: logger.With(slog.String("component", "reading_feeder")),
		lastID: "0",
	}
}

// Run polls the stream until ctx is cancelled. It returns nil on
// cancellation.
func (f *ReadingFeeder) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "reading feeder started",
		slog.String("stream", domain.StreamReadings),
		slog.Int("batch_size", f.opts.BatchSize))

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.drain(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				f.logger.ErrorContext(ctx, "stream read failed", slog.Any("error", err))
			}
		}
	}
}

// drain reads batches until the stream has no more pending entries.
func (f *ReadingFeeder) drain(ctx context.Context) error {
	for {
		msgs, err := f.bus.StreamRead(ctx, domain.StreamReadings, f.lastID, f.opts.BatchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, msg := range msgs {
			if !f.process(ctx, msg) {
				// Transient failure: leave the cursor so the next poll retries
				// from this entry.
				return nil
			}
			f.lastID = msg.ID
		}
		if len(msgs) < f.opts.BatchSize {
			return nil
		}
	}
}

// process records a single reading. Malformed entries and domain rejections
// are logged and skipped (returns true); infrastructure failures return false
// so the caller keeps the cursor on the entry and retries it.
func (f *ReadingFeeder) process(ctx context.Context, msg domain.StreamMessage) bool {
	var reading domain.Reading
	if err := json.Unmarshal(msg.Payload, &reading); err != nil {
		f.logger.WarnContext(ctx, "malformed reading skipped",
			slog.String("stream_id", msg.ID), slog.Any("error", err))
		return true
	}
	if reading.StakeID == "" || reading.DayIndex < 0 {
		f.logger.WarnContext(ctx, "incomplete reading skipped",
			slog.String("stream_id", msg.ID))
		return true
	}

	stake, err := f.stakes.RecordDailyMeasurement(ctx, reading.StakeID, reading.DayIndex, reading.RawValue)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOutOfSequence),
			errors.Is(err, domain.ErrStakeNotActive),
			errors.Is(err, domain.ErrNotFound):
			f.logger.WarnContext(ctx, "reading rejected",
				slog.String("stake_id", reading.StakeID),
				slog.Int("day_index", reading.DayIndex),
				slog.Any("error", err))
			return true
		default:
			f.logger.ErrorContext(ctx, "reading processing failed",
				slog.String("stake_id", reading.StakeID),
				slog.Int("day_index", reading.DayIndex),
				slog.Any("error", err))
			return false
		}
	}

	f.logger.DebugContext(ctx, "reading recorded",
		slog.String("stake_id", stake.ID),
		slog.Int("day", stake.CurrentDay),
		slog.String("status", string(stake.Status)))
	return true
}
