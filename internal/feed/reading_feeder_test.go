package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurayield/engine/internal/domain"
)

type streamBus struct {
	entries []domain.StreamMessage
}

func (b *streamBus) append(t *testing.T, reading domain.Reading) {
	t.Helper()
	payload, err := json.Marshal(reading)
	require.NoError(t, err)
	b.entries = append(b.entries, domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", len(b.entries)+1),
		Payload: payload,
	})
}

func (b *streamBus) appendRaw(payload string) {
	b.entries = append(b.entries, domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", len(b.entries)+1),
		Payload: []byte(payload),
	})
}

func (b *streamBus) Publish(context.Context, string, []byte) error { return nil }

func (b *streamBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *streamBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *streamBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	var out []domain.StreamMessage
	seen := lastID == "0"
	for _, e := range b.entries {
		if seen {
			out = append(out, e)
			if len(out) == count {
				break
			}
		}
		if e.ID == lastID {
			seen = true
		}
	}
	return out, nil
}

type call struct {
	stakeID  string
	dayIndex int
	rawValue int64
}

type fakeRecorder struct {
	calls []call
	errs  map[string]error
}

func (r *fakeRecorder) RecordDailyMeasurement(_ context.Context, stakeID string, dayIndex int, rawValue int64) (domain.Stake, error) {
	r.calls = append(r.calls, call{stakeID, dayIndex, rawValue})
	if err := r.errs[stakeID]; err != nil {
		return domain.Stake{}, err
	}
	return domain.Stake{ID: stakeID, CurrentDay: dayIndex + 1, Status: domain.StakeStatusActive}, nil
}

func newFeeder(bus *streamBus, rec *fakeRecorder) *ReadingFeeder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReadingFeeder(bus, rec, Options{BatchSize: 2}, logger)
}

func TestDrainRecordsAllReadings(t *testing.T) {
	bus := &streamBus{}
	for day := 0; day < 5; day++ {
		bus.append(t, domain.Reading{StakeID: "s1", SourceID: domain.SourceOura, DayIndex: day, RawValue: 11000})
	}
	rec := &fakeRecorder{}
	f := newFeeder(bus, rec)

	require.NoError(t, f.drain(context.Background()))
	require.Len(t, rec.calls, 5)
	assert.Equal(t, call{"s1", 4, 11000}, rec.calls[4])
	assert.Equal(t, "5-0", f.lastID)
}

func TestDrainSkipsMalformedAndRejected(t *testing.T) {
	bus := &streamBus{}
	bus.appendRaw(`{not json`)
	bus.append(t, domain.Reading{StakeID: "", DayIndex: 0, RawValue: 1})
	bus.append(t, domain.Reading{StakeID: "stale", DayIndex: 3, RawValue: 9000})
	bus.append(t, domain.Reading{StakeID: "ok", DayIndex: 0, RawValue: 9000})

	rec := &fakeRecorder{errs: map[string]error{"stale": domain.ErrOutOfSequence}}
	f := newFeeder(bus, rec)

	require.NoError(t, f.drain(context.Background()))
	// Malformed entries never reach the recorder; rejected ones do but are
	// skipped past.
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "stale", rec.calls[0].stakeID)
	assert.Equal(t, "ok", rec.calls[1].stakeID)
	assert.Equal(t, "4-0", f.lastID)
}

func TestDrainRetriesAfterInfrastructureError(t *testing.T) {
	bus := &streamBus{}
	bus.append(t, domain.Reading{StakeID: "flaky", DayIndex: 0, RawValue: 500})
	bus.append(t, domain.Reading{StakeID: "next", DayIndex: 0, RawValue: 600})

	rec := &fakeRecorder{errs: map[string]error{"flaky": assert.AnError}}
	f := newFeeder(bus, rec)

	require.NoError(t, f.drain(context.Background()))
	assert.Equal(t, "0", f.lastID)

	// The store recovers; the next drain replays from the stuck entry.
	delete(rec.errs, "flaky")
	require.NoError(t, f.drain(context.Background()))
	require.Len(t, rec.calls, 3)
	assert.Equal(t, "flaky", rec.calls[1].stakeID)
	assert.Equal(t, "next", rec.calls[2].stakeID)
	assert.Equal(t, "2-0", f.lastID)
}
