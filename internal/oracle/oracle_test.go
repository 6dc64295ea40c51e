package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurayield/engine/internal/domain"
)

func TestVerifyMoreIsBetter(t *testing.T) {
	o := New()

	verified, conf, err := o.Verify(domain.GoalSteps, 10_000, 12_345, domain.SourceOura)
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, 95, conf, "overshoot keeps full source reliability")

	verified, conf, err = o.Verify(domain.GoalSteps, 10_000, 10_000, domain.SourceOura)
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, 95, conf, "exact target counts")

	verified, conf, err = o.Verify(domain.GoalSteps, 10_000, 5_000, domain.SourceOura)
	require.NoError(t, err)
	assert.False(t, verified)
	assert.Equal(t, 47, conf, "half the target halves confidence in the miss")
}

func TestVerifyMissingReading(t *testing.T) {
	o := New()

	for _, raw := range []int64{0, -1} {
		verified, conf, err := o.Verify(domain.GoalSteps, 10_000, raw, domain.SourceFitbit)
		require.NoError(t, err)
		assert.False(t, verified)
		assert.Zero(t, conf)
	}
}

func TestVerifyConfidenceTracksSource(t *testing.T) {
	o := New()

	_, oura, err := o.Verify(domain.GoalSleep, 7, 8, domain.SourceOura)
	require.NoError(t, err)
	_, samsung, err := o.Verify(domain.GoalSleep, 7, 8, domain.SourceSamsung)
	require.NoError(t, err)
	assert.Greater(t, oura, samsung, "a more reliable source yields higher confidence")
}

func TestVerifyDeterministic(t *testing.T) {
	o := New()

	v1, c1, err := o.Verify(domain.GoalHRV, 50, 43, domain.SourceWhoop)
	require.NoError(t, err)
	v2, c2, err := o.Verify(domain.GoalHRV, 50, 43, domain.SourceWhoop)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, c1, c2)
}

func TestVerifyUnknownGoalOrSource(t *testing.T) {
	o := New()

	_, _, err := o.Verify(domain.GoalType("vo2max"), 50, 60, domain.SourceOura)
	assert.ErrorIs(t, err, domain.ErrUnknownGoal)

	_, _, err = o.Verify(domain.GoalSteps, 10_000, 11_000, domain.SourceID("pebble"))
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}
