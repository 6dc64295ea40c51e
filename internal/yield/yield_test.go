package yield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurayield/engine/internal/domain"
)

func TestProjected(t *testing.T) {
	c := NewCalculator(0.12, 0.20)

	// $100 for 7 days at 12% APR is about $0.23.
	got, err := c.Projected(100_00, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(23), got)

	// Full year yields exactly principal * rate.
	got, err = c.Projected(100_00, 365)
	require.NoError(t, err)
	assert.Equal(t, int64(12_00), got)
}

func TestProjectedMonotonic(t *testing.T) {
	c := NewCalculator(0.12, 0.20)

	prev := int64(-1)
	for _, p := range []int64{10_00, 50_00, 100_00, 250_00, 500_00} {
		got, err := c.Projected(p, 14)
		require.NoError(t, err)
		assert.Greater(t, got, prev, "yield must grow with principal")
		prev = got
	}

	prev = -1
	for _, d := range []int{7, 14, 21, 30} {
		got, err := c.Projected(500_00, d)
		require.NoError(t, err)
		assert.Greater(t, got, prev, "yield must grow with duration")
		prev = got
	}
}

func TestProjectedCappedAtAnnual(t *testing.T) {
	c := NewCalculator(0.12, 0.20)

	annual, err := c.Projected(100_00, 365)
	require.NoError(t, err)

	over, err := c.Projected(100_00, 10_000)
	require.NoError(t, err)
	assert.Equal(t, annual, over, "duration overflow must not exceed one year's yield")
}

func TestProjectedInvalidDuration(t *testing.T) {
	c := NewCalculator(0.12, 0.20)

	for _, d := range []int{0, -1, -365} {
		_, err := c.Projected(100_00, d)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	}
}

func TestForfeiture(t *testing.T) {
	c := NewCalculator(0.12, 0.20)

	assert.Equal(t, int64(10_00), c.Forfeiture(50_00))
	assert.Equal(t, int64(1), c.Forfeiture(3)) // 0.6 rounds half-up to 1
	assert.Equal(t, int64(0), c.Forfeiture(0))
}

func TestNewCalculatorFallsBackToDefaults(t *testing.T) {
	c := NewCalculator(0, -1)

	got, err := c.Projected(100_00, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(23), got)
	assert.Equal(t, int64(10_00), c.Forfeiture(50_00))
}
