// Package yield computes stake yield and forfeiture amounts. All money is in
// integer cents; fractional results are rounded half-up, consistently for
// both yield and forfeiture.
package yield

import (
	"math"

	"github.com/aurayield/engine/internal/domain"
)

// Defaults for the engine-wide rate constants.
const (
	DefaultAnnualRate  = 0.12
	DefaultForfeitRate = 0.20
)

// Calculator computes projected yield and forfeiture for stakes.
type Calculator struct {
	annualRate  float64
	forfeitRate float64
}

// NewCalculator creates a Calculator with the given engine-wide rates. Rates
// outside (0, 1] fall back to the defaults.
func NewCalculator(annualRate, forfeitRate float64) *Calculator {
	if annualRate <= 0 || annualRate > 1 {
		annualRate = DefaultAnnualRate
	}
	if forfeitRate <= 0 || forfeitRate > 1 {
		forfeitRate = DefaultForfeitRate
	}
	return &Calculator{
		annualRate:  annualRate,
		forfeitRate: forfeitRate,
	}
}

// Projected returns the yield in cents for a stake of principalCents held for
// durationDays: principal * rate * days / 365, rounded half-up. The result is
// never negative and never exceeds principal * rate (one full year's yield)
// regardless of duration.
func (c *Calculator) Projected(principalCents int64, durationDays int) (int64, error) {
	if durationDays <= 0 {
		return 0, domain.ErrInvalidDuration
	}

	y := roundHalfUp(float64(principalCents) * c.annualRate * float64(durationDays) / 365.0)
	cap := roundHalfUp(float64(principalCents) * c.annualRate)

	if y < 0 {
		y = 0
	}
	if y > cap {
		y = cap
	}
	return y, nil
}

// Forfeiture returns the portion of principal routed to the treasury when a
// stake fails, rounded half-up.
func (c *Calculator) Forfeiture(principalCents int64) int64 {
	f := roundHalfUp(float64(principalCents) * c.forfeitRate)
	if f < 0 {
		return 0
	}
	if f > principalCents {
		return principalCents
	}
	return f
}

// ForfeitRate exposes the configured forfeit rate for display purposes.
func (c *Calculator) ForfeitRate() float64 {
	return c.forfeitRate
}

// roundHalfUp rounds to the nearest integer cent, with .5 rounding away from
// zero.
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
