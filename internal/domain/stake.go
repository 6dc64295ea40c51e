package domain

import "time"

// StakeStatus represents the lifecycle state of a stake.
// Pending exists only during the atomic creation step; a stake visible
// outside the engine is Active or terminal.
type StakeStatus string

const (
	StakeStatusPending   StakeStatus = "pending"
	StakeStatusActive    StakeStatus = "active"
	StakeStatusCompleted StakeStatus = "completed"
	StakeStatusForfeited StakeStatus = "forfeited"
	StakeStatusCancelled StakeStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s StakeStatus) Terminal() bool {
	switch s {
	case StakeStatusCompleted, StakeStatusForfeited, StakeStatusCancelled:
		return true
	default:
		return false
	}
}

// DayResult is the verification outcome for a single stake day.
type DayResult int

const (
	DayUnset DayResult = iota
	DayVerified
	DayUnverified
)

// Stake is a principal amount committed against a health goal for a fixed
// number of days. The three per-day slices always have length DurationDays;
// slots at or past CurrentDay are zero/unset.
type Stake struct {
	ID             string
	AccountID      string
	Goal           GoalType
	Target         int64
	PrincipalCents int64
	DurationDays   int
	CurrentDay     int
	Measurements   []int64
	Outcomes       []DayResult
	Confidences    []int
	Confidence     int
	SourceID       SourceID
	Status         StakeStatus
	YieldCents     int64 // projected while active, realized once completed
	PayoutCents    int64 // total released on settlement
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SettledAt      *time.Time
}

// VerifiedDays counts the days recorded as verified so far.
func (s *Stake) VerifiedDays() int {
	n := 0
	for _, o := range s.Outcomes {
		if o == DayVerified {
			n++
		}
	}
	return n
}

// RecordedDays counts the days with any recorded outcome.
func (s *Stake) RecordedDays() int {
	n := 0
	for _, o := range s.Outcomes {
		if o != DayUnset {
			n++
		}
	}
	return n
}
