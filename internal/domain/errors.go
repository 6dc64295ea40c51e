package domain

import "errors"

// Validation and lifecycle errors. All of these are recoverable: the caller
// can correct the input and retry.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidGoal          = errors.New("invalid goal")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDeadline      = errors.New("invalid deadline")
	ErrNoVerificationSource = errors.New("no verification source connected")
	ErrUnknownGoal          = errors.New("unknown goal type")
	ErrUnknownSource        = errors.New("unknown data source")
	ErrOutOfSequence        = errors.New("measurement out of sequence")
	ErrStakeNotActive       = errors.New("stake is not active")
	ErrMarketClosed         = errors.New("market closed")
	ErrAlreadyResolved      = errors.New("market already resolved")
	ErrTooEarly             = errors.New("market deadline not reached")
	ErrCancelAfterStart     = errors.New("stake already has recorded days")
)

// Infrastructure errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAccountInactive = errors.New("account deactivated")
	ErrLockHeld        = errors.New("lock already held")
)
