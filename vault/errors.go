package vault

import "errors"

var (
	// ErrUnauthorized is raised if an operation is not executed by the identity
	// that the vault requires for it.
	ErrUnauthorized = errors.New("vault: unauthorized")
	// ErrAlreadyLocked is raised if a schedule configuration is attempted after
	// one already succeeded.
	ErrAlreadyLocked = errors.New("vault: schedule already locked")
	// ErrInvalidSchedule is raised if a schedule violates the vault's policy bounds.
	ErrInvalidSchedule = errors.New("vault: invalid schedule")
	// ErrNotStarted is raised if the vested amount is queried before the
	// schedule's start time.
	ErrNotStarted = errors.New("vault: vesting not started")
	// ErrNothingVested is raised if a withdrawal has no positive delta to transfer.
	ErrNothingVested = errors.New("vault: nothing vested")
	// ErrTransferFailed is raised if the asset ledger could not deliver funds.
	ErrTransferFailed = errors.New("vault: transfer failed")
	// ErrInvalidConfig is raised on construction with a zero beneficiary or a
	// non-positive max duration.
	ErrInvalidConfig = errors.New("vault: invalid config")
)
