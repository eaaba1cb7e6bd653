// Package vault implements a single-beneficiary custody vault. The
// administrator locks in a vesting schedule exactly once and the beneficiary
// withdraws whatever fraction of the vault's balances has vested since.
package vault

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vestvault/go-vestvault/common/types"
)

// Schedule is the vesting schedule of a vault. Start and Unlock are
// meaningful only when Locked is true. Start == Unlock describes an
// all-at-once release at the unlock instant.
type Schedule struct {
	Locked bool
	Start  time.Time
	Unlock time.Time
}

// Vault holds the immutable roles and policy chosen at construction, the
// schedule locked by the administrator, and the cumulative per-asset amounts
// already withdrawn by the beneficiary. The native coin is keyed by
// types.CoinAsset.
type Vault struct {
	Address       types.Address
	Administrator types.Address
	Beneficiary   types.Address
	MaxDuration   time.Duration

	Schedule  Schedule
	Withdrawn map[types.AssetID]uint64
}

// New creates a vault. The beneficiary must be non-zero and the max duration
// positive; both are immutable for the vault's lifetime.
func New(address, administrator, beneficiary types.Address, maxDuration time.Duration) (*Vault, error) {
	if beneficiary.IsEmpty() {
		return nil, fmt.Errorf("%w: empty beneficiary", ErrInvalidConfig)
	}
	if maxDuration <= 0 {
		return nil, fmt.Errorf("%w: max duration %s", ErrInvalidConfig, maxDuration)
	}
	return &Vault{
		Address:       address,
		Administrator: administrator,
		Beneficiary:   beneficiary,
		MaxDuration:   maxDuration,
		Withdrawn:     map[types.AssetID]uint64{},
	}, nil
}

func (v *Vault) isAdministrator(address types.Address) bool {
	return v.Administrator == address
}

func (v *Vault) isBeneficiary(address types.Address) bool {
	return v.Beneficiary == address
}

// checkAndLock is the single schedule transition shared by all three
// configuration entry points. A call that fails leaves the schedule untouched
// and may be retried with different parameters.
func (v *Vault) checkAndLock(caller types.Address, now, start, unlock time.Time) error {
	if !v.isAdministrator(caller) {
		return ErrUnauthorized
	}
	if v.Schedule.Locked {
		return ErrAlreadyLocked
	}
	if !unlock.After(now) {
		return fmt.Errorf("%w: unlock %s is not in the future", ErrInvalidSchedule, unlock)
	}
	if unlock.Sub(now) > v.MaxDuration {
		return fmt.Errorf("%w: unlock %s exceeds max duration %s", ErrInvalidSchedule, unlock, v.MaxDuration)
	}
	if start.After(unlock) {
		return fmt.Errorf("%w: start %s after unlock %s", ErrInvalidSchedule, start, unlock)
	}
	v.Schedule = Schedule{Locked: true, Start: start, Unlock: unlock}
	return nil
}

// ConfigureCliffless locks an all-at-once release at unlock: nothing vests
// before it, everything at it.
func (v *Vault) ConfigureCliffless(host Host, caller types.Address, unlock time.Time) error {
	return v.checkAndLock(caller, host.Now(), unlock, unlock)
}

// ConfigureLinear locks a linear release from the moment of configuration
// to unlock.
func (v *Vault) ConfigureLinear(host Host, caller types.Address, unlock time.Time) error {
	now := host.Now()
	return v.checkAndLock(caller, now, now, unlock)
}

// ConfigureLinearWithCliff locks a release that accrues nothing until cliff
// elapses, then linearly to unlock.
func (v *Vault) ConfigureLinearWithCliff(host Host, caller types.Address, unlock time.Time, cliff time.Duration) error {
	now := host.Now()
	if cliff < 0 || cliff > v.MaxDuration {
		return fmt.Errorf("%w: cliff %s exceeds max duration %s", ErrInvalidSchedule, cliff, v.MaxDuration)
	}
	return v.checkAndLock(caller, now, now.Add(cliff), unlock)
}

// vested computes the cumulative amount of base unlocked at now. The base is
// multiplied before the division so the ramp stays smooth instead of
// collapsing to a step function.
func (v *Vault) vested(now time.Time, base uint64) (uint64, error) {
	s := v.Schedule
	if !s.Locked || now.Before(s.Start) {
		return 0, ErrNotStarted
	}
	if !now.Before(s.Unlock) {
		return base, nil
	}
	incremental := new(big.Int).SetUint64(base)
	incremental.Mul(incremental, big.NewInt(now.Sub(s.Start).Nanoseconds()))
	incremental.Div(incremental, big.NewInt(s.Unlock.Sub(s.Start).Nanoseconds()))
	return incremental.Uint64(), nil
}

// VestedAmount returns the cumulative amount of the asset unlocked by now.
// The vestable base is the live balance plus everything already withdrawn, so
// the result does not depend on how many withdrawals happened before. Fails
// with ErrNotStarted before the schedule's start time.
func (v *Vault) VestedAmount(host Host, asset types.AssetID) (uint64, error) {
	balance, err := host.Balance(asset)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", asset, err)
	}
	return v.vested(host.Now(), balance+v.Withdrawn[asset])
}

// Withdraw transfers the withdrawable delta of the asset to the beneficiary
// and records it. The bookkeeping update happens before the transfer and is
// undone if the transfer fails, so a failed call leaves the vault exactly as
// it was.
func (v *Vault) Withdraw(host Host, caller types.Address, asset types.AssetID) (uint64, error) {
	if !v.isBeneficiary(caller) {
		return 0, ErrUnauthorized
	}
	withdrawn := v.Withdrawn[asset]
	vested, err := v.VestedAmount(host, asset)
	switch {
	case errors.Is(err, ErrNotStarted):
		// before the start point nothing is withdrawable
		return 0, ErrNothingVested
	case err != nil:
		return 0, err
	}
	if vested <= withdrawn {
		return 0, ErrNothingVested
	}
	delta := vested - withdrawn
	v.Withdrawn[asset] = vested
	if err := host.Transfer(asset, v.Beneficiary, delta); err != nil {
		v.Withdrawn[asset] = withdrawn
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	withdrawnAmount.WithLabelValues(assetLabel(asset)).Add(float64(delta))
	return delta, nil
}

func assetLabel(asset types.AssetID) string {
	if asset.IsCoin() {
		return "coin"
	}
	return "token"
}
