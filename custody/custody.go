// Package custody binds the vault state machine to durable storage. Every
// operation loads the vault inside a single sqlite transaction, runs the core
// logic against a transaction-scoped host and commits only on success, so a
// failed transfer can never leave the bookkeeping and the balances disagreeing.
package custody

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/vestvault/go-vestvault/common/types"
	"github.com/vestvault/go-vestvault/events"
	"github.com/vestvault/go-vestvault/hash"
	"github.com/vestvault/go-vestvault/sql"
	"github.com/vestvault/go-vestvault/sql/balances"
	"github.com/vestvault/go-vestvault/sql/vaults"
	"github.com/vestvault/go-vestvault/sql/withdrawals"
	"github.com/vestvault/go-vestvault/vault"
)

// Opt is for changing Custody during initialization.
type Opt func(*Custody)

// WithLogger sets logger for Custody.
func WithLogger(logger *zap.Logger) Opt {
	return func(c *Custody) {
		c.logger = logger
	}
}

// WithClock sets the time source. Tests use a clockwork fake clock.
func WithClock(clock clockwork.Clock) Opt {
	return func(c *Custody) {
		c.clock = clock
	}
}

// New returns Custody instance.
func New(db *sql.Database, opts ...Opt) *Custody {
	c := &Custody{
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		db:     db,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Custody handles modifications to the vault state.
type Custody struct {
	logger *zap.Logger
	clock  clockwork.Clock
	db     *sql.Database
}

// host adapts a transaction and the clock to the vault.Host interface. All
// of its effects stay inside the transaction until the operation commits.
type host struct {
	ex    sql.Executor
	clock clockwork.Clock
	vault types.Address
}

func (h *host) Now() time.Time {
	return h.clock.Now()
}

func (h *host) Balance(asset types.AssetID) (uint64, error) {
	return balances.Get(h.ex, h.vault, asset)
}

func (h *host) Transfer(asset types.AssetID, to types.Address, amount uint64) error {
	if err := balances.Debit(h.ex, h.vault, asset, amount); err != nil {
		return err
	}
	return balances.Credit(h.ex, to, asset, amount)
}

// CreateVault creates a vault account for the administrator/beneficiary pair
// and returns its address.
func (c *Custody) CreateVault(administrator, beneficiary types.Address, maxDuration time.Duration) (types.Address, error) {
	address := vaultAddress(administrator, beneficiary, c.clock.Now())
	v, err := vault.New(address, administrator, beneficiary, maxDuration)
	if err != nil {
		return types.Address{}, err
	}
	if err := c.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if exists, err := vaults.Has(tx, address); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("vault %s: %w", address, sql.ErrObjectExists)
		}
		return vaults.Add(tx, v)
	}); err != nil {
		return types.Address{}, err
	}
	c.logger.Info("vault created",
		zap.Stringer("vault", address),
		zap.Stringer("beneficiary", beneficiary),
		zap.Duration("max_duration", maxDuration),
	)
	events.EmitVaultCreated(address, beneficiary)
	return address, nil
}

// Deposit credits the vault's balance of the asset. Anyone may deposit;
// deposits made after the schedule started inflate the vestable base.
func (c *Custody) Deposit(address types.Address, asset types.AssetID, amount uint64) error {
	if err := c.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if exists, err := vaults.Has(tx, address); err != nil {
			return err
		} else if !exists {
			return fmt.Errorf("vault %s: %w", address, sql.ErrNotFound)
		}
		return balances.Credit(tx, address, asset, amount)
	}); err != nil {
		return err
	}
	c.logger.Debug("deposit",
		zap.Stringer("vault", address),
		zap.Stringer("asset", asset),
		zap.Uint64("amount", amount),
	)
	events.EmitDeposit(address, asset, amount)
	return nil
}

// ConfigureCliffless locks an all-at-once release at unlock.
func (c *Custody) ConfigureCliffless(address, caller types.Address, unlock time.Time) error {
	return c.configure(address, caller, func(v *vault.Vault, h *host) error {
		return v.ConfigureCliffless(h, caller, unlock)
	})
}

// ConfigureLinear locks a linear release from now to unlock.
func (c *Custody) ConfigureLinear(address, caller types.Address, unlock time.Time) error {
	return c.configure(address, caller, func(v *vault.Vault, h *host) error {
		return v.ConfigureLinear(h, caller, unlock)
	})
}

// ConfigureLinearWithCliff locks a release with no accrual until cliff
// elapses, then linear to unlock.
func (c *Custody) ConfigureLinearWithCliff(address, caller types.Address, unlock time.Time, cliff time.Duration) error {
	return c.configure(address, caller, func(v *vault.Vault, h *host) error {
		return v.ConfigureLinearWithCliff(h, caller, unlock, cliff)
	})
}

func (c *Custody) configure(address, caller types.Address, op func(*vault.Vault, *host) error) error {
	var schedule vault.Schedule
	if err := c.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		v, err := vaults.Get(tx, address)
		if err != nil {
			return err
		}
		if err := op(v, &host{ex: tx, clock: c.clock, vault: address}); err != nil {
			return err
		}
		schedule = v.Schedule
		return vaults.UpdateSchedule(tx, address, v.Schedule)
	}); err != nil {
		return err
	}
	c.logger.Info("schedule locked",
		zap.Stringer("vault", address),
		zap.Time("start", schedule.Start),
		zap.Time("unlock", schedule.Unlock),
	)
	events.EmitConfigured(address, schedule.Start, schedule.Unlock)
	return nil
}

// VestedAmount returns the cumulative vested amount of the asset at the
// current time. View only, no side effects.
func (c *Custody) VestedAmount(address types.Address, asset types.AssetID) (uint64, error) {
	var vested uint64
	// reads only, but load and compute still observe one consistent snapshot
	if err := c.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		v, err := c.load(tx, address)
		if err != nil {
			return err
		}
		vested, err = v.VestedAmount(&host{ex: tx, clock: c.clock, vault: address}, asset)
		return err
	}); err != nil {
		return 0, err
	}
	return vested, nil
}

// Withdraw transfers the withdrawable delta of the asset to the beneficiary.
// The withdrawal record and the balance movement commit atomically; on any
// failure the database is left untouched.
func (c *Custody) Withdraw(address, caller types.Address, asset types.AssetID) (uint64, error) {
	var delta uint64
	if err := c.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		v, err := c.load(tx, address)
		if err != nil {
			return err
		}
		delta, err = v.Withdraw(&host{ex: tx, clock: c.clock, vault: address}, caller, asset)
		if err != nil {
			return err
		}
		return withdrawals.Set(tx, address, asset, v.Withdrawn[asset])
	}); err != nil {
		return 0, err
	}
	c.logger.Info("withdraw",
		zap.Stringer("vault", address),
		zap.Stringer("asset", asset),
		zap.Uint64("delta", delta),
	)
	events.EmitWithdraw(address, asset, delta)
	return delta, nil
}

// Status is a snapshot of a vault's configuration, schedule and per-asset
// accounting.
type Status struct {
	Administrator types.Address
	Beneficiary   types.Address
	MaxDuration   time.Duration
	Schedule      vault.Schedule
	Balances      map[types.AssetID]uint64
	Withdrawn     map[types.AssetID]uint64
}

// Status returns a consistent snapshot of the vault.
func (c *Custody) Status(address types.Address) (*Status, error) {
	var status Status
	if err := c.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		v, err := c.load(tx, address)
		if err != nil {
			return err
		}
		held, err := balances.All(tx, address)
		if err != nil {
			return err
		}
		status = Status{
			Administrator: v.Administrator,
			Beneficiary:   v.Beneficiary,
			MaxDuration:   v.MaxDuration,
			Schedule:      v.Schedule,
			Balances:      held,
			Withdrawn:     v.Withdrawn,
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &status, nil
}

// load assembles the vault with its withdrawal state from the store.
func (c *Custody) load(ex sql.Executor, address types.Address) (*vault.Vault, error) {
	v, err := vaults.Get(ex, address)
	if err != nil {
		return nil, err
	}
	withdrawn, err := withdrawals.All(ex, address)
	if err != nil {
		return nil, err
	}
	v.Withdrawn = withdrawn
	return v, nil
}

func vaultAddress(administrator, beneficiary types.Address, now time.Time) types.Address {
	hasher := hash.New()
	hasher.Write(administrator.Bytes())
	hasher.Write(beneficiary.Bytes())
	var nanos [8]byte
	binary.LittleEndian.PutUint64(nanos[:], uint64(now.UnixNano()))
	hasher.Write(nanos[:])
	return types.GenerateAddress(hasher.Sum(nil))
}
