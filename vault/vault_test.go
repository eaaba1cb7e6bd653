package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vestvault/go-vestvault/common/types"
)

const testMaxDuration = 1000 * time.Second

func testAddress(fill byte) types.Address {
	var addr types.Address
	for i := types.AddressReservedSpace; i < types.AddressLength; i++ {
		addr[i] = fill
	}
	return addr
}

var (
	admin = testAddress(1)
	benef = testAddress(2)
	other = testAddress(3)
	token = types.AssetID(testAddress(7))
)

// testHost is an in-memory environment with a movable clock.
type testHost struct {
	now      time.Time
	balances map[types.AssetID]uint64
	received map[types.AssetID]uint64
}

func newTestHost(now time.Time) *testHost {
	return &testHost{
		now:      now,
		balances: map[types.AssetID]uint64{},
		received: map[types.AssetID]uint64{},
	}
}

func (h *testHost) Now() time.Time {
	return h.now
}

func (h *testHost) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHost) Balance(asset types.AssetID) (uint64, error) {
	return h.balances[asset], nil
}

func (h *testHost) Transfer(asset types.AssetID, to types.Address, amount uint64) error {
	if h.balances[asset] < amount {
		return errors.New("insufficient funds")
	}
	h.balances[asset] -= amount
	if to == benef {
		h.received[asset] += amount
	}
	return nil
}

func newTestVault(tb testing.TB) *Vault {
	tb.Helper()
	v, err := New(testAddress(9), admin, benef, testMaxDuration)
	require.NoError(tb, err)
	return v
}

func TestNew(t *testing.T) {
	t.Run("empty beneficiary", func(t *testing.T) {
		_, err := New(testAddress(9), admin, types.Address{}, testMaxDuration)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
	t.Run("non-positive max duration", func(t *testing.T) {
		_, err := New(testAddress(9), admin, benef, 0)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfigureOnce(t *testing.T) {
	start := time.Unix(10_000, 0)
	for _, tc := range []struct {
		desc  string
		first func(v *Vault, host Host) error
	}{
		{
			desc: "cliffless",
			first: func(v *Vault, host Host) error {
				return v.ConfigureCliffless(host, admin, start.Add(500*time.Second))
			},
		},
		{
			desc: "linear",
			first: func(v *Vault, host Host) error {
				return v.ConfigureLinear(host, admin, start.Add(500*time.Second))
			},
		},
		{
			desc: "cliff",
			first: func(v *Vault, host Host) error {
				return v.ConfigureLinearWithCliff(host, admin, start.Add(500*time.Second), 100*time.Second)
			},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			v := newTestVault(t)
			host := newTestHost(start)
			require.NoError(t, tc.first(v, host))
			require.True(t, v.Schedule.Locked)

			// any further configuration fails regardless of parameters
			require.ErrorIs(t, v.ConfigureCliffless(host, admin, start.Add(time.Second)), ErrAlreadyLocked)
			require.ErrorIs(t, v.ConfigureLinear(host, admin, start.Add(time.Second)), ErrAlreadyLocked)
			require.ErrorIs(t, v.ConfigureLinearWithCliff(host, admin, start.Add(time.Second), 0), ErrAlreadyLocked)
		})
	}
}

func TestConfigureValidation(t *testing.T) {
	start := time.Unix(10_000, 0)

	t.Run("unlock in the past", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		err := v.ConfigureLinear(host, admin, start.Add(-time.Second))
		require.ErrorIs(t, err, ErrInvalidSchedule)
		require.False(t, v.Schedule.Locked)
	})
	t.Run("unlock now", func(t *testing.T) {
		v := newTestVault(t)
		require.ErrorIs(t, v.ConfigureCliffless(newTestHost(start), admin, start), ErrInvalidSchedule)
	})
	t.Run("unlock beyond max duration", func(t *testing.T) {
		v := newTestVault(t)
		err := v.ConfigureLinear(newTestHost(start), admin, start.Add(testMaxDuration+time.Second))
		require.ErrorIs(t, err, ErrInvalidSchedule)
	})
	t.Run("unlock at max duration is allowed", func(t *testing.T) {
		v := newTestVault(t)
		require.NoError(t, v.ConfigureLinear(newTestHost(start), admin, start.Add(testMaxDuration)))
	})
	t.Run("cliff beyond max duration", func(t *testing.T) {
		v := newTestVault(t)
		err := v.ConfigureLinearWithCliff(newTestHost(start), admin, start.Add(500*time.Second), testMaxDuration+time.Second)
		require.ErrorIs(t, err, ErrInvalidSchedule)
	})
	t.Run("cliff past unlock", func(t *testing.T) {
		v := newTestVault(t)
		err := v.ConfigureLinearWithCliff(newTestHost(start), admin, start.Add(100*time.Second), 200*time.Second)
		require.ErrorIs(t, err, ErrInvalidSchedule)
	})
	t.Run("unauthorized", func(t *testing.T) {
		v := newTestVault(t)
		for _, caller := range []types.Address{benef, other} {
			err := v.ConfigureLinear(newTestHost(start), caller, start.Add(500*time.Second))
			require.ErrorIs(t, err, ErrUnauthorized)
			require.False(t, v.Schedule.Locked)
		}
	})
	t.Run("failed validation can be retried", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		require.ErrorIs(t, v.ConfigureLinear(host, admin, start.Add(-time.Second)), ErrInvalidSchedule)
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))
	})
}

func TestVestedAmount(t *testing.T) {
	start := time.Unix(10_000, 0)

	t.Run("unconfigured", func(t *testing.T) {
		v := newTestVault(t)
		_, err := v.VestedAmount(newTestHost(start), types.CoinAsset)
		require.ErrorIs(t, err, ErrNotStarted)
	})
	t.Run("before start", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureLinearWithCliff(host, admin, start.Add(500*time.Second), 100*time.Second))
		host.advance(99 * time.Second)
		_, err := v.VestedAmount(host, types.CoinAsset)
		require.ErrorIs(t, err, ErrNotStarted)
	})
	t.Run("linear ramp", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))

		vested, err := v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		require.Zero(t, vested)

		host.advance(250 * time.Second)
		vested, err = v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 500, vested)

		// fraction keeps intermediate precision instead of truncating early
		host.advance(1 * time.Second)
		vested, err = v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 502, vested)
	})
	t.Run("full base at and after unlock", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))
		host.advance(500 * time.Second)
		for i := 0; i < 3; i++ {
			vested, err := v.VestedAmount(host, types.CoinAsset)
			require.NoError(t, err)
			require.EqualValues(t, 1000, vested)
			host.advance(1000 * time.Hour)
		}
	})
	t.Run("monotonic", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 999
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(333*time.Second)))
		var prev uint64
		for i := 0; i < 400; i++ {
			vested, err := v.VestedAmount(host, types.CoinAsset)
			require.NoError(t, err)
			require.GreaterOrEqual(t, vested, prev)
			prev = vested
			host.advance(time.Second)
		}
		require.EqualValues(t, 999, prev)
	})
	t.Run("cliffless is a step", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureCliffless(host, admin, start.Add(500*time.Second)))

		_, err := v.VestedAmount(host, types.CoinAsset)
		require.ErrorIs(t, err, ErrNotStarted)

		host.advance(500 * time.Second)
		vested, err := v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 1000, vested)
	})
	t.Run("stable against withdrawals", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))
		host.advance(250 * time.Second)

		before, err := v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		_, err = v.Withdraw(host, benef, types.CoinAsset)
		require.NoError(t, err)
		after, err := v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		require.Equal(t, before, after)
	})
}

func TestWithdraw(t *testing.T) {
	start := time.Unix(10_000, 0)

	t.Run("linear scenario", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))

		host.advance(250 * time.Second)
		host.balances[types.CoinAsset] = 1000

		delta, err := v.Withdraw(host, benef, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 500, delta)
		require.EqualValues(t, 500, v.Withdrawn[types.CoinAsset])

		// no time passed, nothing more to withdraw
		_, err = v.Withdraw(host, benef, types.CoinAsset)
		require.ErrorIs(t, err, ErrNothingVested)

		host.advance(250 * time.Second)
		vested, err := v.VestedAmount(host, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 1000, vested)

		delta, err = v.Withdraw(host, benef, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 500, delta)
		require.EqualValues(t, 1000, v.Withdrawn[types.CoinAsset])
		require.EqualValues(t, 1000, host.received[types.CoinAsset])
		require.Zero(t, host.balances[types.CoinAsset])
	})
	t.Run("sum of deltas equals withdrawn", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))
		host.balances[token] = 12345

		var sum uint64
		for i := 0; i < 10; i++ {
			host.advance(50 * time.Second)
			delta, err := v.Withdraw(host, benef, token)
			if err != nil {
				require.ErrorIs(t, err, ErrNothingVested)
				continue
			}
			sum += delta
			require.Equal(t, sum, v.Withdrawn[token])
		}
		require.EqualValues(t, 12345, sum)
	})
	t.Run("before start", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureLinearWithCliff(host, admin, start.Add(500*time.Second), 100*time.Second))
		_, err := v.Withdraw(host, benef, types.CoinAsset)
		require.ErrorIs(t, err, ErrNothingVested)
	})
	t.Run("unauthorized", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))
		host.advance(250 * time.Second)
		for _, caller := range []types.Address{admin, other} {
			_, err := v.Withdraw(host, caller, types.CoinAsset)
			require.ErrorIs(t, err, ErrUnauthorized)
			require.Zero(t, v.Withdrawn[types.CoinAsset])
		}
	})
	t.Run("independent assets", func(t *testing.T) {
		v := newTestVault(t)
		host := newTestHost(start)
		host.balances[types.CoinAsset] = 1000
		host.balances[token] = 500
		require.NoError(t, v.ConfigureLinear(host, admin, start.Add(500*time.Second)))
		host.advance(250 * time.Second)

		delta, err := v.Withdraw(host, benef, types.CoinAsset)
		require.NoError(t, err)
		require.EqualValues(t, 500, delta)

		delta, err = v.Withdraw(host, benef, token)
		require.NoError(t, err)
		require.EqualValues(t, 250, delta)
	})
}

func TestWithdrawTransferFailure(t *testing.T) {
	start := time.Unix(10_000, 0)
	ctrl := gomock.NewController(t)
	host := NewMockHost(ctrl)

	v := newTestVault(t)
	now := start
	host.EXPECT().Now().DoAndReturn(func() time.Time { return now }).AnyTimes()
	require.NoError(t, v.ConfigureCliffless(host, admin, start.Add(500*time.Second)))

	now = start.Add(500 * time.Second)
	host.EXPECT().Balance(types.CoinAsset).Return(uint64(1000), nil).AnyTimes()
	host.EXPECT().Transfer(types.CoinAsset, benef, uint64(1000)).Return(errors.New("ledger down"))

	_, err := v.Withdraw(host, benef, types.CoinAsset)
	require.ErrorIs(t, err, ErrTransferFailed)
	// bookkeeping rolled back together with the failed transfer
	require.Zero(t, v.Withdrawn[types.CoinAsset])

	host.EXPECT().Transfer(types.CoinAsset, benef, uint64(1000)).Return(nil)
	delta, err := v.Withdraw(host, benef, types.CoinAsset)
	require.NoError(t, err)
	require.EqualValues(t, 1000, delta)
}
