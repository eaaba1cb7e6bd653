package vault

import (
	"time"

	"github.com/vestvault/go-vestvault/common/types"
)

//go:generate mockgen -package=vault -destination=./mocks.go -source=./interface.go

// Host provides the vault access to its environment: the clock and the asset
// ledger holding its balances. Transfer either delivers the exact amount or
// fails with no effect.
type Host interface {
	Now() time.Time
	Balance(types.AssetID) (uint64, error)
	Transfer(asset types.AssetID, to types.Address, amount uint64) error
}
