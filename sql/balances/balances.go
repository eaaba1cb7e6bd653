package balances

import (
	"errors"
	"fmt"

	"github.com/vestvault/go-vestvault/common/types"
	"github.com/vestvault/go-vestvault/sql"
)

// ErrInsufficientFunds is returned when a debit exceeds the account's balance.
var ErrInsufficientFunds = errors.New("balances: insufficient funds")

// Get the balance of an asset held by an account. Missing rows read as zero.
func Get(db sql.Executor, account types.Address, asset types.AssetID) (uint64, error) {
	var balance uint64
	if _, err := db.Exec("select balance from balances where account = ?1 and asset = ?2;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, account.Bytes())
			stmt.BindBytes(2, asset.Bytes())
		},
		func(stmt *sql.Statement) bool {
			balance = uint64(stmt.ColumnInt64(0))
			return false
		},
	); err != nil {
		return 0, fmt.Errorf("load balance %s/%s: %w", account, asset, err)
	}
	return balance, nil
}

// Credit adds amount to the account's balance of the asset.
func Credit(db sql.Executor, account types.Address, asset types.AssetID, amount uint64) error {
	if _, err := db.Exec(`insert into balances (account, asset, balance) values (?1, ?2, ?3)
		on conflict(account, asset) do update set balance = balance + ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, account.Bytes())
			stmt.BindBytes(2, asset.Bytes())
			stmt.BindInt64(3, int64(amount))
		}, nil); err != nil {
		return fmt.Errorf("credit %s/%s: %w", account, asset, err)
	}
	return nil
}

// Debit subtracts amount from the account's balance of the asset, failing
// with ErrInsufficientFunds if the balance does not cover it. Callers that
// pair a Debit with a Credit must run both in one transaction.
func Debit(db sql.Executor, account types.Address, asset types.AssetID, amount uint64) error {
	balance, err := Get(db, account, asset)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientFunds, balance, amount)
	}
	if _, err := db.Exec("update balances set balance = balance - ?3 where account = ?1 and asset = ?2;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, account.Bytes())
			stmt.BindBytes(2, asset.Bytes())
			stmt.BindInt64(3, int64(amount))
		}, nil); err != nil {
		return fmt.Errorf("debit %s/%s: %w", account, asset, err)
	}
	return nil
}

// All returns the balances of every asset held by the account.
func All(db sql.Executor, account types.Address) (map[types.AssetID]uint64, error) {
	rst := map[types.AssetID]uint64{}
	if _, err := db.Exec("select asset, balance from balances where account = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, account.Bytes())
		},
		func(stmt *sql.Statement) bool {
			var asset types.AssetID
			stmt.ColumnBytes(0, asset[:])
			rst[asset] = uint64(stmt.ColumnInt64(1))
			return true
		},
	); err != nil {
		return nil, fmt.Errorf("load balances %s: %w", account, err)
	}
	return rst, nil
}
