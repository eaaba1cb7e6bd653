package vaults

import (
	"fmt"
	"time"

	"github.com/vestvault/go-vestvault/common/types"
	"github.com/vestvault/go-vestvault/sql"
	"github.com/vestvault/go-vestvault/vault"
)

// Add a vault to the database.
func Add(db sql.Executor, v *vault.Vault) error {
	if _, err := db.Exec(`insert into vaults
			(address, administrator, beneficiary, max_duration, locked, vest_start, vest_unlock)
			values (?1, ?2, ?3, ?4, ?5, ?6, ?7);`,
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, v.Address.Bytes())
			stmt.BindBytes(2, v.Administrator.Bytes())
			stmt.BindBytes(3, v.Beneficiary.Bytes())
			stmt.BindInt64(4, int64(v.MaxDuration))
			stmt.BindBool(5, v.Schedule.Locked)
			stmt.BindInt64(6, v.Schedule.Start.UnixNano())
			stmt.BindInt64(7, v.Schedule.Unlock.UnixNano())
		}, nil); err != nil {
		return fmt.Errorf("insert vault %s: %w", v.Address, err)
	}
	return nil
}

// Has the vault in the database.
func Has(db sql.Executor, address types.Address) (bool, error) {
	rows, err := db.Exec("select 1 from vaults where address = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, address.Bytes())
		}, nil,
	)
	if err != nil {
		return false, fmt.Errorf("has vault %s: %w", address, err)
	}
	return rows > 0, nil
}

// Get vault data for an address. The withdrawal state is kept in its own
// table, see the withdrawals package.
func Get(db sql.Executor, address types.Address) (*vault.Vault, error) {
	v := &vault.Vault{Address: address, Withdrawn: map[types.AssetID]uint64{}}
	rows, err := db.Exec(`select administrator, beneficiary, max_duration, locked, vest_start, vest_unlock
		from vaults where address = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, address.Bytes())
		},
		func(stmt *sql.Statement) bool {
			stmt.ColumnBytes(0, v.Administrator[:])
			stmt.ColumnBytes(1, v.Beneficiary[:])
			v.MaxDuration = time.Duration(stmt.ColumnInt64(2))
			v.Schedule.Locked = stmt.ColumnInt64(3) != 0
			v.Schedule.Start = time.Unix(0, stmt.ColumnInt64(4))
			v.Schedule.Unlock = time.Unix(0, stmt.ColumnInt64(5))
			return false
		},
	)
	if err != nil {
		return nil, fmt.Errorf("load vault %s: %w", address, err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("vault %s: %w", address, sql.ErrNotFound)
	}
	return v, nil
}

// UpdateSchedule persists the schedule locked by a configuration call.
func UpdateSchedule(db sql.Executor, address types.Address, schedule vault.Schedule) error {
	if _, err := db.Exec(`update vaults set locked = ?2, vest_start = ?3, vest_unlock = ?4
		where address = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, address.Bytes())
			stmt.BindBool(2, schedule.Locked)
			stmt.BindInt64(3, schedule.Start.UnixNano())
			stmt.BindInt64(4, schedule.Unlock.UnixNano())
		}, nil); err != nil {
		return fmt.Errorf("update schedule %s: %w", address, err)
	}
	return nil
}
