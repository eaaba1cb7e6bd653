package withdrawals

import (
	"fmt"

	"github.com/vestvault/go-vestvault/common/types"
	"github.com/vestvault/go-vestvault/sql"
)

// Get the cumulative amount of the asset withdrawn from the vault.
// Missing rows read as zero.
func Get(db sql.Executor, vault types.Address, asset types.AssetID) (uint64, error) {
	var withdrawn uint64
	if _, err := db.Exec("select withdrawn from withdrawals where vault = ?1 and asset = ?2;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, vault.Bytes())
			stmt.BindBytes(2, asset.Bytes())
		},
		func(stmt *sql.Statement) bool {
			withdrawn = uint64(stmt.ColumnInt64(0))
			return false
		},
	); err != nil {
		return 0, fmt.Errorf("load withdrawn %s/%s: %w", vault, asset, err)
	}
	return withdrawn, nil
}

// Set the cumulative amount of the asset withdrawn from the vault. The amount
// only ever grows; rows are never deleted.
func Set(db sql.Executor, vault types.Address, asset types.AssetID, withdrawn uint64) error {
	if _, err := db.Exec(`insert into withdrawals (vault, asset, withdrawn) values (?1, ?2, ?3)
		on conflict(vault, asset) do update set withdrawn = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, vault.Bytes())
			stmt.BindBytes(2, asset.Bytes())
			stmt.BindInt64(3, int64(withdrawn))
		}, nil); err != nil {
		return fmt.Errorf("set withdrawn %s/%s: %w", vault, asset, err)
	}
	return nil
}

// All returns the cumulative withdrawn amounts for every asset of the vault.
func All(db sql.Executor, vault types.Address) (map[types.AssetID]uint64, error) {
	rst := map[types.AssetID]uint64{}
	if _, err := db.Exec("select asset, withdrawn from withdrawals where vault = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, vault.Bytes())
		},
		func(stmt *sql.Statement) bool {
			var asset types.AssetID
			stmt.ColumnBytes(0, asset[:])
			rst[asset] = uint64(stmt.ColumnInt64(1))
			return true
		},
	); err != nil {
		return nil, fmt.Errorf("load withdrawals %s: %w", vault, err)
	}
	return rst, nil
}
