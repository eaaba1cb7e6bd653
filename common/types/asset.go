package types

// AssetID identifies a fungible asset held by a vault. Token assets are keyed
// by the address of their token account; the native coin is keyed by the
// reserved zero value.
type AssetID Address

// CoinAsset is the reserved identifier of the native coin.
var CoinAsset AssetID

// IsCoin reports whether the asset is the native coin.
func (id AssetID) IsCoin() bool {
	return id == CoinAsset
}

// Bytes gets the byte representation of the underlying asset id.
func (id AssetID) Bytes() []byte { return id[:] }

// String implements fmt.Stringer.
func (id AssetID) String() string {
	if id.IsCoin() {
		return "coin"
	}
	return Address(id).String()
}
