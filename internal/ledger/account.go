package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies a fungible asset by the address of its ledger.
type AssetID = common.Address

// NativeAsset is the reserved identifier of the native settlement unit.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// ZeroAddress is the null identity. Mints originate from it and burns go to it.
var ZeroAddress = common.Address{}

// AccountKey is the in-memory key for one holder's balance of one asset
type AccountKey struct {
	Asset AssetID
	Owner common.Address
}

func NewAccountKey(asset AssetID, owner common.Address) AccountKey {
	return AccountKey{Asset: asset, Owner: owner}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	return fmt.Sprintf("%s:%s", strings.ToLower(k.Asset.Hex()), strings.ToLower(k.Owner.Hex()))
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}
	return AccountKey{
		Asset: common.HexToAddress(parts[0]),
		Owner: common.HexToAddress(parts[1]),
	}, nil
}

type allowanceKey struct {
	Owner   common.Address
	Spender common.Address
}
