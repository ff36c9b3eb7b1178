package ledger

import (
	"fmt"
	"math/big"
)

// InvariantValidator checks ledger invariants after each commit
type InvariantValidator struct {
	bank *Bank
}

func NewInvariantValidator(bank *Bank) *InvariantValidator {
	return &InvariantValidator{
		bank: bank,
	}
}

// ValidateBatch verifies the batch is well-formed
func (v *InvariantValidator) ValidateBatch(batch *Batch) error {
	return batch.Validate()
}

// ValidateSupply verifies that the sum of all balances equals the total supply
// and that no balance is negative.
func (v *InvariantValidator) ValidateSupply(asset AssetID) error {
	t, ok := v.bank.Token(asset)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}

	sum := new(big.Int)
	for owner, bal := range t.balances {
		if bal.Sign() < 0 {
			return fmt.Errorf("negative balance %s for %s on %s", bal, owner.Hex(), asset.Hex())
		}
		sum.Add(sum, bal)
	}

	if sum.Cmp(t.totalSupply) != 0 {
		return fmt.Errorf("supply mismatch on %s: balances sum to %s, total supply %s",
			asset.Hex(), sum, t.totalSupply)
	}

	return nil
}

// ValidateAll runs ValidateSupply over every registered asset
func (v *InvariantValidator) ValidateAll() error {
	for _, t := range v.bank.Tokens() {
		if err := v.ValidateSupply(t.Asset); err != nil {
			return err
		}
	}
	return nil
}
