package amm

import (
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AddLiquidity deposits quoteAmount of the native unit and the matching share
// of base. Returns the liquidity tokens minted to provider.
//
// On an empty pool the deposit sets the exchange rate: all of baseAmount is
// pulled and quoteAmount liquidity tokens are minted. A zero quoteAmount
// leaves the pool empty with the base parked in it. On a seeded pool only
// the base needed to keep the ratio is pulled, rounded up, and a zero
// quoteAmount changes nothing. The minted share floors and may be zero.
func (p *Pool) AddLiquidity(tx *ledger.Tx, provider common.Address, baseAmount, quoteAmount *big.Int) (*big.Int, error) {
	if baseAmount.Sign() < 0 || quoteAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: base %s quote %s", ledger.ErrInvalidAmount, baseAmount, quoteAmount)
	}

	quoteReserve := p.quoteReserveFor(tx)
	lp := p.LiquidityToken()

	var baseIn, minted *big.Int
	if quoteReserve.Sign() == 0 {
		baseIn = new(big.Int).Set(baseAmount)
		minted = new(big.Int).Set(quoteAmount)
	} else {
		if quoteAmount.Sign() == 0 {
			return new(big.Int), nil
		}
		required := fpmath.RequiredBase(quoteAmount, p.ReserveBaseAmount(tx), quoteReserve)
		if baseAmount.Cmp(required) < 0 {
			return nil, fmt.Errorf("%w: offered %s, need %s", ErrInsufficientBaseAmount, baseAmount, required)
		}
		minted = fpmath.ProRata(quoteAmount, tx.TotalSupply(lp), quoteReserve)
		baseIn = required
	}

	if err := tx.TransferFrom(p.baseAsset, p.address, provider, p.address, baseIn); err != nil {
		return nil, fmt.Errorf("pull base: %w", err)
	}
	if err := tx.Transfer(ledger.NativeAsset, provider, p.address, quoteAmount); err != nil {
		return nil, fmt.Errorf("pull quote: %w", err)
	}
	if err := tx.Mint(lp, provider, minted); err != nil {
		return nil, fmt.Errorf("mint liquidity: %w", err)
	}

	p.stageQuoteReserve(tx, quoteReserve.Add(quoteReserve, quoteAmount))

	tx.Emit(event.Log{
		Type:    event.LogTypeDepositUpdated,
		Emitter: p.address,
		From:    provider,
		Amount:  new(big.Int).Set(baseIn),
	})

	return minted, nil
}

// RemoveLiquidity burns amount of provider's liquidity tokens and pays out the
// pro-rata share of both reserves, measured against the pre-burn supply.
func (p *Pool) RemoveLiquidity(tx *ledger.Tx, provider common.Address, amount *big.Int) (quoteShare, baseShare *big.Int, err error) {
	if amount.Sign() == 0 {
		return nil, nil, ErrInvalidBurnAmount
	}
	if amount.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, amount)
	}

	lp := p.LiquidityToken()
	supply := tx.TotalSupply(lp)
	if supply.Sign() == 0 {
		return nil, nil, ErrInvalidReserves
	}

	quoteReserve := p.quoteReserveFor(tx)
	quoteShare = fpmath.ProRata(amount, quoteReserve, supply)
	baseShare = fpmath.ProRata(amount, p.ReserveBaseAmount(tx), supply)

	if err := tx.Burn(lp, provider, amount); err != nil {
		return nil, nil, fmt.Errorf("burn liquidity: %w", err)
	}
	if err := tx.Transfer(ledger.NativeAsset, p.address, provider, quoteShare); err != nil {
		return nil, nil, fmt.Errorf("pay quote: %w", err)
	}
	if err := tx.Transfer(p.baseAsset, p.address, provider, baseShare); err != nil {
		return nil, nil, fmt.Errorf("pay base: %w", err)
	}

	p.stageQuoteReserve(tx, quoteReserve.Sub(quoteReserve, quoteShare))

	tx.Emit(event.Log{
		Type:    event.LogTypeWithdrawExecuted,
		Emitter: p.address,
		From:    provider,
		Amount:  new(big.Int).Set(quoteShare),
	})

	return quoteShare, baseShare, nil
}
