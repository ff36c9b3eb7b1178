package amm

import (
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapQuoteForBase sells quoteIn of trader's native units and pays the bought
// base to recipient.
func (p *Pool) SwapQuoteForBase(tx *ledger.Tx, trader, recipient common.Address, quoteIn, minBaseOut *big.Int) (*big.Int, error) {
	if recipient == ledger.ZeroAddress {
		return nil, ErrZeroRecipient
	}

	baseOut, err := p.priceQuoteIn(tx, quoteIn, minBaseOut)
	if err != nil {
		return nil, err
	}

	if err := tx.Transfer(ledger.NativeAsset, trader, p.address, quoteIn); err != nil {
		return nil, fmt.Errorf("pull quote: %w", err)
	}
	if err := p.settleBaseOut(tx, trader, recipient, quoteIn, baseOut); err != nil {
		return nil, err
	}
	return baseOut, nil
}

// SwapBaseForQuote sells baseIn of trader's base asset for native units. The
// pool pulls base through trader's allowance.
func (p *Pool) SwapBaseForQuote(tx *ledger.Tx, trader common.Address, baseIn, minQuoteOut *big.Int) (*big.Int, error) {
	return p.swapBaseForQuote(tx, trader, trader, baseIn, minQuoteOut)
}

// SwapBaseForOtherBase sells baseIn of this pool's base for native units, hands
// them straight to other, and buys other's base for trader. Both legs share
// tx, so a failure in either leaves nothing applied once tx is discarded.
func (p *Pool) SwapBaseForOtherBase(tx *ledger.Tx, trader common.Address, baseIn, minOtherOut *big.Int, other *Pool) (*big.Int, error) {
	if other == nil || other.address == p.address {
		return nil, ErrSamePool
	}

	intermediate, err := p.swapBaseForQuote(tx, trader, other.address, baseIn, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("leg 1 on %s: %w", p.address.Hex(), err)
	}

	out, err := other.priceQuoteIn(tx, intermediate, minOtherOut)
	if err != nil {
		return nil, fmt.Errorf("leg 2 on %s: %w", other.address.Hex(), err)
	}
	if err := other.settleBaseOut(tx, trader, trader, intermediate, out); err != nil {
		return nil, fmt.Errorf("leg 2 on %s: %w", other.address.Hex(), err)
	}
	return out, nil
}

// swapBaseForQuote pulls baseIn from trader and pays the quote output to payTo.
func (p *Pool) swapBaseForQuote(tx *ledger.Tx, trader, payTo common.Address, baseIn, minQuoteOut *big.Int) (*big.Int, error) {
	if baseIn.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, baseIn)
	}

	quoteReserve := p.quoteReserveFor(tx)
	quoteOut, err := p.Quote(baseIn, p.ReserveBaseAmount(tx), quoteReserve)
	if err != nil {
		return nil, err
	}
	if quoteOut.Cmp(minQuoteOut) < 0 {
		return nil, fmt.Errorf("%w: quote out %s below minimum %s", ErrSlippageExceeded, quoteOut, minQuoteOut)
	}

	if err := tx.TransferFrom(p.baseAsset, p.address, trader, p.address, baseIn); err != nil {
		return nil, fmt.Errorf("pull base: %w", err)
	}
	if err := tx.Transfer(ledger.NativeAsset, p.address, payTo, quoteOut); err != nil {
		return nil, fmt.Errorf("pay quote: %w", err)
	}

	p.stageQuoteReserve(tx, quoteReserve.Sub(quoteReserve, quoteOut))

	tx.Emit(event.Log{
		Type:      event.LogTypeSwapExecuted,
		Emitter:   p.address,
		From:      trader,
		To:        payTo,
		Amount:    new(big.Int).Set(baseIn),
		AmountOut: new(big.Int).Set(quoteOut),
	})

	return quoteOut, nil
}

// priceQuoteIn prices quoteIn against the reserves visible to tx and enforces
// the slippage bound. Nothing moves.
func (p *Pool) priceQuoteIn(tx *ledger.Tx, quoteIn, minBaseOut *big.Int) (*big.Int, error) {
	if quoteIn.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, quoteIn)
	}

	baseOut, err := p.Quote(quoteIn, p.quoteReserveFor(tx), p.ReserveBaseAmount(tx))
	if err != nil {
		return nil, err
	}
	if baseOut.Cmp(minBaseOut) < 0 {
		return nil, fmt.Errorf("%w: base out %s below minimum %s", ErrSlippageExceeded, baseOut, minBaseOut)
	}
	return baseOut, nil
}

// settleBaseOut books quoteIn, which the caller has already moved into the
// pool, and pays baseOut to recipient.
func (p *Pool) settleBaseOut(tx *ledger.Tx, trader, recipient common.Address, quoteIn, baseOut *big.Int) error {
	if err := tx.Transfer(p.baseAsset, p.address, recipient, baseOut); err != nil {
		return fmt.Errorf("pay base: %w", err)
	}

	quoteReserve := p.quoteReserveFor(tx)
	p.stageQuoteReserve(tx, quoteReserve.Add(quoteReserve, quoteIn))

	tx.Emit(event.Log{
		Type:      event.LogTypeSwapExecuted,
		Emitter:   p.address,
		From:      trader,
		To:        recipient,
		Amount:    new(big.Int).Set(quoteIn),
		AmountOut: new(big.Int).Set(baseOut),
	})
	return nil
}
