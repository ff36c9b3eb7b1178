package amm

import (
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader is the read side of the fungible ledger. Both *ledger.Bank
// (committed state) and *ledger.Tx (staged state) satisfy it.
type BalanceReader interface {
	BalanceOf(asset ledger.AssetID, owner common.Address) *big.Int
	TotalSupply(asset ledger.AssetID) *big.Int
}

// Pool is a constant-product pool of one base asset against the native unit.
// The liquidity token is registered in the bank under the pool's own address.
//
// The base reserve is never stored: it is the pool's balance of the base asset
// as seen by whichever reader is passed in. The quote reserve is stored and only
// changes when the transaction that staged it commits.
type Pool struct {
	address      common.Address
	baseAsset    ledger.AssetID
	fee          fpmath.Ratio
	quoteReserve *big.Int

	// Quote reserve staged by the transaction currently touching the pool
	pendingTx *ledger.Tx
	pending   *big.Int
}

func NewPool(address common.Address, baseAsset ledger.AssetID, fee fpmath.Ratio) (*Pool, error) {
	if baseAsset == ledger.ZeroAddress {
		return nil, ErrInvalidAssetAddress
	}
	if !fee.Valid() {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidFee, fee.Num, fee.Den)
	}
	return &Pool{
		address:      address,
		baseAsset:    baseAsset,
		fee:          fee,
		quoteReserve: new(big.Int),
	}, nil
}

func (p *Pool) Address() common.Address {
	return p.address
}

func (p *Pool) BaseAsset() ledger.AssetID {
	return p.baseAsset
}

// LiquidityToken is the asset id of the pool's receipt token
func (p *Pool) LiquidityToken() ledger.AssetID {
	return p.address
}

func (p *Pool) Fee() fpmath.Ratio {
	return p.fee
}

// ReserveQuoteAmount returns the committed quote reserve
func (p *Pool) ReserveQuoteAmount() *big.Int {
	return new(big.Int).Set(p.quoteReserve)
}

// ReserveBaseAmount reads the pool's base balance through r
func (p *Pool) ReserveBaseAmount(r BalanceReader) *big.Int {
	return r.BalanceOf(p.baseAsset, p.address)
}

// IsSeeded reports whether the pool holds liquidity
func (p *Pool) IsSeeded() bool {
	return p.quoteReserve.Sign() > 0
}

// Quote prices a trade against arbitrary reserves using the pool's fee
func (p *Pool) Quote(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	return fpmath.GetAmountOut(amountIn, reserveIn, reserveOut, p.fee)
}

// QuoteAmountForBase returns the native amount paid for baseIn
func (p *Pool) QuoteAmountForBase(r BalanceReader, baseIn *big.Int) (*big.Int, error) {
	out, err := p.Quote(baseIn, p.ReserveBaseAmount(r), p.quoteReserveFor(r))
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s base buys nothing", ErrAmountTooSmall, baseIn)
	}
	return out, nil
}

// BaseAmountForQuote returns the base amount paid for quoteIn
func (p *Pool) BaseAmountForQuote(r BalanceReader, quoteIn *big.Int) (*big.Int, error) {
	out, err := p.Quote(quoteIn, p.quoteReserveFor(r), p.ReserveBaseAmount(r))
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s quote buys nothing", ErrAmountTooSmall, quoteIn)
	}
	return out, nil
}

// Restore sets the committed quote reserve. Used for snapshot recovery only.
func (p *Pool) Restore(quoteReserve *big.Int) {
	p.quoteReserve = new(big.Int).Set(quoteReserve)
	p.pendingTx = nil
	p.pending = nil
}

// quoteReserveFor returns the quote reserve visible to r: the staged value
// when r is the transaction that staged it, the committed value otherwise.
func (p *Pool) quoteReserveFor(r BalanceReader) *big.Int {
	if tx, ok := r.(*ledger.Tx); ok && tx == p.pendingTx {
		return new(big.Int).Set(p.pending)
	}
	return new(big.Int).Set(p.quoteReserve)
}

// stageQuoteReserve records v as the quote reserve for tx. It is installed
// when tx commits and forgotten otherwise.
func (p *Pool) stageQuoteReserve(tx *ledger.Tx, v *big.Int) {
	if p.pendingTx != tx {
		p.pendingTx = tx
		tx.OnCommit(func() {
			p.quoteReserve = p.pending
			p.pendingTx = nil
			p.pending = nil
		})
	}
	p.pending = new(big.Int).Set(v)
}
