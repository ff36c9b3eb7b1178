package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CreatePool registers a pool for Asset in the factory
type CreatePool struct {
	Header
	Asset common.Address `json:"asset"`
}

func (e *CreatePool) EventType() EventType {
	return EventTypeCreatePool
}

// AddLiquidity deposits QuoteAmount of the native unit and up to BaseAmount of
// the pool's base asset. The pool pulls base through the sender's allowance.
type AddLiquidity struct {
	Header
	Pool        common.Address `json:"pool"`
	BaseAmount  *big.Int       `json:"base_amount"`
	QuoteAmount *big.Int       `json:"quote_amount"`
}

func (e *AddLiquidity) EventType() EventType {
	return EventTypeAddLiquidity
}

// RemoveLiquidity burns Amount of the pool's liquidity token
type RemoveLiquidity struct {
	Header
	Pool   common.Address `json:"pool"`
	Amount *big.Int       `json:"amount"`
}

func (e *RemoveLiquidity) EventType() EventType {
	return EventTypeRemoveLiquidity
}

// SwapQuoteForBase sells QuoteIn native units for base.
// Recipient nil pays the sender.
type SwapQuoteForBase struct {
	Header
	Pool       common.Address  `json:"pool"`
	QuoteIn    *big.Int        `json:"quote_in"`
	MinBaseOut *big.Int        `json:"min_base_out"`
	Recipient  *common.Address `json:"recipient,omitempty"`
}

func (e *SwapQuoteForBase) EventType() EventType {
	return EventTypeSwapQuoteForBase
}

// PayTo resolves the recipient of the bought base
func (e *SwapQuoteForBase) PayTo() common.Address {
	if e.Recipient != nil {
		return *e.Recipient
	}
	return e.Sender
}

// SwapBaseForQuote sells BaseIn of the pool's base asset for native units
type SwapBaseForQuote struct {
	Header
	Pool        common.Address `json:"pool"`
	BaseIn      *big.Int       `json:"base_in"`
	MinQuoteOut *big.Int       `json:"min_quote_out"`
}

func (e *SwapBaseForQuote) EventType() EventType {
	return EventTypeSwapBaseForQuote
}

// SwapBaseForOtherBase routes BaseIn through Pool and then OtherPool
type SwapBaseForOtherBase struct {
	Header
	Pool      common.Address `json:"pool"`
	OtherPool common.Address `json:"other_pool"`
	BaseIn    *big.Int       `json:"base_in"`
	MinOut    *big.Int       `json:"min_out"`
}

func (e *SwapBaseForOtherBase) EventType() EventType {
	return EventTypeSwapBaseForOtherBase
}

// SwapBaseForAsset is SwapBaseForOtherBase with both pools resolved by asset
type SwapBaseForAsset struct {
	Header
	Asset       common.Address `json:"asset"`
	TargetAsset common.Address `json:"target_asset"`
	BaseIn      *big.Int       `json:"base_in"`
	MinOut      *big.Int       `json:"min_out"`
}

func (e *SwapBaseForAsset) EventType() EventType {
	return EventTypeSwapBaseForAsset
}
