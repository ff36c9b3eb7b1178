package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IssueAsset creates a new fungible asset and mints Supply to the sender.
// The asset address is derived from the deployer nonce.
type IssueAsset struct {
	Header
	Symbol   string   `json:"symbol"`
	Decimals uint8    `json:"decimals"`
	Supply   *big.Int `json:"supply"`
}

func (e *IssueAsset) EventType() EventType {
	return EventTypeIssueAsset
}

// Transfer moves Amount of Asset from the sender to To
type Transfer struct {
	Header
	Asset  common.Address `json:"asset"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (e *Transfer) EventType() EventType {
	return EventTypeTransfer
}

// Approve lets Spender move up to Amount of the sender's Asset
type Approve struct {
	Header
	Asset   common.Address `json:"asset"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

func (e *Approve) EventType() EventType {
	return EventTypeApprove
}
