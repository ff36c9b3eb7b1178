package query

import (
	"math/big"
	"time"
)

// BalanceResponse is one holder's balance of one asset
type BalanceResponse struct {
	Asset     string   `json:"asset"`
	Owner     string   `json:"owner"`
	Balance   *big.Int `json:"balance"`
	Formatted string   `json:"formatted,omitempty"` // Balance scaled by the asset's decimals
	Source    string   `json:"source"`              // "engine" or "projection"

	AsOfSequence int64 `json:"as_of_sequence"`
}

// SwapRecord is one executed swap from the swap projection
type SwapRecord struct {
	Sequence  int64     `json:"sequence"`
	LogIndex  int       `json:"log_index"`
	Pool      string    `json:"pool"`
	Trader    string    `json:"trader"`
	Recipient string    `json:"recipient"`
	AmountIn  *big.Int  `json:"amount_in"`
	AmountOut *big.Int  `json:"amount_out"`
	Timestamp time.Time `json:"timestamp"`
}

// SwapFilter narrows GetSwapHistory. Zero values match everything.
type SwapFilter struct {
	Trader         string
	Pool           string
	BeforeSequence int64 // cursor: only swaps with a lower sequence
	Limit          int
}

// SwapHistoryResponse is a page of swaps, newest first
type SwapHistoryResponse struct {
	Swaps        []SwapRecord `json:"swaps"`
	NextCursor   int64        `json:"next_cursor,omitempty"`
	AsOfSequence int64        `json:"as_of_sequence"`
}

// JournalHistoryEntry is a journal entry touching an owner
type JournalHistoryEntry struct {
	JournalID   string   `json:"journal_id"`
	BatchID     string   `json:"batch_id"`
	EventRef    string   `json:"event_ref"`
	Sequence    int64    `json:"sequence"`
	Asset       string   `json:"asset"`
	FromAccount string   `json:"from_account"`
	ToAccount   string   `json:"to_account"`
	Amount      *big.Int `json:"amount"`
	JournalType string   `json:"journal_type"`
	Timestamp   int64    `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose projected balances do not add up to
// its net issuance in the journal.
type UnbalancedAsset struct {
	Asset     string   `json:"asset"`
	Projected *big.Int `json:"projected"`
	Issued    *big.Int `json:"issued"`
}
