package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeTransfer JournalType = iota
	JournalTypeMint
	JournalTypeBurn
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// Journal is a single balance movement of one asset.
// A mint has From == ZeroAddress, a burn has To == ZeroAddress.
type Journal struct {
	JournalID   uuid.UUID      // Unique identifier
	BatchID     uuid.UUID      // Groups entries of one call
	EventRef    string         // Idempotency key of source call
	Sequence    int64          // Global sequence
	Asset       AssetID        // Asset being moved
	From        common.Address // Balance decreases
	To          common.Address // Balance increases
	Amount      *big.Int       // ALWAYS positive
	JournalType JournalType    // Entry type
	Timestamp   int64          // Call timestamp (epoch microseconds)
}

// DebitAccount is the account whose balance increases
func (j Journal) DebitAccount() AccountKey {
	return NewAccountKey(j.Asset, j.To)
}

// CreditAccount is the account whose balance decreases
func (j Journal) CreditAccount() AccountKey {
	return NewAccountKey(j.Asset, j.From)
}

// Batch is the set of journal entries produced by one call
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. An empty batch is valid: calls
// such as approvals change state without moving balances.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount == nil || j.Amount.Sign() <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %v", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.From == j.To {
			return fmt.Errorf("journal %s moves %s to itself", j.JournalID, j.From.Hex())
		}

		switch j.JournalType {
		case JournalTypeMint:
			if j.From != ZeroAddress {
				return fmt.Errorf("mint journal %s has non-zero source", j.JournalID)
			}
		case JournalTypeBurn:
			if j.To != ZeroAddress {
				return fmt.Errorf("burn journal %s has non-zero destination", j.JournalID)
			}
		case JournalTypeTransfer:
			if j.From == ZeroAddress || j.To == ZeroAddress {
				return fmt.Errorf("transfer journal %s touches the zero address", j.JournalID)
			}
		default:
			return fmt.Errorf("journal %s has unknown type %d", j.JournalID, j.JournalType)
		}
	}

	return nil
}

// Assets returns the distinct assets touched by the batch, in first-seen order.
func (b *Batch) Assets() []AssetID {
	seen := make(map[AssetID]bool)
	assets := make([]AssetID, 0, 2)
	for _, j := range b.Journals {
		if !seen[j.Asset] {
			seen[j.Asset] = true
			assets = append(assets, j.Asset)
		}
	}
	return assets
}
