package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// entry is a journal line recorded by a Tx before it has an identity.
type entry struct {
	asset       AssetID
	from        common.Address
	to          common.Address
	amount      *big.Int
	journalType JournalType
}

// JournalGenerator stamps staged entries into identified journal batches
type JournalGenerator struct {
	sequence int64
}

func NewJournalGenerator(startSequence int64) *JournalGenerator {
	return &JournalGenerator{sequence: startSequence}
}

// Generate creates the batch for one call at the current sequence. The
// sequence only moves on Advance, after the batch has been applied.
func (jg *JournalGenerator) Generate(eventRef string, timestamp int64, entries []entry) *Batch {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, len(entries)),
	}

	for _, e := range entries {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:   uuid.New(),
			BatchID:     batchID,
			EventRef:    eventRef,
			Sequence:    jg.sequence,
			Asset:       e.asset,
			From:        e.from,
			To:          e.to,
			Amount:      new(big.Int).Set(e.amount),
			JournalType: e.journalType,
			Timestamp:   timestamp,
		})
	}

	return batch
}

// Advance moves to the next sequence
func (jg *JournalGenerator) Advance() {
	jg.sequence++
}

// Sequence returns the sequence the next batch will carry
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence is used during recovery
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}
