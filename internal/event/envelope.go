package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType discriminator for call payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeIssueAsset
	EventTypeTransfer
	EventTypeApprove
	EventTypeCreatePool
	EventTypeAddLiquidity
	EventTypeRemoveLiquidity
	EventTypeSwapQuoteForBase
	EventTypeSwapBaseForQuote
	EventTypeSwapBaseForOtherBase
	EventTypeSwapBaseForAsset
	EventTypeCreateStakingLedger
	EventTypeFirstDeposit
	EventTypePartialStake
	EventTypeStakeAll
	EventTypePartialUnstake
	EventTypeUnstakeAll
	EventTypeAccrueReward
	EventTypeClaimPartialReward
	EventTypeClaimAllReward
	EventTypeUnstakeAndClaimAll
)

// EventEnvelope wraps every applied call in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core. Doubles as block height.
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Identity that submitted the call
	Sender common.Address

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded call
	Payload []byte

	// Audit log entries emitted by the call
	Logs []Log

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all call payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Caller returns the identity the call executes as
	Caller() common.Address

	// EventTime returns the versioned input timestamp
	EventTime() time.Time
}

// Header carries the fields common to every call
type Header struct {
	ID        uuid.UUID      `json:"id"`
	Sender    common.Address `json:"sender"`
	Timestamp time.Time      `json:"timestamp"`
}

func (h *Header) IdempotencyKey() string {
	return h.ID.String()
}

func (h *Header) Caller() common.Address {
	return h.Sender
}

func (h *Header) EventTime() time.Time {
	return h.Timestamp
}

// Head exposes the header of any call that embeds it
func (h *Header) Head() *Header {
	return h
}

var eventTypeNames = map[EventType]string{
	EventTypeIssueAsset:           "IssueAsset",
	EventTypeTransfer:             "Transfer",
	EventTypeApprove:              "Approve",
	EventTypeCreatePool:           "CreatePool",
	EventTypeAddLiquidity:         "AddLiquidity",
	EventTypeRemoveLiquidity:      "RemoveLiquidity",
	EventTypeSwapQuoteForBase:     "SwapQuoteForBase",
	EventTypeSwapBaseForQuote:     "SwapBaseForQuote",
	EventTypeSwapBaseForOtherBase: "SwapBaseForOtherBase",
	EventTypeSwapBaseForAsset:     "SwapBaseForAsset",
	EventTypeCreateStakingLedger:  "CreateStakingLedger",
	EventTypeFirstDeposit:         "FirstDeposit",
	EventTypePartialStake:         "PartialStake",
	EventTypeStakeAll:             "StakeAll",
	EventTypePartialUnstake:       "PartialUnstake",
	EventTypeUnstakeAll:           "UnstakeAll",
	EventTypeAccrueReward:         "AccrueReward",
	EventTypeClaimPartialReward:   "ClaimPartialReward",
	EventTypeClaimAllReward:       "ClaimAllReward",
	EventTypeUnstakeAndClaimAll:   "UnstakeAndClaimAll",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// ParseEventType is the inverse of String. Returns EventTypeUnknown for unrecognised names.
func ParseEventType(name string) EventType {
	for et, n := range eventTypeNames {
		if n == name {
			return et
		}
	}
	return EventTypeUnknown
}
