package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type CreateStakingLedger struct {
	Header
	StakeAsset  common.Address `json:"stake_asset"`
	RewardAsset common.Address `json:"reward_asset"`
}

func (e *CreateStakingLedger) EventType() EventType {
	return EventTypeCreateStakingLedger
}

// FirstDeposit seeds the reward pool. Admin only, once.
type FirstDeposit struct {
	Header
	Ledger common.Address `json:"ledger"`
	Amount *big.Int       `json:"amount"`
}

func (e *FirstDeposit) EventType() EventType {
	return EventTypeFirstDeposit
}

type PartialStake struct {
	Header
	Ledger common.Address `json:"ledger"`
	Amount *big.Int       `json:"amount"`
}

func (e *PartialStake) EventType() EventType {
	return EventTypePartialStake
}

type StakeAll struct {
	Header
	Ledger common.Address `json:"ledger"`
}

func (e *StakeAll) EventType() EventType {
	return EventTypeStakeAll
}

type PartialUnstake struct {
	Header
	Ledger common.Address `json:"ledger"`
	Amount *big.Int       `json:"amount"`
}

func (e *PartialUnstake) EventType() EventType {
	return EventTypePartialUnstake
}

type UnstakeAll struct {
	Header
	Ledger common.Address `json:"ledger"`
}

func (e *UnstakeAll) EventType() EventType {
	return EventTypeUnstakeAll
}

// AccrueReward settles Participant's pending reward. Anyone may send it.
type AccrueReward struct {
	Header
	Ledger      common.Address `json:"ledger"`
	Participant common.Address `json:"participant"`
}

func (e *AccrueReward) EventType() EventType {
	return EventTypeAccrueReward
}

type ClaimPartialReward struct {
	Header
	Ledger common.Address `json:"ledger"`
	Amount *big.Int       `json:"amount"`
}

func (e *ClaimPartialReward) EventType() EventType {
	return EventTypeClaimPartialReward
}

type ClaimAllReward struct {
	Header
	Ledger common.Address `json:"ledger"`
}

func (e *ClaimAllReward) EventType() EventType {
	return EventTypeClaimAllReward
}

type UnstakeAndClaimAll struct {
	Header
	Ledger common.Address `json:"ledger"`
}

func (e *UnstakeAndClaimAll) EventType() EventType {
	return EventTypeUnstakeAndClaimAll
}
