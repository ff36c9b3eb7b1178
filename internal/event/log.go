package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LogType discriminates audit log entries emitted by committed calls
type LogType int32

const (
	LogTypeUnknown LogType = iota
	LogTypeTransfer
	LogTypeApproval
	LogTypeLiquidityTransfer
	LogTypeDepositUpdated
	LogTypeWithdrawExecuted
	LogTypeSwapExecuted
	LogTypeRewardClaimed
	LogTypePoolCreated
	LogTypeAssetIssued
	LogTypeStakingLedgerCreated
)

func (lt LogType) String() string {
	switch lt {
	case LogTypeTransfer:
		return "Transfer"
	case LogTypeApproval:
		return "Approval"
	case LogTypeLiquidityTransfer:
		return "LiquidityTransfer"
	case LogTypeDepositUpdated:
		return "DepositUpdated"
	case LogTypeWithdrawExecuted:
		return "WithdrawExecuted"
	case LogTypeSwapExecuted:
		return "SwapExecuted"
	case LogTypeRewardClaimed:
		return "RewardClaimed"
	case LogTypePoolCreated:
		return "PoolCreated"
	case LogTypeAssetIssued:
		return "AssetIssued"
	case LogTypeStakingLedgerCreated:
		return "StakingLedgerCreated"
	default:
		return "Unknown"
	}
}

func (lt LogType) MarshalText() ([]byte, error) {
	return []byte(lt.String()), nil
}

func (lt *LogType) UnmarshalText(text []byte) error {
	*lt = ParseLogType(string(text))
	return nil
}

// ParseLogType is the inverse of String
func ParseLogType(name string) LogType {
	for t := LogTypeTransfer; t <= LogTypeStakingLedgerCreated; t++ {
		if t.String() == name {
			return t
		}
	}
	return LogTypeUnknown
}

// Log is an audit log entry. Field meaning per type:
//
//	Transfer, LiquidityTransfer  From -> To, Amount
//	Approval                     From = owner, To = spender, Amount
//	DepositUpdated               From = participant or provider, Amount
//	WithdrawExecuted             From = participant or provider, Amount
//	SwapExecuted                 From = trader, To = recipient, Amount in, AmountOut
//	RewardClaimed                From = participant, Amount
//	PoolCreated                  From = base asset, To = pool
//	AssetIssued                  From = issuer, To = asset, Amount = initial supply
//	StakingLedgerCreated         From = admin, To = ledger
type Log struct {
	Type      LogType        `json:"type"`
	Emitter   common.Address `json:"emitter"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    *big.Int       `json:"amount,omitempty"`
	AmountOut *big.Int       `json:"amount_out,omitempty"`
}
