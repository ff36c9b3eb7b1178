package staking

import (
	fpmath "SwapLedger/internal/math"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNotAdministrator   = errors.New("caller is not the ledger administrator")
	ErrAlreadySeeded      = errors.New("reward pool already seeded")
	ErrBelowMinimum       = errors.New("stake below minimum")
	ErrInsufficientStake  = errors.New("insufficient stake")
	ErrInsufficientReward = errors.New("insufficient reward")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAsset       = errors.New("invalid staking asset")
	ErrInvalidParams      = errors.New("invalid staking parameters")
)

// Params are fixed when a ledger is created
type Params struct {
	MinimumStake *big.Int // Smallest accepted PartialStake amount
	WeightRate   *big.Int // Weight units added per elapsed second
	RewardScale  *big.Int // reward = stake * weightDelta / RewardScale
}

// DefaultParams: one whole 18-decimal unit minimum, one weight unit per
// second, and a reward of 1e-9 reward units per staked unit per second.
func DefaultParams() Params {
	return Params{
		MinimumStake: new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		WeightRate:   big.NewInt(1),
		RewardScale:  big.NewInt(1_000_000_000),
	}
}

func (p Params) Validate() error {
	if p.MinimumStake == nil || p.MinimumStake.Sign() <= 0 {
		return fmt.Errorf("%w: minimum stake must be positive", ErrInvalidParams)
	}
	if p.WeightRate == nil || p.WeightRate.Sign() <= 0 {
		return fmt.Errorf("%w: weight rate must be positive", ErrInvalidParams)
	}
	if p.RewardScale == nil || p.RewardScale.Sign() <= 0 {
		return fmt.Errorf("%w: reward scale must be positive", ErrInvalidParams)
	}
	return nil
}

func (p Params) accrual() fpmath.AccrualParams {
	return fpmath.AccrualParams{
		WeightRate:  p.WeightRate,
		RewardScale: p.RewardScale,
	}
}
