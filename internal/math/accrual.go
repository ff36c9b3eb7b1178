package math

import "math/big"

// AccrualParams are the fixed constants of time-weighted reward accrual.
type AccrualParams struct {
	WeightRate  *big.Int // Weight units added per elapsed second
	RewardScale *big.Int // Divisor applied to stake * weight delta
}

// Accrual is the outcome of advancing one participant's clock.
type Accrual struct {
	WeightDelta *big.Int
	Reward      *big.Int
	Capped      bool // Reward was limited by the unallocated pool
}

// ComputeAccrual advances a participant by elapsedSeconds:
//
//	weightDelta = elapsed * rate
//	reward      = min(floor(staked * weightDelta / scale), unallocated)
//
// Negative elapsed time is treated as zero.
func ComputeAccrual(staked *big.Int, elapsedSeconds int64, unallocated *big.Int, p AccrualParams) Accrual {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	weightDelta := new(big.Int).Mul(big.NewInt(elapsedSeconds), p.WeightRate)

	reward := MulDiv(staked, weightDelta, p.RewardScale, RoundDown)

	capped := false
	if unallocated.Sign() < 0 {
		reward.SetInt64(0)
		capped = true
	} else if reward.Cmp(unallocated) > 0 {
		reward.Set(unallocated)
		capped = true
	}

	return Accrual{
		WeightDelta: weightDelta,
		Reward:      reward,
		Capped:      capped,
	}
}
