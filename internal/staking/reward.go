package staking

import (
	"SwapLedger/internal/event"
	fpmath "SwapLedger/internal/math"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccrueReward settles participant's pending reward up to c.Time. Anyone may
// trigger it for anyone. A participant with nothing staked is left untouched.
func (l *Ledger) AccrueReward(c Call, participant common.Address) (fpmath.Accrual, error) {
	s := l.session(c.Tx)
	p, ok := l.lookup(s, participant)
	if !ok || p.StakedAmount.Sign() == 0 {
		return fpmath.Accrual{WeightDelta: new(big.Int), Reward: new(big.Int)}, nil
	}
	return l.accrue(s, p, c.Time), nil
}

// ClaimPartialReward pays amount of the caller's accrued reward
func (l *Ledger) ClaimPartialReward(c Call, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: claim %s", ErrInvalidAmount, amount)
	}
	s := l.session(c.Tx)
	p, ok := l.lookup(s, c.Caller)
	if !ok || p.AccruedReward.Cmp(amount) < 0 {
		accrued := new(big.Int)
		if ok {
			accrued = p.AccruedReward
		}
		return fmt.Errorf("%w: accrued %s, requested %s", ErrInsufficientReward, accrued, amount)
	}
	return l.claim(c, s, p, amount)
}

// ClaimAllReward pays the caller's full accrued reward
func (l *Ledger) ClaimAllReward(c Call) error {
	s := l.session(c.Tx)
	p, ok := l.lookup(s, c.Caller)
	if !ok || p.AccruedReward.Sign() == 0 {
		return fmt.Errorf("%w: nothing accrued", ErrInsufficientReward)
	}
	return l.claim(c, s, p, new(big.Int).Set(p.AccruedReward))
}

// UnstakeAndClaimAll withdraws the full stake and then claims the full
// reward. Either step failing fails the call.
func (l *Ledger) UnstakeAndClaimAll(c Call) error {
	if err := l.UnstakeAll(c); err != nil {
		return err
	}
	return l.ClaimAllReward(c)
}

func (l *Ledger) claim(c Call, s *state, p *Participant, amount *big.Int) error {
	if err := c.Tx.Transfer(l.rewardAsset, l.address, c.Caller, amount); err != nil {
		return fmt.Errorf("pay reward: %w", err)
	}

	p.AccruedReward.Sub(p.AccruedReward, amount)
	s.totalAccrued.Sub(s.totalAccrued, amount)
	s.rewardPool.Sub(s.rewardPool, amount)

	c.Tx.Emit(event.Log{
		Type:    event.LogTypeRewardClaimed,
		Emitter: l.address,
		From:    c.Caller,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// accrue advances p to now. Reward is capped by the part of the pool not yet
// allocated to any participant.
func (l *Ledger) accrue(s *state, p *Participant, now int64) fpmath.Accrual {
	if p.StakedAmount.Sign() == 0 {
		return fpmath.Accrual{WeightDelta: new(big.Int), Reward: new(big.Int)}
	}

	acc := fpmath.ComputeAccrual(p.StakedAmount, now-p.LastUpdate, s.unallocated(), l.params.accrual())

	p.Weight.Add(p.Weight, acc.WeightDelta)
	p.AccruedReward.Add(p.AccruedReward, acc.Reward)
	s.totalAccrued.Add(s.totalAccrued, acc.Reward)
	if now > p.LastUpdate {
		p.LastUpdate = now
	}
	return acc
}

// lookup returns addr's staged record without creating one
func (l *Ledger) lookup(s *state, addr common.Address) (*Participant, bool) {
	if p, ok := s.participants[addr]; ok {
		return p, true
	}
	if _, ok := l.st.participants[addr]; !ok {
		return nil, false
	}
	return l.participant(s, addr), true
}
