package staking

import (
	"SwapLedger/internal/event"
	"fmt"
	"math/big"
)

// FirstDeposit seeds the reward pool from the administrator and starts the
// administrator's own participant record. Allowed once.
func (l *Ledger) FirstDeposit(c Call, amount *big.Int) error {
	if c.Caller != l.admin {
		return fmt.Errorf("%w: %s", ErrNotAdministrator, c.Caller.Hex())
	}
	s := l.session(c.Tx)
	if s.seeded {
		return ErrAlreadySeeded
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: reward deposit %s", ErrInvalidAmount, amount)
	}

	if err := c.Tx.TransferFrom(l.rewardAsset, l.address, l.admin, l.address, amount); err != nil {
		return fmt.Errorf("pull reward: %w", err)
	}

	s.seeded = true
	s.rewardPool = new(big.Int).Set(amount)

	p := l.participant(s, l.admin)
	l.start(p, c)

	c.Tx.Emit(event.Log{
		Type:    event.LogTypeDepositUpdated,
		Emitter: l.address,
		From:    l.admin,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// PartialStake settles the caller's pending reward, then adds amount to the
// caller's stake.
func (l *Ledger) PartialStake(c Call, amount *big.Int) error {
	if amount.Cmp(l.params.MinimumStake) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, l.params.MinimumStake)
	}

	s := l.session(c.Tx)
	p := l.participant(s, c.Caller)
	l.accrue(s, p, c.Time)

	if err := c.Tx.TransferFrom(l.stakeAsset, l.address, c.Caller, l.address, amount); err != nil {
		return fmt.Errorf("pull stake: %w", err)
	}

	p.StakedAmount.Add(p.StakedAmount, amount)
	s.totalStaked.Add(s.totalStaked, amount)
	p.LastUpdate = c.Time
	l.start(p, c)

	c.Tx.Emit(event.Log{
		Type:    event.LogTypeDepositUpdated,
		Emitter: l.address,
		From:    c.Caller,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// StakeAll stakes the caller's entire stake-asset balance
func (l *Ledger) StakeAll(c Call) error {
	return l.PartialStake(c, c.Tx.BalanceOf(l.stakeAsset, c.Caller))
}

// PartialUnstake settles the caller's pending reward, then returns amount of
// stake to the caller.
func (l *Ledger) PartialUnstake(c Call, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: unstake %s", ErrInvalidAmount, amount)
	}

	s := l.session(c.Tx)
	p, ok := l.lookup(s, c.Caller)
	if !ok || p.StakedAmount.Cmp(amount) < 0 {
		staked := new(big.Int)
		if ok {
			staked = p.StakedAmount
		}
		return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientStake, staked, amount)
	}

	l.accrue(s, p, c.Time)

	if err := c.Tx.Transfer(l.stakeAsset, l.address, c.Caller, amount); err != nil {
		return fmt.Errorf("return stake: %w", err)
	}

	p.StakedAmount.Sub(p.StakedAmount, amount)
	s.totalStaked.Sub(s.totalStaked, amount)
	p.LastUpdate = c.Time

	c.Tx.Emit(event.Log{
		Type:    event.LogTypeWithdrawExecuted,
		Emitter: l.address,
		From:    c.Caller,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// UnstakeAll withdraws the caller's full stake
func (l *Ledger) UnstakeAll(c Call) error {
	s := l.session(c.Tx)
	p, ok := l.lookup(s, c.Caller)
	if !ok || p.StakedAmount.Sign() == 0 {
		return fmt.Errorf("%w: nothing staked", ErrInsufficientStake)
	}
	return l.PartialUnstake(c, new(big.Int).Set(p.StakedAmount))
}

// start initialises weight and start block on a participant's first stake
func (l *Ledger) start(p *Participant, c Call) {
	if p.Started() {
		return
	}
	p.Weight.SetInt64(1)
	p.StartBlock = c.Block
	p.LastUpdate = c.Time
}
