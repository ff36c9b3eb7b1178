package core

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/staking"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Engine) dispatchEvent(tx *ledger.Tx, evt event.Event, sequence int64) (outcome, error) {
	switch ev := evt.(type) {
	case *event.IssueAsset:
		return e.handleIssueAsset(tx, ev)
	case *event.Transfer:
		return e.handleTransfer(tx, ev)
	case *event.Approve:
		return e.handleApprove(tx, ev)
	case *event.CreatePool:
		return e.handleCreatePool(tx, ev)
	case *event.AddLiquidity:
		return e.handleAddLiquidity(tx, ev)
	case *event.RemoveLiquidity:
		return e.handleRemoveLiquidity(tx, ev)
	case *event.SwapQuoteForBase:
		return e.handleSwapQuoteForBase(tx, ev)
	case *event.SwapBaseForQuote:
		return e.handleSwapBaseForQuote(tx, ev)
	case *event.SwapBaseForOtherBase:
		return e.handleSwapBaseForOtherBase(tx, ev)
	case *event.SwapBaseForAsset:
		return e.handleSwapBaseForAsset(tx, ev)
	case *event.CreateStakingLedger:
		return e.handleCreateStakingLedger(tx, ev)
	case *event.FirstDeposit, *event.PartialStake, *event.StakeAll,
		*event.PartialUnstake, *event.UnstakeAll, *event.AccrueReward,
		*event.ClaimPartialReward, *event.ClaimAllReward, *event.UnstakeAndClaimAll:
		return e.handleStaking(tx, evt, sequence)
	default:
		return outcome{}, fmt.Errorf("%w: unknown call type %T", ErrInvalidCall, evt)
	}
}

// --- Token calls ---

func (e *Engine) handleIssueAsset(tx *ledger.Tx, ev *event.IssueAsset) (outcome, error) {
	if ev.Symbol == "" {
		return outcome{}, fmt.Errorf("%w: empty symbol", ErrInvalidCall)
	}
	supply := orZero(ev.Supply)
	if supply.Sign() < 0 {
		return outcome{}, fmt.Errorf("%w: supply %s", ledger.ErrInvalidAmount, supply)
	}

	asset := tx.CreateAddress()
	if err := tx.RegisterToken(ledger.NewToken(asset, ev.Symbol, ev.Decimals, ledger.TokenKindIssued, ev.Sender)); err != nil {
		return outcome{}, err
	}
	if supply.Sign() > 0 {
		if err := tx.Mint(asset, ev.Sender, supply); err != nil {
			return outcome{}, err
		}
	}

	tx.Emit(event.Log{
		Type:    event.LogTypeAssetIssued,
		Emitter: asset,
		From:    ev.Sender,
		To:      asset,
		Amount:  new(big.Int).Set(supply),
	})

	return outcome{created: &asset}, nil
}

func (e *Engine) handleTransfer(tx *ledger.Tx, ev *event.Transfer) (outcome, error) {
	amount, err := required("amount", ev.Amount)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, tx.Transfer(ev.Asset, ev.Sender, ev.To, amount)
}

func (e *Engine) handleApprove(tx *ledger.Tx, ev *event.Approve) (outcome, error) {
	amount, err := required("amount", ev.Amount)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, tx.Approve(ev.Asset, ev.Sender, ev.Spender, amount)
}

// --- Pool calls ---

func (e *Engine) handleCreatePool(tx *ledger.Tx, ev *event.CreatePool) (outcome, error) {
	pool, err := e.registry.CreatePool(tx, ev.Asset)
	if err != nil {
		return outcome{}, err
	}
	addr := pool.Address()
	return outcome{created: &addr}, nil
}

func (e *Engine) handleAddLiquidity(tx *ledger.Tx, ev *event.AddLiquidity) (outcome, error) {
	pool, err := e.pool(ev.Pool)
	if err != nil {
		return outcome{}, err
	}
	base, err := required("base_amount", ev.BaseAmount)
	if err != nil {
		return outcome{}, err
	}
	quote, err := required("quote_amount", ev.QuoteAmount)
	if err != nil {
		return outcome{}, err
	}
	minted, err := pool.AddLiquidity(tx, ev.Sender, base, quote)
	if err != nil {
		return outcome{}, err
	}
	return outcome{amounts: []*big.Int{minted}}, nil
}

func (e *Engine) handleRemoveLiquidity(tx *ledger.Tx, ev *event.RemoveLiquidity) (outcome, error) {
	pool, err := e.pool(ev.Pool)
	if err != nil {
		return outcome{}, err
	}
	amount, err := required("amount", ev.Amount)
	if err != nil {
		return outcome{}, err
	}
	quoteShare, baseShare, err := pool.RemoveLiquidity(tx, ev.Sender, amount)
	if err != nil {
		return outcome{}, err
	}
	return outcome{amounts: []*big.Int{quoteShare, baseShare}}, nil
}

func (e *Engine) handleSwapQuoteForBase(tx *ledger.Tx, ev *event.SwapQuoteForBase) (outcome, error) {
	pool, err := e.pool(ev.Pool)
	if err != nil {
		return outcome{}, err
	}
	quoteIn, err := required("quote_in", ev.QuoteIn)
	if err != nil {
		return outcome{}, err
	}
	out, err := pool.SwapQuoteForBase(tx, ev.Sender, ev.PayTo(), quoteIn, orZero(ev.MinBaseOut))
	if err != nil {
		return outcome{}, err
	}
	return outcome{amounts: []*big.Int{out}}, nil
}

func (e *Engine) handleSwapBaseForQuote(tx *ledger.Tx, ev *event.SwapBaseForQuote) (outcome, error) {
	pool, err := e.pool(ev.Pool)
	if err != nil {
		return outcome{}, err
	}
	baseIn, err := required("base_in", ev.BaseIn)
	if err != nil {
		return outcome{}, err
	}
	out, err := pool.SwapBaseForQuote(tx, ev.Sender, baseIn, orZero(ev.MinQuoteOut))
	if err != nil {
		return outcome{}, err
	}
	return outcome{amounts: []*big.Int{out}}, nil
}

func (e *Engine) handleSwapBaseForOtherBase(tx *ledger.Tx, ev *event.SwapBaseForOtherBase) (outcome, error) {
	pool, err := e.pool(ev.Pool)
	if err != nil {
		return outcome{}, err
	}
	other, err := e.pool(ev.OtherPool)
	if err != nil {
		return outcome{}, err
	}
	baseIn, err := required("base_in", ev.BaseIn)
	if err != nil {
		return outcome{}, err
	}
	out, err := pool.SwapBaseForOtherBase(tx, ev.Sender, baseIn, orZero(ev.MinOut), other)
	if err != nil {
		return outcome{}, err
	}
	return outcome{amounts: []*big.Int{out}}, nil
}

func (e *Engine) handleSwapBaseForAsset(tx *ledger.Tx, ev *event.SwapBaseForAsset) (outcome, error) {
	baseIn, err := required("base_in", ev.BaseIn)
	if err != nil {
		return outcome{}, err
	}
	out, err := e.registry.SwapBaseForAsset(tx, ev.Sender, ev.Asset, baseIn, orZero(ev.MinOut), ev.TargetAsset)
	if err != nil {
		return outcome{}, err
	}
	return outcome{amounts: []*big.Int{out}}, nil
}

// --- Staking calls ---

func (e *Engine) handleCreateStakingLedger(tx *ledger.Tx, ev *event.CreateStakingLedger) (outcome, error) {
	l, err := e.factory.Create(tx, ev.Sender, ev.StakeAsset, ev.RewardAsset)
	if err != nil {
		return outcome{}, err
	}
	addr := l.Address()
	return outcome{created: &addr}, nil
}

// handleStaking resolves the target ledger and runs the operation as the sender.
// Block height is the sequence the call is assigned.
func (e *Engine) handleStaking(tx *ledger.Tx, evt event.Event, sequence int64) (outcome, error) {
	addr, err := stakingTarget(evt)
	if err != nil {
		return outcome{}, err
	}
	l, err := e.stakingLedger(addr)
	if err != nil {
		return outcome{}, err
	}

	c := staking.Call{
		Tx:     tx,
		Caller: evt.Caller(),
		Time:   evt.EventTime().Unix(),
		Block:  sequence,
	}
	res := outcome{staking: l}

	switch ev := evt.(type) {
	case *event.FirstDeposit:
		amount, err := required("amount", ev.Amount)
		if err != nil {
			return outcome{}, err
		}
		return res, l.FirstDeposit(c, amount)
	case *event.PartialStake:
		amount, err := required("amount", ev.Amount)
		if err != nil {
			return outcome{}, err
		}
		return res, l.PartialStake(c, amount)
	case *event.StakeAll:
		return res, l.StakeAll(c)
	case *event.PartialUnstake:
		amount, err := required("amount", ev.Amount)
		if err != nil {
			return outcome{}, err
		}
		return res, l.PartialUnstake(c, amount)
	case *event.UnstakeAll:
		return res, l.UnstakeAll(c)
	case *event.AccrueReward:
		accrual, err := l.AccrueReward(c, ev.Participant)
		if err != nil {
			return outcome{}, err
		}
		if accrual.Capped && e.metrics != nil {
			e.metrics.StakingAccrualCaps.WithLabelValues(l.Address().Hex()).Inc()
		}
		res.amounts = []*big.Int{accrual.Reward, accrual.WeightDelta}
		return res, nil
	case *event.ClaimPartialReward:
		amount, err := required("amount", ev.Amount)
		if err != nil {
			return outcome{}, err
		}
		return res, l.ClaimPartialReward(c, amount)
	case *event.ClaimAllReward:
		return res, l.ClaimAllReward(c)
	case *event.UnstakeAndClaimAll:
		return res, l.UnstakeAndClaimAll(c)
	}
	return outcome{}, fmt.Errorf("%w: unknown staking call %T", ErrInvalidCall, evt)
}

func stakingTarget(evt event.Event) (common.Address, error) {
	switch ev := evt.(type) {
	case *event.FirstDeposit:
		return ev.Ledger, nil
	case *event.PartialStake:
		return ev.Ledger, nil
	case *event.StakeAll:
		return ev.Ledger, nil
	case *event.PartialUnstake:
		return ev.Ledger, nil
	case *event.UnstakeAll:
		return ev.Ledger, nil
	case *event.AccrueReward:
		return ev.Ledger, nil
	case *event.ClaimPartialReward:
		return ev.Ledger, nil
	case *event.ClaimAllReward:
		return ev.Ledger, nil
	case *event.UnstakeAndClaimAll:
		return ev.Ledger, nil
	}
	return common.Address{}, fmt.Errorf("%w: %T is not a staking call", ErrInvalidCall, evt)
}

// --- Lookups ---

func (e *Engine) pool(addr common.Address) (*amm.Pool, error) {
	pool, ok := e.registry.PoolAt(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, addr.Hex())
	}
	return pool, nil
}

func (e *Engine) stakingLedger(addr common.Address) (*staking.Ledger, error) {
	l, ok := e.factory.Get(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStakingLedger, addr.Hex())
	}
	return l, nil
}

func required(field string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidCall, field)
	}
	return v, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
