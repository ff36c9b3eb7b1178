package core

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/staking"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Quote sides: the asset being paid in
const (
	SideBase  = "base"
	SideQuote = "quote"
)

// PoolView is a read-only copy of one pool
type PoolView struct {
	Address        common.Address `json:"address"`
	BaseAsset      common.Address `json:"base_asset"`
	LiquidityToken common.Address `json:"liquidity_token"`
	BaseReserve    *big.Int       `json:"base_reserve"`
	QuoteReserve   *big.Int       `json:"quote_reserve"`
	TotalSupply    *big.Int       `json:"total_supply"`
	FeeNum         int64          `json:"fee_num"`
	FeeDen         int64          `json:"fee_den"`
}

// TokenView is a read-only copy of one token's metadata
type TokenView struct {
	Asset       common.Address `json:"asset"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	Kind        string         `json:"kind"`
	Issuer      common.Address `json:"issuer"`
	TotalSupply *big.Int       `json:"total_supply"`
}

// StakingView is a read-only copy of one staking ledger's totals
type StakingView struct {
	Address      common.Address `json:"address"`
	StakeAsset   common.Address `json:"stake_asset"`
	RewardAsset  common.Address `json:"reward_asset"`
	Admin        common.Address `json:"admin"`
	Seeded       bool           `json:"seeded"`
	RewardPool   *big.Int       `json:"reward_pool"`
	TotalAccrued *big.Int       `json:"total_accrued"`
	TotalStaked  *big.Int       `json:"total_staked"`
	Participants int            `json:"participants"`
}

// Status is the engine's chain tip
type Status struct {
	Sequence      int64          `json:"sequence"`
	StateHash     string         `json:"state_hash"`
	LastTimestamp time.Time      `json:"last_timestamp"`
	Registry      common.Address `json:"registry"`
	Pools         int            `json:"pools"`
	Tokens        int            `json:"tokens"`
	Stakings      int            `json:"staking_ledgers"`
}

// GetSequence returns the sequence of the last applied call (0 at genesis).
func (e *Engine) GetSequence() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.journalGen.Sequence() - 1
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasher.GetPrevHash()
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hash := e.hasher.GetPrevHash()
	return Status{
		Sequence:      e.journalGen.Sequence() - 1,
		StateHash:     hex.EncodeToString(hash[:]),
		LastTimestamp: e.clock.Last(),
		Registry:      e.registry.Address(),
		Pools:         len(e.registry.Pools()),
		Tokens:        len(e.bank.Tokens()),
		Stakings:      len(e.factory.Ledgers()),
	}
}

// --- Pools ---

func (e *Engine) Pools() []PoolView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pools := e.registry.Pools()
	out := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, e.poolView(p))
	}
	return out
}

// Pool returns the pool trading asset
func (e *Engine) Pool(asset common.Address) (PoolView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.registry.GetPool(asset)
	if err != nil {
		return PoolView{}, err
	}
	return e.poolView(p), nil
}

func (e *Engine) poolView(p *amm.Pool) PoolView {
	fee := p.Fee()
	return PoolView{
		Address:        p.Address(),
		BaseAsset:      p.BaseAsset(),
		LiquidityToken: p.LiquidityToken(),
		BaseReserve:    p.ReserveBaseAmount(e.bank),
		QuoteReserve:   p.ReserveQuoteAmount(),
		TotalSupply:    e.bank.TotalSupply(p.LiquidityToken()),
		FeeNum:         fee.Num,
		FeeDen:         fee.Den,
	}
}

// Quote prices amount paid into asset's pool. side is SideBase (base in,
// quote out) or SideQuote (quote in, base out).
func (e *Engine) Quote(asset common.Address, side string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quote amount must be positive", ErrInvalidCall)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.registry.GetPool(asset)
	if err != nil {
		return nil, err
	}
	switch side {
	case SideBase:
		return p.QuoteAmountForBase(e.bank, amount)
	case SideQuote:
		return p.BaseAmountForQuote(e.bank, amount)
	default:
		return nil, fmt.Errorf("%w: side %q", ErrInvalidCall, side)
	}
}

// --- Tokens ---

func (e *Engine) Tokens() []TokenView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tokens := e.bank.Tokens()
	out := make([]TokenView, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenView(t))
	}
	return out
}

func (e *Engine) Token(asset common.Address) (TokenView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.bank.Token(asset)
	if !ok {
		return TokenView{}, fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, asset.Hex())
	}
	return tokenView(t), nil
}

func tokenView(t *ledger.Token) TokenView {
	return TokenView{
		Asset:       t.Asset,
		Symbol:      t.Symbol,
		Decimals:    t.Decimals,
		Kind:        t.Kind.String(),
		Issuer:      t.Issuer,
		TotalSupply: t.TotalSupply(),
	}
}

// BalanceOf returns owner's committed balance of a registered asset
func (e *Engine) BalanceOf(asset, owner common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.bank.Token(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, asset.Hex())
	}
	return t.BalanceOf(owner), nil
}

func (e *Engine) Allowance(asset, owner, spender common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.bank.Token(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, asset.Hex())
	}
	return t.Allowance(owner, spender), nil
}

// --- Staking ---

func (e *Engine) StakingLedgers() []StakingView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ledgers := e.factory.Ledgers()
	out := make([]StakingView, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, stakingView(l))
	}
	return out
}

func (e *Engine) StakingLedger(addr common.Address) (StakingView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, err := e.stakingLedger(addr)
	if err != nil {
		return StakingView{}, err
	}
	return stakingView(l), nil
}

// StakingParticipant returns who's committed record on the ledger at addr
func (e *Engine) StakingParticipant(addr, who common.Address) (staking.Participant, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, err := e.stakingLedger(addr)
	if err != nil {
		return staking.Participant{}, err
	}
	p, ok := l.Participant(who)
	if !ok {
		return staking.Participant{}, fmt.Errorf("%w: %s on %s", ErrUnknownParticipant, who.Hex(), addr.Hex())
	}
	return p, nil
}

func stakingView(l *staking.Ledger) StakingView {
	return StakingView{
		Address:      l.Address(),
		StakeAsset:   l.StakeAsset(),
		RewardAsset:  l.RewardAsset(),
		Admin:        l.Admin(),
		Seeded:       l.Seeded(),
		RewardPool:   l.RewardPool(),
		TotalAccrued: l.TotalAccrued(),
		TotalStaked:  l.TotalStaked(),
		Participants: len(l.Participants()),
	}
}
