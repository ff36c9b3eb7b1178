package core

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/staking"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64                 `json:"sequence"`
	StateHash       [32]byte              `json:"state_hash"`
	LastTimestamp   time.Time             `json:"last_timestamp"`
	Nonce           uint64                `json:"nonce"`
	Registry        common.Address        `json:"registry"`
	Tokens          []TokenState          `json:"tokens"`
	Pools           []PoolState           `json:"pools"`
	StakingLedgers  []staking.LedgerState `json:"staking_ledgers"`
	IdempotencyKeys []string              `json:"idempotency_keys"`
}

type TokenState struct {
	Asset       common.Address                                `json:"asset"`
	Symbol      string                                        `json:"symbol"`
	Decimals    uint8                                         `json:"decimals"`
	Kind        ledger.TokenKind                              `json:"kind"`
	Issuer      common.Address                                `json:"issuer"`
	TotalSupply *big.Int                                      `json:"total_supply"`
	Balances    map[common.Address]*big.Int                   `json:"balances"`
	Allowances  map[common.Address]map[common.Address]*big.Int `json:"allowances,omitempty"`
}

type PoolState struct {
	Address      common.Address `json:"address"`
	BaseAsset    common.Address `json:"base_asset"`
	QuoteReserve *big.Int       `json:"quote_reserve"`
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &SnapshotState{
		Sequence:        e.journalGen.Sequence() - 1,
		StateHash:       e.hasher.GetPrevHash(),
		LastTimestamp:   e.clock.Last(),
		Nonce:           e.bank.Nonce(),
		Registry:        e.registry.Address(),
		IdempotencyKeys: e.idempotency.lru.Keys(),
	}

	for _, t := range e.bank.Tokens() {
		balances := make(map[common.Address]*big.Int)
		for _, owner := range t.Holders() {
			balances[owner] = t.BalanceOf(owner)
		}
		snap.Tokens = append(snap.Tokens, TokenState{
			Asset:       t.Asset,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			Kind:        t.Kind,
			Issuer:      t.Issuer,
			TotalSupply: t.TotalSupply(),
			Balances:    balances,
			Allowances:  t.Allowances(),
		})
	}

	for _, p := range e.registry.Pools() {
		snap.Pools = append(snap.Pools, PoolState{
			Address:      p.Address(),
			BaseAsset:    p.BaseAsset(),
			QuoteReserve: p.ReserveQuoteAmount(),
		})
	}

	for _, l := range e.factory.Ledgers() {
		snap.StakingLedgers = append(snap.StakingLedgers, l.State())
	}

	return snap
}

// RestoreFromSnapshot replaces the engine's in-memory state with snap.
// Events after snap.Sequence are then replayed with Replay.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bank := ledger.NewBank(e.cfg.Deployer)
	for _, ts := range snap.Tokens {
		t := ledger.NewToken(ts.Asset, ts.Symbol, ts.Decimals, ts.Kind, ts.Issuer)
		t.Restore(ts.Balances, ts.Allowances, ts.TotalSupply)
		if err := bank.Register(t); err != nil {
			return fmt.Errorf("restore token %s: %w", ts.Asset.Hex(), err)
		}
	}
	if _, ok := bank.Token(ledger.NativeAsset); !ok {
		return fmt.Errorf("restore: snapshot has no native token")
	}
	bank.SetNonce(snap.Nonce)

	registry, err := amm.NewRegistry(snap.Registry, e.cfg.Fee)
	if err != nil {
		return err
	}
	for _, ps := range snap.Pools {
		if _, ok := bank.Token(ps.Address); !ok {
			return fmt.Errorf("restore pool %s: liquidity token missing", ps.Address.Hex())
		}
		if _, err := registry.Restore(ps.Address, ps.BaseAsset, ps.QuoteReserve); err != nil {
			return fmt.Errorf("restore pool %s: %w", ps.Address.Hex(), err)
		}
	}

	factory, err := staking.NewFactory(e.cfg.Staking)
	if err != nil {
		return err
	}
	for _, ls := range snap.StakingLedgers {
		if _, err := factory.Restore(ls); err != nil {
			return err
		}
	}

	validator := ledger.NewInvariantValidator(bank)
	if err := validator.ValidateAll(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	e.bank = bank
	e.validator = validator
	e.registry = registry
	e.factory = factory
	e.journalGen.SetSequence(snap.Sequence + 1)
	e.hasher.SetPrevHash(snap.StateHash)
	e.clock.Restore(snap.LastTimestamp)
	e.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	e.logger.Info().
		Int64("sequence", snap.Sequence).
		Int("tokens", len(snap.Tokens)).
		Int("pools", len(snap.Pools)).
		Int("staking_ledgers", len(snap.StakingLedgers)).
		Msg("engine restored from snapshot")

	return nil
}

// WarmLRU loads recent composite idempotency keys (see CompositeKey), oldest first.
func (e *Engine) WarmLRU(keys []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idempotency.lru.WarmFromKeys(keys)
}
