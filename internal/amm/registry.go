package amm

import (
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidityDecimals is the precision of every pool's liquidity token
const LiquidityDecimals = 18

// Registry maps a base asset to its single pool
type Registry struct {
	address   common.Address
	fee       fpmath.Ratio
	pools     map[ledger.AssetID]*Pool
	byAddress map[common.Address]*Pool
	order     []ledger.AssetID
}

// NewRegistry creates an empty factory. Every pool it creates uses fee.
func NewRegistry(address common.Address, fee fpmath.Ratio) (*Registry, error) {
	if !fee.Valid() {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidFee, fee.Num, fee.Den)
	}
	return &Registry{
		address:   address,
		fee:       fee,
		pools:     make(map[ledger.AssetID]*Pool),
		byAddress: make(map[common.Address]*Pool),
	}, nil
}

func (r *Registry) Address() common.Address {
	return r.address
}

func (r *Registry) Fee() fpmath.Ratio {
	return r.fee
}

// CreatePool deploys the pool for asset and registers its liquidity token.
// The pool becomes visible once tx commits.
func (r *Registry) CreatePool(tx *ledger.Tx, asset ledger.AssetID) (*Pool, error) {
	if asset == ledger.ZeroAddress || asset == ledger.NativeAsset {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAsset, asset.Hex())
	}
	if _, exists := r.pools[asset]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, asset.Hex())
	}
	base, err := tx.Token(asset)
	if err != nil {
		return nil, err
	}

	pool, err := NewPool(tx.CreateAddress(), asset, r.fee)
	if err != nil {
		return nil, err
	}

	lp := ledger.NewToken(pool.address, "SLP-"+base.Symbol, LiquidityDecimals, ledger.TokenKindLiquidity, pool.address)
	if err := tx.RegisterToken(lp); err != nil {
		return nil, fmt.Errorf("register liquidity token: %w", err)
	}

	tx.OnCommit(func() {
		r.add(pool)
	})

	tx.Emit(event.Log{
		Type:    event.LogTypePoolCreated,
		Emitter: r.address,
		From:    asset,
		To:      pool.address,
	})

	return pool, nil
}

// GetPool returns the pool for asset
func (r *Registry) GetPool(asset ledger.AssetID) (*Pool, error) {
	if p, ok := r.pools[asset]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, asset.Hex())
}

// PoolAt returns the pool deployed at address
func (r *Registry) PoolAt(address common.Address) (*Pool, bool) {
	p, ok := r.byAddress[address]
	return p, ok
}

// Pools returns every pool in creation order
func (r *Registry) Pools() []*Pool {
	out := make([]*Pool, 0, len(r.order))
	for _, asset := range r.order {
		out = append(out, r.pools[asset])
	}
	return out
}

// SwapBaseForAsset routes baseIn of asset into targetAsset through both pools.
func (r *Registry) SwapBaseForAsset(tx *ledger.Tx, trader common.Address, asset ledger.AssetID, baseIn, minOut *big.Int, targetAsset ledger.AssetID) (*big.Int, error) {
	from, err := r.GetPool(asset)
	if err != nil {
		return nil, err
	}
	to, err := r.GetPool(targetAsset)
	if err != nil {
		return nil, err
	}
	return from.SwapBaseForOtherBase(tx, trader, baseIn, minOut, to)
}

// Restore re-registers a pool recovered from a snapshot
func (r *Registry) Restore(address common.Address, asset ledger.AssetID, quoteReserve *big.Int) (*Pool, error) {
	if _, exists := r.pools[asset]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, asset.Hex())
	}
	pool, err := NewPool(address, asset, r.fee)
	if err != nil {
		return nil, err
	}
	pool.Restore(quoteReserve)
	r.add(pool)
	return pool, nil
}

func (r *Registry) add(p *Pool) {
	r.pools[p.baseAsset] = p
	r.byAddress[p.address] = p
	r.order = append(r.order, p.baseAsset)
}
