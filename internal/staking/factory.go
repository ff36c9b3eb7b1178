package staking

import (
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Factory creates staking ledgers and resolves them by address
type Factory struct {
	params  Params
	ledgers map[common.Address]*Ledger
	order   []common.Address
}

func NewFactory(params Params) (*Factory, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Factory{
		params:  params,
		ledgers: make(map[common.Address]*Ledger),
	}, nil
}

func (f *Factory) Params() Params {
	return f.params
}

// Create deploys a ledger administered by admin. It becomes visible once tx commits.
func (f *Factory) Create(tx *ledger.Tx, admin common.Address, stakeAsset, rewardAsset ledger.AssetID) (*Ledger, error) {
	if stakeAsset == ledger.ZeroAddress || rewardAsset == ledger.ZeroAddress {
		return nil, fmt.Errorf("%w: null asset", ErrInvalidAsset)
	}
	if stakeAsset == rewardAsset {
		return nil, fmt.Errorf("%w: stake and reward asset are both %s", ErrInvalidAsset, stakeAsset.Hex())
	}
	for _, asset := range []ledger.AssetID{stakeAsset, rewardAsset} {
		if !tx.HasToken(asset) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, asset.Hex())
		}
	}

	l := &Ledger{
		address:     tx.CreateAddress(),
		stakeAsset:  stakeAsset,
		rewardAsset: rewardAsset,
		admin:       admin,
		params:      f.params,
		st:          newState(),
	}

	tx.OnCommit(func() {
		f.add(l)
	})

	tx.Emit(event.Log{
		Type:    event.LogTypeStakingLedgerCreated,
		Emitter: l.address,
		From:    admin,
		To:      l.address,
	})

	return l, nil
}

// Get returns the ledger deployed at address
func (f *Factory) Get(address common.Address) (*Ledger, bool) {
	l, ok := f.ledgers[address]
	return l, ok
}

// Ledgers returns every ledger in creation order
func (f *Factory) Ledgers() []*Ledger {
	out := make([]*Ledger, 0, len(f.order))
	for _, addr := range f.order {
		out = append(out, f.ledgers[addr])
	}
	return out
}

func (f *Factory) add(l *Ledger) {
	f.ledgers[l.address] = l
	f.order = append(f.order, l.address)
}

// LedgerState is the serialisable form of a ledger for snapshots
type LedgerState struct {
	Address      common.Address                 `json:"address"`
	StakeAsset   common.Address                 `json:"stake_asset"`
	RewardAsset  common.Address                 `json:"reward_asset"`
	Admin        common.Address                 `json:"admin"`
	Seeded       bool                           `json:"seeded"`
	RewardPool   *big.Int                       `json:"reward_pool"`
	TotalAccrued *big.Int                       `json:"total_accrued"`
	TotalStaked  *big.Int                       `json:"total_staked"`
	Participants map[common.Address]Participant `json:"participants"`
}

// State captures the committed state of l
func (l *Ledger) State() LedgerState {
	participants := make(map[common.Address]Participant, len(l.st.participants))
	for addr, p := range l.st.participants {
		participants[addr] = *p.clone()
	}
	return LedgerState{
		Address:      l.address,
		StakeAsset:   l.stakeAsset,
		RewardAsset:  l.rewardAsset,
		Admin:        l.admin,
		Seeded:       l.st.seeded,
		RewardPool:   l.RewardPool(),
		TotalAccrued: l.TotalAccrued(),
		TotalStaked:  l.TotalStaked(),
		Participants: participants,
	}
}

// Restore re-creates a ledger from a snapshot
func (f *Factory) Restore(s LedgerState) (*Ledger, error) {
	if _, exists := f.ledgers[s.Address]; exists {
		return nil, fmt.Errorf("staking ledger %s already restored", s.Address.Hex())
	}
	st := newState()
	st.seeded = s.Seeded
	for _, fld := range []struct {
		name string
		dst  *big.Int
		src  *big.Int
	}{
		{"reward_pool", st.rewardPool, s.RewardPool},
		{"total_accrued", st.totalAccrued, s.TotalAccrued},
		{"total_staked", st.totalStaked, s.TotalStaked},
	} {
		if err := checkRestored(fld.name, fld.src); err != nil {
			return nil, fmt.Errorf("restore staking ledger %s: %w", s.Address.Hex(), err)
		}
		fld.dst.Set(fld.src)
	}
	for addr, p := range s.Participants {
		for name, v := range map[string]*big.Int{
			"staked_amount":  p.StakedAmount,
			"accrued_reward": p.AccruedReward,
			"weight":         p.Weight,
		} {
			if err := checkRestored(name, v); err != nil {
				return nil, fmt.Errorf("restore staking ledger %s participant %s: %w", s.Address.Hex(), addr.Hex(), err)
			}
		}
		st.participants[addr] = p.clone()
	}

	l := &Ledger{
		address:     s.Address,
		stakeAsset:  s.StakeAsset,
		rewardAsset: s.RewardAsset,
		admin:       s.Admin,
		params:      f.params,
		st:          st,
	}
	f.add(l)
	return l, nil
}

func checkRestored(field string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: missing %s", ErrInvalidAmount, field)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative %s %s", ErrInvalidAmount, field, v)
	}
	return nil
}
