package staking

import (
	"SwapLedger/internal/ledger"
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Participant is one address's record in a staking ledger. Records are
// zeroed on full withdrawal, never deleted.
type Participant struct {
	StakedAmount  *big.Int `json:"staked_amount"`
	AccruedReward *big.Int `json:"accrued_reward"`
	LastUpdate    int64    `json:"last_update"` // Unix seconds
	Weight        *big.Int `json:"weight"`
	StartBlock    int64    `json:"start_block"`
}

func newParticipant() *Participant {
	return &Participant{
		StakedAmount:  new(big.Int),
		AccruedReward: new(big.Int),
		Weight:        new(big.Int),
	}
}

// Started reports whether the participant has ever staked or seeded
func (p *Participant) Started() bool {
	return p.Weight.Sign() > 0
}

func (p *Participant) clone() *Participant {
	return &Participant{
		StakedAmount:  new(big.Int).Set(p.StakedAmount),
		AccruedReward: new(big.Int).Set(p.AccruedReward),
		LastUpdate:    p.LastUpdate,
		Weight:        new(big.Int).Set(p.Weight),
		StartBlock:    p.StartBlock,
	}
}

// Call is the execution context of one staking operation
type Call struct {
	Tx     *ledger.Tx
	Caller common.Address
	Time   int64 // Unix seconds
	Block  int64
}

// Ledger is a staking ledger for one {stake asset, reward asset} pair.
// Stake and reward tokens are held by the ledger's own address in the bank.
type Ledger struct {
	address     common.Address
	stakeAsset  ledger.AssetID
	rewardAsset ledger.AssetID
	admin       common.Address
	params      Params

	st *state

	// State staged by the transaction currently touching the ledger
	pendingTx *ledger.Tx
	pending   *state
}

type state struct {
	seeded       bool
	rewardPool   *big.Int
	totalAccrued *big.Int
	totalStaked  *big.Int
	participants map[common.Address]*Participant
}

func newState() *state {
	return &state{
		rewardPool:   new(big.Int),
		totalAccrued: new(big.Int),
		totalStaked:  new(big.Int),
		participants: make(map[common.Address]*Participant),
	}
}

func (l *Ledger) Address() common.Address     { return l.address }
func (l *Ledger) StakeAsset() ledger.AssetID  { return l.stakeAsset }
func (l *Ledger) RewardAsset() ledger.AssetID { return l.rewardAsset }
func (l *Ledger) Admin() common.Address       { return l.admin }
func (l *Ledger) Params() Params              { return l.params }

// Seeded reports whether FirstDeposit has been applied
func (l *Ledger) Seeded() bool {
	return l.st.seeded
}

// RewardPool returns the committed remaining reward pool
func (l *Ledger) RewardPool() *big.Int {
	return new(big.Int).Set(l.st.rewardPool)
}

// TotalAccrued returns the committed sum of unclaimed rewards
func (l *Ledger) TotalAccrued() *big.Int {
	return new(big.Int).Set(l.st.totalAccrued)
}

// TotalStaked returns the committed sum of all stakes
func (l *Ledger) TotalStaked() *big.Int {
	return new(big.Int).Set(l.st.totalStaked)
}

// Participant returns a copy of addr's committed record
func (l *Ledger) Participant(addr common.Address) (Participant, bool) {
	p, ok := l.st.participants[addr]
	if !ok {
		return *newParticipant(), false
	}
	return *p.clone(), true
}

// Participants returns every known address, sorted
func (l *Ledger) Participants() []common.Address {
	out := make([]common.Address, 0, len(l.st.participants))
	for addr := range l.st.participants {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// session returns the state staged for tx, forking the committed state on
// first use. The fork replaces the committed state when tx commits.
func (l *Ledger) session(tx *ledger.Tx) *state {
	if l.pendingTx == tx {
		return l.pending
	}
	s := &state{
		seeded:       l.st.seeded,
		rewardPool:   new(big.Int).Set(l.st.rewardPool),
		totalAccrued: new(big.Int).Set(l.st.totalAccrued),
		totalStaked:  new(big.Int).Set(l.st.totalStaked),
		participants: make(map[common.Address]*Participant),
	}
	l.pendingTx = tx
	l.pending = s
	tx.OnCommit(func() {
		l.apply(s)
		l.pendingTx = nil
		l.pending = nil
	})
	return s
}

func (l *Ledger) apply(s *state) {
	l.st.seeded = s.seeded
	l.st.rewardPool = s.rewardPool
	l.st.totalAccrued = s.totalAccrued
	l.st.totalStaked = s.totalStaked
	for addr, p := range s.participants {
		l.st.participants[addr] = p
	}
}

// participant returns addr's staged record, copying it from the committed
// state on first touch.
func (l *Ledger) participant(s *state, addr common.Address) *Participant {
	if p, ok := s.participants[addr]; ok {
		return p
	}
	p := newParticipant()
	if committed, ok := l.st.participants[addr]; ok {
		p = committed.clone()
	}
	s.participants[addr] = p
	return p
}

func (s *state) unallocated() *big.Int {
	return new(big.Int).Sub(s.rewardPool, s.totalAccrued)
}
