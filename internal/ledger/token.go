package ledger

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenKind distinguishes how a token came to exist
type TokenKind uint8

const (
	TokenKindNative TokenKind = iota
	TokenKindIssued
	TokenKindLiquidity
)

func (k TokenKind) String() string {
	switch k {
	case TokenKindNative:
		return "native"
	case TokenKindIssued:
		return "issued"
	case TokenKindLiquidity:
		return "liquidity"
	default:
		return "unknown"
	}
}

// Token is a fungible ledger: balances, allowances and total supply for one asset.
// Not thread-safe. Mutated only by Tx.Commit under the engine's write lock.
type Token struct {
	Asset    AssetID
	Symbol   string
	Decimals uint8
	Kind     TokenKind
	Issuer   common.Address

	balances    map[common.Address]*big.Int
	allowances  map[allowanceKey]*big.Int
	totalSupply *big.Int
}

func NewToken(asset AssetID, symbol string, decimals uint8, kind TokenKind, issuer common.Address) *Token {
	return &Token{
		Asset:       asset,
		Symbol:      symbol,
		Decimals:    decimals,
		Kind:        kind,
		Issuer:      issuer,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[allowanceKey]*big.Int),
		totalSupply: new(big.Int),
	}
}

// BalanceOf returns a copy of owner's balance
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	if b, ok := t.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns a copy of what spender may move on owner's behalf
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// TotalSupply returns a copy of the circulating supply
func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

// Holders returns every owner with a non-zero balance, sorted by address.
func (t *Token) Holders() []common.Address {
	holders := make([]common.Address, 0, len(t.balances))
	for owner, bal := range t.balances {
		if bal.Sign() != 0 {
			holders = append(holders, owner)
		}
	}
	sort.Slice(holders, func(i, j int) bool {
		return bytes.Compare(holders[i][:], holders[j][:]) < 0
	})
	return holders
}

// Allowances returns a copy of all non-zero allowances.
func (t *Token) Allowances() map[common.Address]map[common.Address]*big.Int {
	out := make(map[common.Address]map[common.Address]*big.Int)
	for k, v := range t.allowances {
		if v.Sign() == 0 {
			continue
		}
		if out[k.Owner] == nil {
			out[k.Owner] = make(map[common.Address]*big.Int)
		}
		out[k.Owner][k.Spender] = new(big.Int).Set(v)
	}
	return out
}

// applyJournal moves Amount from From to To. Zero addresses mint and burn.
func (t *Token) applyJournal(j Journal) {
	if j.From != ZeroAddress {
		t.addBalance(j.From, new(big.Int).Neg(j.Amount))
	} else {
		t.totalSupply.Add(t.totalSupply, j.Amount)
	}

	if j.To != ZeroAddress {
		t.addBalance(j.To, j.Amount)
	} else {
		t.totalSupply.Sub(t.totalSupply, j.Amount)
	}
}

func (t *Token) addBalance(owner common.Address, delta *big.Int) {
	bal, ok := t.balances[owner]
	if !ok {
		bal = new(big.Int)
		t.balances[owner] = bal
	}
	bal.Add(bal, delta)
	if bal.Sign() == 0 {
		delete(t.balances, owner)
	}
}

func (t *Token) setAllowance(owner, spender common.Address, amount *big.Int) {
	key := allowanceKey{owner, spender}
	if amount.Sign() == 0 {
		delete(t.allowances, key)
		return
	}
	t.allowances[key] = new(big.Int).Set(amount)
}

// Restore replaces the token's state. Used for snapshot recovery only.
func (t *Token) Restore(
	balances map[common.Address]*big.Int,
	allowances map[common.Address]map[common.Address]*big.Int,
	totalSupply *big.Int,
) {
	t.balances = make(map[common.Address]*big.Int, len(balances))
	for owner, bal := range balances {
		if bal.Sign() != 0 {
			t.balances[owner] = new(big.Int).Set(bal)
		}
	}
	t.allowances = make(map[allowanceKey]*big.Int)
	for owner, spenders := range allowances {
		for spender, amt := range spenders {
			t.setAllowance(owner, spender, amt)
		}
	}
	t.totalSupply = new(big.Int).Set(totalSupply)
}
