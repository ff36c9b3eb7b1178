package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrAssetExists           = errors.New("asset already registered")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrZeroAddress           = errors.New("zero address")
	ErrTxClosed              = errors.New("transaction already closed")
)

// Bank holds every fungible ledger plus the deployer nonce used to derive
// contract addresses. Not thread-safe; the engine serializes access.
type Bank struct {
	tokens   map[AssetID]*Token
	order    []AssetID
	deployer common.Address
	nonce    uint64
}

func NewBank(deployer common.Address) *Bank {
	return &Bank{
		tokens:   make(map[AssetID]*Token),
		deployer: deployer,
	}
}

// Register adds a token outside of any transaction (genesis, recovery).
func (b *Bank) Register(t *Token) error {
	if _, exists := b.tokens[t.Asset]; exists {
		return fmt.Errorf("%w: %s", ErrAssetExists, t.Asset.Hex())
	}
	b.tokens[t.Asset] = t
	b.order = append(b.order, t.Asset)
	return nil
}

// Token returns the ledger for asset
func (b *Bank) Token(asset AssetID) (*Token, bool) {
	t, ok := b.tokens[asset]
	return t, ok
}

// Tokens returns all ledgers in registration order
func (b *Bank) Tokens() []*Token {
	out := make([]*Token, 0, len(b.order))
	for _, asset := range b.order {
		out = append(out, b.tokens[asset])
	}
	return out
}

// BalanceOf returns owner's committed balance, zero for unknown assets
func (b *Bank) BalanceOf(asset AssetID, owner common.Address) *big.Int {
	if t, ok := b.tokens[asset]; ok {
		return t.BalanceOf(owner)
	}
	return new(big.Int)
}

// TotalSupply returns the committed supply, zero for unknown assets
func (b *Bank) TotalSupply(asset AssetID) *big.Int {
	if t, ok := b.tokens[asset]; ok {
		return t.TotalSupply()
	}
	return new(big.Int)
}

// Deployer is the origin address used for contract address derivation
func (b *Bank) Deployer() common.Address {
	return b.deployer
}

// Nonce returns the number of contract addresses handed out so far
func (b *Bank) Nonce() uint64 {
	return b.nonce
}

// SetNonce is used during recovery
func (b *Bank) SetNonce(n uint64) {
	b.nonce = n
}

// CreditGenesis mints amount of asset to owner outside of any transaction.
func (b *Bank) CreditGenesis(asset AssetID, owner common.Address, amount *big.Int) error {
	t, ok := b.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: genesis credit %s", ErrInvalidAmount, amount)
	}
	t.applyJournal(Journal{From: ZeroAddress, To: owner, Amount: amount, JournalType: JournalTypeMint})
	return nil
}

// Begin opens a staged view over the bank for one call.
func (b *Bank) Begin(eventRef string) *Tx {
	return &Tx{
		bank:       b,
		eventRef:   eventRef,
		tokens:     make(map[AssetID]*Token),
		balances:   make(map[AccountKey]*big.Int),
		supplies:   make(map[AssetID]*big.Int),
		allowances: make(map[AssetID]map[allowanceKey]*big.Int),
		nonce:      b.nonce,
	}
}

func contractAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}
