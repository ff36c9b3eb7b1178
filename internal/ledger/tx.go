package ledger

import (
	"SwapLedger/internal/event"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Tx is a staged view over a Bank for one call. Reads see the staged state,
// writes are recorded as journal entries and absolute balances. Nothing reaches
// the bank until Commit; Discard drops everything.
type Tx struct {
	bank     *Bank
	eventRef string

	tokens     map[AssetID]*Token
	tokenOrder []AssetID
	balances   map[AccountKey]*big.Int
	supplies   map[AssetID]*big.Int
	allowances map[AssetID]map[allowanceKey]*big.Int
	nonce      uint64

	entries []entry
	logs    []event.Log
	hooks   []func()
	closed  bool
}

// EventRef returns the idempotency key of the call this transaction belongs to
func (tx *Tx) EventRef() string {
	return tx.eventRef
}

func (tx *Tx) token(asset AssetID) (*Token, error) {
	if t, ok := tx.tokens[asset]; ok {
		return t, nil
	}
	if t, ok := tx.bank.tokens[asset]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
}

// HasToken reports whether asset is registered, staged registrations included
func (tx *Tx) HasToken(asset AssetID) bool {
	_, err := tx.token(asset)
	return err == nil
}

// Token returns the ledger metadata for asset, staged registrations included
func (tx *Tx) Token(asset AssetID) (*Token, error) {
	return tx.token(asset)
}

// CreateAddress derives the next contract address from the deployer nonce.
func (tx *Tx) CreateAddress() common.Address {
	addr := contractAddress(tx.bank.deployer, tx.nonce)
	tx.nonce++
	return addr
}

// RegisterToken stages a new ledger. It becomes visible to the bank on Commit.
func (tx *Tx) RegisterToken(t *Token) error {
	if t.Asset == ZeroAddress {
		return fmt.Errorf("%w: token identifier", ErrZeroAddress)
	}
	if tx.HasToken(t.Asset) {
		return fmt.Errorf("%w: %s", ErrAssetExists, t.Asset.Hex())
	}
	tx.tokens[t.Asset] = t
	tx.tokenOrder = append(tx.tokenOrder, t.Asset)
	return nil
}

// BalanceOf returns owner's staged balance of asset. Unknown assets read as zero.
func (tx *Tx) BalanceOf(asset AssetID, owner common.Address) *big.Int {
	if b, ok := tx.balances[NewAccountKey(asset, owner)]; ok {
		return new(big.Int).Set(b)
	}
	if t, err := tx.token(asset); err == nil {
		return t.BalanceOf(owner)
	}
	return new(big.Int)
}

// TotalSupply returns the staged supply of asset
func (tx *Tx) TotalSupply(asset AssetID) *big.Int {
	if s, ok := tx.supplies[asset]; ok {
		return new(big.Int).Set(s)
	}
	if t, err := tx.token(asset); err == nil {
		return t.TotalSupply()
	}
	return new(big.Int)
}

// Allowance returns the staged allowance of spender over owner's asset
func (tx *Tx) Allowance(asset AssetID, owner, spender common.Address) *big.Int {
	if staged, ok := tx.allowances[asset]; ok {
		if a, ok := staged[allowanceKey{owner, spender}]; ok {
			return new(big.Int).Set(a)
		}
	}
	if t, err := tx.token(asset); err == nil {
		return t.Allowance(owner, spender)
	}
	return new(big.Int)
}

// Transfer moves amount of asset from one holder to another. A zero amount
// is a no-op that still emits the Transfer log.
func (tx *Tx) Transfer(asset AssetID, from, to common.Address, amount *big.Int) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	t, err := tx.token(asset)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == ZeroAddress || to == ZeroAddress {
		return fmt.Errorf("%w: transfer %s -> %s", ErrZeroAddress, from.Hex(), to.Hex())
	}

	bal := tx.BalanceOf(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), bal, asset.Hex(), amount)
	}

	if amount.Sign() > 0 && from != to {
		tx.setBalance(asset, from, bal.Sub(bal, amount))
		toBal := tx.BalanceOf(asset, to)
		tx.setBalance(asset, to, toBal.Add(toBal, amount))
		tx.record(asset, from, to, amount, JournalTypeTransfer)
	}

	tx.emitTransfer(t, from, to, amount)
	return nil
}

// TransferFrom moves amount on behalf of from. The spender needs an allowance
// unless it is the holder itself; the allowance is reduced by amount.
func (tx *Tx) TransferFrom(asset AssetID, spender, from, to common.Address, amount *big.Int) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if spender != from {
		allowed := tx.Allowance(asset, from, spender)
		if allowed.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s may move %s of %s for %s, needs %s",
				ErrInsufficientAllowance, spender.Hex(), allowed, asset.Hex(), from.Hex(), amount)
		}
		if err := tx.Transfer(asset, from, to, amount); err != nil {
			return err
		}
		tx.setAllowance(asset, from, spender, allowed.Sub(allowed, amount))
		return nil
	}
	return tx.Transfer(asset, from, to, amount)
}

// Approve sets the amount spender may move on owner's behalf
func (tx *Tx) Approve(asset AssetID, owner, spender common.Address, amount *big.Int) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if _, err := tx.token(asset); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if owner == ZeroAddress || spender == ZeroAddress {
		return fmt.Errorf("%w: approve %s -> %s", ErrZeroAddress, owner.Hex(), spender.Hex())
	}
	tx.setAllowance(asset, owner, spender, amount)
	tx.Emit(event.Log{
		Type:    event.LogTypeApproval,
		Emitter: asset,
		From:    owner,
		To:      spender,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// Mint creates amount of asset in to's balance
func (tx *Tx) Mint(asset AssetID, to common.Address, amount *big.Int) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	t, err := tx.token(asset)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == ZeroAddress {
		return fmt.Errorf("%w: mint destination", ErrZeroAddress)
	}
	if amount.Sign() == 0 {
		return nil
	}

	bal := tx.BalanceOf(asset, to)
	tx.setBalance(asset, to, bal.Add(bal, amount))
	supply := tx.TotalSupply(asset)
	tx.supplies[asset] = supply.Add(supply, amount)
	tx.record(asset, ZeroAddress, to, amount, JournalTypeMint)
	tx.emitTransfer(t, ZeroAddress, to, amount)
	return nil
}

// Burn destroys amount of asset from from's balance
func (tx *Tx) Burn(asset AssetID, from common.Address, amount *big.Int) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	t, err := tx.token(asset)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}

	bal := tx.BalanceOf(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, burn needs %s",
			ErrInsufficientBalance, from.Hex(), bal, asset.Hex(), amount)
	}
	tx.setBalance(asset, from, bal.Sub(bal, amount))
	supply := tx.TotalSupply(asset)
	tx.supplies[asset] = supply.Sub(supply, amount)
	tx.record(asset, from, ZeroAddress, amount, JournalTypeBurn)
	tx.emitTransfer(t, from, ZeroAddress, amount)
	return nil
}

// Emit appends an audit log entry to the transaction
func (tx *Tx) Emit(l event.Log) {
	tx.logs = append(tx.logs, l)
}

// Logs returns the entries emitted so far
func (tx *Tx) Logs() []event.Log {
	out := make([]event.Log, len(tx.logs))
	copy(out, tx.logs)
	return out
}

// OnCommit registers fn to run after the ledger changes have been applied.
// Hooks run in registration order and only when Commit succeeds.
func (tx *Tx) OnCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

// Commit applies the staged changes to the bank and runs the commit hooks.
func (tx *Tx) Commit(gen *JournalGenerator, timestamp int64) (*Batch, []event.Log, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, nil, err
	}

	batch := gen.Generate(tx.eventRef, timestamp, tx.entries)
	if err := batch.Validate(); err != nil {
		tx.Discard()
		return nil, nil, fmt.Errorf("invalid batch: %w", err)
	}

	for _, asset := range tx.tokenOrder {
		if err := tx.bank.Register(tx.tokens[asset]); err != nil {
			tx.Discard()
			return nil, nil, err
		}
	}

	for _, j := range batch.Journals {
		tx.bank.tokens[j.Asset].applyJournal(j)
	}

	for asset, staged := range tx.allowances {
		t := tx.bank.tokens[asset]
		for k, amount := range staged {
			t.setAllowance(k.Owner, k.Spender, amount)
		}
	}

	tx.bank.nonce = tx.nonce
	gen.Advance()

	for _, fn := range tx.hooks {
		fn()
	}

	logs := tx.logs
	tx.close()
	return batch, logs, nil
}

// Discard drops every staged change. Safe to call more than once.
func (tx *Tx) Discard() {
	tx.close()
}

func (tx *Tx) close() {
	tx.closed = true
	tx.tokens = nil
	tx.tokenOrder = nil
	tx.balances = nil
	tx.supplies = nil
	tx.allowances = nil
	tx.entries = nil
	tx.logs = nil
	tx.hooks = nil
}

func (tx *Tx) checkOpen() error {
	if tx.closed {
		return ErrTxClosed
	}
	return nil
}

func (tx *Tx) setBalance(asset AssetID, owner common.Address, amount *big.Int) {
	tx.balances[NewAccountKey(asset, owner)] = amount
}

func (tx *Tx) setAllowance(asset AssetID, owner, spender common.Address, amount *big.Int) {
	staged, ok := tx.allowances[asset]
	if !ok {
		staged = make(map[allowanceKey]*big.Int)
		tx.allowances[asset] = staged
	}
	staged[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

func (tx *Tx) record(asset AssetID, from, to common.Address, amount *big.Int, jt JournalType) {
	tx.entries = append(tx.entries, entry{
		asset:       asset,
		from:        from,
		to:          to,
		amount:      new(big.Int).Set(amount),
		journalType: jt,
	})
}

func (tx *Tx) emitTransfer(t *Token, from, to common.Address, amount *big.Int) {
	lt := event.LogTypeTransfer
	if t.Kind == TokenKindLiquidity {
		lt = event.LogTypeLiquidityTransfer
	}
	tx.Emit(event.Log{
		Type:    lt,
		Emitter: t.Asset,
		From:    from,
		To:      to,
		Amount:  new(big.Int).Set(amount),
	})
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
