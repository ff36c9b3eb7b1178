package ledger_test

import (
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000a000")
)

func bi(v int64) *big.Int { return big.NewInt(v) }

// newTestBank returns a bank with one issued token where alice holds 1000
func newTestBank(t *testing.T) (*ledger.Bank, *ledger.JournalGenerator) {
	t.Helper()
	bank := ledger.NewBank(deployer)
	if err := bank.Register(ledger.NewToken(tokenA, "TKA", 18, ledger.TokenKindIssued, alice)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := bank.CreditGenesis(tokenA, alice, bi(1000)); err != nil {
		t.Fatalf("genesis credit: %v", err)
	}
	return bank, ledger.NewJournalGenerator(1)
}

func mustCommit(t *testing.T, tx *ledger.Tx, gen *ledger.JournalGenerator) (*ledger.Batch, []event.Log) {
	t.Helper()
	batch, logs, err := tx.Commit(gen, 1_700_000_000_000_000)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return batch, logs
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_PathRoundTrip(t *testing.T) {
	key := ledger.NewAccountKey(tokenA, alice)

	path := key.AccountPath()
	expected := "0x000000000000000000000000000000000000a000:0x00000000000000000000000000000000000000a1"
	if path != expected {
		t.Fatalf("got %q, want %q", path, expected)
	}

	parsed, err := ledger.ParseAccountPath(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != key {
		t.Errorf("parsed %+v, want %+v", parsed, key)
	}
}

func TestParseAccountPath_Malformed(t *testing.T) {
	for _, path := range []string{"", "0xabc", "user:collateral:USDT", tokenA.Hex()} {
		if _, err := ledger.ParseAccountPath(path); err == nil {
			t.Errorf("expected error for %q", path)
		}
	}
}

// ============================================================================
// Test: Tx transfers
// ============================================================================

func TestTx_Transfer(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("transfer-1")
	if err := tx.Transfer(tokenA, alice, bob, bi(300)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// Staged view sees the move, the bank does not yet
	if got := tx.BalanceOf(tokenA, bob); got.Cmp(bi(300)) != 0 {
		t.Errorf("staged bob balance: got %s, want 300", got)
	}
	if got := bank.BalanceOf(tokenA, bob); got.Sign() != 0 {
		t.Errorf("bank bob balance before commit: got %s, want 0", got)
	}

	batch, logs := mustCommit(t, tx, gen)

	if got := bank.BalanceOf(tokenA, alice); got.Cmp(bi(700)) != 0 {
		t.Errorf("alice: got %s, want 700", got)
	}
	if got := bank.BalanceOf(tokenA, bob); got.Cmp(bi(300)) != 0 {
		t.Errorf("bob: got %s, want 300", got)
	}
	if got := bank.TotalSupply(tokenA); got.Cmp(bi(1000)) != 0 {
		t.Errorf("supply: got %s, want 1000", got)
	}

	if len(batch.Journals) != 1 || batch.Journals[0].JournalType != ledger.JournalTypeTransfer {
		t.Fatalf("expected one transfer journal, got %+v", batch.Journals)
	}
	if batch.Journals[0].DebitAccount() != ledger.NewAccountKey(tokenA, bob) {
		t.Errorf("debit account should be bob")
	}
	if len(logs) != 1 || logs[0].Type != event.LogTypeTransfer {
		t.Fatalf("expected one Transfer log, got %+v", logs)
	}
	if gen.Sequence() != 2 {
		t.Errorf("generator should advance to 2, got %d", gen.Sequence())
	}
}

func TestTx_Transfer_InsufficientBalance(t *testing.T) {
	bank, _ := newTestBank(t)

	tx := bank.Begin("transfer-2")
	err := tx.Transfer(tokenA, alice, bob, bi(1001))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTx_Transfer_ToZeroAddress(t *testing.T) {
	bank, _ := newTestBank(t)

	tx := bank.Begin("transfer-3")
	err := tx.Transfer(tokenA, alice, ledger.ZeroAddress, bi(1))
	if !errors.Is(err, ledger.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestTx_Transfer_UnknownAsset(t *testing.T) {
	bank, _ := newTestBank(t)

	tx := bank.Begin("transfer-4")
	err := tx.Transfer(common.HexToAddress("0xdead"), alice, bob, bi(1))
	if !errors.Is(err, ledger.ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestTx_Transfer_NegativeAmount(t *testing.T) {
	bank, _ := newTestBank(t)

	tx := bank.Begin("transfer-5")
	err := tx.Transfer(tokenA, alice, bob, bi(-1))
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTx_Transfer_ZeroAmountIsNoOp(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("transfer-6")
	if err := tx.Transfer(tokenA, bob, carol, bi(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	batch, logs := mustCommit(t, tx, gen)

	if len(batch.Journals) != 0 {
		t.Errorf("zero transfer should produce no journals, got %d", len(batch.Journals))
	}
	if len(logs) != 1 {
		t.Errorf("zero transfer should still log, got %d logs", len(logs))
	}
}

// ============================================================================
// Test: Tx allowances
// ============================================================================

func TestTx_TransferFrom_RequiresAllowance(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("tf-1")
	err := tx.TransferFrom(tokenA, bob, alice, carol, bi(10))
	if !errors.Is(err, ledger.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	tx.Discard()

	tx = bank.Begin("tf-2")
	if err := tx.Approve(tokenA, alice, bob, bi(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tx.TransferFrom(tokenA, bob, alice, carol, bi(20)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	mustCommit(t, tx, gen)

	if got := bank.BalanceOf(tokenA, carol); got.Cmp(bi(20)) != 0 {
		t.Errorf("carol: got %s, want 20", got)
	}
	tok, _ := bank.Token(tokenA)
	if got := tok.Allowance(alice, bob); got.Cmp(bi(30)) != 0 {
		t.Errorf("remaining allowance: got %s, want 30", got)
	}
}

func TestTx_TransferFrom_SelfNeedsNoAllowance(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("tf-3")
	if err := tx.TransferFrom(tokenA, alice, alice, bob, bi(5)); err != nil {
		t.Fatalf("self transferFrom: %v", err)
	}
	mustCommit(t, tx, gen)

	if got := bank.BalanceOf(tokenA, bob); got.Cmp(bi(5)) != 0 {
		t.Errorf("bob: got %s, want 5", got)
	}
}

// ============================================================================
// Test: Mint, Burn, supply
// ============================================================================

func TestTx_MintBurn_TracksSupply(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("mint-1")
	if err := tx.Mint(tokenA, bob, bi(250)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tx.Burn(tokenA, alice, bi(100)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := tx.TotalSupply(tokenA); got.Cmp(bi(1150)) != 0 {
		t.Errorf("staged supply: got %s, want 1150", got)
	}
	batch, _ := mustCommit(t, tx, gen)

	if got := bank.TotalSupply(tokenA); got.Cmp(bi(1150)) != 0 {
		t.Errorf("supply: got %s, want 1150", got)
	}
	if len(batch.Journals) != 2 {
		t.Fatalf("expected 2 journals, got %d", len(batch.Journals))
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeMint || batch.Journals[1].JournalType != ledger.JournalTypeBurn {
		t.Errorf("unexpected journal types: %v, %v", batch.Journals[0].JournalType, batch.Journals[1].JournalType)
	}

	v := ledger.NewInvariantValidator(bank)
	if err := v.ValidateAll(); err != nil {
		t.Errorf("supply invariant: %v", err)
	}
}

func TestTx_Burn_Insufficient(t *testing.T) {
	bank, _ := newTestBank(t)

	tx := bank.Begin("burn-1")
	if err := tx.Burn(tokenA, bob, bi(1)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

// ============================================================================
// Test: Discard and registration
// ============================================================================

func TestTx_Discard_LeavesBankUntouched(t *testing.T) {
	bank, gen := newTestBank(t)
	hookRan := false

	tx := bank.Begin("discard-1")
	addr := tx.CreateAddress()
	if err := tx.RegisterToken(ledger.NewToken(addr, "NEW", 18, ledger.TokenKindIssued, alice)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tx.Mint(addr, alice, bi(99)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tx.Transfer(tokenA, alice, bob, bi(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	tx.OnCommit(func() { hookRan = true })
	tx.Discard()

	if _, ok := bank.Token(addr); ok {
		t.Error("discarded token should not be registered")
	}
	if bank.Nonce() != 0 {
		t.Errorf("nonce should be unchanged, got %d", bank.Nonce())
	}
	if got := bank.BalanceOf(tokenA, alice); got.Cmp(bi(1000)) != 0 {
		t.Errorf("alice: got %s, want 1000", got)
	}
	if hookRan {
		t.Error("commit hook ran on discard")
	}
	if gen.Sequence() != 1 {
		t.Errorf("generator should not advance on discard, got %d", gen.Sequence())
	}

	if _, _, err := tx.Commit(gen, 0); !errors.Is(err, ledger.ErrTxClosed) {
		t.Errorf("commit after discard: expected ErrTxClosed, got %v", err)
	}
}

func TestTx_CreateAddress_Deterministic(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("addr-1")
	first := tx.CreateAddress()
	second := tx.CreateAddress()
	mustCommit(t, tx, gen)

	if first != crypto.CreateAddress(deployer, 0) {
		t.Errorf("first address: got %s", first.Hex())
	}
	if second != crypto.CreateAddress(deployer, 1) {
		t.Errorf("second address: got %s", second.Hex())
	}
	if bank.Nonce() != 2 {
		t.Errorf("nonce: got %d, want 2", bank.Nonce())
	}
}

func TestTx_RegisterToken_Duplicate(t *testing.T) {
	bank, _ := newTestBank(t)

	tx := bank.Begin("dup-1")
	err := tx.RegisterToken(ledger.NewToken(tokenA, "TKA", 18, ledger.TokenKindIssued, alice))
	if !errors.Is(err, ledger.ErrAssetExists) {
		t.Fatalf("expected ErrAssetExists, got %v", err)
	}
}

func TestTx_LiquidityTokenEmitsLiquidityTransfer(t *testing.T) {
	bank, gen := newTestBank(t)

	tx := bank.Begin("lp-1")
	pool := tx.CreateAddress()
	if err := tx.RegisterToken(ledger.NewToken(pool, "SLP", 18, ledger.TokenKindLiquidity, pool)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tx.Mint(pool, alice, bi(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, logs := mustCommit(t, tx, gen)

	if len(logs) != 1 || logs[0].Type != event.LogTypeLiquidityTransfer {
		t.Fatalf("expected LiquidityTransfer log, got %+v", logs)
	}
	if logs[0].From != ledger.ZeroAddress || logs[0].To != alice {
		t.Errorf("mint log should go from zero to alice, got %s -> %s", logs[0].From.Hex(), logs[0].To.Hex())
	}
}

func TestTx_HooksRunAfterApply(t *testing.T) {
	bank, gen := newTestBank(t)
	var seen *big.Int

	tx := bank.Begin("hook-1")
	if err := tx.Transfer(tokenA, alice, bob, bi(1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	tx.OnCommit(func() { seen = bank.BalanceOf(tokenA, bob) })
	mustCommit(t, tx, gen)

	if seen == nil || seen.Cmp(bi(1)) != 0 {
		t.Errorf("hook should observe committed balance 1, got %v", seen)
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func journal(batchID uuid.UUID, from, to common.Address, amount int64, jt ledger.JournalType) ledger.Journal {
	return ledger.Journal{
		JournalID:   uuid.New(),
		BatchID:     batchID,
		Asset:       tokenA,
		From:        from,
		To:          to,
		Amount:      bi(amount),
		JournalType: jt,
	}
}

func TestBatchValidate(t *testing.T) {
	batchID := uuid.New()

	tests := []struct {
		name    string
		journal ledger.Journal
		wantErr bool
	}{
		{"valid transfer", journal(batchID, alice, bob, 10, ledger.JournalTypeTransfer), false},
		{"valid mint", journal(batchID, ledger.ZeroAddress, bob, 10, ledger.JournalTypeMint), false},
		{"valid burn", journal(batchID, alice, ledger.ZeroAddress, 10, ledger.JournalTypeBurn), false},
		{"zero amount", journal(batchID, alice, bob, 0, ledger.JournalTypeTransfer), true},
		{"negative amount", journal(batchID, alice, bob, -5, ledger.JournalTypeTransfer), true},
		{"self transfer", journal(batchID, alice, alice, 10, ledger.JournalTypeTransfer), true},
		{"mismatched batch", journal(uuid.New(), alice, bob, 10, ledger.JournalTypeTransfer), true},
		{"mint from holder", journal(batchID, alice, bob, 10, ledger.JournalTypeMint), true},
		{"burn to holder", journal(batchID, alice, bob, 10, ledger.JournalTypeBurn), true},
		{"transfer to zero", journal(batchID, alice, ledger.ZeroAddress, 10, ledger.JournalTypeTransfer), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{tc.journal}}
			err := batch.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBatchValidate_EmptyBatch_Passes(t *testing.T) {
	batch := &ledger.Batch{BatchID: uuid.New()}
	if err := batch.Validate(); err != nil {
		t.Errorf("empty batch should pass: %v", err)
	}
}

// ============================================================================
// Test: Token restore
// ============================================================================

func TestToken_RestoreAndHolders(t *testing.T) {
	tok := ledger.NewToken(tokenA, "TKA", 18, ledger.TokenKindIssued, alice)
	tok.Restore(
		map[common.Address]*big.Int{bob: bi(7), alice: bi(3), carol: bi(0)},
		map[common.Address]map[common.Address]*big.Int{alice: {bob: bi(2)}},
		bi(10),
	)

	holders := tok.Holders()
	if len(holders) != 2 || holders[0] != alice || holders[1] != bob {
		t.Errorf("holders: got %v", holders)
	}
	if got := tok.Allowance(alice, bob); got.Cmp(bi(2)) != 0 {
		t.Errorf("allowance: got %s, want 2", got)
	}
	if got := tok.TotalSupply(); got.Cmp(bi(10)) != 0 {
		t.Errorf("supply: got %s, want 10", got)
	}
}
