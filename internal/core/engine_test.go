package core_test

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// --- Test helpers ---

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")

	genesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.LRUCapacity = 1024
	cfg.Genesis = []core.Allocation{
		{Owner: alice, Amount: bi(10_000_000)},
		{Owner: bob, Amount: bi(10_000_000)},
		{Owner: carol, Amount: bi(10_000_000)},
	}
	return cfg
}

// newTestEngine creates an Engine with a buffered persist channel and no DB checker.
func newTestEngine(t *testing.T) (*core.Engine, chan core.CoreOutput) {
	t.Helper()
	persistChan := make(chan core.CoreOutput, 1024)
	e, err := core.NewEngine(testConfig(), persistChan, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, persistChan
}

// clock hands out strictly increasing call timestamps
type clock struct{ now time.Time }

func newClock() *clock { return &clock{now: genesisTime} }

func (c *clock) header(sender common.Address) event.Header {
	c.now = c.now.Add(time.Second)
	return event.Header{ID: uuid.New(), Sender: sender, Timestamp: c.now}
}

// same stamps a call at the last handed-out time
func (c *clock) same(sender common.Address) event.Header {
	return event.Header{ID: uuid.New(), Sender: sender, Timestamp: c.now}
}

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func mustApply(t *testing.T, e *core.Engine, evt event.Event) *core.Receipt {
	t.Helper()
	r, err := e.ProcessEvent(evt)
	if err != nil {
		t.Fatalf("%s: %v", evt.EventType(), err)
	}
	return r
}

func mustIssue(t *testing.T, e *core.Engine, c *clock, issuer common.Address, symbol string, supply *big.Int) common.Address {
	t.Helper()
	r := mustApply(t, e, &event.IssueAsset{Header: c.header(issuer), Symbol: symbol, Decimals: 18, Supply: supply})
	if r.Created == nil {
		t.Fatalf("IssueAsset returned no address")
	}
	return *r.Created
}

func mustApprove(t *testing.T, e *core.Engine, c *clock, owner, asset, spender common.Address, amount *big.Int) {
	t.Helper()
	mustApply(t, e, &event.Approve{Header: c.header(owner), Asset: asset, Spender: spender, Amount: amount})
}

// mustSeededPool issues a token for alice and seeds its pool
func mustSeededPool(t *testing.T, e *core.Engine, c *clock, symbol string, base, quote int64) (asset, pool common.Address) {
	t.Helper()
	asset = mustIssue(t, e, c, alice, symbol, bi(1_000_000))
	r := mustApply(t, e, &event.CreatePool{Header: c.header(alice), Asset: asset})
	pool = *r.Created
	mustApprove(t, e, c, alice, asset, pool, bi(1_000_000))
	mustApply(t, e, &event.AddLiquidity{Header: c.header(alice), Pool: pool, BaseAmount: bi(base), QuoteAmount: bi(quote)})
	return asset, pool
}

func mustBalance(t *testing.T, e *core.Engine, asset, owner common.Address) *big.Int {
	t.Helper()
	b, err := e.BalanceOf(asset, owner)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return b
}

func assertAmount(t *testing.T, what string, got *big.Int, want *big.Int) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Errorf("%s = %s, want %s", what, got, want)
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// ============================================================================
// Test: Genesis & Tokens
// ============================================================================

func TestGenesis_NativeAllocations(t *testing.T) {
	e, _ := newTestEngine(t)

	assertAmount(t, "alice native", mustBalance(t, e, ledger.NativeAsset, alice), bi(10_000_000))

	native, err := e.Token(ledger.NativeAsset)
	if err != nil {
		t.Fatalf("Token(native): %v", err)
	}
	assertAmount(t, "native supply", native.TotalSupply, bi(30_000_000))
	if native.Symbol != core.NativeSymbol {
		t.Errorf("native symbol = %q", native.Symbol)
	}

	if seq := e.GetSequence(); seq != 0 {
		t.Errorf("genesis sequence = %d, want 0", seq)
	}
	if e.GetStateHash() != core.GenesisHash() {
		t.Errorf("genesis hash mismatch")
	}
}

func TestIssueAsset_MintsToIssuer(t *testing.T) {
	e, persistCh := newTestEngine(t)
	c := newClock()

	asset := mustIssue(t, e, c, alice, "TKA", bi(5000))

	assertAmount(t, "alice TKA", mustBalance(t, e, asset, alice), bi(5000))
	tok, err := e.Token(asset)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.Issuer != alice || tok.Kind != "issued" {
		t.Errorf("token = %+v", tok)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	env := outputs[0].Envelope
	if env.Sequence != 1 || env.EventType != event.EventTypeIssueAsset || env.Sender != alice {
		t.Errorf("envelope = %+v", env)
	}
	if len(outputs[0].Batch.Journals) != 1 || outputs[0].Batch.Journals[0].JournalType != ledger.JournalTypeMint {
		t.Errorf("expected one mint journal, got %+v", outputs[0].Batch.Journals)
	}

	var decoded event.IssueAsset
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Symbol != "TKA" || decoded.Supply.Cmp(bi(5000)) != 0 {
		t.Errorf("payload = %+v", decoded)
	}
}

func TestTransferAndApprove(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	asset := mustIssue(t, e, c, alice, "TKA", bi(1000))

	r := mustApply(t, e, &event.Transfer{Header: c.header(alice), Asset: asset, To: bob, Amount: bi(400)})
	if len(r.Logs) != 1 || r.Logs[0].Type != event.LogTypeTransfer {
		t.Errorf("logs = %+v", r.Logs)
	}
	assertAmount(t, "alice", mustBalance(t, e, asset, alice), bi(600))
	assertAmount(t, "bob", mustBalance(t, e, asset, bob), bi(400))

	mustApprove(t, e, c, alice, asset, carol, bi(250))
	allowance, err := e.Allowance(asset, alice, carol)
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	assertAmount(t, "allowance", allowance, bi(250))

	_, err = e.ProcessEvent(&event.Transfer{Header: c.header(bob), Asset: asset, To: carol, Amount: bi(401)})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("overdraw: expected ErrInsufficientBalance, got %v", err)
	}
}

// ============================================================================
// Test: Pipeline guarantees
// ============================================================================

func TestDuplicateCall_Rejected(t *testing.T) {
	e, persistCh := newTestEngine(t)
	c := newClock()

	evt := &event.IssueAsset{Header: c.header(alice), Symbol: "TKA", Decimals: 18, Supply: bi(10)}
	mustApply(t, e, evt)

	_, err := e.ProcessEvent(evt)
	if !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if seq := e.GetSequence(); seq != 1 {
		t.Errorf("sequence = %d after duplicate, want 1", seq)
	}
	if n := len(drainOutputs(persistCh)); n != 1 {
		t.Errorf("expected 1 output, got %d", n)
	}
}

type stubDB struct{ keys map[string]bool }

func (s stubDB) IsDuplicate(eventType, key string) (bool, error) {
	return s.keys[core.CompositeKey(eventType, key)], nil
}

func TestDuplicateCall_RejectedByDatabaseTier(t *testing.T) {
	id := uuid.New()
	db := stubDB{keys: map[string]bool{core.CompositeKey("IssueAsset", id.String()): true}}
	e, err := core.NewEngine(testConfig(), nil, nil, db, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = e.ProcessEvent(&event.IssueAsset{
		Header: event.Header{ID: id, Sender: alice, Timestamp: genesisTime},
		Symbol: "TKA",
		Supply: bi(1),
	})
	if !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestClockRegression_Rejected(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	mustIssue(t, e, c, alice, "TKA", bi(10))

	stale := event.Header{ID: uuid.New(), Sender: alice, Timestamp: genesisTime}
	_, err := e.ProcessEvent(&event.IssueAsset{Header: stale, Symbol: "OLD", Supply: bi(1)})
	if !errors.Is(err, core.ErrClockRegression) {
		t.Fatalf("expected ErrClockRegression, got %v", err)
	}

	// Same timestamp as the last applied call is fine
	mustApply(t, e, &event.IssueAsset{Header: c.same(alice), Symbol: "SAME", Supply: bi(1)})
}

func TestInvalidHeader_Rejected(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name   string
		header event.Header
		want   error
	}{
		{"missing sender", event.Header{ID: uuid.New(), Timestamp: genesisTime}, core.ErrInvalidCall},
		{"missing timestamp", event.Header{ID: uuid.New(), Sender: alice}, core.ErrMissingTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ProcessEvent(&event.IssueAsset{Header: tt.header, Symbol: "X", Supply: bi(1)})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFailedCall_LeavesNoTrace(t *testing.T) {
	e, persistCh := newTestEngine(t)
	c := newClock()
	asset, pool := mustSeededPool(t, e, c, "TKA", 100000, 50000)
	drainOutputs(persistCh)

	seq := e.GetSequence()
	hash := e.GetStateHash()
	before := mustBalance(t, e, ledger.NativeAsset, bob)

	_, err := e.ProcessEvent(&event.SwapQuoteForBase{
		Header:     c.header(bob),
		Pool:       pool,
		QuoteIn:    bi(100),
		MinBaseOut: bi(200),
	})
	if err == nil {
		t.Fatal("expected slippage error")
	}

	if e.GetSequence() != seq || e.GetStateHash() != hash {
		t.Errorf("sequence/hash moved on a failed call")
	}
	assertAmount(t, "bob native", mustBalance(t, e, ledger.NativeAsset, bob), before)
	assertAmount(t, "bob base", mustBalance(t, e, asset, bob), bi(0))
	if n := len(drainOutputs(persistCh)); n != 0 {
		t.Errorf("failed call emitted %d outputs", n)
	}

	// The deployer nonce did not move either: the next asset gets the next address
	r := mustApply(t, e, &event.IssueAsset{Header: c.header(bob), Symbol: "TKB", Supply: bi(1)})
	if *r.Created == pool || *r.Created == asset {
		t.Errorf("address reuse: %s", r.Created.Hex())
	}
}

func TestUnknownTargets(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	nowhere := common.HexToAddress("0xdead")

	tests := []struct {
		name string
		evt  event.Event
		want error
	}{
		{"add liquidity", &event.AddLiquidity{Header: c.header(alice), Pool: nowhere, BaseAmount: bi(1), QuoteAmount: bi(1)}, core.ErrUnknownPool},
		{"swap", &event.SwapBaseForQuote{Header: c.header(alice), Pool: nowhere, BaseIn: bi(1)}, core.ErrUnknownPool},
		{"stake", &event.StakeAll{Header: c.header(alice), Ledger: nowhere}, core.ErrUnknownStakingLedger},
		{"transfer", &event.Transfer{Header: c.header(alice), Asset: nowhere, To: bob, Amount: bi(1)}, ledger.ErrUnknownAsset},
		{"missing amount", &event.Transfer{Header: c.header(alice), Asset: ledger.NativeAsset, To: bob}, core.ErrInvalidCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ProcessEvent(tt.evt)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHashChain_Links(t *testing.T) {
	e, persistCh := newTestEngine(t)
	c := newClock()
	mustSeededPool(t, e, c, "TKA", 100000, 50000)

	outputs := drainOutputs(persistCh)
	if len(outputs) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(outputs))
	}

	prev := core.GenesisHash()
	for i, o := range outputs {
		env := o.Envelope
		if env.Sequence != int64(i+1) {
			t.Errorf("output %d: sequence %d", i, env.Sequence)
		}
		if env.PrevHash != prev {
			t.Errorf("output %d: prev hash does not link", i)
		}
		if got := core.PeekHash(env.PrevHash, env.Sequence, o.StateDelta); got != env.StateHash {
			t.Errorf("output %d: state hash does not verify", i)
		}
		prev = env.StateHash
	}
	if e.GetStateHash() != prev {
		t.Errorf("engine tip differs from last envelope")
	}
}

// ============================================================================
// Test: Pools through the engine
// ============================================================================

func TestPool_SeedSwapAndQuote(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	asset, pool := mustSeededPool(t, e, c, "TKA", 100000, 50000)

	view, err := e.Pool(asset)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if view.Address != pool || view.LiquidityToken != pool {
		t.Errorf("view = %+v", view)
	}
	assertAmount(t, "LP supply", view.TotalSupply, bi(50000))

	q, err := e.Quote(asset, core.SideQuote, bi(100))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	assertAmount(t, "quote", q, bi(199))

	r := mustApply(t, e, &event.SwapQuoteForBase{Header: c.header(bob), Pool: pool, QuoteIn: bi(100)})
	assertAmount(t, "base out", r.Amounts[0], bi(199))
	assertAmount(t, "bob base", mustBalance(t, e, asset, bob), bi(199))

	view, _ = e.Pool(asset)
	assertAmount(t, "base reserve", view.BaseReserve, bi(99801))
	assertAmount(t, "quote reserve", view.QuoteReserve, bi(50100))

	if _, err := e.Quote(asset, "sideways", bi(1)); !errors.Is(err, core.ErrInvalidCall) {
		t.Errorf("bad side: %v", err)
	}
}

func TestPool_SwapBaseForQuoteAndRemove(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	asset, pool := mustSeededPool(t, e, c, "TKA", 100000, 50000)

	mustApply(t, e, &event.Transfer{Header: c.header(alice), Asset: asset, To: bob, Amount: bi(500)})
	mustApprove(t, e, c, bob, asset, pool, bi(500))

	r := mustApply(t, e, &event.SwapBaseForQuote{Header: c.header(bob), Pool: pool, BaseIn: bi(500)})
	assertAmount(t, "quote out", r.Amounts[0], bi(248))

	r = mustApply(t, e, &event.RemoveLiquidity{Header: c.header(alice), Pool: pool, Amount: bi(50000)})
	assertAmount(t, "quote share", r.Amounts[0], bi(49752))
	assertAmount(t, "base share", r.Amounts[1], bi(100500))

	view, _ := e.Pool(asset)
	if view.QuoteReserve.Sign() != 0 || view.BaseReserve.Sign() != 0 || view.TotalSupply.Sign() != 0 {
		t.Errorf("pool not empty after full removal: %+v", view)
	}
}

func TestPool_TwoHopReferenceScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	token1, _ := mustSeededPool(t, e, c, "TK1", 100000, 50000)
	token2, pool2 := mustSeededPool(t, e, c, "TK2", 200000, 50000)

	mustApply(t, e, &event.Transfer{Header: c.header(alice), Asset: token2, To: bob, Amount: bi(50000)})
	mustApprove(t, e, c, bob, token2, pool2, bi(50000))

	r := mustApply(t, e, &event.SwapBaseForAsset{
		Header:      c.header(bob),
		Asset:       token2,
		TargetAsset: token1,
		BaseIn:      bi(50000),
		MinOut:      bi(16590),
	})
	assertAmount(t, "token1 out", r.Amounts[0], bi(16590))
	assertAmount(t, "bob token1", mustBalance(t, e, token1, bob), bi(16590))

	swaps := 0
	for _, l := range r.Logs {
		if l.Type == event.LogTypeSwapExecuted {
			swaps++
		}
	}
	if swaps != 2 {
		t.Errorf("expected 2 SwapExecuted logs, got %d", swaps)
	}

	p1, _ := e.Pool(token1)
	p2, _ := e.Pool(token2)
	assertAmount(t, "pool1 base", p1.BaseReserve, bi(83410))
	assertAmount(t, "pool1 quote", p1.QuoteReserve, bi(59975))
	assertAmount(t, "pool2 base", p2.BaseReserve, bi(250000))
	assertAmount(t, "pool2 quote", p2.QuoteReserve, bi(40025))
}

func TestPool_TwoHopSlippageRollsBack(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()
	token1, pool1 := mustSeededPool(t, e, c, "TK1", 100000, 50000)
	token2, _ := mustSeededPool(t, e, c, "TK2", 200000, 50000)
	mustApprove(t, e, c, alice, token1, pool1, bi(1_000_000))

	aliceToken1 := mustBalance(t, e, token1, alice)
	_, err := e.ProcessEvent(&event.SwapBaseForAsset{
		Header:      c.header(alice),
		Asset:       token1,
		TargetAsset: token2,
		BaseIn:      bi(30000),
		MinOut:      bi(1_000_000),
	})
	if err == nil {
		t.Fatal("expected slippage on leg 2")
	}

	p1, _ := e.Pool(token1)
	p2, _ := e.Pool(token2)
	assertAmount(t, "pool1 quote", p1.QuoteReserve, bi(50000))
	assertAmount(t, "pool2 quote", p2.QuoteReserve, bi(50000))
	assertAmount(t, "alice token1", mustBalance(t, e, token1, alice), aliceToken1)
}

// ============================================================================
// Test: Staking through the engine
// ============================================================================

func TestStaking_OneDayAccrualAndClaim(t *testing.T) {
	e, _ := newTestEngine(t)
	c := newClock()

	stake := mustIssue(t, e, c, alice, "STK", units(100))
	reward := mustIssue(t, e, c, bob, "RWD", units(10))

	r := mustApply(t, e, &event.CreateStakingLedger{Header: c.header(bob), StakeAsset: stake, RewardAsset: reward})
	ledgerAddr := *r.Created

	mustApprove(t, e, c, bob, reward, ledgerAddr, units(1))
	mustApply(t, e, &event.FirstDeposit{Header: c.header(bob), Ledger: ledgerAddr, Amount: units(1)})

	mustApprove(t, e, c, alice, stake, ledgerAddr, units(10))
	mustApply(t, e, &event.PartialStake{Header: c.header(alice), Ledger: ledgerAddr, Amount: units(10)})

	c.advance(24*time.Hour - time.Second)
	r = mustApply(t, e, &event.AccrueReward{Header: c.header(carol), Ledger: ledgerAddr, Participant: alice})
	assertAmount(t, "reward", r.Amounts[0], big.NewInt(864_000_000_000_000))

	p, err := e.StakingParticipant(ledgerAddr, alice)
	if err != nil {
		t.Fatalf("StakingParticipant: %v", err)
	}
	assertAmount(t, "weight", p.Weight, bi(86401))

	// Same second as the accrual: nothing more to settle
	mustApply(t, e, &event.UnstakeAndClaimAll{Header: c.same(alice), Ledger: ledgerAddr})
	assertAmount(t, "alice stake", mustBalance(t, e, stake, alice), units(100))
	assertAmount(t, "alice reward", mustBalance(t, e, reward, alice), big.NewInt(864_000_000_000_000))

	view, err := e.StakingLedger(ledgerAddr)
	if err != nil {
		t.Fatalf("StakingLedger: %v", err)
	}
	if view.TotalStaked.Sign() != 0 || view.TotalAccrued.Sign() != 0 {
		t.Errorf("view = %+v", view)
	}
	assertAmount(t, "reward pool", view.RewardPool, new(big.Int).Sub(units(1), big.NewInt(864_000_000_000_000)))

	if _, err := e.StakingParticipant(ledgerAddr, carol); !errors.Is(err, core.ErrUnknownParticipant) {
		t.Errorf("carol: expected ErrUnknownParticipant, got %v", err)
	}
}

// ============================================================================
// Test: Snapshot & Replay
// ============================================================================

func TestSnapshot_RestoreContinuesChain(t *testing.T) {
	e1, _ := newTestEngine(t)
	c := newClock()
	asset, pool := mustSeededPool(t, e1, c, "TKA", 100000, 50000)
	mustApply(t, e1, &event.SwapQuoteForBase{Header: c.header(bob), Pool: pool, QuoteIn: bi(100)})

	raw, err := json.Marshal(e1.CreateSnapshotState())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var snap core.SnapshotState
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	e2, _ := newTestEngine(t)
	if err := e2.RestoreFromSnapshot(&snap); err != nil {
		t.Fatalf("RestoreFromSnapshot: %v", err)
	}

	s1, s2 := e1.Status(), e2.Status()
	if s1.Sequence != s2.Sequence || s1.StateHash != s2.StateHash || s1.Pools != s2.Pools || s1.Tokens != s2.Tokens {
		t.Errorf("status differs:\n%+v\n%+v", s2, s1)
	}
	if !s1.LastTimestamp.Equal(s2.LastTimestamp) {
		t.Errorf("last timestamp %s, want %s", s2.LastTimestamp, s1.LastTimestamp)
	}

	next := &event.SwapQuoteForBase{Header: c.header(carol), Pool: pool, QuoteIn: bi(1000)}
	r1 := mustApply(t, e1, next)
	r2 := mustApply(t, e2, next)
	if r1.StateHash != r2.StateHash {
		t.Errorf("restored engine diverged: %s vs %s", r1.StateHash, r2.StateHash)
	}
	assertAmount(t, "carol base", mustBalance(t, e2, asset, carol), r1.Amounts[0])

	// Idempotency keys survive the snapshot
	if _, err := e2.ProcessEvent(next); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate after restore, got %v", err)
	}
}

func TestReplay_ReproducesHashes(t *testing.T) {
	e1, persistCh := newTestEngine(t)
	c := newClock()

	var calls []event.Event
	record := func(evt event.Event) *core.Receipt {
		calls = append(calls, evt)
		return mustApply(t, e1, evt)
	}

	tka := *record(&event.IssueAsset{Header: c.header(alice), Symbol: "TKA", Decimals: 18, Supply: bi(1_000_000)}).Created
	record(&event.Transfer{Header: c.header(alice), Asset: tka, To: bob, Amount: bi(10)})
	record(&event.Approve{Header: c.header(bob), Asset: tka, Spender: carol, Amount: bi(5)})

	outputs := drainOutputs(persistCh)
	if len(outputs) != len(calls) {
		t.Fatalf("expected %d outputs, got %d", len(calls), len(outputs))
	}

	e2, replayCh := newTestEngine(t)
	for i, evt := range calls {
		if err := e2.Replay(evt, outputs[i].Envelope.StateHash); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}
	if e2.GetStateHash() != e1.GetStateHash() {
		t.Errorf("replayed tip differs")
	}
	if n := len(drainOutputs(replayCh)); n != 0 {
		t.Errorf("replay emitted %d outputs", n)
	}

	e3, _ := newTestEngine(t)
	if err := e3.Replay(calls[0], [32]byte{1}); !errors.Is(err, core.ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", err)
	}
}

// ============================================================================
// Test: Metrics wiring
// ============================================================================

func TestEngine_WithMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	e, err := core.NewEngine(testConfig(), nil, nil, nil, metrics, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	c := newClock()
	_, pool := mustSeededPool(t, e, c, "TKA", 100000, 50000)
	mustApply(t, e, &event.SwapQuoteForBase{Header: c.header(bob), Pool: pool, QuoteIn: bi(100)})

	if st := e.Status(); st.Sequence != 5 || st.Pools != 1 {
		t.Errorf("status = %+v", st)
	}
}
