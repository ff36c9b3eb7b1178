package ingestion_test

import (
	"SwapLedger/internal/event"
	"SwapLedger/internal/ingestion"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	ledger = common.HexToAddress("0x1111111111111111111111111111111111111111")
	pool   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	asset  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func header() event.Header {
	return event.Header{
		ID:        uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Sender:    alice,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ============================================================================
// ParseCall
// ============================================================================

func TestParseCall_Transfer(t *testing.T) {
	data := []byte(`{
		"id": "550e8400-e29b-41d4-a716-446655440000",
		"sender": "0x00000000000000000000000000000000000a11ce",
		"timestamp": "2024-01-01T00:00:01Z",
		"asset": "0x3333333333333333333333333333333333333333",
		"to": "0x0000000000000000000000000000000000000b0b",
		"amount": 1000000000000000000000000000000
	}`)

	evt, err := ingestion.ParseCall("Transfer", data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tr, ok := evt.(*event.Transfer)
	if !ok {
		t.Fatalf("expected *event.Transfer, got %T", evt)
	}

	want, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	if tr.Amount.Cmp(want) != 0 {
		t.Errorf("amount: got %s, want %s", tr.Amount, want)
	}
	if tr.To != bob || tr.Asset != asset || tr.Caller() != alice {
		t.Errorf("addresses: to=%s asset=%s sender=%s", tr.To.Hex(), tr.Asset.Hex(), tr.Caller().Hex())
	}
	if tr.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", tr.IdempotencyKey())
	}
	if !tr.EventTime().Equal(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)) {
		t.Errorf("timestamp: got %s", tr.EventTime())
	}
}

func TestParseCall_SwapRecipientDefaultsToSender(t *testing.T) {
	evt, err := ingestion.ParseCall("SwapQuoteForBase", []byte(`{
		"id": "550e8400-e29b-41d4-a716-446655440000",
		"sender": "0x00000000000000000000000000000000000a11ce",
		"timestamp": "2024-01-01T00:00:01Z",
		"pool": "0x2222222222222222222222222222222222222222",
		"quote_in": 250
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	swap := evt.(*event.SwapQuoteForBase)
	if swap.PayTo() != alice {
		t.Errorf("PayTo without recipient: got %s, want sender", swap.PayTo().Hex())
	}
	if swap.MinBaseOut != nil {
		t.Errorf("min_base_out: got %s, want nil", swap.MinBaseOut)
	}
}

// Stored payloads are the engine's JSON encoding of the call; replay parses
// them back with ParseCall.
func TestParseCall_AcceptsStoredEncoding(t *testing.T) {
	calls := []event.Event{
		&event.IssueAsset{Header: header(), Symbol: "TKN", Decimals: 18, Supply: big.NewInt(1_000_000)},
		&event.Transfer{Header: header(), Asset: asset, To: bob, Amount: big.NewInt(5)},
		&event.Approve{Header: header(), Asset: asset, Spender: pool, Amount: big.NewInt(5)},
		&event.CreatePool{Header: header(), Asset: asset},
		&event.AddLiquidity{Header: header(), Pool: pool, BaseAmount: big.NewInt(100), QuoteAmount: big.NewInt(100)},
		&event.RemoveLiquidity{Header: header(), Pool: pool, Amount: big.NewInt(10)},
		&event.SwapQuoteForBase{Header: header(), Pool: pool, QuoteIn: big.NewInt(250), Recipient: &bob},
		&event.SwapBaseForQuote{Header: header(), Pool: pool, BaseIn: big.NewInt(250), MinQuoteOut: big.NewInt(1)},
		&event.SwapBaseForOtherBase{Header: header(), Pool: pool, OtherPool: ledger, BaseIn: big.NewInt(1)},
		&event.SwapBaseForAsset{Header: header(), Asset: asset, TargetAsset: pool, BaseIn: big.NewInt(1)},
		&event.CreateStakingLedger{Header: header(), StakeAsset: asset, RewardAsset: pool},
		&event.FirstDeposit{Header: header(), Ledger: ledger, Amount: big.NewInt(1)},
		&event.PartialStake{Header: header(), Ledger: ledger, Amount: big.NewInt(1)},
		&event.StakeAll{Header: header(), Ledger: ledger},
		&event.PartialUnstake{Header: header(), Ledger: ledger, Amount: big.NewInt(1)},
		&event.UnstakeAll{Header: header(), Ledger: ledger},
		&event.AccrueReward{Header: header(), Ledger: ledger, Participant: bob},
		&event.ClaimPartialReward{Header: header(), Ledger: ledger, Amount: big.NewInt(1)},
		&event.ClaimAllReward{Header: header(), Ledger: ledger},
		&event.UnstakeAndClaimAll{Header: header(), Ledger: ledger},
	}

	for _, call := range calls {
		name := call.EventType().String()
		stored, err := json.Marshal(call)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		parsed, err := ingestion.ParseCall(name, stored)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if parsed.EventType() != call.EventType() {
			t.Errorf("%s: parsed as %s", name, parsed.EventType())
		}
		again, _ := json.Marshal(parsed)
		if string(again) != string(stored) {
			t.Errorf("%s: re-encoding differs\n got %s\nwant %s", name, again, stored)
		}
	}
}

func TestParseCall_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      string
	}{
		{"unknown type", "Mint", `{}`},
		{"invalid json", "Transfer", `{`},
		{"unknown field", "Transfer", `{"amount": 1, "memo": "x"}`},
		{"bad address", "Transfer", `{"to": "0x12"}`},
		{"quoted amount", "Transfer", `{"amount": "10"}`},
		{"fractional amount", "Transfer", `{"amount": 1.5}`},
		{"bad id", "Transfer", `{"id": "not-a-uuid"}`},
		{"trailing data", "Transfer", `{"amount": 1} {"amount": 2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingestion.ParseCall(tt.eventType, []byte(tt.data))
			if !errors.Is(err, ingestion.ErrMalformed) {
				t.Errorf("got %v, want ErrMalformed", err)
			}
		})
	}
}

// ============================================================================
// Subjects & headers
// ============================================================================

func TestEventTypeFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"swapledger.calls.Transfer", "Transfer", true},
		{"swapledger.calls.SwapBaseForAsset", "SwapBaseForAsset", true},
		{"swapledger.calls.", "", false},
		{"swapledger.calls.Transfer.extra", "", false},
		{"swapledger.events.Transfer", "", false},
	}
	for _, tt := range tests {
		got, err := ingestion.EventTypeFromSubject(tt.subject)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("EventTypeFromSubject(%q) = %q, %v; want %q ok=%v", tt.subject, got, err, tt.want, tt.ok)
		}
	}
}

func TestValidateHeader(t *testing.T) {
	ok := &event.StakeAll{Header: header(), Ledger: ledger}
	if err := ingestion.ValidateHeader(ok); err != nil {
		t.Errorf("complete header rejected: %v", err)
	}

	noID := &event.StakeAll{Header: header()}
	noID.ID = uuid.Nil
	noSender := &event.StakeAll{Header: header()}
	noSender.Sender = common.Address{}
	noTime := &event.StakeAll{Header: header()}
	noTime.Timestamp = time.Time{}

	for name, evt := range map[string]event.Event{"id": noID, "sender": noSender, "timestamp": noTime} {
		if err := ingestion.ValidateHeader(evt); !errors.Is(err, ingestion.ErrMalformed) {
			t.Errorf("missing %s: got %v, want ErrMalformed", name, err)
		}
	}
}
