package ingestion_test

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ingestion"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recorder is a Processor that remembers what it was given
type recorder struct {
	mu    sync.Mutex
	calls []event.Event
	err   func(event.Event) error
}

func (r *recorder) ProcessEvent(evt event.Event) (*core.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, evt)
	if r.err != nil {
		if err := r.err(evt); err != nil {
			return nil, err
		}
	}
	return &core.Receipt{Sequence: int64(len(r.calls)), EventType: evt.EventType().String()}, nil
}

type acks struct {
	ack, nak, term atomic.Int32
}

func (a *acks) raw(subject, data string) ingestion.RawEvent {
	return ingestion.RawEvent{
		Subject:   subject,
		Data:      []byte(data),
		Timestamp: time.Now(),
		AckFunc:   func() { a.ack.Add(1) },
		NakFunc:   func() { a.nak.Add(1) },
		TermFunc:  func() { a.term.Add(1) },
	}
}

const stakeAll = `{
	"id": "%s",
	"sender": "0x00000000000000000000000000000000000a11ce",
	"timestamp": "2024-01-01T00:00:01Z",
	"ledger": "0x1111111111111111111111111111111111111111"
}`

func stakeAllJSON(id string) string {
	return fmt.Sprintf(stakeAll, id)
}

// ============================================================================
// RunIngestionLoop
// ============================================================================

func TestRunIngestionLoop_AcksParsedAndTerminatesMalformed(t *testing.T) {
	var a acks
	raw := make(chan ingestion.RawEvent, 4)
	raw <- a.raw("swapledger.calls.StakeAll", stakeAllJSON("550e8400-e29b-41d4-a716-446655440001"))
	raw <- a.raw("swapledger.calls.StakeAll", `{"ledger": 7}`)
	raw <- a.raw("swapledger.calls.Bogus", `{}`)
	raw <- a.raw("swapledger.calls.StakeAll", stakeAllJSON("550e8400-e29b-41d4-a716-446655440002"))
	close(raw)

	// Rejections by the core are logged, never redelivered
	proc := &recorder{err: func(evt event.Event) error {
		if evt.IdempotencyKey() == "550e8400-e29b-41d4-a716-446655440002" {
			return core.ErrDuplicate
		}
		return nil
	}}

	ingestion.RunIngestionLoop(context.Background(), raw, proc, nil, zerolog.Nop())

	if len(proc.calls) != 2 {
		t.Fatalf("processed %d calls, want 2", len(proc.calls))
	}
	if proc.calls[0].IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("first call out of order: %s", proc.calls[0].IdempotencyKey())
	}
	if got := a.ack.Load(); got != 2 {
		t.Errorf("acks = %d, want 2", got)
	}
	if got := a.term.Load(); got != 2 {
		t.Errorf("terms = %d, want 2", got)
	}
	if got := a.nak.Load(); got != 0 {
		t.Errorf("naks = %d, want 0", got)
	}
}

func TestRunIngestionLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ingestion.RunIngestionLoop(ctx, make(chan ingestion.RawEvent), &recorder{}, nil, zerolog.Nop())
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

// ============================================================================
// Submitter
// ============================================================================

func newEngine(t *testing.T) *core.Engine {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.LRUCapacity = 64
	cfg.Genesis = []core.Allocation{{Owner: alice, Amount: big.NewInt(10_000_000)}}
	e, err := core.NewEngine(cfg, nil, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestSubmitter_StampsMissingHeaderFields(t *testing.T) {
	e := newEngine(t)
	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := ingestion.NewSubmitter(e, nil, zerolog.Nop()).WithClock(func() time.Time { return stamp })

	r, err := s.Submit(context.Background(), "IssueAsset", []byte(`{
		"sender": "0x00000000000000000000000000000000000a11ce",
		"symbol": "TKN",
		"decimals": 18,
		"supply": 1000
	}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.Sequence != 1 || r.Created == nil {
		t.Fatalf("receipt = %+v, want sequence 1 with created asset", r)
	}

	bal, err := e.BalanceOf(*r.Created, alice)
	if err != nil || bal.Int64() != 1000 {
		t.Errorf("issuer balance = %v, %v; want 1000", bal, err)
	}
	if !e.Status().LastTimestamp.Equal(stamp) {
		t.Errorf("engine clock = %s, want stamped %s", e.Status().LastTimestamp, stamp)
	}
}

func TestSubmitter_Errors(t *testing.T) {
	e := newEngine(t)
	s := ingestion.NewSubmitter(e, nil, zerolog.Nop())
	ctx := context.Background()

	if _, err := s.Submit(ctx, "Transfer", []byte(`{"memo": 1}`)); !errors.Is(err, ingestion.ErrMalformed) {
		t.Errorf("unknown field: got %v, want ErrMalformed", err)
	}
	if _, err := s.Submit(ctx, "StakeAll", []byte(`{"ledger": "0x1111111111111111111111111111111111111111"}`)); !errors.Is(err, ingestion.ErrMalformed) {
		t.Errorf("missing sender: got %v, want ErrMalformed", err)
	}

	call := stakeAllJSON("550e8400-e29b-41d4-a716-446655440003")
	if _, err := s.Submit(ctx, "StakeAll", []byte(call)); !errors.Is(err, core.ErrUnknownStakingLedger) {
		t.Errorf("unknown ledger: got %v, want ErrUnknownStakingLedger", err)
	}

	issue := `{
		"id": "550e8400-e29b-41d4-a716-446655440004",
		"sender": "0x00000000000000000000000000000000000a11ce",
		"timestamp": "2024-01-01T00:00:02Z",
		"symbol": "TKN"
	}`
	if _, err := s.Submit(ctx, "IssueAsset", []byte(issue)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := s.Submit(ctx, "IssueAsset", []byte(issue)); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("resubmit: got %v, want ErrDuplicate", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Submit(cancelled, "IssueAsset", []byte(issue)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v, want context.Canceled", err)
	}
}

func TestPublishableEvent_Subject(t *testing.T) {
	p := ingestion.PublishableEvent{EventType: "SwapBaseForQuote"}
	if got := p.Subject(); got != "swapledger.events.SwapBaseForQuote" {
		t.Errorf("Subject = %q", got)
	}
}
