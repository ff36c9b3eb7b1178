package persistence_test

import (
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/testutil"
	"SwapLedger/migrations"
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Unit
// ============================================================================

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		rows, cols int
		want       string
	}{
		{0, 3, ""},
		{1, 1, "($1)"},
		{1, 3, "($1, $2, $3)"},
		{2, 2, "($1, $2), ($3, $4)"},
	}
	for _, tt := range tests {
		if got := persistence.Placeholders(tt.rows, tt.cols); got != tt.want {
			t.Errorf("Placeholders(%d, %d) = %q, want %q", tt.rows, tt.cols, got, tt.want)
		}
	}
}

func TestMigrations_EveryUpHasDown(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}

	ups := 0
	for name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		ups++
		down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
		if !names[down] {
			t.Errorf("%s has no %s", name, down)
		}
	}
	if ups == 0 {
		t.Fatal("no up migrations embedded")
	}
}

// ============================================================================
// Integration (Postgres)
// ============================================================================

func sampleOutput(seq int64) persistence.Output {
	key := uuid.New().String()
	batch := uuid.New().String()
	return persistence.Output{
		Event: persistence.EventRow{
			Sequence:       seq,
			EventType:      "Transfer",
			IdempotencyKey: key,
			Sender:         "0x00000000000000000000000000000000000a11ce",
			Payload:        []byte(`{"amount":100}`),
			StateHash:      make([]byte, 32),
			PrevHash:       make([]byte, 32),
			Timestamp:      time.Unix(1_700_000_000+seq, 0).UTC(),
		},
		Journals: []persistence.JournalRow{{
			JournalID:   uuid.New().String(),
			BatchID:     batch,
			EventRef:    key,
			Sequence:    seq,
			Asset:       "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
			FromAccount: "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee:0x00000000000000000000000000000000000a11ce",
			ToAccount:   "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee:0x0000000000000000000000000000000000000b0b",
			Amount:      "100000000000000000000000",
			JournalType: "transfer",
			Timestamp:   (1_700_000_000 + seq) * 1_000_000,
		}},
		Logs: []persistence.LogRow{{
			Sequence: seq,
			LogIndex: 0,
			LogType:  "Transfer",
			Emitter:  "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
			From:     "0x00000000000000000000000000000000000a11ce",
			To:       "0x0000000000000000000000000000000000000b0b",
			Amount:   sql.NullString{String: "100000000000000000000000", Valid: true},
		}},
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestPersistenceWorker_FlushesOnClose(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	in := make(chan persistence.Output, 4)
	first, second := sampleOutput(1), sampleOutput(2)
	in <- first
	in <- second
	close(in)

	w := persistence.NewPersistenceWorker(db, in, 10, time.Hour, nil, zerolog.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := countRows(t, db, "event_log.events"); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
	if n := countRows(t, db, "event_log.journal"); n != 2 {
		t.Errorf("journal = %d, want 2", n)
	}
	if n := countRows(t, db, "event_log.logs"); n != 2 {
		t.Errorf("logs = %d, want 2", n)
	}

	var amount string
	if err := db.QueryRow(`SELECT amount::TEXT FROM event_log.journal WHERE sequence = 1`).Scan(&amount); err != nil {
		t.Fatalf("read journal amount: %v", err)
	}
	if amount != "100000000000000000000000" {
		t.Errorf("journal amount = %s, want exact 1e23", amount)
	}

	checker := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := checker.IsDuplicate("Transfer", first.Event.IdempotencyKey)
	if err != nil || !dup {
		t.Errorf("IsDuplicate(stored) = %v, %v; want true", dup, err)
	}
	dup, err = checker.IsDuplicate("Approve", first.Event.IdempotencyKey)
	if err != nil || dup {
		t.Errorf("IsDuplicate(other type) = %v, %v; want false", dup, err)
	}

	keys, err := checker.RecentKeys(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentKeys: %v", err)
	}
	want := []string{"Transfer:" + first.Event.IdempotencyKey, "Transfer:" + second.Event.IdempotencyKey}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("RecentKeys = %v, want %v", keys, want)
	}
}

func TestSnapshotManager_VerifyAgainstEventLog(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	in := make(chan persistence.Output, 1)
	in <- sampleOutput(1)
	close(in)
	if err := persistence.NewPersistenceWorker(db, in, 1, time.Hour, nil, zerolog.Nop()).Run(ctx); err != nil {
		t.Fatalf("seed event log: %v", err)
	}

	sm := persistence.NewSnapshotManager(db, nil)
	hash := make([]byte, 32)

	// Ahead of the log: stays unverified
	if _, err := sm.SaveSnapshot(ctx, 2, hash, []byte(`{"sequence":2}`)); err != nil {
		t.Fatalf("SaveSnapshot(2): %v", err)
	}
	if ok, err := sm.Verify(ctx, 2); err != nil || ok {
		t.Errorf("Verify(2) = %v, %v; want false, nil", ok, err)
	}

	if _, err := sm.SaveSnapshot(ctx, 1, hash, []byte(`{"sequence":1}`)); err != nil {
		t.Fatalf("SaveSnapshot(1): %v", err)
	}
	marked, err := sm.VerifyPending(ctx)
	if err != nil {
		t.Fatalf("VerifyPending: %v", err)
	}
	if marked != 1 {
		t.Errorf("VerifyPending marked %d, want 1", marked)
	}

	rec, err := sm.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadLatestSnapshot: %v", err)
	}
	if rec == nil || rec.Sequence != 1 || string(rec.Data) != `{"sequence":1}` {
		t.Fatalf("latest verified snapshot = %+v, want sequence 1", rec)
	}

	events, err := sm.LoadEventsFrom(ctx, 1, 100)
	if err != nil {
		t.Fatalf("LoadEventsFrom: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "Transfer" {
		t.Errorf("LoadEventsFrom = %+v", events)
	}
	latest, err := sm.GetLatestSequence(ctx)
	if err != nil || latest != 1 {
		t.Errorf("GetLatestSequence = %d, %v; want 1", latest, err)
	}
}
