package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// maxParams is Postgres' limit on bind parameters per statement
const maxParams = 65535

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes events, journals and logs to Postgres using
// multi-row INSERTs. Every insert is idempotent on its natural key, so a
// retried batch is harmless.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Sender         string
	Payload        []byte // JSON-encoded call
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// JournalRow represents a row in event_log.journal. Amount is a base-10
// integer string stored as NUMERIC(78,0).
type JournalRow struct {
	JournalID   string
	BatchID     string
	EventRef    string
	Sequence    int64
	Asset       string
	FromAccount string
	ToAccount   string
	Amount      string
	JournalType string
	Timestamp   int64
}

// LogRow represents a row in event_log.logs
type LogRow struct {
	Sequence  int64
	LogIndex  int
	LogType   string
	Emitter   string
	From      string
	To        string
	Amount    sql.NullString
	AmountOut sql.NullString
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// DB returns the underlying handle
func (w *EventLogWriter) DB() *sql.DB {
	return w.db
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	const cols = 8
	return insertChunked(ctx, ex,
		`INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, sender, payload, state_hash, prev_hash, timestamp)
		VALUES `,
		" ON CONFLICT (sequence) DO NOTHING",
		len(events), cols,
		func(i int) []any {
			e := events[i]
			return []any{
				e.Sequence, e.EventType, e.IdempotencyKey, e.Sender,
				e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
			}
		},
	)
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, ex execer, journals []JournalRow) error {
	const cols = 10
	return insertChunked(ctx, ex,
		`INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, asset, from_account, to_account, amount, journal_type, timestamp)
		VALUES `,
		" ON CONFLICT (journal_id) DO NOTHING",
		len(journals), cols,
		func(i int) []any {
			j := journals[i]
			return []any{
				j.JournalID, j.BatchID, j.EventRef, j.Sequence,
				j.Asset, j.FromAccount, j.ToAccount, j.Amount,
				j.JournalType, j.Timestamp,
			}
		},
	)
}

// WriteLogBatch writes a batch of audit logs to event_log.logs.
func (w *EventLogWriter) WriteLogBatch(ctx context.Context, ex execer, logs []LogRow) error {
	const cols = 8
	return insertChunked(ctx, ex,
		`INSERT INTO event_log.logs
		(sequence, log_index, log_type, emitter, from_address, to_address, amount, amount_out)
		VALUES `,
		" ON CONFLICT (sequence, log_index) DO NOTHING",
		len(logs), cols,
		func(i int) []any {
			l := logs[i]
			return []any{
				l.Sequence, l.LogIndex, l.LogType, l.Emitter,
				l.From, l.To, l.Amount, l.AmountOut,
			}
		},
	)
}

// insertChunked splits n rows into statements that stay under maxParams
func insertChunked(ctx context.Context, ex execer, prefix, suffix string, n, cols int, row func(int) []any) error {
	perStmt := maxParams / cols
	for start := 0; start < n; start += perStmt {
		end := min(start+perStmt, n)

		args := make([]any, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			args = append(args, row(i)...)
		}

		query := prefix + Placeholders(end-start, cols) + suffix
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert rows %d..%d: %w", start, end, err)
		}
	}
	return nil
}

// Placeholders renders "($1, $2), ($3, $4)" for rows x cols bind parameters.
func Placeholders(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
