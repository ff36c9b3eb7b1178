package persistence

import (
	"SwapLedger/internal/observability"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotFormatVersion tags the encoding of the data column
const SnapshotFormatVersion = 1

// SnapshotRecord is one row of event_log.snapshots. Data is opaque here;
// the engine defines its encoding.
type SnapshotRecord struct {
	SnapshotID    uuid.UUID
	Sequence      int64
	StateHash     []byte
	Data          []byte
	FormatVersion int32
	Verified      bool
	CreatedAt     time.Time
}

// SnapshotManager stores engine snapshots and reads the event log back
// for recovery.
type SnapshotManager struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewSnapshotManager(db *sql.DB, metrics *observability.Metrics) *SnapshotManager {
	return &SnapshotManager{db: db, metrics: metrics}
}

// SaveSnapshot persists an unverified snapshot taken at sequence.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, sequence int64, stateHash, data []byte) (uuid.UUID, error) {
	snapshotID := uuid.New()

	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = FALSE
	`, snapshotID, sequence, data, stateHash, SnapshotFormatVersion, len(data))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save snapshot at %d: %w", sequence, err)
	}

	if sm.metrics != nil {
		sm.metrics.SnapshotTaken.Inc()
		sm.metrics.SnapshotSizeBytes.Set(float64(len(data)))
		sm.metrics.SnapshotLastSeq.Set(float64(sequence))
	}
	return snapshotID, nil
}

// Verify marks the snapshot at sequence verified once the event log holds
// that sequence with the same state hash. It reports whether it did.
// A snapshot taken ahead of the persistence worker stays unverified until
// a later call.
func (sm *SnapshotManager) Verify(ctx context.Context, sequence int64) (bool, error) {
	var snapHash, logHash []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT s.state_hash, e.state_hash
		FROM event_log.snapshots s
		JOIN event_log.events e ON e.sequence = s.sequence
		WHERE s.sequence = $1
	`, sequence).Scan(&snapHash, &logHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify snapshot %d: %w", sequence, err)
	}
	if !bytes.Equal(snapHash, logHash) {
		return false, fmt.Errorf("verify snapshot %d: hash %x differs from event log %x", sequence, snapHash, logHash)
	}

	if _, err := sm.db.ExecContext(ctx,
		`UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1`, sequence,
	); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyPending verifies every unverified snapshot the event log has caught
// up with and returns how many it marked.
func (sm *SnapshotManager) VerifyPending(ctx context.Context) (int, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence FROM event_log.snapshots WHERE verified = FALSE ORDER BY sequence
	`)
	if err != nil {
		return 0, err
	}
	var pending []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return 0, err
		}
		pending = append(pending, seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	marked := 0
	for _, seq := range pending {
		ok, err := sm.Verify(ctx, seq)
		if err != nil {
			return marked, err
		}
		if ok {
			marked++
		}
	}
	return marked, nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	err := sm.db.QueryRowContext(ctx, `
		SELECT snapshot_id, sequence, state_hash, data, format_version, verified, created_at
		FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&rec.SnapshotID, &rec.Sequence, &rec.StateHash, &rec.Data,
		&rec.FormatVersion, &rec.Verified, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if rec.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("load snapshot %d: unsupported format version %d", rec.Sequence, rec.FormatVersion)
	}
	return &rec, nil
}

// LoadEventsFrom loads up to limit events starting at fromSequence, in order.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, sender, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Sender,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, 0 when empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
