package main

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const replayBatchSize = 1000

// eventSource is the slice of SnapshotManager recovery reads from
type eventSource interface {
	LoadLatestSnapshot(ctx context.Context) (*persistence.SnapshotRecord, error)
	LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]persistence.EventRow, error)
}

// recoverEngine restores the latest verified snapshot, if any, and replays
// the event log after it. Every replayed call must reproduce its stored
// state hash. Returns the number of calls replayed.
func recoverEngine(ctx context.Context, engine *core.Engine, src eventSource, metrics *observability.Metrics, logger zerolog.Logger) (int64, error) {
	start := time.Now()

	rec, err := src.LoadLatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if rec != nil {
		var state core.SnapshotState
		if err := json.Unmarshal(rec.Data, &state); err != nil {
			return 0, fmt.Errorf("decode snapshot %d: %w", rec.Sequence, err)
		}
		if err := engine.RestoreFromSnapshot(&state); err != nil {
			return 0, err
		}
		hash := engine.GetStateHash()
		if !bytes.Equal(hash[:], rec.StateHash) {
			return 0, fmt.Errorf("%w: snapshot %d carries %x, restored state is at %x",
				core.ErrHashMismatch, rec.Sequence, rec.StateHash, hash)
		}
		logger.Info().Int64("sequence", rec.Sequence).Msg("snapshot restored")
	} else {
		logger.Info().Msg("no snapshot found, replaying from genesis")
	}

	var replayed int64
	from := engine.GetSequence() + 1
	for {
		rows, err := src.LoadEventsFrom(ctx, from, replayBatchSize)
		if err != nil {
			return replayed, fmt.Errorf("load events from %d: %w", from, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if row.Sequence != from {
				return replayed, fmt.Errorf("event log gap: want sequence %d, found %d", from, row.Sequence)
			}
			evt, err := ingestion.ParseCall(row.EventType, row.Payload)
			if err != nil {
				return replayed, fmt.Errorf("sequence %d: %w", row.Sequence, err)
			}
			var expected [32]byte
			copy(expected[:], row.StateHash)
			if err := engine.Replay(evt, expected); err != nil {
				return replayed, err
			}
			replayed++
			from++
		}
	}

	if metrics != nil {
		metrics.ReplayEventsTotal.Add(float64(replayed))
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	logger.Info().
		Int64("replayed", replayed).
		Int64("sequence", engine.GetSequence()).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return replayed, nil
}

// snapshotter takes a snapshot every interval applied calls and verifies
// pending snapshots once the event log has caught up with them.
type snapshotter struct {
	engine   *core.Engine
	mgr      *persistence.SnapshotManager
	interval int64
	lastSeq  int64
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func (s *snapshotter) run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.engine.GetSequence()-s.lastSeq >= s.interval {
				if err := s.take(ctx); err != nil {
					s.logger.Error().Err(err).Msg("periodic snapshot failed")
				}
			}
			if n, err := s.mgr.VerifyPending(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("snapshot verification failed")
			} else if n > 0 {
				s.logger.Info().Int("verified", n).Msg("snapshots verified")
			}
		}
	}
}

func (s *snapshotter) take(ctx context.Context) error {
	start := time.Now()
	state := s.engine.CreateSnapshotState()
	if state.Sequence == 0 {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.mgr.SaveSnapshot(ctx, state.Sequence, state.StateHash[:], data); err != nil {
		return err
	}
	s.lastSeq = state.Sequence
	if s.metrics != nil {
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.Info().Int64("sequence", state.Sequence).Int("bytes", len(data)).Msg("snapshot saved")
	return nil
}
