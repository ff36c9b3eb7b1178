package projection

import (
	"SwapLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// zeroOwner is the mint source and burn sink; it has no balance row
const zeroOwner = "0x0000000000000000000000000000000000000000"

// ProjectionOutput is the data projection workers need about one applied
// call. The orchestrator bridges from core outputs into this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	Timestamp time.Time
	Journals  []JournalEntry
	Swaps     []SwapEntry
}

// JournalEntry is one balance movement. Owners and asset are lowercase hex,
// Amount is a positive base-10 integer.
type JournalEntry struct {
	Asset  string
	From   string
	To     string
	Amount string
}

// SwapEntry is one SwapExecuted log
type SwapEntry struct {
	LogIndex  int
	Pool      string
	Trader    string
	Recipient string
	AmountIn  string
	AmountOut string
}

// BalanceKey identifies one projected balance
type BalanceKey struct {
	Asset string
	Owner string
}

// BalanceDelta is the net change to one balance
type BalanceDelta struct {
	BalanceKey
	Delta *big.Int
}

// NetBalanceDeltas folds journal entries into one signed delta per balance,
// sorted by asset then owner. Entries that net to zero are dropped.
func NetBalanceDeltas(entries []JournalEntry) ([]BalanceDelta, error) {
	net := make(map[BalanceKey]*big.Int)
	apply := func(asset, owner string, amount *big.Int, sign int) {
		if owner == zeroOwner {
			return
		}
		k := BalanceKey{Asset: asset, Owner: owner}
		if net[k] == nil {
			net[k] = new(big.Int)
		}
		if sign < 0 {
			net[k].Sub(net[k], amount)
		} else {
			net[k].Add(net[k], amount)
		}
	}

	for _, j := range entries {
		amount, ok := new(big.Int).SetString(j.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("journal amount %q is not a positive integer", j.Amount)
		}
		apply(j.Asset, j.From, amount, -1)
		apply(j.Asset, j.To, amount, +1)
	}

	out := make([]BalanceDelta, 0, len(net))
	for k, d := range net {
		if d.Sign() != 0 {
			out = append(out, BalanceDelta{BalanceKey: k, Delta: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset < out[j].Asset
		}
		return out[i].Owner < out[j].Owner
	})
	return out, nil
}

// ProjectionWorker updates projection tables from applied calls.
// The projection channel is a non-blocking send with drop; a lagging
// projection is rebuilt from the event log with RebuildProjections.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// LastSequence is the last sequence the worker attempted
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				// Eventually consistent: rebuilt from the event log
				pw.logger.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
			} else if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("all").Observe(time.Since(start).Seconds())
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	deltas, err := NetBalanceDeltas(output.Journals)
	if err != nil {
		return err
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range deltas {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.balances (asset, owner, balance, last_sequence, updated_at)
			VALUES ($1, $2, $3::NUMERIC, $4, NOW())
			ON CONFLICT (asset, owner)
			DO UPDATE SET balance = projections.balances.balance + $3::NUMERIC,
			              last_sequence = $4,
			              updated_at = NOW()
		`, d.Asset, d.Owner, d.Delta.String(), output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	for _, s := range output.Swaps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.swaps
				(sequence, log_index, pool, trader, recipient, amount_in, amount_out, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)
			ON CONFLICT (sequence, log_index) DO NOTHING
		`, output.Sequence, s.LogIndex, s.Pool, s.Trader, s.Recipient, s.AmountIn, s.AmountOut, output.Timestamp); err != nil {
			return fmt.Errorf("swap projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Watermark returns the last sequence the projections reflect, 0 if none.
func Watermark(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'`,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

// RebuildProjections rebuilds every projection table from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.swaps`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Account paths are "asset:owner"
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (asset, owner, balance, last_sequence, updated_at)
		SELECT asset, owner, SUM(delta), MAX(sequence), NOW()
		FROM (
			SELECT asset, split_part(to_account, ':', 2) AS owner, amount AS delta, sequence
			FROM event_log.journal
			UNION ALL
			SELECT asset, split_part(from_account, ':', 2) AS owner, -amount AS delta, sequence
			FROM event_log.journal
		) moves
		WHERE owner <> $1
		GROUP BY asset, owner
		HAVING SUM(delta) <> 0
	`, zeroOwner); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.swaps
			(sequence, log_index, pool, trader, recipient, amount_in, amount_out, timestamp)
		SELECT l.sequence, l.log_index, l.emitter, l.from_address, l.to_address,
		       l.amount, l.amount_out, e.timestamp
		FROM event_log.logs l
		JOIN event_log.events e ON e.sequence = l.sequence
		WHERE l.log_type = 'SwapExecuted'
	`); err != nil {
		return fmt.Errorf("rebuild swaps: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		SELECT 'main', COALESCE(MAX(sequence), 0), NOW() FROM event_log.events
	`); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Info().Msg("projection rebuild complete")
	return nil
}
