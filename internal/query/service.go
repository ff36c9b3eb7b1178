package query

import (
	"SwapLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DefaultLimit and MaxLimit bound paged queries
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// QueryService provides read-only access to the projection tables and the
// event log. Responses carry the projection watermark as as_of_sequence.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// GetProjectedBalance returns owner's balance of asset as the balance
// projection last saw it.
func (qs *QueryService) GetProjectedBalance(ctx context.Context, asset, owner string) (*BalanceResponse, error) {
	defer qs.observe("balance", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	asset, owner = strings.ToLower(asset), strings.ToLower(owner)
	var raw string
	err = qs.db.QueryRowContext(ctx, `
		SELECT balance::TEXT FROM projections.balances
		WHERE asset = $1 AND owner = $2
	`, asset, owner).Scan(&raw)
	if err == sql.ErrNoRows {
		raw = "0"
	} else if err != nil {
		return nil, err
	}

	balance, err := parseNumeric(raw)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		Asset:        asset,
		Owner:        owner,
		Balance:      balance,
		Source:       "projection",
		AsOfSequence: asOfSeq,
	}, nil
}

// GetSwapHistory returns swaps newest first, paged by sequence.
func (qs *QueryService) GetSwapHistory(ctx context.Context, f SwapFilter) (*SwapHistoryResponse, error) {
	defer qs.observe("swaps", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, log_index, pool, trader, recipient,
		       amount_in::TEXT, amount_out::TEXT, timestamp
		FROM projections.swaps
		WHERE TRUE
	`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Trader != "" {
		query += " AND trader = " + arg(strings.ToLower(f.Trader))
	}
	if f.Pool != "" {
		query += " AND pool = " + arg(strings.ToLower(f.Pool))
	}
	if f.BeforeSequence > 0 {
		query += " AND sequence < " + arg(f.BeforeSequence)
	}
	limit := clampLimit(f.Limit)
	query += " ORDER BY sequence DESC, log_index DESC LIMIT " + arg(limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &SwapHistoryResponse{Swaps: []SwapRecord{}, AsOfSequence: asOfSeq}
	for rows.Next() {
		var s SwapRecord
		var in, out string
		if err := rows.Scan(&s.Sequence, &s.LogIndex, &s.Pool, &s.Trader, &s.Recipient, &in, &out, &s.Timestamp); err != nil {
			return nil, err
		}
		if s.AmountIn, err = parseNumeric(in); err != nil {
			return nil, err
		}
		if s.AmountOut, err = parseNumeric(out); err != nil {
			return nil, err
		}
		resp.Swaps = append(resp.Swaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(resp.Swaps) == limit {
		resp.NextCursor = resp.Swaps[len(resp.Swaps)-1].Sequence
	}
	return resp, nil
}

// GetJournalHistory returns journal entries that move owner's balances,
// newest first.
func (qs *QueryService) GetJournalHistory(ctx context.Context, owner string, limit int, beforeSequence int64) ([]JournalHistoryEntry, error) {
	defer qs.observe("journal", time.Now())

	// Account paths are "asset:owner"
	suffix := "%:" + strings.ToLower(owner)
	query := `
		SELECT journal_id, batch_id, event_ref, sequence, asset,
		       from_account, to_account, amount::TEXT, journal_type, timestamp
		FROM event_log.journal
		WHERE (from_account LIKE $1 OR to_account LIKE $1)
	`
	args := []any{suffix}
	if beforeSequence > 0 {
		args = append(args, beforeSequence)
		query += fmt.Sprintf(" AND sequence < $%d", len(args))
	}
	args = append(args, clampLimit(limit))
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", len(args))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []JournalHistoryEntry{}
	for rows.Next() {
		var e JournalHistoryEntry
		var amount string
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence, &e.Asset,
			&e.FromAccount, &e.ToAccount, &amount, &e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the stored hash chain and that every asset's
// projected balances add up to its net issuance.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer qs.observe("integrity", time.Now())
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash <> e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Mints come from and burns go to the zero owner
	balanceRows, err := qs.db.QueryContext(ctx, `
		WITH issued AS (
			SELECT asset,
			       SUM(CASE WHEN from_account LIKE '%:0x0000000000000000000000000000000000000000' THEN amount ELSE 0 END)
			     - SUM(CASE WHEN to_account LIKE '%:0x0000000000000000000000000000000000000000' THEN amount ELSE 0 END) AS net
			FROM event_log.journal
			GROUP BY asset
		), projected AS (
			SELECT asset, SUM(balance) AS total FROM projections.balances GROUP BY asset
		)
		SELECT i.asset, COALESCE(p.total, 0)::TEXT, i.net::TEXT
		FROM issued i
		LEFT JOIN projected p ON p.asset = i.asset
		WHERE COALESCE(p.total, 0) <> i.net
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var asset, projected, issued string
		if err := balanceRows.Scan(&asset, &projected, &issued); err != nil {
			return nil, err
		}
		u := UnbalancedAsset{Asset: asset}
		if u.Projected, err = parseNumeric(projected); err != nil {
			return nil, err
		}
		if u.Issued, err = parseNumeric(issued); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// Ping checks the database connection for readiness probes.
func (qs *QueryService) Ping(ctx context.Context) error {
	return qs.db.PingContext(ctx)
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) observe(route string, start time.Time) {
	if qs.metrics != nil {
		qs.metrics.QueryDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

