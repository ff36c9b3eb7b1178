package server

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/core"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/projection"
	"SwapLedger/internal/query"
	"SwapLedger/internal/staking"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// maxCallBody caps submitted call payloads
const maxCallBody = 1 << 20

var errBadRequest = errors.New("bad request")

type api struct {
	deps *ServerDeps
}

// statusRecorder captures the status written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (a *api) instrument(route string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)

		m := a.deps.Metrics
		if m == nil {
			return
		}
		m.QueryRequests.WithLabelValues(route).Inc()
		m.QueryDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if rec.status >= 400 {
			m.QueryErrors.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	}
}

// --- Engine reads ---

func (a *api) status(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, a.deps.Ledger.Status())
}

func (a *api) listPools(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{"pools": a.deps.Ledger.Pools()})
}

func (a *api) getPool(w http.ResponseWriter, r *http.Request, params map[string]string) {
	asset, err := addressParam(params, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	pool, err := a.deps.Ledger.Pool(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

type quoteResponse struct {
	Pool      common.Address `json:"pool"`
	Side      string         `json:"side"`
	AmountIn  *big.Int       `json:"amount_in"`
	AmountOut *big.Int       `json:"amount_out"`
	Formatted string         `json:"formatted"`
}

// quote prices ?amount= raw units paid in on ?side= (base or quote).
func (a *api) quote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	asset, err := addressParam(params, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	side := r.URL.Query().Get("side")
	if side == "" {
		side = core.SideBase
	}
	amount, ok := new(big.Int).SetString(r.URL.Query().Get("amount"), 10)
	if !ok {
		writeError(w, fmt.Errorf("%w: amount must be a base-10 integer", errBadRequest))
		return
	}

	out, err := a.deps.Ledger.Quote(asset, side, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	// base in pays out the native quote asset, quote in pays out base
	outAsset := ledger.NativeAsset
	if side == core.SideQuote {
		outAsset = asset
	}
	resp := quoteResponse{Side: side, AmountIn: amount, AmountOut: out}
	if pool, err := a.deps.Ledger.Pool(asset); err == nil {
		resp.Pool = pool.Address
	}
	if tok, err := a.deps.Ledger.Token(outAsset); err == nil {
		resp.Formatted = query.FormatUnits(out, tok.Decimals)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) listTokens(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{"tokens": a.deps.Ledger.Tokens()})
}

func (a *api) getToken(w http.ResponseWriter, r *http.Request, params map[string]string) {
	asset, err := addressParam(params, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	tok, err := a.deps.Ledger.Token(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// balance answers from the engine by default, or from the balance
// projection with ?source=projection.
func (a *api) balance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	asset, err := addressParam(params, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := addressParam(params, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	tok, err := a.deps.Ledger.Token(asset)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("source") == "projection" {
		if a.deps.QueryService == nil {
			writeUnavailable(w, "projections")
			return
		}
		resp, err := a.deps.QueryService.GetProjectedBalance(r.Context(), asset.Hex(), owner.Hex())
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Formatted = query.FormatUnits(resp.Balance, tok.Decimals)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	bal, err := a.deps.Ledger.BalanceOf(asset, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &query.BalanceResponse{
		Asset:        asset.Hex(),
		Owner:        owner.Hex(),
		Balance:      bal,
		Formatted:    query.FormatUnits(bal, tok.Decimals),
		Source:       "engine",
		AsOfSequence: a.deps.Ledger.Status().Sequence,
	})
}

func (a *api) allowance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var addrs [3]common.Address
	for i, name := range []string{"asset", "owner", "spender"} {
		addr, err := addressParam(params, name)
		if err != nil {
			writeError(w, err)
			return
		}
		addrs[i] = addr
	}
	amount, err := a.deps.Ledger.Allowance(addrs[0], addrs[1], addrs[2])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":     addrs[0],
		"owner":     addrs[1],
		"spender":   addrs[2],
		"allowance": amount,
	})
}

func (a *api) listStaking(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{"staking_ledgers": a.deps.Ledger.StakingLedgers()})
}

func (a *api) getStaking(w http.ResponseWriter, r *http.Request, params map[string]string) {
	addr, err := addressParam(params, "ledger")
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := a.deps.Ledger.StakingLedger(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) participant(w http.ResponseWriter, r *http.Request, params map[string]string) {
	addr, err := addressParam(params, "ledger")
	if err != nil {
		writeError(w, err)
		return
	}
	who, err := addressParam(params, "participant")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := a.deps.Ledger.StakingParticipant(addr, who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Projection reads ---

func (a *api) swaps(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if a.deps.QueryService == nil {
		writeUnavailable(w, "projections")
		return
	}
	q := r.URL.Query()
	f := query.SwapFilter{Trader: q.Get("trader"), Pool: q.Get("pool")}
	var err error
	if f.BeforeSequence, err = int64Query(q.Get("before")); err != nil {
		writeError(w, err)
		return
	}
	limit, err := int64Query(q.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	f.Limit = int(limit)

	resp, err := a.deps.QueryService.GetSwapHistory(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) journal(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if a.deps.QueryService == nil {
		writeUnavailable(w, "event log")
		return
	}
	owner, err := addressParam(params, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	before, err := int64Query(q.Get("before"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := int64Query(q.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := a.deps.QueryService.GetJournalHistory(r.Context(), owner.Hex(), int(limit), before)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- Writes and admin ---

// submit applies one call. The path names the call type and the body is
// its JSON payload.
func (a *api) submit(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if a.deps.Submitter == nil {
		writeUnavailable(w, "call submission")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	receipt, err := a.deps.Submitter.Submit(r.Context(), params["type"], body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *api) integrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if a.deps.QueryService == nil {
		writeUnavailable(w, "event log")
		return
	}
	report, err := a.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !report.IsHealthy {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

func (a *api) rebuild(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if a.deps.DB == nil {
		writeUnavailable(w, "event log")
		return
	}
	if err := projection.RebuildProjections(r.Context(), a.deps.DB, a.deps.Logger); err != nil {
		writeError(w, err)
		return
	}
	seq, err := projection.Watermark(r.Context(), a.deps.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "rebuilt", "as_of_sequence": seq})
}

// --- Helpers ---

func addressParam(params map[string]string, name string) (common.Address, error) {
	v := params[name]
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", errBadRequest, name, v)
	}
	return common.HexToAddress(v), nil
}

func int64Query(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", errBadRequest, v)
	}
	return n, nil
}

// StatusFor maps an error from the engine or the query layer to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ingestion.ErrMalformed),
		errors.Is(err, core.ErrInvalidCall),
		errors.Is(err, core.ErrMissingTimestamp),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrZeroAddress),
		errors.Is(err, staking.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownPool),
		errors.Is(err, core.ErrUnknownStakingLedger),
		errors.Is(err, core.ErrUnknownParticipant),
		errors.Is(err, ledger.ErrUnknownAsset),
		errors.Is(err, amm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicate),
		errors.Is(err, core.ErrClockRegression):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, ledger.ErrAssetExists),
		errors.Is(err, amm.ErrInvalidReserves),
		errors.Is(err, amm.ErrInvalidAssetAddress),
		errors.Is(err, amm.ErrAmountTooSmall),
		errors.Is(err, amm.ErrInsufficientBaseAmount),
		errors.Is(err, amm.ErrInvalidBurnAmount),
		errors.Is(err, amm.ErrSlippageExceeded),
		errors.Is(err, amm.ErrZeroRecipient),
		errors.Is(err, amm.ErrSamePool),
		errors.Is(err, amm.ErrInvalidAsset),
		errors.Is(err, amm.ErrAlreadyExists),
		errors.Is(err, staking.ErrNotAdministrator),
		errors.Is(err, staking.ErrAlreadySeeded),
		errors.Is(err, staking.ErrBelowMinimum),
		errors.Is(err, staking.ErrInsufficientStake),
		errors.Is(err, staking.ErrInsufficientReward),
		errors.Is(err, staking.ErrInvalidAsset):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeUnavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": what + " not configured"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
