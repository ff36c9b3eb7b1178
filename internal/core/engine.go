package core

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/staking"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

var (
	ErrDuplicate            = errors.New("duplicate call")
	ErrInvalidCall          = errors.New("invalid call")
	ErrUnknownPool          = errors.New("unknown pool")
	ErrUnknownStakingLedger = errors.New("unknown staking ledger")
	ErrUnknownParticipant   = errors.New("unknown participant")
	ErrHashMismatch         = errors.New("state hash mismatch")
)

// NativeSymbol is the ticker of the native settlement unit
const NativeSymbol = "NAT"

// Allocation is a genesis credit of the native unit
type Allocation struct {
	Owner  common.Address
	Amount *big.Int
}

// Config fixes the engine's deployment parameters. Changing any of them
// changes every derived address and therefore the hash chain.
type Config struct {
	Deployer    common.Address // Derives registry, pool, asset and staking ledger addresses
	Fee         fpmath.Ratio
	Staking     staking.Params
	LRUCapacity int
	Genesis     []Allocation
}

// DefaultConfig uses the 0.3% fee and the default staking parameters
func DefaultConfig() Config {
	return Config{
		Deployer:    common.HexToAddress("0x5ab1ed9e000000000000000000000000000000d0"),
		Fee:         fpmath.DefaultFee,
		Staking:     staking.DefaultParams(),
		LRUCapacity: 1_000_000,
	}
}

// Engine is the single-writer host for the ledger, the pools and the
// staking ledgers. Every call runs in one ledger.Tx: it commits whole or
// not at all.
type Engine struct {
	mu sync.RWMutex

	cfg         Config
	bank        *ledger.Bank
	journalGen  *ledger.JournalGenerator
	validator   *ledger.InvariantValidator
	registry    *amm.Registry
	factory     *staking.Factory
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	clock       *ClockValidator
	metrics     *observability.Metrics
	logger      zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is everything downstream workers need about one applied call
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
}

// Receipt is returned to the submitter of an applied call
type Receipt struct {
	Sequence  int64           `json:"sequence"`
	EventType string          `json:"event_type"`
	StateHash string          `json:"state_hash"`
	Created   *common.Address `json:"created,omitempty"`
	Amounts   []*big.Int      `json:"amounts,omitempty"`
	Logs      []event.Log     `json:"logs"`
}

// outcome is what a handler reports besides its ledger effects
type outcome struct {
	created *common.Address
	amounts []*big.Int
	staking *staking.Ledger
}

// NewEngine builds an engine at genesis. persistChan and projectionChan may be
// nil when nothing consumes the outputs.
func NewEngine(
	cfg Config,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*Engine, error) {
	e := &Engine{
		cfg:            cfg,
		hasher:         NewStateHasher(),
		journalGen:     ledger.NewJournalGenerator(1),
		idempotency:    NewIdempotencyChecker(cfg.LRUCapacity, dbChecker, metrics),
		clock:          NewClockValidator(),
		metrics:        metrics,
		logger:         logger,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}

	if err := e.genesis(); err != nil {
		return nil, err
	}
	return e, nil
}

// genesis installs the native unit, the registry and the staking factory
func (e *Engine) genesis() error {
	bank := ledger.NewBank(e.cfg.Deployer)
	if err := bank.Register(ledger.NewToken(ledger.NativeAsset, NativeSymbol, 18, ledger.TokenKindNative, ledger.ZeroAddress)); err != nil {
		return err
	}
	for _, a := range e.cfg.Genesis {
		if err := bank.CreditGenesis(ledger.NativeAsset, a.Owner, a.Amount); err != nil {
			return fmt.Errorf("genesis allocation to %s: %w", a.Owner.Hex(), err)
		}
	}

	// The registry takes the deployer's first nonce
	registry, err := amm.NewRegistry(crypto.CreateAddress(e.cfg.Deployer, 0), e.cfg.Fee)
	if err != nil {
		return err
	}
	bank.SetNonce(1)

	factory, err := staking.NewFactory(e.cfg.Staking)
	if err != nil {
		return err
	}

	e.bank = bank
	e.validator = ledger.NewInvariantValidator(bank)
	e.registry = registry
	e.factory = factory
	return nil
}

// ProcessEvent is the main processing pipeline
func (e *Engine) ProcessEvent(evt event.Event) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, res, err := e.apply(evt, true)
	if err != nil {
		return nil, err
	}

	// Persistence: blocking send, the core stalls until the writer drains.
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}

	// Projections: non-blocking send, rebuilt from the event log on lag.
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
		}
	}

	return &Receipt{
		Sequence:  out.Envelope.Sequence,
		EventType: out.Envelope.EventType.String(),
		StateHash: hex.EncodeToString(out.Envelope.StateHash[:]),
		Created:   res.created,
		Amounts:   res.amounts,
		Logs:      out.Envelope.Logs,
	}, nil
}

// Replay re-applies a call read back from the event log and verifies the
// stored hash. Outputs are not emitted: the call is already persisted.
func (e *Engine) Replay(evt event.Event, expectedHash [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, _, err := e.apply(evt, false)
	if err != nil {
		return fmt.Errorf("replay %s %s: %w", evt.EventType(), evt.IdempotencyKey(), err)
	}
	if out.Envelope.StateHash != expectedHash {
		return fmt.Errorf("%w at sequence %d: computed %x, stored %x",
			ErrHashMismatch, out.Envelope.Sequence, out.Envelope.StateHash, expectedHash)
	}
	return nil
}

// apply runs one call. Caller holds the write lock.
func (e *Engine) apply(evt event.Event, checkDB bool) (CoreOutput, outcome, error) {
	start := time.Now()
	if evt == nil {
		return CoreOutput{}, outcome{}, fmt.Errorf("%w: nil call", ErrInvalidCall)
	}
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	if idempotencyKey == "" {
		e.reject(eventType, "invalid")
		return CoreOutput{}, outcome{}, fmt.Errorf("%w: missing idempotency key", ErrInvalidCall)
	}
	if evt.Caller() == ledger.ZeroAddress {
		e.reject(eventType, "invalid")
		return CoreOutput{}, outcome{}, fmt.Errorf("%w: missing sender", ErrInvalidCall)
	}

	// Step 1: Idempotency check (two-tier)
	if e.idempotency.IsDuplicate(eventType, idempotencyKey, checkDB) {
		e.reject(eventType, "duplicate")
		return CoreOutput{}, outcome{}, fmt.Errorf("%w: %s %s", ErrDuplicate, eventType, idempotencyKey)
	}

	// Step 2: Clock validation
	ts := evt.EventTime()
	if err := e.clock.Validate(ts); err != nil {
		e.reject(eventType, "clock")
		if e.metrics != nil && errors.Is(err, ErrClockRegression) {
			e.metrics.ClockRegressions.Inc()
		}
		return CoreOutput{}, outcome{}, err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		e.reject(eventType, "invalid")
		return CoreOutput{}, outcome{}, fmt.Errorf("%w: encode payload: %v", ErrInvalidCall, err)
	}

	// Step 3: Execute in a transaction
	sequence := e.journalGen.Sequence()
	tx := e.bank.Begin(idempotencyKey)
	res, err := e.dispatchEvent(tx, evt, sequence)
	if err != nil {
		tx.Discard()
		e.reject(eventType, "execution")
		e.logger.Debug().
			Str("event_type", eventType).
			Str("idempotency_key", idempotencyKey).
			Err(err).
			Msg("call rejected")
		return CoreOutput{}, outcome{}, err
	}

	// Step 4: Commit journals and staged engine state
	batch, logs, err := tx.Commit(e.journalGen, ts.UnixMicro())
	if err != nil {
		e.reject(eventType, "commit")
		return CoreOutput{}, outcome{}, fmt.Errorf("commit: %w", err)
	}

	// Step 5: Post-checks
	if err := e.postCheckInvariants(batch, res); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated at sequence %d: %v", sequence, err))
	}

	// Step 6: Hash chain
	hashStart := time.Now()
	stateDigest := e.computeStateDigest(batch, res)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(sequence, stateDigest)
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := &event.EventEnvelope{
		Sequence:       sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Sender:         evt.Caller(),
		Timestamp:      ts,
		Payload:        payload,
		Logs:           logs,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	e.clock.Advance(ts)
	e.idempotency.MarkProcessed(eventType, idempotencyKey)
	e.recordMetrics(eventType, start, batch, logs, res)

	return CoreOutput{Envelope: envelope, Batch: batch, StateDelta: stateDigest}, res, nil
}

func (e *Engine) reject(eventType, reason string) {
	if e.metrics != nil {
		e.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

// computeStateDigest creates canonical bytes for the state hash: every
// account moved by the batch, the supply of every asset it touched, every
// pool's quote reserve and the totals of the staking ledger the call used.
func (e *Engine) computeStateDigest(batch *ledger.Batch, res outcome) []byte {
	affected := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		if j.From != ledger.ZeroAddress {
			affected[j.CreditAccount()] = true
		}
		if j.To != ledger.ZeroAddress {
			affected[j.DebitAccount()] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*96)

	for _, key := range accounts {
		digest = appendString(digest, key.AccountPath())
		digest = appendBigInt(digest, e.bank.BalanceOf(key.Asset, key.Owner))
	}

	assets := batch.Assets()
	sort.Slice(assets, func(i, j int) bool {
		return bytes.Compare(assets[i][:], assets[j][:]) < 0
	})
	for _, asset := range assets {
		digest = append(digest, asset[:]...)
		digest = appendBigInt(digest, e.bank.TotalSupply(asset))
	}

	for _, pool := range e.registry.Pools() {
		addr := pool.Address()
		digest = append(digest, addr[:]...)
		digest = appendBigInt(digest, pool.ReserveQuoteAmount())
	}

	if l := res.staking; l != nil {
		addr := l.Address()
		digest = append(digest, addr[:]...)
		digest = appendBigInt(digest, l.RewardPool())
		digest = appendBigInt(digest, l.TotalAccrued())
		digest = appendBigInt(digest, l.TotalStaked())
		for _, who := range l.Participants() {
			p, _ := l.Participant(who)
			digest = append(digest, who[:]...)
			digest = appendBigInt(digest, p.StakedAmount)
			digest = appendBigInt(digest, p.AccruedReward)
			digest = appendBigInt(digest, p.Weight)
			digest = appendInt64LE(digest, p.LastUpdate)
		}
	}

	return digest
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// appendBigInt writes sign, length and big-endian magnitude
func appendBigInt(buf []byte, v *big.Int) []byte {
	sign := byte(0)
	if v.Sign() < 0 {
		sign = 1
	}
	mag := v.Bytes()
	buf = append(buf, sign, byte(len(mag)))
	return append(buf, mag...)
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after commit
func (e *Engine) postCheckInvariants(batch *ledger.Batch, res outcome) error {
	for _, asset := range batch.Assets() {
		if err := e.validator.ValidateSupply(asset); err != nil {
			return fmt.Errorf("post-check supply: %w", err)
		}
	}

	// A pool's quote reserve is backed by its native balance. Direct
	// transfers to the pool can only raise the balance.
	for _, pool := range e.registry.Pools() {
		held := e.bank.BalanceOf(ledger.NativeAsset, pool.Address())
		if pool.ReserveQuoteAmount().Cmp(held) > 0 {
			return fmt.Errorf("post-check pool %s: quote reserve %s exceeds native balance %s",
				pool.Address().Hex(), pool.ReserveQuoteAmount(), held)
		}
	}

	if l := res.staking; l != nil {
		if l.TotalAccrued().Cmp(l.RewardPool()) > 0 {
			return fmt.Errorf("post-check staking %s: accrued %s exceeds reward pool %s",
				l.Address().Hex(), l.TotalAccrued(), l.RewardPool())
		}
		if held := e.bank.BalanceOf(l.RewardAsset(), l.Address()); l.RewardPool().Cmp(held) > 0 {
			return fmt.Errorf("post-check staking %s: reward pool %s exceeds holdings %s",
				l.Address().Hex(), l.RewardPool(), held)
		}
		if held := e.bank.BalanceOf(l.StakeAsset(), l.Address()); l.TotalStaked().Cmp(held) > 0 {
			return fmt.Errorf("post-check staking %s: total stake %s exceeds holdings %s",
				l.Address().Hex(), l.TotalStaked(), held)
		}
	}

	// Periodic full conservation sweep
	if batch.Sequence > 0 && batch.Sequence%1000 == 0 {
		if err := e.validator.ValidateAll(); err != nil {
			return fmt.Errorf("post-check sweep at seq %d: %w", batch.Sequence, err)
		}
	}

	return nil
}

func (e *Engine) recordMetrics(eventType string, start time.Time, batch *ledger.Batch, logs []event.Log, res outcome) {
	if e.metrics == nil {
		return
	}
	m := e.metrics

	m.CoreEventsApplied.WithLabelValues(eventType).Inc()
	m.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	m.CoreSequence.Set(float64(batch.Sequence))

	for _, j := range batch.Journals {
		m.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
	}

	touched := make(map[common.Address]bool)
	for _, l := range logs {
		m.CoreLogs.WithLabelValues(l.Type.String()).Inc()
		if _, ok := e.registry.PoolAt(l.Emitter); !ok {
			continue
		}
		touched[l.Emitter] = true
		switch l.Type {
		case event.LogTypeSwapExecuted:
			m.PoolSwaps.WithLabelValues(l.Emitter.Hex()).Inc()
		case event.LogTypeDepositUpdated:
			m.PoolLiquidityCalls.WithLabelValues(l.Emitter.Hex(), "add").Inc()
		case event.LogTypeWithdrawExecuted:
			m.PoolLiquidityCalls.WithLabelValues(l.Emitter.Hex(), "remove").Inc()
		}
	}
	for addr := range touched {
		pool, _ := e.registry.PoolAt(addr)
		m.PoolQuoteReserve.WithLabelValues(addr.Hex()).Set(observability.Float(pool.ReserveQuoteAmount()))
		m.PoolBaseReserve.WithLabelValues(addr.Hex()).Set(observability.Float(pool.ReserveBaseAmount(e.bank)))
	}
	m.PoolsTotal.Set(float64(len(e.registry.Pools())))

	if l := res.staking; l != nil {
		addr := l.Address().Hex()
		m.StakingCalls.WithLabelValues(addr, eventType).Inc()
		m.StakingTotalStaked.WithLabelValues(addr).Set(observability.Float(l.TotalStaked()))
		m.StakingRewardPool.WithLabelValues(addr).Set(observability.Float(l.RewardPool()))
	}
}
