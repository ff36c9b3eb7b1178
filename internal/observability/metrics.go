package observability

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SwapLedger
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreLogs           *prometheus.CounterVec
	CoreStateHashDur   prometheus.Histogram
	CoreSequence       prometheus.Gauge
	ClockRegressions   prometheus.Counter

	// --- Pools ---
	PoolSwaps          *prometheus.CounterVec
	PoolLiquidityCalls *prometheus.CounterVec
	PoolQuoteReserve   *prometheus.GaugeVec
	PoolBaseReserve    *prometheus.GaugeVec
	PoolsTotal         prometheus.Gauge

	// --- Staking ---
	StakingCalls       *prometheus.CounterVec
	StakingTotalStaked *prometheus.GaugeVec
	StakingRewardPool  *prometheus.GaugeVec
	StakingAccrualCaps *prometheus.CounterVec

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	NATSPullLatency     *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Ingestion ---
	IngestParseErrors *prometheus.CounterVec
	IngestSubmitted   *prometheus.CounterVec

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Errors      prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistLogsWritten     prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in the service and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01, 0.05, 0.1,
	}

	return &Metrics{
		CoreEventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_core_events_applied_total",
			Help: "Calls successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_core_events_rejected_total",
			Help: "Calls rejected (duplicate, clock, execution error)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_core_event_apply_duration_seconds",
			Help:    "Time to apply a single call in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreLogs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_core_logs_emitted_total",
			Help: "Audit log entries emitted by committed calls",
		}, []string{"log_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_core_sequence",
			Help: "Last applied sequence (block height)",
		}),

		ClockRegressions: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_core_clock_regressions_total",
			Help: "Calls rejected for carrying a timestamp before the last applied one",
		}),

		PoolSwaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_pool_swaps_total",
			Help: "Swap legs executed per pool",
		}, []string{"pool"}),

		PoolLiquidityCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_pool_liquidity_calls_total",
			Help: "Liquidity additions and removals per pool",
		}, []string{"pool", "kind"}),

		PoolQuoteReserve: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_pool_quote_reserve",
			Help: "Quote reserve per pool (smallest unit, approximate)",
		}, []string{"pool"}),

		PoolBaseReserve: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_pool_base_reserve",
			Help: "Base reserve per pool (smallest unit, approximate)",
		}, []string{"pool"}),

		PoolsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_pools_total",
			Help: "Registered pools",
		}),

		StakingCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_staking_calls_total",
			Help: "Staking operations applied per ledger",
		}, []string{"ledger", "operation"}),

		StakingTotalStaked: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_staking_total_staked",
			Help: "Total stake per ledger (smallest unit, approximate)",
		}, []string{"ledger"}),

		StakingRewardPool: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_staking_reward_pool",
			Help: "Remaining reward pool per ledger (smallest unit, approximate)",
		}, []string{"ledger"}),

		StakingAccrualCaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_staking_accrual_capped_total",
			Help: "Accruals limited by the unallocated reward pool",
		}, []string{"ledger"}),

		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_ingest_to_apply_seconds",
			Help:    "Latency from ingestion to core apply",
			Buckets: ingestBuckets,
		}, []string{"source"}),

		NATSPullLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_nats_pull_latency_seconds",
			Help:    "NATS message pull latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_persist_batch_duration_seconds",
			Help:    "Time to persist one batch",
			Buckets: prometheus.DefBuckets,
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_projection_update_duration_seconds",
			Help:    "Time to update a projection",
			Buckets: prometheus.DefBuckets,
		}, []string{"projection"}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_channel_size",
			Help: "Current channel occupancy",
		}, []string{"channel"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_channel_capacity",
			Help: "Channel capacity",
		}, []string{"channel"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swap_channel_utilization",
			Help: "Channel occupancy / capacity",
		}, []string{"channel"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_projection_drops_total",
			Help: "Outputs dropped because the projection channel was full",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_publish_drops_total",
			Help: "Outbound events dropped",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_backpressure_total",
			Help: "Times core blocked on the persist channel",
		}),

		IngestParseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_ingest_parse_errors_total",
			Help: "Inbound calls that failed to parse",
		}, []string{"source"}),

		IngestSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_ingest_submitted_total",
			Help: "Calls handed to core",
		}, []string{"source", "event_type"}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_idempotency_duplicates_total",
			Help: "Duplicate calls detected",
		}, []string{"tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_dedup_lru_evictions_total",
			Help: "Idempotency LRU evictions",
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_dedup_tier2_errors_total",
			Help: "Postgres idempotency lookups that failed",
		}),

		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistLogsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_logs_written_total",
			Help: "Audit log entries written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"stage"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_snapshot_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_snapshot_duration_seconds",
			Help:    "Time to write a snapshot",
			Buckets: prometheus.DefBuckets,
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_snapshot_size_bytes",
			Help: "Size of the last snapshot",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_snapshot_last_sequence",
			Help: "Sequence of the last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "swap_replay_events_total",
			Help: "Events replayed during recovery",
		}),

		ReplayDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "swap_replay_duration_seconds",
			Help: "Duration of the last recovery replay",
		}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_query_requests_total",
			Help: "Query API requests",
		}, []string{"route"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_query_errors_total",
			Help: "Query API errors",
		}, []string{"route", "code"}),
	}
}

// SetChannelMetrics updates the occupancy gauges for one channel
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// Float converts an amount for gauge export. Precision loss is acceptable here.
func Float(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
