package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// PrometheusMetrics holds all Prometheus metrics for the load driver.
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	// Submission counters
	SubmissionsTotal *prometheus.CounterVec
	BurstsTotal      prometheus.Counter

	// Gauges
	CurrentBlock   prometheus.Gauge
	ElapsedBlocks  prometheus.Gauge
	BurstSize      prometheus.Gauge
	BlockFeeSpent  prometheus.Gauge
	FreeBalance    prometheus.Gauge
	BlockRefTime   prometheus.Gauge
	BlockProofSize prometheus.Gauge
	RunState       *prometheus.GaugeVec

	// Histograms
	BurstDuration prometheus.Histogram
	RPCLatency    *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcaload_submissions_total",
				Help: "DCA schedule submissions by outcome",
			},
			[]string{"outcome"},
		),

		BurstsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dcaload_bursts_total",
				Help: "Submission bursts performed",
			},
		),

		CurrentBlock: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_current_block",
				Help: "Last observed block number",
			},
		),

		ElapsedBlocks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_elapsed_blocks",
				Help: "Blocks elapsed since the run started",
			},
		),

		BurstSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_burst_size",
				Help: "Submission attempts in the last burst",
			},
		),

		BlockFeeSpent: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_block_fee_spent",
				Help: "Balance spent by the signer between the last two bursts (planck)",
			},
		),

		FreeBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_free_balance",
				Help: "Free balance of the signer (planck)",
			},
		),

		BlockRefTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_block_weight_ref_time",
				Help: "Normal class ref time weight of the current block",
			},
		),

		BlockProofSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcaload_block_weight_proof_size",
				Help: "Normal class proof size weight of the current block",
			},
		),

		RunState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dcaload_run_state",
				Help: "Current run state (1 if active, 0 otherwise)",
			},
			[]string{"state"},
		),

		BurstDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dcaload_burst_duration_seconds",
				Help:    "Wall time of one submission burst",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 6, 12, 24},
			},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dcaload_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "status"},
		),
	}
}

// RecordSubmission records the outcome of one schedule submission.
func (m *PrometheusMetrics) RecordSubmission(outcome types.SubmissionOutcome) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordBurst records the block-level telemetry of one burst.
// fee and balance may be nil when the follow-up queries failed.
func (m *PrometheusMetrics) RecordBurst(summary types.BurstSummary, fee, balance *big.Int) {
	if m == nil {
		return
	}
	m.BurstsTotal.Inc()
	m.CurrentBlock.Set(float64(summary.Block))
	m.ElapsedBlocks.Set(float64(summary.ElapsedBlocks))
	m.BurstSize.Set(float64(summary.Attempts))
	m.BurstDuration.Observe(float64(summary.DurationMs) / 1000)
	if fee != nil {
		m.BlockFeeSpent.Set(bigToFloat(fee))
	}
	if balance != nil {
		m.FreeBalance.Set(bigToFloat(balance))
	}
	if summary.WeightKnown {
		m.BlockRefTime.Set(float64(summary.RefTime))
		m.BlockProofSize.Set(float64(summary.ProofSize))
	}
}

// SetFreeBalance updates the free balance gauge.
func (m *PrometheusMetrics) SetFreeBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	m.FreeBalance.Set(bigToFloat(balance))
}

// knownRPCMethods is a fixed set of known RPC methods to prevent cardinality explosion
var knownRPCMethods = map[string]bool{
	"system_accountNextIndex": true,
	"author_submitExtrinsic":  true,
	"chain_getHeader":         true,
	"state_getStorage":        true,
	"system_chain":            true,
}

// RecordRPCLatency records RPC call latency.
func (m *PrometheusMetrics) RecordRPCLatency(method string, success bool, latencySeconds float64) {
	if m == nil {
		return
	}
	// Bucket unknown methods into 'other' to prevent cardinality explosion
	bucketedMethod := method
	if !knownRPCMethods[method] {
		bucketedMethod = "other"
	}

	status := "success"
	if !success {
		status = "error"
	}
	m.RPCLatency.WithLabelValues(bucketedMethod, status).Observe(latencySeconds)
}

// SetRunState updates the run state gauges.
func (m *PrometheusMetrics) SetRunState(state types.RunState) {
	if m == nil {
		return
	}
	for _, s := range []types.RunState{
		types.StateIdle, types.StateStarting, types.StateRunning,
		types.StateCompleted, types.StateInterrupted, types.StateError,
	} {
		if s == state {
			m.RunState.WithLabelValues(string(s)).Set(1)
		} else {
			m.RunState.WithLabelValues(string(s)).Set(0)
		}
	}
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
