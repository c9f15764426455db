package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: matching rounds by outcome (ok, failed, empty)
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchd_rounds_total",
			Help: "Total matching rounds, labelled by outcome",
		},
		[]string{"outcome"},
	)

	// Counter: fills produced by the matcher
	FillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchd_fills_total",
			Help: "Total fills produced across all rounds",
		},
	)

	// Counter: matched volume in base units
	MatchedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchd_matched_amount_total",
			Help: "Total matched amount in base units",
		},
	)

	// Histogram: per-phase round latency
	RoundPhaseSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchd_round_phase_seconds",
			Help:    "Duration of each round phase (match, post)",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3.2s
		},
		[]string{"phase"},
	)

	// Gauge: settlement submissions currently holding a concurrency permit
	SettlementInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchd_settlement_inflight",
			Help: "Settlement batch submissions currently in flight",
		},
	)

	// Counter: settlement batches by outcome (confirmed, failed)
	SettlementBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchd_settlement_batches_total",
			Help: "Settlement batches submitted, labelled by outcome",
		},
		[]string{"outcome"},
	)

	// Gauge: resting order depth per side
	BookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matchd_book_depth",
			Help: "Resting orders currently in the book",
		},
		[]string{"side"},
	)
)
