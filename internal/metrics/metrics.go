package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"asteroidworks.ai/internal/sim/board"
)

// Board activity
var (
	ContractsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asteroidworks_contracts_generated_total",
			Help: "Total number of contracts generated by size and type",
		},
		[]string{"size", "type"},
	)

	BidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asteroidworks_bids_total",
			Help: "Total number of bids by outcome reason",
		},
		[]string{"reason"},
	)

	ContractsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asteroidworks_contracts_expired_total",
		Help: "Total number of contracts removed at their deadline without a local winner",
	})

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asteroidworks_settlements_total",
			Help: "Total number of settled contracts by result",
		},
		[]string{"result"},
	)

	OpenContracts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asteroidworks_open_contracts",
			Help: "Contracts currently on the board by phase",
		},
		[]string{"phase"},
	)
)

// Server loop
var (
	CurrentTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asteroidworks_current_tick",
		Help: "Last tick processed by the board scheduler",
	})

	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asteroidworks_snapshot_duration_seconds",
		Help:    "Time spent writing a board snapshot",
		Buckets: prometheus.DefBuckets,
	})

	IndexQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asteroidworks_index_queue_depth",
		Help: "Writes waiting in the index queue",
	})

	IndexDropped = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asteroidworks_index_dropped",
			Help: "Writes dropped because the index queue was full, by kind",
		},
		[]string{"kind"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asteroidworks_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)

// Observe updates the board metrics for one event. Register it with
// board.Subscribe.
func Observe(ev board.Event) {
	switch ev.Kind {
	case board.EventCreated:
		if c := ev.Entry.Contract; c != nil {
			ContractsGenerated.WithLabelValues(c.Size.String(), string(c.Type)).Inc()
		}
		OpenContracts.WithLabelValues(string(board.PhaseBidding)).Inc()
	case board.EventBid:
		BidsTotal.WithLabelValues(string(ev.Outcome.Reason)).Inc()
	case board.EventExpired:
		ContractsExpired.Inc()
		OpenContracts.WithLabelValues(string(board.PhaseBidding)).Dec()
	case board.EventAwaiting:
		OpenContracts.WithLabelValues(string(board.PhaseBidding)).Dec()
		OpenContracts.WithLabelValues(string(board.PhaseAwaiting)).Inc()
	case board.EventSettled:
		result := "failed"
		if ev.Settlement != nil && ev.Settlement.Success {
			result = "success"
		}
		SettlementsTotal.WithLabelValues(result).Inc()
		OpenContracts.WithLabelValues(string(board.PhaseAwaiting)).Dec()
	}
}

// SetOpen resets the open-contract gauge from a board listing, e.g. after a
// snapshot restore.
func SetOpen(entries []board.Entry) {
	var bidding, awaiting int
	for _, e := range entries {
		if e.Phase == board.PhaseAwaiting {
			awaiting++
		} else {
			bidding++
		}
	}
	OpenContracts.WithLabelValues(string(board.PhaseBidding)).Set(float64(bidding))
	OpenContracts.WithLabelValues(string(board.PhaseAwaiting)).Set(float64(awaiting))
}
