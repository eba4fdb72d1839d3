package flow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SignalflowCommitsTotal counts node commits by widget kind and outcome
	SignalflowCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalflow_commits_total",
			Help: "Total number of node commits",
		},
		[]string{"kind", "result"},
	)

	// SignalflowSignalsTotal counts output port emissions
	SignalflowSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalflow_signals_total",
			Help: "Total number of output signals by action (sent, cleared, withheld)",
		},
		[]string{"kind", "action"},
	)

	// SignalflowWaveNodes tracks how many nodes a propagation wave committed
	SignalflowWaveNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalflow_wave_nodes",
			Help:    "Number of nodes committed per propagation wave",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	// SignalflowBindRejectedTotal counts rejected links
	SignalflowBindRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalflow_bind_rejected_total",
			Help: "Total number of rejected bind attempts",
		},
		[]string{"reason"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(SignalflowCommitsTotal)
	prometheus.MustRegister(SignalflowSignalsTotal)
	prometheus.MustRegister(SignalflowWaveNodes)
	prometheus.MustRegister(SignalflowBindRejectedTotal)
}
