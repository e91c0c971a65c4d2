// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airpay_deposits_started_total",
			Help: "Total number of deposit sessions that entered pending",
		},
	)

	DepositOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airpay_deposit_outcomes_total",
			Help: "Terminal deposit sessions by status",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airpay_active_sessions",
			Help: "Deposit sessions currently being polled",
		},
	)

	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airpay_poll_errors_total",
			Help: "Balance queries that failed during monitoring",
		},
	)

	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airpay_transfers_total",
			Help: "Outgoing transfers by kind (sweep, bulk) and result",
		},
		[]string{"kind", "result"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "airpay_sweep_duration_seconds",
			Help:    "Time from confirmation to sweep receipt",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
	)
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
