package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_commands_total",
		Help: "Total number of commands submitted, by aggregate type and outcome",
	}, []string{"aggregate", "outcome"})

	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_command_duration_seconds",
		Help:    "Time taken to execute a command end to end",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"aggregate"})

	viewReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_view_reads_total",
		Help: "Total number of view reads, by view and outcome",
	}, []string{"view", "outcome"})

	projectionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_projection_errors_total",
		Help: "Total number of projection dispatch failures",
	})
)

// CountProjectionError is wired into every view projection's error handler.
func CountProjectionError() {
	projectionErrorsTotal.Inc()
}
