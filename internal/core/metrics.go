package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Rows processed by kind and outcome (imported, rejected).",
		},
		[]string{"kind", "outcome"},
	)

	importDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roster",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Wall time of import runs by kind and final state.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind", "state"},
	)

	effectJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "effects",
			Name:      "jobs_total",
			Help:      "Secondary-effect jobs by outcome (succeeded, failed).",
		},
		[]string{"outcome"},
	)

	effectsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roster",
			Subsystem: "effects",
			Name:      "in_flight",
			Help:      "Secondary-effect jobs currently running.",
		},
	)

	identifierFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roster",
			Subsystem: "identifiers",
			Name:      "fallbacks_total",
			Help:      "Identifiers issued from the timestamp fallback after exhausting attempts.",
		},
		[]string{"kind"},
	)
)

func recordRow(kind EntityKind, outcome string) {
	importRowsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func recordImport(kind EntityKind, state RunState, d time.Duration) {
	importDuration.WithLabelValues(string(kind), string(state)).Observe(d.Seconds())
}

func recordEffect(outcome string) {
	effectJobsTotal.WithLabelValues(outcome).Inc()
}

func recordIdentifierFallback(kind EntityKind) {
	identifierFallbacks.WithLabelValues(string(kind)).Inc()
}
