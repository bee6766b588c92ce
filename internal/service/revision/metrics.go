package revision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	revisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "revision",
			Name:      "duration_seconds",
			Help:      "Time from REVISING to REVISED or failure, by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"outcome"},
	)

	revisionsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Subsystem: "revision",
			Name:      "running",
			Help:      "Revision jobs currently in flight.",
		},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "revision",
			Name:      "decisions_total",
			Help:      "Accept/decline calls, by decision and result.",
		},
		[]string{"decision", "result"},
	)
)

const (
	outcomeRevised   = "revised"
	outcomeFailed    = "failed"
	outcomeTimedOut  = "timed_out"
	outcomeCancelled = "cancelled"
)
