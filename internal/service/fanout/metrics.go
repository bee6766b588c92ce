package fanout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Subsystem: "hub",
			Name:      "subscriptions_active",
			Help:      "Open subscriptions across all topics.",
		},
	)

	topicsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Subsystem: "hub",
			Name:      "topics_active",
			Help:      "Topics with at least one subscriber.",
		},
	)

	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "hub",
			Name:      "published_total",
			Help:      "Events dispatched to local subscribers, by event type and origin.",
		},
		[]string{"type", "origin"},
	)

	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Events dropped: subscriber overflow, relay or change-feed backpressure.",
		},
		[]string{"reason"},
	)

	relayReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "relay",
			Name:      "reconnects_total",
			Help:      "Redis subscription re-establishments.",
		},
	)

	changeFeedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "changefeed",
			Name:      "writes_total",
			Help:      "Change feed messages written, by result.",
		},
		[]string{"result"},
	)
)

const (
	dropOverflow   = "subscriber_overflow"
	dropRelay      = "relay_backpressure"
	dropChangeFeed = "changefeed_backpressure"
)
