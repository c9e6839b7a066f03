package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pemilu_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	TurnAdvancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pemilu_turn_advances_total",
			Help: "Total committed turn transitions",
		},
	)

	TurnAdvanceRacesLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pemilu_turn_advance_races_lost_total",
			Help: "Advance calls that found the turn already moved",
		},
	)

	SweepAdvancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pemilu_sweep_advances_total",
			Help: "Turn advances triggered by the server-side expiry sweep",
		},
	)

	SelectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pemilu_selections_total",
			Help: "Total recorded unit selections",
		},
	)

	SelectionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pemilu_selection_rejections_total",
			Help: "Selections rejected by the guard",
		},
		[]string{"reason"},
	)

	OutboxPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pemilu_outbox_published_total",
			Help: "Outbox events published to the relay",
		},
	)

	OutboxPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pemilu_outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed",
		},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pemilu_websocket_connections",
			Help: "Currently connected websocket viewers",
		},
	)
)
