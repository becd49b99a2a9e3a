package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campus-bus-tracker/internal/mapsync"
)

var (
	feedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_feed_fetches_total",
			Help: "Feed fetch attempts by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	feedVehicles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustracker_feed_vehicles",
			Help: "Vehicles in the latest feed snapshot",
		},
	)

	feedBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bustracker_feed_breaker_state",
			Help: "Feed circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"feed"},
	)

	mapSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustracker_map_sessions",
			Help: "Connected map views",
		},
	)

	markerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_marker_ops_total",
			Help: "Marker synchronizer outcomes",
		},
		[]string{"op"}, // "created", "moved", "removed", "skipped"
	)

	routeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_route_layer_ops_total",
			Help: "Route layer synchronizer outcomes",
		},
		[]string{"op"},
	)
)

func recordMarkerStats(s mapsync.SyncStats) {
	markerOps.WithLabelValues("created").Add(float64(s.Created))
	markerOps.WithLabelValues("moved").Add(float64(s.Moved))
	markerOps.WithLabelValues("removed").Add(float64(s.Removed))
	markerOps.WithLabelValues("skipped").Add(float64(s.Skipped))
}

func recordRouteOp(op mapsync.RouteOp) {
	if op == mapsync.RouteNoop {
		return
	}
	routeOps.WithLabelValues(op.String()).Inc()
}
