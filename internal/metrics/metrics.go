// Package metrics exposes Prometheus instrumentation for the pipeline,
// styled on the teacher's monitoring package (promauto vecs registered at
// package init, served via promhttp.Handler). Purely observational: no
// metric here feeds back into a control-flow decision in components A-H.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_ticks_ingested_total",
			Help: "Total ticks accepted by the ingestion buffer, by symbol.",
		},
		[]string{"symbol"},
	)

	TicksDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_ticks_dropped_total",
			Help: "Total upstream frames dropped, by reason.",
		},
		[]string{"reason"},
	)

	BarsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_bars_finalized_total",
			Help: "Total bars finalized, by symbol and interval.",
		},
		[]string{"symbol", "interval"},
	)

	AnalyticsTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statarb_analytics_tick_duration_seconds",
			Help:    "Duration of one orchestrator analytics iteration.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_alerts_fired_total",
			Help: "Total alerts fired, by kind.",
		},
		[]string{"kind"},
	)

	ActiveSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statarb_broadcast_subscribers",
			Help: "Current subscriber count, by topic.",
		},
		[]string{"topic"},
	)

	BroadcastSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_broadcast_send_failures_total",
			Help: "Total subscriber send failures, by topic.",
		},
		[]string{"topic"},
	)

	UpstreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statarb_upstream_connected",
			Help: "1 if the tick source's upstream transport is live, else 0.",
		},
	)
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
