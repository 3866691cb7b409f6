// Package metrics holds the Prometheus instrumentation for the trading core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	CandlesTotal     *prometheus.CounterVec // labels: symbol
	FeedReconnects   *prometheus.CounterVec // labels: symbol
	EventsDropped    *prometheus.CounterVec // labels: symbol
	AdvisoryFailures prometheus.Counter
	AdvisoryLatency  prometheus.Histogram
	TradesExecuted   *prometheus.CounterVec // labels: symbol, side
	GateRejections   *prometheus.CounterVec // labels: reason
}

// New registers and returns all collectors on a fresh registry, so tests can
// hold independent instances without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pilot_candles_total",
			Help: "Total candles received from the market feed",
		}, []string{"symbol"}),
		FeedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pilot_feed_reconnects_total",
			Help: "Total feed reconnection attempts",
		}, []string{"symbol"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pilot_events_dropped_total",
			Help: "Market events dropped because a symbol's queue was full",
		}, []string{"symbol"}),
		AdvisoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pilot_advisory_failures_total",
			Help: "Advisory calls that fell back to the degraded default",
		}),
		AdvisoryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pilot_advisory_latency_seconds",
			Help:    "Advisory call latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pilot_trades_executed_total",
			Help: "Trades successfully submitted to the exchange",
		}, []string{"symbol", "side"}),
		GateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pilot_gate_rejections_total",
			Help: "Decision loop events stopped by a gate, by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.CandlesTotal, m.FeedReconnects, m.EventsDropped,
		m.AdvisoryFailures, m.AdvisoryLatency,
		m.TradesExecuted, m.GateRejections,
	)
	return m
}

// Handler returns an HTTP handler exposing the registry, for the caller's
// HTTP layer to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
