// Package metrics exposes the gateway's Prometheus series (spec.md
// §4.7, §7) as a Collector bound to its own registry, following the
// pack's collector-struct pattern (keeps metric construction
// test-friendly instead of relying on package-level globals that
// double-register across test runs).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns one registry and the full set of apex_* series.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	upstreamLatencyMS *prometheus.HistogramVec
	tokenTotal        *prometheus.CounterVec
}

// NewCollector builds a Collector on a fresh registry and registers all
// series immediately, mirroring the pack's NewCollector(namespace,
// logger) shape minus the logger (this package never logs).
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apex_requests_total",
			Help: "Total inbound requests that reached a successful upstream response.",
		}, []string{"route", "router"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apex_errors_total",
			Help: "Total requests that ended in a final error after exhausting candidates.",
		}, []string{"route", "router"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apex_fallback_total",
			Help: "Total times the pipeline switched to a router's fallback channel list.",
		}, []string{"router", "channel"}),
		upstreamLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apex_upstream_latency_ms",
			Help:    "Latency of a single upstream attempt, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"route", "router", "channel"}),
		tokenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apex_token_total",
			Help: "Total tokens accounted for by usage extraction, by direction.",
		}, []string{"router", "channel", "model", "type"}),
	}
	c.registry.MustRegister(
		c.requestsTotal,
		c.errorsTotal,
		c.fallbackTotal,
		c.upstreamLatencyMS,
		c.tokenTotal,
	)
	return c
}

func (c *Collector) RecordRequest(route, router string) {
	c.requestsTotal.WithLabelValues(route, router).Inc()
}

func (c *Collector) RecordError(route, router string) {
	c.errorsTotal.WithLabelValues(route, router).Inc()
}

func (c *Collector) RecordFallback(router, channel string) {
	c.fallbackTotal.WithLabelValues(router, channel).Inc()
}

func (c *Collector) RecordUpstreamLatency(route, router, channel string, ms float64) {
	c.upstreamLatencyMS.WithLabelValues(route, router, channel).Observe(ms)
}

func (c *Collector) RecordTokens(router, channel, model, direction string, amount int) {
	if amount <= 0 {
		return
	}
	c.tokenTotal.WithLabelValues(router, channel, model, direction).Add(float64(amount))
}

// Handler returns the Prometheus scrape endpoint handler for this
// collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
