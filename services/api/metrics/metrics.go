// Package metrics exposes the API's Prometheus series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/aqi-station-viewer/services/api/focus"
)

// Collector owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	FocusTransitions *prometheus.CounterVec
	HistoryLoads     *prometheus.CounterVec
	HistoryDuration  prometheus.Histogram
	StationsRejected *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	OverlayReady     *prometheus.GaugeVec
}

// NewCollector registers every series under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"route"},
		),

		FocusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "focus_transitions_total",
				Help:      "Station focus changes by trigger",
			},
			[]string{"trigger"},
		),

		HistoryLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_loads_total",
				Help:      "History loads by outcome (ok, empty, error, stale)",
			},
			[]string{"outcome"},
		),

		HistoryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "history_fetch_duration_seconds",
				Help:      "Time spent reading the history table",
				Buckets:   prometheus.DefBuckets,
			},
		),

		StationsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stations_rejected_total",
				Help:      "Feed records dropped at load by reason",
			},
			[]string{"reason"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Open view sessions",
			},
		),

		OverlayReady: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "overlay_ready",
				Help:      "1 once a population overlay has loaded",
			},
			[]string{"overlay"},
		),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests per matched route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.APIRequestsTotal.WithLabelValues(route, ctx.Request.Method, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// HistoryFetched records a history load.
func (c *Collector) HistoryFetched(outcome string, elapsed time.Duration) {
	c.HistoryLoads.WithLabelValues(outcome).Inc()
	c.HistoryDuration.Observe(elapsed.Seconds())
}

// Focused records a focus change.
func (c *Collector) Focused(trigger focus.Trigger) {
	c.FocusTransitions.WithLabelValues(string(trigger)).Inc()
}

// HistoryStale records a history response discarded after a newer focus.
func (c *Collector) HistoryStale() {
	c.HistoryLoads.WithLabelValues("stale").Inc()
}

// StationRejected records a dropped feed record.
func (c *Collector) StationRejected(reason string) {
	c.StationsRejected.WithLabelValues(reason).Inc()
}

// SessionsActive sets the open session count.
func (c *Collector) SessionsActive(n int) {
	c.ActiveSessions.Set(float64(n))
}

// OverlayLoaded records the outcome of an overlay load.
func (c *Collector) OverlayLoaded(name string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	c.OverlayReady.WithLabelValues(name).Set(v)
}
