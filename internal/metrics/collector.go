// Package metrics exposes dispatch and connection telemetry in the
// prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"obsdock/internal/domain"
)

var states = []domain.ConnState{
	domain.StateDisconnected,
	domain.StateConnecting,
	domain.StateConnected,
	domain.StateReconnecting,
}

// Collector implements usecase.Recorder on a private registry.
type Collector struct {
	registry *prometheus.Registry

	connState      *prometheus.GaugeVec
	reconnects     *prometheus.CounterVec
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	refreshes      *prometheus.CounterVec
	refreshSeconds prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg}

	c.connState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "obsdock_connection_state",
		Help: "Current connection state (1 for the active state)",
	}, []string{"state"})
	reg.MustRegister(c.connState)

	c.reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "obsdock_reconnect_attempts_total",
		Help: "Automatic reconnect attempts by outcome",
	}, []string{"outcome"})
	reg.MustRegister(c.reconnects)

	c.actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "obsdock_actions_total",
		Help: "Dispatched actions by type and outcome",
	}, []string{"action", "outcome"})
	reg.MustRegister(c.actions)

	c.actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "obsdock_action_duration_seconds",
		Help:    "Dispatch latency including name resolution",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"action"})
	reg.MustRegister(c.actionDuration)

	c.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "obsdock_snapshot_refreshes_total",
		Help: "Snapshot refreshes by outcome",
	}, []string{"outcome"})
	reg.MustRegister(c.refreshes)

	c.refreshSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "obsdock_snapshot_refresh_duration_seconds",
		Help:    "Time to fetch a complete snapshot",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(c.refreshSeconds)

	reg.MustRegister(collectors.NewGoCollector())

	c.ConnectionStateChanged(domain.StateDisconnected)
	return c
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectionStateChanged(state domain.ConnState) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		c.connState.WithLabelValues(s.String()).Set(v)
	}
}

func (c *Collector) ReconnectAttempted(success bool) {
	c.reconnects.WithLabelValues(outcome(success)).Inc()
}

func (c *Collector) ActionDispatched(action domain.ActionType, result domain.ActionResult, elapsed time.Duration) {
	label := string(action)
	// Unknown types come from callers; keep them from growing the label set.
	if result.Kind == domain.KindUnsupported {
		label = "unsupported"
	}
	o := outcome(result.Success)
	if !result.Success {
		o = string(result.Kind)
	}
	c.actions.WithLabelValues(label, o).Inc()
	c.actionDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (c *Collector) SnapshotRefreshed(err error, elapsed time.Duration) {
	c.refreshes.WithLabelValues(outcome(err == nil)).Inc()
	c.refreshSeconds.Observe(elapsed.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
