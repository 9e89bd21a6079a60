// Package metrics holds the orchestrator's Prometheus collectors. They are
// served by the control API on /metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SitesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devhost_sites_running",
		Help: "Number of site backends currently tracked as running",
	})

	ProxyUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devhost_proxy_up",
		Help: "Whether the reverse proxy process is running (1) or not (0)",
	})

	PlanningPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "devhost_planning_pass_duration_seconds",
		Help:    "Duration of discover, allocate, render and start passes",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	ProcessExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devhost_process_exits_total",
		Help: "Child process exits observed, by process kind",
	}, []string{"kind"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devhost_events_dropped_total",
		Help: "Notification events dropped because a subscriber was not keeping up",
	})

	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devhost_operations_total",
		Help: "Global lifecycle operations, by operation and result",
	}, []string{"operation", "result"})
)

// RegisterTracked exposes the size of a process registry as a gauge labelled
// with kind. Registering the same kind twice is a no-op.
func RegisterTracked(kind string, count func() int) {
	err := prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "devhost_tracked_processes",
		Help:        "Child processes currently tracked, by kind",
		ConstLabels: prometheus.Labels{"kind": kind},
	}, func() float64 {
		return float64(count())
	}))
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		panic(err)
	}
}

// ResultLabel maps an operation error to the "result" label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
