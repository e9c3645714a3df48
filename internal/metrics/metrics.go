// Package metrics exposes task outcome collectors for the status server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskgrid"

// Metrics holds the collectors of a single invocation on their own registry,
// so concurrent runs in one process (tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "tasks_total",
				Help:      "number of settled tasks by final status",
			}, []string{"status"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "action_duration_seconds",
				Help:      "wall time spent in task actions",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			}, []string{"task"}),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "running_tasks",
				Help:      "number of actions currently executing",
			}),
	}
	m.registry.MustRegister(m.tasks, m.duration, m.running)
	return m
}

// Started records an action beginning.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.running.Inc()
}

// Finished records an action ending after d.
func (m *Metrics) Finished(taskID string, d time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.duration.WithLabelValues(taskID).Observe(d.Seconds())
}

// Settled counts a task reaching its final status.
func (m *Metrics) Settled(status string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(status).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
