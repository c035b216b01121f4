// Package metrics exposes Prometheus collectors fed by executor observers.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/wavegrid/internal/executor"
)

const namespace = "wavegrid"

// Collector records run outcomes in its own registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runsActive  *prometheus.GaugeVec
}

var _ executor.Observer = (*Collector)(nil)

// NewCollector creates and registers the run collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "finished_total",
				Help:      "Runs that reached a terminal status.",
			},
			[]string{"workflow", "job", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Run duration in seconds. Skipped runs are not observed.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"workflow", "job", "status"},
		),
		runsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "active",
				Help:      "Runs currently executing.",
			},
			[]string{"workflow"},
		),
	}
	c.registry.MustRegister(c.runsTotal, c.runDuration, c.runsActive)
	return c
}

// Registry returns the registry holding the run collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RunStarted implements executor.Observer.
func (c *Collector) RunStarted(_ context.Context, ev executor.Event) {
	c.runsActive.WithLabelValues(ev.Workflow).Inc()
}

// RunFinished implements executor.Observer.
func (c *Collector) RunFinished(_ context.Context, ev executor.Event) {
	status := ev.Run.Status.String()
	c.runsTotal.WithLabelValues(ev.Workflow, ev.Run.Job, status).Inc()

	if ev.Run.StartedAt == nil {
		return
	}
	c.runsActive.WithLabelValues(ev.Workflow).Dec()
	if ev.Run.FinishedAt != nil {
		c.runDuration.WithLabelValues(ev.Workflow, ev.Run.Job, status).
			Observe(ev.Run.FinishedAt.Sub(*ev.Run.StartedAt).Seconds())
	}
}

