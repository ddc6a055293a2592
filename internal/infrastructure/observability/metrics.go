// Package observability provides the prometheus metrics for the engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all engine metrics. It registers against its own registry
// so tests can build collectors freely without duplicate-registration panics.
type Collector struct {
	registry *prometheus.Registry

	// Operation metrics
	OperationsStarted  *prometheus.CounterVec
	OperationsFinished *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec

	// Persistence API metrics
	APICalls    *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec

	// Hierarchy metrics
	HierarchyRebuilds prometheus.Counter
	HierarchyRoots    prometheus.Gauge
	HierarchyConcepts prometheus.Gauge
}

// NewCollector creates a metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		OperationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Structural mutations started, by kind",
			},
			[]string{"kind"},
		),
		OperationsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_finished_total",
				Help:      "Structural mutations finished, by kind and terminal status",
			},
			[]string{"kind", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Structural mutation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		APICalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Persistence API calls, by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		APIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Persistence API round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		HierarchyRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hierarchy_rebuilds_total",
				Help:      "Times the category tree was rebuilt from the flat mapping",
			},
		),
		HierarchyRoots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hierarchy_root_categories",
				Help:      "Top-level categories in the current tree",
			},
		),
		HierarchyConcepts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hierarchy_concepts",
				Help:      "Concepts in the current tree",
			},
		),
	}

	registry.MustRegister(
		c.OperationsStarted,
		c.OperationsFinished,
		c.OperationDuration,
		c.APICalls,
		c.APIDuration,
		c.HierarchyRebuilds,
		c.HierarchyRoots,
		c.HierarchyConcepts,
	)

	return c
}

// Registry exposes the collector's registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OperationStarted implements ports.OperationMetrics.
func (c *Collector) OperationStarted(kind string) {
	c.OperationsStarted.WithLabelValues(kind).Inc()
}

// OperationFinished implements ports.OperationMetrics.
func (c *Collector) OperationFinished(kind, status string, duration time.Duration) {
	c.OperationsFinished.WithLabelValues(kind, status).Inc()
	c.OperationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// HierarchyRebuilt implements ports.OperationMetrics.
func (c *Collector) HierarchyRebuilt(rootCount, conceptCount int) {
	c.HierarchyRebuilds.Inc()
	c.HierarchyRoots.Set(float64(rootCount))
	c.HierarchyConcepts.Set(float64(conceptCount))
}

// APICall implements ports.OperationMetrics.
func (c *Collector) APICall(endpoint, outcome string, duration time.Duration) {
	c.APICalls.WithLabelValues(endpoint, outcome).Inc()
	c.APIDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
