// Package middleware provides dispatch interceptors for observability:
// Prometheus metrics and OpenTelemetry tracing. Interceptors attach to a
// runtime's dispatcher:
//
//	rt := store.NewRuntime()
//	rt.Dispatcher().Use(middleware.Prometheus())
//	rt.Dispatcher().Use(middleware.OpenTelemetry())
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tethys-org/store/pkg/dispatch"
)

// MetricsConfig configures the Prometheus dispatch interceptor.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "tethys").
	Namespace string

	// Subsystem is the metrics subsystem (default: "store").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus dispatch interceptor.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "tethys",
		Subsystem: "store",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// promInterceptor holds the dispatch metrics.
type promInterceptor struct {
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	inflight         prometheus.Gauge
}

// Prometheus creates a dispatch interceptor that collects:
//   - tethys_store_dispatches_total: counter by action and outcome
//   - tethys_store_dispatch_duration_seconds: histogram by action
//   - tethys_store_dispatches_inflight: gauge of pending executions
func Prometheus(opts ...MetricsOption) dispatch.Interceptor {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &promInterceptor{
		dispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Total number of action dispatches by terminal outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"action", "outcome"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Dispatch duration from start to settlement in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"action"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_inflight",
			Help:        "Number of executions currently pending",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *promInterceptor) DispatchStarted(_ dispatch.Info) {
	m.inflight.Inc()
}

func (m *promInterceptor) DispatchSettled(info dispatch.Info, outcome dispatch.Outcome, _ error, elapsed time.Duration) {
	m.inflight.Dec()
	m.dispatchesTotal.WithLabelValues(info.Action, outcome.String()).Inc()
	m.dispatchDuration.WithLabelValues(info.Action).Observe(elapsed.Seconds())
}
