package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the dev loop. When disabled all
// recording methods are no-ops so callers never need to nil-check.
type Metrics struct {
	config MetricsConfig

	// Packaging metrics
	batchesStarted   *prometheus.CounterVec
	batchesCompleted *prometheus.CounterVec
	packageDuration  *prometheus.HistogramVec
	activeBatches    prometheus.Gauge

	// Dependency metrics
	installsTotal  prometheus.Counter
	missingModules prometheus.Gauge

	// Registry metrics
	pluginsRegistered prometheus.Counter
	diagnostics       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own Prometheus registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		batchesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packaging_batches_started_total",
				Help:      "Total number of packaging batches started",
			},
			[]string{"trigger"},
		),
		batchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packaging_batches_completed_total",
				Help:      "Total number of packaging batches completed, by outcome",
			},
			[]string{"outcome"},
		),
		packageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "package_duration_seconds",
				Help:      "Duration of individual component packaging calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),
		activeBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "packaging_batches_active",
				Help:      "Number of packaging batches currently running (0 or 1)",
			},
		),
		installsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dependency_installs_total",
				Help:      "Total number of dependency install passes",
			},
		),
		missingModules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dependency_modules_missing",
				Help:      "Missing modules observed in the last resolve pass",
			},
		),
		pluginsRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_plugins_registered_total",
				Help:      "Total number of plugins registered into the dev registry",
			},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_diagnostics_total",
				Help:      "Registry diagnostic events observed, by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.batchesStarted,
		m.batchesCompleted,
		m.packageDuration,
		m.activeBatches,
		m.installsTotal,
		m.missingModules,
		m.pluginsRegistered,
		m.diagnostics,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics, or nil when disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBatchStarted records the start of a packaging batch.
func (m *Metrics) RecordBatchStarted(trigger string) {
	if m.registry == nil {
		return
	}
	m.batchesStarted.WithLabelValues(trigger).Inc()
	m.activeBatches.Set(1)
}

// RecordBatchCompleted records the terminal outcome of a packaging batch.
func (m *Metrics) RecordBatchCompleted(outcome string) {
	if m.registry == nil {
		return
	}
	m.batchesCompleted.WithLabelValues(outcome).Inc()
	m.activeBatches.Set(0)
}

// RecordPackageDuration records one component's packaging duration.
func (m *Metrics) RecordPackageDuration(component string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.packageDuration.WithLabelValues(component).Observe(d.Seconds())
}

// RecordInstall records a dependency install pass and the number of modules
// that were missing going into it.
func (m *Metrics) RecordInstall(missing int) {
	if m.registry == nil {
		return
	}
	m.installsTotal.Inc()
	m.missingModules.Set(float64(missing))
}

// RecordDependenciesResolved clears the missing-modules gauge after a clean
// resolve pass.
func (m *Metrics) RecordDependenciesResolved() {
	if m.registry == nil {
		return
	}
	m.missingModules.Set(0)
}

// RecordPluginRegistered records a successful plugin registration.
func (m *Metrics) RecordPluginRegistered() {
	if m.registry == nil {
		return
	}
	m.pluginsRegistered.Inc()
}

// RecordDiagnostic records a registry diagnostic event by kind.
func (m *Metrics) RecordDiagnostic(kind string) {
	if m.registry == nil {
		return
	}
	m.diagnostics.WithLabelValues(kind).Inc()
}
