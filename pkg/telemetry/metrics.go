package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for provisioning runs. A nil or
// disabled Metrics is safe to call; every recording method becomes a no-op.
type Metrics struct {
	config MetricsConfig

	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageRetries   *prometheus.CounterVec

	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	rollbacks  prometheus.Counter
	containers prometheus.Gauge

	devicesResolved *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		stagesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_executed_total",
				Help:      "Total number of stages executed, by scope and terminal status",
			},
			[]string{"scope", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage execution in seconds, including retry delays",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		stageRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_retries_total",
				Help:      "Total number of stage retry attempts beyond the first",
			},
			[]string{"scope"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of provisioning runs completed, by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of full provisioning runs in seconds",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"status"},
		),
		rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of container rollbacks performed",
			},
		),
		containers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "containers_provisioned",
				Help:      "Containers fully provisioned by the most recent run",
			},
		),
		devicesResolved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "passthrough_devices_resolved",
				Help:      "Host device nodes resolved for a container's passthrough plan",
			},
			[]string{"container"},
		),
	}

	collectors := []prometheus.Collector{
		m.stagesExecuted, m.stageDuration, m.stageRetries,
		m.runsCompleted, m.runDuration,
		m.rollbacks, m.containers, m.devicesResolved,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// StageExecuted records a terminal stage result.
func (m *Metrics) StageExecuted(scope, status string, duration time.Duration) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.stagesExecuted.WithLabelValues(scope, status).Inc()
	m.stageDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// StageRetries records retry attempts beyond the first for a stage.
func (m *Metrics) StageRetries(scope string, retries int) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.stageRetries.WithLabelValues(scope).Add(float64(retries))
}

// RunCompleted records a finished provisioning run.
func (m *Metrics) RunCompleted(status string, duration time.Duration) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RollbackPerformed records one container rollback.
func (m *Metrics) RollbackPerformed() {
	if m == nil || !m.config.Enabled {
		return
	}
	m.rollbacks.Inc()
}

// ContainersProvisioned records how many containers the last run completed.
func (m *Metrics) ContainersProvisioned(n int) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.containers.Set(float64(n))
}

// DevicesResolved records the resolved device count for a container's plan.
func (m *Metrics) DevicesResolved(container string, n int) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.devicesResolved.WithLabelValues(container).Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil || !m.config.Enabled {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
