package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for environment lifecycle
// operations. When disabled every recorder is a no-op.
type Metrics struct {
	config MetricsConfig

	// Lifecycle metrics
	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	phaseDuration       *prometheus.HistogramVec

	// Provisioner metrics
	remediationFixes  *prometheus.CounterVec
	timeoutExtensions prometheus.Counter
	supervisedRuns    *prometheus.CounterVec

	// Deploy metrics
	deploys *prometheus.CounterVec

	// Policy metrics
	policyFindings *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeEnvironments prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of lifecycle operations started",
			},
			[]string{"operation"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of lifecycle operations completed",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of lifecycle operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "outcome"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of individual lifecycle phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),

		remediationFixes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remediation_fixes_total",
				Help:      "Total number of automatic fixes applied to provisioner failures",
			},
			[]string{"fix"},
		),
		timeoutExtensions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeout_extensions_total",
				Help:      "Total number of one-time deadline extensions granted to slow resources",
			},
		),
		supervisedRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "supervised_runs_total",
				Help:      "Total number of supervised provisioner commands",
			},
			[]string{"operation", "outcome"},
		),

		deploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploys_total",
				Help:      "Total number of workload deployments",
			},
			[]string{"method", "outcome"},
		),

		policyFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_findings_total",
				Help:      "Total number of admission policy findings",
			},
			[]string{"policy", "severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		activeEnvironments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_environments",
				Help:      "Current number of environments in the index that are not destroyed",
			},
		),
	}

	registry.MustRegister(
		m.operationsStarted,
		m.operationsCompleted,
		m.operationDuration,
		m.phaseDuration,
		m.remediationFixes,
		m.timeoutExtensions,
		m.supervisedRuns,
		m.deploys,
		m.policyFindings,
		m.errorsByClass,
		m.activeEnvironments,
	)

	return m, nil
}

// RecordOperationStarted increments the counter for started operations.
func (m *Metrics) RecordOperationStarted(operation string) {
	if m.operationsStarted == nil {
		return
	}
	m.operationsStarted.WithLabelValues(operation).Inc()
}

// RecordOperationCompleted records a finished operation with its
// outcome and duration.
func (m *Metrics) RecordOperationCompleted(operation, outcome string, duration time.Duration) {
	if m.operationsCompleted == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordPhase records the duration of one lifecycle phase.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordRemediationFix records one applied fix.
func (m *Metrics) RecordRemediationFix(fix string) {
	if m.remediationFixes == nil {
		return
	}
	m.remediationFixes.WithLabelValues(fix).Inc()
}

// RecordTimeoutExtension records a granted deadline extension.
func (m *Metrics) RecordTimeoutExtension() {
	if m.timeoutExtensions == nil {
		return
	}
	m.timeoutExtensions.Inc()
}

// RecordSupervisedRun records one supervised provisioner command.
func (m *Metrics) RecordSupervisedRun(operation, outcome string) {
	if m.supervisedRuns == nil {
		return
	}
	m.supervisedRuns.WithLabelValues(operation, outcome).Inc()
}

// RecordDeploy records one workload deployment attempt.
func (m *Metrics) RecordDeploy(method, outcome string) {
	if m.deploys == nil {
		return
	}
	m.deploys.WithLabelValues(method, outcome).Inc()
}

// RecordPolicyFinding records one admission policy finding.
func (m *Metrics) RecordPolicyFinding(policy, severity string) {
	if m.policyFindings == nil {
		return
	}
	m.policyFindings.WithLabelValues(policy, severity).Inc()
}

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// SetActiveEnvironments sets the current number of live environments.
func (m *Metrics) SetActiveEnvironments(count float64) {
	if m.activeEnvironments == nil {
		return
	}
	m.activeEnvironments.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
