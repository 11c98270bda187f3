package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for provio.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepRetries   *prometheus.CounterVec

	// Probe metrics
	probesExecuted *prometheus.CounterVec

	// Poll metrics
	pollAttempts *prometheus.CounterVec
	pollTimeouts *prometheus.CounterVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	// Secret metrics
	secretsPublished      *prometheus.CounterVec
	credentialResolutions *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

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

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Run metrics
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of deployment runs started",
			},
			[]string{"stack"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of deployment runs finished",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Step metrics
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of steps executed",
			},
			[]string{"outcome", "decision"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		stepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retries after retryable failures",
			},
			[]string{"stack"},
		),

		// Probe metrics
		probesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_executed_total",
				Help:      "Total number of resource probes",
			},
			[]string{"result"},
		),

		// Poll metrics
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_attempts_total",
				Help:      "Total number of convergence poll attempts",
			},
			[]string{"stack"},
		),
		pollTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_timeouts_total",
				Help:      "Total number of polls that exhausted their attempt bound",
			},
			[]string{"stack"},
		),

		// Provider metrics
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider invocations",
			},
			[]string{"provider", "action"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of provider invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "action"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider invocation errors",
			},
			[]string{"provider", "class"},
		),

		// Secret metrics
		secretsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "secrets_published_total",
				Help:      "Total number of secrets published to the vault",
			},
			[]string{"mode", "reused"},
		),
		credentialResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_resolutions_total",
				Help:      "Total number of credential resolutions by source",
			},
			[]string{"source"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// System metrics
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active deployment runs",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.stepRetries,
		m.probesExecuted,
		m.pollAttempts,
		m.pollTimeouts,
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
		m.secretsPublished,
		m.credentialResolutions,
		m.errorsByClass,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(stack string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(stack).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a finished run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Step Metrics

// RecordStep records a step's terminal outcome.
func (m *Metrics) RecordStep(outcome, decision string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(outcome, decision).Inc()
	m.stepDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStepRetry records one retry after a retryable failure.
func (m *Metrics) RecordStepRetry(stack string) {
	if m.stepRetries == nil {
		return
	}
	m.stepRetries.WithLabelValues(stack).Inc()
}

// Probe Metrics

// RecordProbe records a probe with its result: "absent", "found" or "ambiguous".
func (m *Metrics) RecordProbe(result string) {
	if m.probesExecuted == nil {
		return
	}
	m.probesExecuted.WithLabelValues(result).Inc()
}

// Poll Metrics

// RecordPollAttempts records the convergence poll attempts a step consumed.
func (m *Metrics) RecordPollAttempts(stack string, count int) {
	if m.pollAttempts == nil || count <= 0 {
		return
	}
	m.pollAttempts.WithLabelValues(stack).Add(float64(count))
}

// RecordPollTimeout records a poll that exhausted its attempt bound.
func (m *Metrics) RecordPollTimeout(stack string) {
	if m.pollTimeouts == nil {
		return
	}
	m.pollTimeouts.WithLabelValues(stack).Inc()
}

// Provider Metrics

// RecordProviderCall records a provider invocation with its duration.
func (m *Metrics) RecordProviderCall(provider, action string, duration time.Duration) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, action).Inc()
	m.providerDuration.WithLabelValues(provider, action).Observe(duration.Seconds())
}

// RecordProviderError records a classified provider error.
func (m *Metrics) RecordProviderError(provider, class string) {
	if m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, class).Inc()
}

// Secret Metrics

// RecordSecretPublished records a secret publication.
func (m *Metrics) RecordSecretPublished(mode string, reused bool) {
	if m.secretsPublished == nil {
		return
	}
	reusedLabel := "false"
	if reused {
		reusedLabel = "true"
	}
	m.secretsPublished.WithLabelValues(mode, reusedLabel).Inc()
}

// RecordCredentialResolution records which source satisfied a credential.
func (m *Metrics) RecordCredentialResolution(source string) {
	if m.credentialResolutions == nil {
		return
	}
	m.credentialResolutions.WithLabelValues(source).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
