package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for mangasync.
type Metrics struct {
	config MetricsConfig

	// State engine metrics
	reductions     *prometheus.CounterVec
	effectRuns     *prometheus.CounterVec
	effectDuration *prometheus.HistogramVec
	enginesActive  prometheus.Gauge
	subscribers    prometheus.Gauge

	// Interactor metrics
	upserts        *prometheus.CounterVec
	deletes        *prometheus.CounterVec
	chapterChanges *prometheus.CounterVec
	installSteps   *prometheus.CounterVec

	// Source metrics
	sourceCalls    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	sourceErrors   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

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

		reductions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reductions_total",
				Help:      "Total number of state reductions applied",
			},
			[]string{"engine"},
		),
		effectRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effect_runs_total",
				Help:      "Total number of side-effect runs by outcome",
			},
			[]string{"effect", "result"},
		),
		effectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "effect_duration_seconds",
				Help:      "Duration of side-effect runs in seconds",
				Buckets:   buckets,
			},
			[]string{"effect"},
		),
		enginesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engines_active",
				Help:      "Current number of active state engines",
			},
		),
		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engine_subscribers",
				Help:      "Current number of state subscribers across engines",
			},
		),

		upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upserts_total",
				Help:      "Total number of get-or-create calls by outcome",
			},
			[]string{"result"},
		),
		deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletes_total",
				Help:      "Total number of delete calls by outcome",
			},
			[]string{"result"},
		),
		chapterChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chapter_changes_total",
				Help:      "Total number of chapter rows changed by reconciliation",
			},
			[]string{"kind"},
		),
		installSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "install_steps_total",
				Help:      "Total number of install step transitions",
			},
			[]string{"step"},
		),

		sourceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_calls_total",
				Help:      "Total number of remote source calls",
			},
			[]string{"source", "operation"},
		),
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_call_duration_seconds",
				Help:      "Duration of remote source calls in seconds",
				Buckets:   buckets,
			},
			[]string{"source", "operation"},
		),
		sourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of remote source errors",
			},
			[]string{"source", "operation"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.reductions,
		m.effectRuns,
		m.effectDuration,
		m.enginesActive,
		m.subscribers,
		m.upserts,
		m.deletes,
		m.chapterChanges,
		m.installSteps,
		m.sourceCalls,
		m.sourceDuration,
		m.sourceErrors,
		m.errorsByClass,
	)

	return m, nil
}

// enabled reports whether collectors exist. A nil *Metrics is a no-op.
func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Engine Metrics

// RecordReduction counts one applied reduction for the named engine.
func (m *Metrics) RecordReduction(engine string) {
	if !m.enabled() {
		return
	}
	m.reductions.WithLabelValues(engine).Inc()
}

// RecordEffectRun records a side-effect run with its result and duration.
func (m *Metrics) RecordEffectRun(effect, result string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.effectRuns.WithLabelValues(effect, result).Inc()
	m.effectDuration.WithLabelValues(effect).Observe(duration.Seconds())
}

// EngineStarted increments the active engine gauge.
func (m *Metrics) EngineStarted() {
	if !m.enabled() {
		return
	}
	m.enginesActive.Inc()
}

// EngineStopped decrements the active engine gauge.
func (m *Metrics) EngineStopped() {
	if !m.enabled() {
		return
	}
	m.enginesActive.Dec()
}

// AddSubscribers adjusts the subscriber gauge by delta.
func (m *Metrics) AddSubscribers(delta int) {
	if !m.enabled() {
		return
	}
	m.subscribers.Add(float64(delta))
}

// Interactor Metrics

// RecordUpsert records a get-or-create outcome (found, created, retried, failed).
func (m *Metrics) RecordUpsert(result string) {
	if !m.enabled() {
		return
	}
	m.upserts.WithLabelValues(result).Inc()
}

// RecordDelete records a delete outcome (deleted, not_found, failed).
func (m *Metrics) RecordDelete(result string) {
	if !m.enabled() {
		return
	}
	m.deletes.WithLabelValues(result).Inc()
}

// RecordChapterChanges records the size of an applied chapter diff.
func (m *Metrics) RecordChapterChanges(added, updated, deleted int) {
	if !m.enabled() {
		return
	}
	m.chapterChanges.WithLabelValues("added").Add(float64(added))
	m.chapterChanges.WithLabelValues("updated").Add(float64(updated))
	m.chapterChanges.WithLabelValues("deleted").Add(float64(deleted))
}

// RecordInstallStep counts a transition into step.
func (m *Metrics) RecordInstallStep(step string) {
	if !m.enabled() {
		return
	}
	m.installSteps.WithLabelValues(step).Inc()
}

// Source Metrics

// RecordSourceCall records a remote source call with its duration.
func (m *Metrics) RecordSourceCall(source, operation string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.sourceCalls.WithLabelValues(source, operation).Inc()
	m.sourceDuration.WithLabelValues(source, operation).Observe(duration.Seconds())
}

// RecordSourceError records a remote source error.
func (m *Metrics) RecordSourceError(source, operation string) {
	if !m.enabled() {
		return
	}
	m.sourceErrors.WithLabelValues(source, operation).Inc()
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.enabled() {
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Log error but don't fail the application
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server error")
		}
	}()

	return nil
}
