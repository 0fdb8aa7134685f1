package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics records actuator activity in Prometheus collectors. Every method
// is a no-op when metrics are disabled.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	lookups        *prometheus.CounterVec
	observations   *prometheus.CounterVec
	observedLength *prometheus.HistogramVec

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec

	configReloads *prometheus.CounterVec
	actors        prometheus.Gauge
	rules         *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{Namespace: cfg.Namespace, Name: name, Help: help}, labels)
	}

	return &Metrics{
		config:   cfg,
		registry: registry,

		lookups:      counter("value_lookups_total", "Set-value rule lookups", "entity_id", "result"),
		observations: counter("state_observations_total", "Observed states resolved to a value", "entity_id", "result"),
		observedLength: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "state_observation_prefix_length",
			Help:      "Length of the matched prefix for recognized states",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		}, []string{"entity_id"}),

		calls:      counter("service_calls_total", "Service calls by outcome", "service", "status"),
		callErrors: counter("service_call_errors_total", "Failed service calls", "service"),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "service_call_duration_seconds",
			Help:      "Duration of service calls in seconds",
			Buckets:   buckets,
		}, []string{"service"}),

		configReloads: counter("config_reloads_total", "Configuration reload attempts", "status"),
		actors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "actors",
			Help:      "Configured actors",
		}),
		rules: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "rules",
			Help:      "Rules per actor",
		}, []string{"entity_id"}),
	}, nil
}

// RecordLookup records a set-value rule lookup.
func (m *Metrics) RecordLookup(entityID string, matched bool) {
	if m.lookups == nil {
		return
	}
	m.lookups.WithLabelValues(entityID, matchResult(matched)).Inc()
}

// RecordObserve records an observed-state resolution.
func (m *Metrics) RecordObserve(entityID string, recognized bool, length int) {
	if m.observations == nil {
		return
	}
	m.observations.WithLabelValues(entityID, matchResult(recognized)).Inc()
	if recognized {
		m.observedLength.WithLabelValues(entityID).Observe(float64(length))
	}
}

// RecordCall records a service call with its duration and outcome.
func (m *Metrics) RecordCall(service string, duration time.Duration, err error) {
	if m.calls == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
		m.callErrors.WithLabelValues(service).Inc()
	}
	m.calls.WithLabelValues(service, status).Inc()
	m.callDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(err error) {
	if m.configReloads == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// SetActorRules publishes the rule count of every configured actor.
func (m *Metrics) SetActorRules(rulesByEntity map[string]int) {
	if m.rules == nil {
		return
	}
	m.rules.Reset()
	for entityID, n := range rulesByEntity {
		m.rules.WithLabelValues(entityID).Set(float64(n))
	}
	m.actors.Set(float64(len(rulesByEntity)))
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func matchResult(ok bool) string {
	if ok {
		return "matched"
	}
	return "unmatched"
}

// Timer measures the duration of an operation.
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

// StartMetricsServer serves the metrics on ListenAddress in the background.
// It returns nil when metrics are disabled.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) (*http.Server, error) {
	if !m.config.Enabled {
		return nil, nil
	}
	if m.config.ListenAddress == "" {
		return nil, fmt.Errorf("metrics listen address is required")
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
			logger.Error().Err(err).Str("addr", server.Addr).Msg("Metrics server error")
		}
	}()

	return server, nil
}
