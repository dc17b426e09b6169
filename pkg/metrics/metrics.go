package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xchoux1/aide/pkg/resilience"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Circuit breaker metrics
	CircuitState        *prometheus.GaugeVec
	CircuitTransitions  *prometheus.CounterVec
	CircuitCalls        *prometheus.CounterVec
	CircuitCallDuration *prometheus.HistogramVec

	// Retry metrics
	RetryAttempts   *prometheus.CounterVec
	RetryExhausted  *prometheus.CounterVec

	// Fallback metrics
	FallbackExecutions *prometheus.CounterVec

	// Error metrics
	ErrorsTotal     *prometheus.CounterVec
	ErrorsEscalated *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "aide",
		Subsystem: "resilience",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit"},
		),
		CircuitTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"circuit", "from", "to"},
		),
		CircuitCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_calls_total",
				Help:      "Total number of calls through circuit breakers",
			},
			[]string{"circuit", "outcome"},
		),
		CircuitCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_call_duration_seconds",
				Help:      "Duration of calls through circuit breakers in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"circuit", "outcome"},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retried attempts",
			},
			[]string{},
		),
		RetryExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_exhausted_total",
				Help:      "Total number of operations that exhausted all retry attempts",
			},
			[]string{},
		),
		FallbackExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "fallback_executions_total",
				Help:      "Total number of fallback executions",
			},
			[]string{"strategy", "success"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of handled errors",
			},
			[]string{"component", "category", "severity"},
		),
		ErrorsEscalated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_escalated_total",
				Help:      "Total number of errors escalated for recurring too often",
			},
			[]string{"component", "pattern"},
		),
	}

	prometheus.MustRegister(
		m.CircuitState,
		m.CircuitTransitions,
		m.CircuitCalls,
		m.CircuitCallDuration,
		m.RetryAttempts,
		m.RetryExhausted,
		m.FallbackExecutions,
		m.ErrorsTotal,
		m.ErrorsEscalated,
	)

	return m
}

// RecordStateChange updates the state gauge and transition counter
func (m *Metrics) RecordStateChange(circuit string, from, to resilience.State) {
	if m.CircuitState == nil {
		return
	}
	m.CircuitState.WithLabelValues(circuit).Set(stateValue(to))
	m.CircuitTransitions.WithLabelValues(circuit, from.String(), to.String()).Inc()
}

// RecordCall records one call through a circuit breaker
func (m *Metrics) RecordCall(circuit, outcome string, duration time.Duration) {
	if m.CircuitCalls == nil {
		return
	}
	m.CircuitCalls.WithLabelValues(circuit, outcome).Inc()
	m.CircuitCallDuration.WithLabelValues(circuit, outcome).Observe(duration.Seconds())
}

// RecordError records one handled error
func (m *Metrics) RecordError(component, category, severity string) {
	if m.ErrorsTotal == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, category, severity).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func stateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateOpen:
		return 1
	case resilience.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Sink adapts the metrics to the resilience event callback so the
// resilience package stays free of a Prometheus dependency
func (m *Metrics) Sink() resilience.EventSink {
	return func(event string, fields map[string]interface{}) {
		if m.CircuitState == nil {
			return
		}
		switch event {
		case resilience.EventStateChange:
			circuit, _ := fields["circuit"].(string)
			from, _ := fields["from"].(string)
			to, _ := fields["to"].(string)
			m.CircuitTransitions.WithLabelValues(circuit, from, to).Inc()
			m.CircuitState.WithLabelValues(circuit).Set(stateNameValue(to))
		case resilience.EventCallRecorded:
			circuit, _ := fields["circuit"].(string)
			outcome, _ := fields["outcome"].(string)
			m.CircuitCalls.WithLabelValues(circuit, outcome).Inc()
			if ms, ok := fields["duration_ms"].(float64); ok {
				m.CircuitCallDuration.WithLabelValues(circuit, outcome).Observe(ms / 1000)
			}
		case resilience.EventRetryAttempt:
			m.RetryAttempts.WithLabelValues().Inc()
		case resilience.EventRetryExhausted:
			m.RetryExhausted.WithLabelValues().Inc()
		case resilience.EventFallbackExecuted:
			strategy, _ := fields["strategy"].(string)
			success := "false"
			if v, _ := fields["success"].(bool); v {
				success = "true"
			}
			m.FallbackExecutions.WithLabelValues(strategy, success).Inc()
		case resilience.EventErrorEscalated:
			component, _ := fields["component"].(string)
			pattern, _ := fields["pattern"].(string)
			m.ErrorsEscalated.WithLabelValues(component, pattern).Inc()
		}
	}
}

func stateNameValue(name string) float64 {
	switch name {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
