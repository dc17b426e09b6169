package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xchoux1/aide/pkg/resilience"
)

// A single registered instance shared across tests; Prometheus
// registration is process-global.
var testMetrics = NewMetrics(DefaultConfig())

func TestDisabledMetricsAreNoops(t *testing.T) {
	m := NewMetrics(&Config{Enabled: false})

	// None of these should panic on the zero-value struct
	m.RecordStateChange("c", resilience.StateClosed, resilience.StateOpen)
	m.RecordCall("c", "success", time.Second)
	m.RecordError("comp", "network", "HIGH")
	m.Sink()(resilience.EventStateChange, map[string]interface{}{})
}

func TestRecordStateChange(t *testing.T) {
	testMetrics.RecordStateChange("orders", resilience.StateClosed, resilience.StateOpen)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.CircuitState.WithLabelValues("orders")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.CircuitTransitions.WithLabelValues("orders", "CLOSED", "OPEN")))

	testMetrics.RecordStateChange("orders", resilience.StateOpen, resilience.StateHalfOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(
		testMetrics.CircuitState.WithLabelValues("orders")))
}

func TestRecordCall(t *testing.T) {
	testMetrics.RecordCall("inventory", "failure", 100*time.Millisecond)
	testMetrics.RecordCall("inventory", "failure", 200*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		testMetrics.CircuitCalls.WithLabelValues("inventory", "failure")))
}

func TestSinkRoutesEvents(t *testing.T) {
	sink := testMetrics.Sink()
	require.NotNil(t, sink)

	sink(resilience.EventStateChange, map[string]interface{}{
		"circuit": "search", "from": "CLOSED", "to": "OPEN",
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.CircuitState.WithLabelValues("search")))

	sink(resilience.EventCallRecorded, map[string]interface{}{
		"circuit": "search", "outcome": "blocked", "duration_ms": float64(0),
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.CircuitCalls.WithLabelValues("search", "blocked")))

	sink(resilience.EventRetryExhausted, map[string]interface{}{"attempts": 3})
	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.RetryExhausted.WithLabelValues()))

	sink(resilience.EventFallbackExecuted, map[string]interface{}{
		"strategy": "return_default", "success": true,
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.FallbackExecutions.WithLabelValues("return_default", "true")))

	sink(resilience.EventErrorEscalated, map[string]interface{}{
		"component": "billing", "pattern": "connection_refused",
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.ErrorsEscalated.WithLabelValues("billing", "connection_refused")))
}

func TestSinkFeedsFromBreaker(t *testing.T) {
	// Wire a real breaker to the sink and confirm transitions land
	config := resilience.DefaultBreakerConfig("wired")
	config.FailureThreshold = 2
	config.Sink = testMetrics.Sink()
	cb := resilience.NewCircuitBreaker(config)

	cb.Call(func() (interface{}, error) { return nil, assert.AnError })
	cb.Call(func() (interface{}, error) { return nil, assert.AnError })

	assert.Equal(t, float64(1), testutil.ToFloat64(
		testMetrics.CircuitState.WithLabelValues("wired")))
	assert.Equal(t, float64(2), testutil.ToFloat64(
		testMetrics.CircuitCalls.WithLabelValues("wired", "failure")))
}

func TestHandlerIsServable(t *testing.T) {
	assert.NotNil(t, testMetrics.Handler())
}
