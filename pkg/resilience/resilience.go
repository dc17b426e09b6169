package resilience

import "context"

// Operation is a unit of work protected by the resilience components.
// It may be wrapped by a circuit breaker, a retry executor, a fallback
// executor, or any composition of the three.
type Operation func(ctx context.Context) (interface{}, error)

// EventSink receives audit events from the resilience components. It is
// optional everywhere it appears; a nil sink disables event emission.
// Sinks must be safe for concurrent use and must not block.
type EventSink func(event string, fields map[string]interface{})

// Audit event names emitted through EventSink.
const (
	EventStateChange      = "circuit_breaker.state_change"
	EventCallRecorded     = "circuit_breaker.call"
	EventRetryAttempt     = "retry.attempt"
	EventRetryExhausted   = "retry.exhausted"
	EventFallbackExecuted = "fallback.executed"
	EventErrorEscalated   = "error.escalated"
)

func emit(sink EventSink, event string, fields map[string]interface{}) {
	if sink != nil {
		sink(event, fields)
	}
}
