package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xchoux1/aide/pkg/logging"
)

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed - circuit is closed, calls are allowed
	StateClosed State = iota
	// StateOpen - circuit is open, calls are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, probing for recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// recentWindow is the trailing window used for health reporting.
const recentWindow = 5 * time.Minute

// BreakerConfig holds configuration for a circuit breaker
type BreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. It also sets the minimum completed calls required
	// before the windowed failure rate is considered.
	FailureThreshold int
	// RecoveryTimeout is the period of the open state, after which the
	// next call transitions the circuit to half-open
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in
	// half-open that closes the circuit
	SuccessThreshold int
	// MonitoringWindow is the trailing window for the failure-rate trip
	MonitoringWindow time.Duration
	// HistorySize bounds the call-history ring buffer
	HistorySize int
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from State, to State)
	// Sink receives audit events for state changes and call outcomes
	Sink EventSink
}

// DefaultBreakerConfig returns the default breaker configuration for a name
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
		MonitoringWindow: 5 * time.Minute,
		HistorySize:      100,
	}
}

type callKind int

const (
	callBlocked callKind = iota
	callSuccess
	callFailure
)

func (k callKind) String() string {
	switch k {
	case callBlocked:
		return "blocked"
	case callSuccess:
		return "success"
	case callFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// CallRecord is one entry in a breaker's bounded call history
type CallRecord struct {
	Timestamp    time.Time
	Kind         callKind
	Duration     time.Duration
	ErrorType    string
	ErrorMessage string
	State        State
}

// Stats is a point-in-time copy of a breaker's counters
type Stats struct {
	Name                 string    `json:"circuit_name"`
	State                State     `json:"state"`
	FailureCount         int64     `json:"failure_count"`
	SuccessCount         int64     `json:"success_count"`
	TotalCalls           int64     `json:"total_calls"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailureTime      time.Time `json:"last_failure_time"`
	LastSuccessTime      time.Time `json:"last_success_time"`
	StateChangedTime     time.Time `json:"state_changed_time"`
}

// HealthReport summarizes one breaker's health for external reporting
type HealthReport struct {
	Name                 string        `json:"circuit_name"`
	State                string        `json:"current_state"`
	OverallSuccessRate   float64       `json:"overall_success_rate"`
	RecentSuccessRate    float64       `json:"recent_success_rate"`
	AvgResponseTime      time.Duration `json:"avg_response_time"`
	TotalCalls           int64         `json:"total_calls"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	TimeSinceLastFailure time.Duration `json:"time_since_last_failure"`
	Status               string        `json:"health_status"`
}

// CircuitBreaker is a state machine that stops calling a failing
// dependency for a cool-down period. The protected operation executes
// outside the breaker's lock; the lock covers only admission and
// outcome recording.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu                   sync.Mutex
	state                State
	stateChangedTime     time.Time
	failureCount         int64
	successCount         int64
	totalCalls           int64
	lastFailureTime      time.Time
	lastSuccessTime      time.Time
	consecutiveFailures  int
	consecutiveSuccesses int
	history              *ring[CallRecord]

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	defaults := DefaultBreakerConfig(config.Name)
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.MonitoringWindow <= 0 {
		config.MonitoringWindow = defaults.MonitoringWindow
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}

	cb := &CircuitBreaker{
		name:             config.Name,
		config:           config,
		state:            StateClosed,
		stateChangedTime: time.Now(),
		history:          newRing[CallRecord](config.HistorySize),
		logger:           logging.GetLogger(),
	}

	cb.logger.Debug("Circuit breaker initialized", "circuit", cb.name)
	return cb
}

// Execute runs the given operation if the circuit breaker admits it.
// The operation's own error is propagated unmodified; a rejected call
// returns *CircuitOpenError without invoking the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			cb.recordFailure(fmt.Errorf("panic: %v", r), time.Since(start))
			panic(r)
		}
	}()

	result, err := op(ctx)
	if err != nil {
		cb.recordFailure(err, time.Since(start))
		return nil, err
	}

	cb.recordSuccess(time.Since(start))
	return result, nil
}

// Call is a convenience method for operations that don't need a context
func (cb *CircuitBreaker) Call(fn func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return fn()
	})
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a copy of the current counters
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.statsLocked()
}

func (cb *CircuitBreaker) statsLocked() Stats {
	return Stats{
		Name:                 cb.name,
		State:                cb.state,
		FailureCount:         cb.failureCount,
		SuccessCount:         cb.successCount,
		TotalCalls:           cb.totalCalls,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailureTime:      cb.lastFailureTime,
		LastSuccessTime:      cb.lastSuccessTime,
		StateChangedTime:     cb.stateChangedTime,
	}
}

// History returns up to limit entries of the call history, newest-last
func (cb *CircuitBreaker) History(limit int) []CallRecord {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.history.tail(limit)
}

// Reset returns the breaker to CLOSED and clears all counters and history
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.stateChangedTime = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalCalls = 0
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.history.reset()

	cb.logger.Info("Circuit breaker reset", "circuit", cb.name)
}

// ForceOpen transitions the breaker to OPEN regardless of counters
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateOpen, time.Now())
}

// ForceClose transitions the breaker to CLOSED regardless of counters
func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed, time.Now())
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.totalCalls++

	if cb.state == StateOpen {
		if now.Sub(cb.stateChangedTime) >= cb.config.RecoveryTimeout {
			cb.setState(StateHalfOpen, now)
			return nil
		}

		cb.history.append(CallRecord{Timestamp: now, Kind: callBlocked, State: cb.state})
		cb.emitCall(callBlocked, 0)
		return &CircuitOpenError{Name: cb.name, State: cb.state}
	}

	return nil
}

func (cb *CircuitBreaker) recordSuccess(duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.successCount++
	cb.lastSuccessTime = now
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses++

	cb.history.append(CallRecord{
		Timestamp: now,
		Kind:      callSuccess,
		Duration:  duration,
		State:     cb.state,
	})

	if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed, now)
	}

	cb.emitCall(callSuccess, duration)
}

func (cb *CircuitBreaker) recordFailure(err error, duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.failureCount++
	cb.lastFailureTime = now
	cb.consecutiveSuccesses = 0
	cb.consecutiveFailures++

	cb.history.append(CallRecord{
		Timestamp:    now,
		Kind:         callFailure,
		Duration:     duration,
		ErrorType:    fmt.Sprintf("%T", err),
		ErrorMessage: err.Error(),
		State:        cb.state,
	})

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen(now) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		// Any failure while probing reopens immediately
		cb.setState(StateOpen, now)
	}

	cb.emitCall(callFailure, duration)

	cb.logger.Warn("Circuit breaker recorded failure",
		"circuit", cb.name,
		"error_type", fmt.Sprintf("%T", err),
		"consecutive_failures", cb.consecutiveFailures,
	)
}

// shouldOpen decides whether a CLOSED breaker trips. Either condition
// opens the circuit: the consecutive-failure threshold, or a >50%
// failure rate over at least FailureThreshold completed calls within
// the monitoring window.
func (cb *CircuitBreaker) shouldOpen(now time.Time) bool {
	if cb.consecutiveFailures >= cb.config.FailureThreshold {
		return true
	}

	windowStart := now.Add(-cb.config.MonitoringWindow)
	completed := 0
	failures := 0
	for _, rec := range cb.history.items() {
		if rec.Timestamp.Before(windowStart) || rec.Kind == callBlocked {
			continue
		}
		completed++
		if rec.Kind == callFailure {
			failures++
		}
	}

	if completed >= cb.config.FailureThreshold {
		return float64(failures)/float64(completed) > 0.5
	}

	return false
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.stateChangedTime = now

	switch state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.consecutiveSuccesses = 0
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}

	emit(cb.config.Sink, EventStateChange, map[string]interface{}{
		"circuit": cb.name,
		"from":    prev.String(),
		"to":      state.String(),
	})

	cb.logger.Info("Circuit breaker state changed",
		"circuit", cb.name,
		"from", prev.String(),
		"to", state.String(),
	)
}

func (cb *CircuitBreaker) emitCall(kind callKind, duration time.Duration) {
	emit(cb.config.Sink, EventCallRecorded, map[string]interface{}{
		"circuit":     cb.name,
		"outcome":     kind.String(),
		"duration_ms": float64(duration.Milliseconds()),
	})
}

// HealthReport computes the breaker's health from its counters and the
// trailing 5-minute slice of the call history
func (cb *CircuitBreaker) HealthReport() HealthReport {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := cb.statsLocked()

	attempts := stats.SuccessCount + stats.FailureCount
	overallRate := 0.0
	if attempts > 0 {
		overallRate = float64(stats.SuccessCount) / float64(attempts) * 100
	}

	now := time.Now()
	windowStart := now.Add(-recentWindow)
	recentSuccesses := 0
	recentFailures := 0
	var totalDuration time.Duration
	durationSamples := 0
	for _, rec := range cb.history.items() {
		if rec.Timestamp.Before(windowStart) {
			continue
		}
		switch rec.Kind {
		case callSuccess:
			recentSuccesses++
		case callFailure:
			recentFailures++
		default:
			continue
		}
		totalDuration += rec.Duration
		durationSamples++
	}

	recentRate := 0.0
	if recentSuccesses+recentFailures > 0 {
		recentRate = float64(recentSuccesses) / float64(recentSuccesses+recentFailures) * 100
	}

	var avgResponse time.Duration
	if durationSamples > 0 {
		avgResponse = totalDuration / time.Duration(durationSamples)
	}

	var sinceLastFailure time.Duration
	if !stats.LastFailureTime.IsZero() {
		sinceLastFailure = now.Sub(stats.LastFailureTime)
	}

	return HealthReport{
		Name:                 cb.name,
		State:                stats.State.String(),
		OverallSuccessRate:   overallRate,
		RecentSuccessRate:    recentRate,
		AvgResponseTime:      avgResponse,
		TotalCalls:           stats.TotalCalls,
		ConsecutiveFailures:  stats.ConsecutiveFailures,
		TimeSinceLastFailure: sinceLastFailure,
		Status:               healthStatus(stats.State, overallRate, recentRate),
	}
}

func healthStatus(state State, overallRate, recentRate float64) string {
	switch {
	case state == StateOpen:
		return "unhealthy"
	case state == StateHalfOpen:
		return "recovering"
	case overallRate >= 95 && recentRate >= 90:
		return "healthy"
	case overallRate >= 80 && recentRate >= 70:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// CircuitOpenError is returned when a call is rejected by an open circuit
type CircuitOpenError struct {
	Name  string
	State State
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State.String())
}

// IsCircuitOpen checks if an error is a circuit breaker rejection
func IsCircuitOpen(err error) bool {
	var openErr *CircuitOpenError
	return errors.As(err, &openErr)
}
