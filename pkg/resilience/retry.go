package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	apperrors "github.com/0xchoux1/aide/pkg/errors"
	"github.com/0xchoux1/aide/pkg/logging"
)

// BackoffStrategy selects how the delay between retry attempts grows
type BackoffStrategy string

const (
	// BackoffFixed waits the base delay between every attempt
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffLinear waits base * attempt
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential waits base * 2^(attempt-1)
	BackoffExponential BackoffStrategy = "exponential"
	// BackoffExponentialJitter waits a uniform random duration in
	// [0, base * 2^(attempt-1)] when jitter is enabled
	BackoffExponentialJitter BackoffStrategy = "exponential_jitter"
)

// RetryPolicy configures the retry loop
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations, including the first
	MaxAttempts int
	// BaseDelay seeds the backoff calculation
	BaseDelay time.Duration
	// MaxDelay caps the computed delay
	MaxDelay time.Duration
	// Strategy selects the backoff curve
	Strategy BackoffStrategy
	// Jitter enables randomization of the computed delay
	Jitter bool
	// RetryOn decides whether an error is retryable. Nil means
	// DefaultRetryable.
	RetryOn func(error) bool
	// StopOn short-circuits the loop: a matching error is returned
	// immediately without further attempts, overriding RetryOn
	StopOn func(error) bool
	// RetryOnResult retries on a successful result, e.g. an HTTP 503
	// payload. A bad result on the final attempt is still a success.
	RetryOnResult func(interface{}) bool
	// Sink receives audit events for attempts and exhaustion
	Sink EventSink
}

// DefaultRetryPolicy returns the standard policy: 3 attempts,
// exponential backoff from 1s capped at 60s, with jitter
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Strategy:    BackoffExponential,
		Jitter:      true,
	}
}

// DefaultRetryable reports whether an error is worth retrying.
// Circuit rejections and errors in caller-fault categories are not.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCircuitOpen(err) {
		return false
	}
	switch apperrors.GetCategory(err) {
	case apperrors.CategoryValidation,
		apperrors.CategoryAuthentication,
		apperrors.CategoryAuthorization,
		apperrors.CategoryConfiguration:
		return false
	}
	return true
}

// RetryAttempt describes a single pass through the retry loop
type RetryAttempt struct {
	Number    int           `json:"number"`
	Timestamp time.Time     `json:"timestamp"`
	Delay     time.Duration `json:"delay"`
	Err       error         `json:"-"`
}

// RetryResult records the outcome of a full retry loop
type RetryResult struct {
	Value     interface{}
	Err       error
	Attempts  int
	History   []RetryAttempt
	Elapsed   time.Duration
	Exhausted bool
}

// RetryExhaustedError wraps the final error after all attempts failed
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted checks if an error is a retry exhaustion
func IsRetryExhausted(err error) bool {
	var exhausted *RetryExhaustedError
	return errors.As(err, &exhausted)
}

// RetryStats aggregates outcomes across an executor's retry loops
type RetryStats struct {
	TotalExecutions int64 `json:"total_executions"`
	TotalAttempts   int64 `json:"total_attempts"`
	Successes       int64 `json:"successes"`
	Exhausted       int64 `json:"exhausted"`
}

// RetryExecutor retries an operation with configurable backoff
type RetryExecutor struct {
	policy RetryPolicy
	logger *logging.Logger

	mu    sync.Mutex
	stats RetryStats
}

// NewRetryExecutor creates a retry executor from a policy, filling in
// defaults for zero-valued fields
func NewRetryExecutor(policy RetryPolicy) *RetryExecutor {
	defaults := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaults.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaults.MaxDelay
	}
	if policy.Strategy == "" {
		policy.Strategy = defaults.Strategy
	}
	if policy.RetryOn == nil {
		policy.RetryOn = DefaultRetryable
	}

	return &RetryExecutor{
		policy: policy,
		logger: logging.GetLogger(),
	}
}

// Policy returns a copy of the executor's effective policy
func (r *RetryExecutor) Policy() RetryPolicy {
	return r.policy
}

// Execute runs the operation with retries. Exhaustion is reported as
// *RetryExhaustedError wrapping the last attempt's error. Context
// cancellation aborts the loop before the next delay and propagates
// ctx.Err().
func (r *RetryExecutor) Execute(ctx context.Context, op Operation) (interface{}, error) {
	result := r.Run(ctx, op)
	if result.Err != nil {
		if result.Exhausted {
			return nil, &RetryExhaustedError{Attempts: result.Attempts, Err: result.Err}
		}
		return nil, result.Err
	}
	return result.Value, nil
}

// Statistics returns aggregate counters across all retry loops
func (r *RetryExecutor) Statistics() RetryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ClearStatistics resets the aggregate counters
func (r *RetryExecutor) ClearStatistics() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = RetryStats{}
}

func (r *RetryExecutor) record(result RetryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalExecutions++
	r.stats.TotalAttempts += int64(result.Attempts)
	if result.Err == nil {
		r.stats.Successes++
	}
	if result.Exhausted {
		r.stats.Exhausted++
	}
}

// Run executes the retry loop and returns the full outcome record
func (r *RetryExecutor) Run(ctx context.Context, op Operation) RetryResult {
	result := r.run(ctx, op)
	r.record(result)
	return result
}

func (r *RetryExecutor) run(ctx context.Context, op Operation) RetryResult {
	start := time.Now()
	var lastErr error
	var history []RetryAttempt

	finish := func(res RetryResult) RetryResult {
		res.History = history
		res.Elapsed = time.Since(start)
		return res
	}

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return finish(RetryResult{Err: err, Attempts: attempt - 1})
		}

		attemptStart := time.Now()
		value, err := op(ctx)
		history = append(history, RetryAttempt{Number: attempt, Timestamp: attemptStart, Err: err})

		if err == nil {
			if r.policy.RetryOnResult != nil && r.policy.RetryOnResult(value) && attempt < r.policy.MaxAttempts {
				lastErr = fmt.Errorf("result rejected on attempt %d", attempt)
				history[len(history)-1].Err = lastErr
				r.emitAttempt(attempt, lastErr)
				delay := r.Delay(attempt)
				history[len(history)-1].Delay = delay
				if !r.sleep(ctx, delay) {
					return finish(RetryResult{Err: ctx.Err(), Attempts: attempt})
				}
				continue
			}
			return finish(RetryResult{Value: value, Attempts: attempt})
		}

		lastErr = err

		if r.policy.StopOn != nil && r.policy.StopOn(err) {
			r.logger.Debug("Retry stopped by stop condition",
				"attempt", attempt,
				"error", err.Error(),
			)
			return finish(RetryResult{Err: err, Attempts: attempt})
		}

		if !r.policy.RetryOn(err) {
			return finish(RetryResult{Err: err, Attempts: attempt})
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		r.emitAttempt(attempt, err)
		r.logger.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"error", err.Error(),
		)

		delay := r.Delay(attempt)
		history[len(history)-1].Delay = delay
		if !r.sleep(ctx, delay) {
			return finish(RetryResult{Err: ctx.Err(), Attempts: attempt})
		}
	}

	emit(r.policy.Sink, EventRetryExhausted, map[string]interface{}{
		"attempts": r.policy.MaxAttempts,
		"error":    lastErr.Error(),
	})

	return finish(RetryResult{
		Err:       lastErr,
		Attempts:  r.policy.MaxAttempts,
		Exhausted: true,
	})
}

func (r *RetryExecutor) emitAttempt(attempt int, err error) {
	emit(r.policy.Sink, EventRetryAttempt, map[string]interface{}{
		"attempt": attempt,
		"error":   err.Error(),
	})
}

// sleep waits out a backoff delay. Returns false if the context was
// cancelled while waiting.
func (r *RetryExecutor) sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Delay computes the backoff delay after the given attempt (1-based)
func (r *RetryExecutor) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := r.policy.BaseDelay
	var delay time.Duration

	switch r.policy.Strategy {
	case BackoffFixed:
		delay = base
	case BackoffLinear:
		delay = base * time.Duration(attempt)
	case BackoffExponentialJitter:
		delay = exponentialDelay(base, attempt, r.policy.MaxDelay)
		if r.policy.Jitter {
			return time.Duration(rand.Int63n(int64(delay) + 1))
		}
		return delay
	default: // exponential
		delay = exponentialDelay(base, attempt, r.policy.MaxDelay)
	}

	if delay > r.policy.MaxDelay {
		delay = r.policy.MaxDelay
	}

	if r.policy.Jitter {
		// +/-10% perturbation so concurrent retries don't align
		jitter := time.Duration(float64(delay) * 0.1 * (rand.Float64()*2 - 1))
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	return delay
}

// PolicyRegistry stores named retry policies so callers can share
// tuned policies across operations
type PolicyRegistry struct {
	mu        sync.RWMutex
	executors map[string]*RetryExecutor
}

// NewPolicyRegistry creates an empty policy registry
func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{executors: make(map[string]*RetryExecutor)}
}

// RegisterPolicy stores a policy under a name, replacing any existing one
func (p *PolicyRegistry) RegisterPolicy(name string, policy RetryPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executors[name] = NewRetryExecutor(policy)
}

// Get returns the executor for a named policy
func (p *PolicyRegistry) Get(name string) (*RetryExecutor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	executor, ok := p.executors[name]
	return executor, ok
}

// RetryWithPolicy runs the operation under the named policy
func (p *PolicyRegistry) RetryWithPolicy(ctx context.Context, name string, op Operation) (interface{}, error) {
	executor, ok := p.Get(name)
	if !ok {
		return nil, fmt.Errorf("no retry policy registered under %q", name)
	}
	return executor.Execute(ctx, op)
}

// exponentialDelay computes base * 2^(attempt-1) clamped to max,
// saturating on overflow
func exponentialDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt > 32 {
		return max
	}
	delay := base << uint(attempt-1)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
