package resilience

import (
	"context"

	"github.com/0xchoux1/aide/pkg/logging"
)

// ProtectOptions selects which layers wrap an operation. Nil fields
// are skipped entirely.
type ProtectOptions struct {
	// Retry wraps the breaker-protected call in a retry loop
	Retry *RetryPolicy
	// Breaker overrides the registry defaults for this operation's breaker
	Breaker *BreakerConfig
	// Fallback supplies a substitute when the other layers give up
	Fallback *FallbackConfig
}

// Protector composes circuit breaking, retries and fallbacks into a
// single call path. Layers nest fallback(retry(breaker(op))): the
// breaker sees individual attempts, the retry loop sees breaker
// rejections, and the fallback sees the final outcome.
type Protector struct {
	registry *Registry
	fallback *FallbackExecutor
	logger   *logging.Logger
}

// NewProtector creates a protector. A nil registry or fallback
// executor is replaced with a fresh default one.
func NewProtector(registry *Registry, fallback *FallbackExecutor) *Protector {
	if registry == nil {
		registry = NewRegistry()
	}
	if fallback == nil {
		fallback = NewFallbackExecutor(nil)
	}
	return &Protector{
		registry: registry,
		fallback: fallback,
		logger:   logging.GetLogger(),
	}
}

// Registry returns the protector's circuit breaker registry
func (p *Protector) Registry() *Registry {
	return p.registry
}

// Fallback returns the protector's fallback executor
func (p *Protector) Fallback() *FallbackExecutor {
	return p.fallback
}

// Protect runs the operation under the layers selected in opts. The
// name keys the circuit breaker in the registry; unrelated operations
// should use distinct names so one dependency's failures don't trip
// another's circuit.
func (p *Protector) Protect(ctx context.Context, name string, op Operation, opts ProtectOptions) (interface{}, error) {
	wrapped := p.withBreaker(name, opts.Breaker, op)

	if opts.Retry != nil {
		wrapped = withRetry(*opts.Retry, wrapped)
	}

	if opts.Fallback != nil {
		return p.fallback.Execute(ctx, *opts.Fallback, wrapped)
	}

	return wrapped(ctx)
}

// Guard returns a reusable operation wrapped with the same layers
// Protect would apply
func (p *Protector) Guard(name string, op Operation, opts ProtectOptions) Operation {
	return func(ctx context.Context) (interface{}, error) {
		return p.Protect(ctx, name, op, opts)
	}
}

func (p *Protector) withBreaker(name string, config *BreakerConfig, op Operation) Operation {
	var cb *CircuitBreaker
	if config != nil {
		cb = p.registry.GetWithConfig(name, *config)
	} else {
		cb = p.registry.GetOrCreate(name)
	}

	return func(ctx context.Context) (interface{}, error) {
		return cb.Execute(ctx, op)
	}
}

func withRetry(policy RetryPolicy, op Operation) Operation {
	executor := NewRetryExecutor(policy)
	return func(ctx context.Context) (interface{}, error) {
		return executor.Execute(ctx, op)
	}
}
