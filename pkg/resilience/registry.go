package resilience

import (
	"sync"

	"github.com/0xchoux1/aide/pkg/logging"
)

// Registry manages named circuit breakers so that parallel callers
// share one breaker per dependency
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	// Defaults applied to breakers created lazily by GetOrCreate
	defaults func(name string) BreakerConfig

	logger *logging.Logger
}

// RegistryOption customizes a Registry
type RegistryOption func(*Registry)

// WithBreakerDefaults sets the config factory used when GetOrCreate
// has to create a breaker
func WithBreakerDefaults(fn func(name string) BreakerConfig) RegistryOption {
	return func(r *Registry) {
		r.defaults = fn
	}
}

// NewRegistry creates an empty circuit breaker registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: DefaultBreakerConfig,
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the breaker registered under name, creating it
// with the registry defaults on first use. Concurrent callers for the
// same name always receive the same instance.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config := r.defaults(name)
	config.Name = name
	cb = NewCircuitBreaker(config)
	r.breakers[name] = cb

	r.logger.Debug("Circuit breaker registered", "circuit", name)
	return cb
}

// GetWithConfig returns the breaker registered under name, creating it
// from the given config on first use. An already-registered breaker is
// returned unchanged.
func (r *Registry) GetWithConfig(name string, config BreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config.Name = name
	cb = NewCircuitBreaker(config)
	r.breakers[name] = cb
	return cb
}

// Register adds a pre-configured breaker, replacing any existing one
// with the same name
func (r *Registry) Register(cb *CircuitBreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[cb.Name()] = cb
}

// Get returns the named breaker if it exists
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Remove deletes the named breaker from the registry
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// Names returns the names of all registered breakers
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}

// ResetAll resets every registered breaker to CLOSED
func (r *Registry) ResetAll() {
	for _, cb := range r.snapshot() {
		cb.Reset()
	}
	r.logger.Info("All circuit breakers reset")
}

// AllStats returns the stats of every registered breaker keyed by name
func (r *Registry) AllStats() map[string]Stats {
	breakers := r.snapshot()
	stats := make(map[string]Stats, len(breakers))
	for name, cb := range breakers {
		stats[name] = cb.Stats()
	}
	return stats
}

// HealthSummary aggregates the health of every registered breaker
type HealthSummary struct {
	TotalCircuits  int                     `json:"total_circuits"`
	HealthyCount   int                     `json:"healthy_count"`
	DegradedCount  int                     `json:"degraded_count"`
	UnhealthyCount int                     `json:"unhealthy_count"`
	OverallStatus  string                  `json:"overall_status"`
	Circuits       map[string]HealthReport `json:"circuits"`
}

// HealthSummary reports the health of all registered breakers. The
// overall status is the worst individual status; recovering circuits
// count as degraded.
func (r *Registry) HealthSummary() HealthSummary {
	breakers := r.snapshot()

	summary := HealthSummary{
		TotalCircuits: len(breakers),
		Circuits:      make(map[string]HealthReport, len(breakers)),
	}

	for name, cb := range breakers {
		report := cb.HealthReport()
		summary.Circuits[name] = report
		switch report.Status {
		case "healthy":
			summary.HealthyCount++
		case "degraded", "recovering":
			summary.DegradedCount++
		default:
			summary.UnhealthyCount++
		}
	}

	switch {
	case summary.TotalCircuits == 0:
		summary.OverallStatus = "healthy"
	case summary.UnhealthyCount > 0:
		summary.OverallStatus = "unhealthy"
	case summary.DegradedCount > 0:
		summary.OverallStatus = "degraded"
	default:
		summary.OverallStatus = "healthy"
	}

	return summary
}

func (r *Registry) snapshot() map[string]*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for name, cb := range r.breakers {
		breakers[name] = cb
	}
	return breakers
}
