package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xchoux1/aide/pkg/logging"
)

// FallbackStrategy selects how a fallback produces its substitute value
type FallbackStrategy string

const (
	// StrategyReturnDefault returns a preconfigured static value
	StrategyReturnDefault FallbackStrategy = "return_default"
	// StrategyCallFunction invokes an alternative function
	StrategyCallFunction FallbackStrategy = "call_function"
	// StrategyRaiseAlternate replaces the original error with another
	StrategyRaiseAlternate FallbackStrategy = "raise_alternate"
	// StrategyCacheResult serves the last cached successful result
	StrategyCacheResult FallbackStrategy = "cache_result"
	// StrategyDegradedService invokes a reduced-functionality handler
	StrategyDegradedService FallbackStrategy = "degraded_service"
)

// FallbackFunc produces a substitute value given the original failure
type FallbackFunc func(ctx context.Context, originalErr error) (interface{}, error)

// FallbackConfig configures one fallback behavior
type FallbackConfig struct {
	Strategy FallbackStrategy
	// Default is the value returned by StrategyReturnDefault
	Default interface{}
	// Fn is the handler for StrategyCallFunction and StrategyDegradedService
	Fn FallbackFunc
	// AlternateErr is raised by StrategyRaiseAlternate
	AlternateErr error
	// CacheKey identifies the cache entry for StrategyCacheResult
	CacheKey string
	// CacheTTL overrides the cache's default TTL for stored results
	CacheTTL time.Duration
	// Sink receives audit events for fallback executions
	Sink EventSink
}

// Validate checks that the config carries what its strategy needs
func (c FallbackConfig) Validate() error {
	switch c.Strategy {
	case StrategyReturnDefault:
		if c.Default == nil {
			return fmt.Errorf("fallback strategy %s requires a default value", c.Strategy)
		}
	case StrategyCallFunction:
		if c.Fn == nil {
			return fmt.Errorf("fallback strategy %s requires a function", c.Strategy)
		}
	case StrategyDegradedService:
		// Fn is optional; without one the standard degraded marker is returned
	case StrategyRaiseAlternate:
		if c.AlternateErr == nil {
			return fmt.Errorf("fallback strategy %s requires an alternate error", c.Strategy)
		}
	case StrategyCacheResult:
		if c.CacheKey == "" {
			return fmt.Errorf("fallback strategy %s requires a cache key", c.Strategy)
		}
	default:
		return fmt.Errorf("unknown fallback strategy: %q", c.Strategy)
	}
	return nil
}

// FallbackFailedError reports that both the operation and its fallback
// failed. Unwrap returns the original operation error so callers can
// still match on the primary failure.
type FallbackFailedError struct {
	Strategy    FallbackStrategy
	Original    error
	FallbackErr error
}

func (e *FallbackFailedError) Error() string {
	return fmt.Sprintf("fallback (%s) failed after original error: %v (fallback error: %v)",
		e.Strategy, e.Original, e.FallbackErr)
}

func (e *FallbackFailedError) Unwrap() error {
	return e.Original
}

// IsFallbackFailed checks if an error reports a failed fallback
func IsFallbackFailed(err error) bool {
	var failed *FallbackFailedError
	return errors.As(err, &failed)
}

// FallbackStats aggregates fallback outcomes per strategy
type FallbackStats struct {
	Executions int64                      `json:"executions"`
	Succeeded  int64                      `json:"succeeded"`
	Failed     int64                      `json:"failed"`
	ByStrategy map[FallbackStrategy]int64 `json:"by_strategy"`
}

// FallbackExecutor runs operations with a substitute path for failures.
// Named configurations can be registered up front and reused.
type FallbackExecutor struct {
	mu      sync.RWMutex
	configs map[string]FallbackConfig
	cache   Cache
	logger  *logging.Logger

	statsMu sync.Mutex
	stats   FallbackStats
}

// NewFallbackExecutor creates a fallback executor. A nil cache gets an
// in-memory cache with a 5-minute default TTL.
func NewFallbackExecutor(cache Cache) *FallbackExecutor {
	if cache == nil {
		cache = NewMemoryCache(5 * time.Minute)
	}

	f := &FallbackExecutor{
		configs: make(map[string]FallbackConfig),
		cache:   cache,
		logger:  logging.GetLogger(),
	}
	f.registerBuiltins()
	return f
}

// Common degraded-mode substitutes registered by name out of the box
func (f *FallbackExecutor) registerBuiltins() {
	builtins := map[string]interface{}{
		"empty_list": []interface{}{},
		"empty_map":  map[string]interface{}{},
		"false":      false,
		"zero":       0,
	}
	for name, value := range builtins {
		f.configs[name] = FallbackConfig{Strategy: StrategyReturnDefault, Default: value}
	}
}

// Register stores a named fallback configuration after validating it
func (f *FallbackExecutor) Register(name string, config FallbackConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[name] = config
	return nil
}

// Config returns the named configuration if registered
func (f *FallbackExecutor) Config(name string) (FallbackConfig, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	config, ok := f.configs[name]
	return config, ok
}

// Cache exposes the executor's result cache
func (f *FallbackExecutor) Cache() Cache {
	return f.cache
}

// CacheResult pre-warms the result cache so a CACHE_RESULT fallback can
// serve before the operation has ever succeeded
func (f *FallbackExecutor) CacheResult(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return f.cache.Set(ctx, key, value, ttl)
}

// ExecuteNamed runs the operation with the registered fallback
func (f *FallbackExecutor) ExecuteNamed(ctx context.Context, name string, op Operation) (interface{}, error) {
	config, ok := f.Config(name)
	if !ok {
		return nil, fmt.Errorf("no fallback registered under %q", name)
	}
	return f.Execute(ctx, config, op)
}

// DegradedResult is the value StrategyDegradedService returns when no
// handler is configured. Callers inspect Degraded to detect that the
// full operation did not run.
type DegradedResult struct {
	Degraded  bool      `json:"degraded"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// FallbackOutcome records how a protected call concluded
type FallbackOutcome struct {
	Value        interface{}
	Err          error
	UsedFallback bool
	Strategy     FallbackStrategy
	FromCache    bool
	Elapsed      time.Duration
}

// Execute runs the operation and, if it fails, the configured fallback.
// Context cancellation is not a failure to degrade from: it propagates
// without invoking the fallback. When the fallback itself fails the
// original error is preserved inside a *FallbackFailedError.
func (f *FallbackExecutor) Execute(ctx context.Context, config FallbackConfig, op Operation) (interface{}, error) {
	outcome := f.Run(ctx, config, op)
	return outcome.Value, outcome.Err
}

// Run executes the operation with its fallback and returns the full
// outcome record
func (f *FallbackExecutor) Run(ctx context.Context, config FallbackConfig, op Operation) FallbackOutcome {
	start := time.Now()
	outcome := FallbackOutcome{Strategy: config.Strategy}

	if err := config.Validate(); err != nil {
		outcome.Err = err
		outcome.Elapsed = time.Since(start)
		return outcome
	}

	value, err := op(ctx)
	if err == nil {
		if config.Strategy == StrategyCacheResult {
			if cacheErr := f.cache.Set(ctx, config.CacheKey, value, config.CacheTTL); cacheErr != nil {
				f.logger.Warn("Failed to cache successful result",
					"cache_key", config.CacheKey,
					"error", cacheErr.Error(),
				)
			}
		}
		outcome.Value = value
		outcome.Elapsed = time.Since(start)
		return outcome
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		outcome.Err = err
		outcome.Elapsed = time.Since(start)
		return outcome
	}

	f.logger.Warn("Operation failed, executing fallback",
		"strategy", string(config.Strategy),
		"error", err.Error(),
	)

	outcome.UsedFallback = true
	value, fromCache, fbErr := f.resolve(ctx, config, err)
	f.record(config.Strategy, fbErr == nil)

	emit(config.Sink, EventFallbackExecuted, map[string]interface{}{
		"strategy": string(config.Strategy),
		"original": err.Error(),
		"success":  fbErr == nil,
	})

	outcome.FromCache = fromCache
	outcome.Elapsed = time.Since(start)

	if fbErr != nil {
		if config.Strategy == StrategyRaiseAlternate {
			outcome.Err = fbErr
			return outcome
		}
		outcome.Err = &FallbackFailedError{
			Strategy:    config.Strategy,
			Original:    err,
			FallbackErr: fbErr,
		}
		return outcome
	}

	outcome.Value = value
	return outcome
}

func (f *FallbackExecutor) record(strategy FallbackStrategy, succeeded bool) {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	f.stats.Executions++
	if succeeded {
		f.stats.Succeeded++
	} else {
		f.stats.Failed++
	}
	if f.stats.ByStrategy == nil {
		f.stats.ByStrategy = make(map[FallbackStrategy]int64)
	}
	f.stats.ByStrategy[strategy]++
}

// Statistics returns aggregate counters over executed fallbacks
func (f *FallbackExecutor) Statistics() FallbackStats {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()

	out := f.stats
	out.ByStrategy = make(map[FallbackStrategy]int64, len(f.stats.ByStrategy))
	for k, v := range f.stats.ByStrategy {
		out.ByStrategy[k] = v
	}
	return out
}

// ClearStatistics resets the aggregate counters
func (f *FallbackExecutor) ClearStatistics() {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	f.stats = FallbackStats{}
}

func (f *FallbackExecutor) resolve(ctx context.Context, config FallbackConfig, originalErr error) (interface{}, bool, error) {
	switch config.Strategy {
	case StrategyReturnDefault:
		return config.Default, false, nil

	case StrategyCallFunction:
		value, err := f.callGuarded(ctx, config.Fn, originalErr)
		return value, false, err

	case StrategyDegradedService:
		if config.Fn != nil {
			value, err := f.callGuarded(ctx, config.Fn, originalErr)
			return value, false, err
		}
		return DegradedResult{
			Degraded:  true,
			Reason:    originalErr.Error(),
			Timestamp: time.Now(),
		}, false, nil

	case StrategyRaiseAlternate:
		return nil, false, config.AlternateErr

	case StrategyCacheResult:
		value, ok, err := f.cache.Get(ctx, config.CacheKey)
		if err != nil {
			return nil, false, fmt.Errorf("cache lookup failed: %w", err)
		}
		if !ok {
			return nil, false, fmt.Errorf("no cached result for key %q", config.CacheKey)
		}
		return value, true, nil

	default:
		return nil, false, fmt.Errorf("unknown fallback strategy: %q", config.Strategy)
	}
}

// callGuarded invokes a fallback function, converting panics into errors
// so a broken fallback cannot take down the caller
func (f *FallbackExecutor) callGuarded(ctx context.Context, fn FallbackFunc, originalErr error) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("fallback panicked: %v", r)
		}
	}()
	return fn(ctx, originalErr)
}
