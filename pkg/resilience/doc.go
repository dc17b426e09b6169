// Package resilience provides fault-tolerance building blocks for
// calling unreliable dependencies: circuit breakers, retries with
// configurable backoff, and fallback strategies, plus a composition
// layer that nests them into a single protected call path.
//
// The three layers compose as fallback(retry(breaker(op))): the
// circuit breaker observes individual attempts, the retry loop treats
// breaker rejections as non-retryable, and the fallback acts only on
// the final outcome. Each layer is also usable on its own.
//
// Basic usage:
//
//	protector := resilience.NewProtector(nil, nil)
//	result, err := protector.Protect(ctx, "payments-api", fetchInvoice, resilience.ProtectOptions{
//		Retry:    &resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second},
//		Fallback: &resilience.FallbackConfig{Strategy: resilience.StrategyReturnDefault, Default: cachedInvoice},
//	})
//
// Circuit breakers are shared through a Registry so concurrent callers
// of the same dependency contribute to the same failure counters. The
// ErrorHandler and Classifier assign categories and severities to
// errors and escalate recurring signatures; HealthMonitor ties breaker
// health to degradation levels and alerting.
package resilience
