package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	first := r.GetOrCreate("payments")
	second := r.GetOrCreate("payments")

	assert.Same(t, first, second)
	assert.Equal(t, "payments", first.Name())
}

func TestRegistry_SeparateCircuitsPerName(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	payments := r.GetOrCreate("payments")
	search := r.GetOrCreate("search")

	for i := 0; i < 5; i++ {
		payments.Execute(ctx, failingOp)
	}

	assert.Equal(t, StateOpen, payments.State())
	assert.Equal(t, StateClosed, search.State())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()

	const goroutines = 50
	breakers := make([]*CircuitBreaker, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			breakers[idx] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, breakers[0], breakers[i])
	}
}

func TestRegistry_CustomDefaults(t *testing.T) {
	r := NewRegistry(WithBreakerDefaults(func(name string) BreakerConfig {
		config := DefaultBreakerConfig(name)
		config.FailureThreshold = 2
		return config
	}))
	ctx := context.Background()

	cb := r.GetOrCreate("fragile")
	cb.Execute(ctx, failingOp)
	cb.Execute(ctx, failingOp)

	assert.Equal(t, StateOpen, cb.State())
}

func TestRegistry_GetWithConfig(t *testing.T) {
	r := NewRegistry()

	config := DefaultBreakerConfig("")
	config.FailureThreshold = 2
	cb := r.GetWithConfig("tuned", config)
	assert.Equal(t, "tuned", cb.Name())

	// A second call with a different config returns the existing breaker
	other := DefaultBreakerConfig("")
	other.FailureThreshold = 99
	assert.Same(t, cb, r.GetWithConfig("tuned", other))

	ctx := context.Background()
	cb.Execute(ctx, failingOp)
	cb.Execute(ctx, failingOp)
	assert.Equal(t, StateOpen, cb.State())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	config := DefaultBreakerConfig("custom")
	config.RecoveryTimeout = 10 * time.Millisecond
	r.Register(NewCircuitBreaker(config))

	cb, ok := r.Get("custom")
	require.True(t, ok)
	assert.Equal(t, "custom", cb.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_ResetAll(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		cb := r.GetOrCreate(name)
		for i := 0; i < 5; i++ {
			cb.Execute(ctx, failingOp)
		}
		require.Equal(t, StateOpen, cb.State())
	}

	r.ResetAll()

	for _, name := range []string{"a", "b"} {
		cb, _ := r.Get(name)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestRegistry_AllStats(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.GetOrCreate("a").Execute(ctx, succeedingOp)
	r.GetOrCreate("b").Execute(ctx, failingOp)

	stats := r.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats["a"].SuccessCount)
	assert.Equal(t, int64(1), stats["b"].FailureCount)
}

func TestRegistry_HealthSummary(t *testing.T) {
	t.Run("empty registry is healthy", func(t *testing.T) {
		summary := NewRegistry().HealthSummary()
		assert.Equal(t, "healthy", summary.OverallStatus)
		assert.Zero(t, summary.TotalCircuits)
	})

	t.Run("one open circuit makes the fleet unhealthy", func(t *testing.T) {
		r := NewRegistry()
		ctx := context.Background()

		healthy := r.GetOrCreate("healthy")
		for i := 0; i < 10; i++ {
			healthy.Execute(ctx, succeedingOp)
		}
		r.GetOrCreate("broken").ForceOpen()

		summary := r.HealthSummary()
		assert.Equal(t, "unhealthy", summary.OverallStatus)
		assert.Equal(t, 2, summary.TotalCircuits)
		assert.Equal(t, 1, summary.HealthyCount)
		assert.Equal(t, 1, summary.UnhealthyCount)
	})
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("doomed")
	r.Remove("doomed")

	_, ok := r.Get("doomed")
	assert.False(t, ok)
	assert.Empty(t, r.Names())
}
