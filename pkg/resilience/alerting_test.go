package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/0xchoux1/aide/pkg/errors"
)

func TestAlertManager_RaiseAndResolve(t *testing.T) {
	var delivered []Alert
	m := NewAlertManager(func(alert Alert) {
		delivered = append(delivered, alert)
	})

	m.Raise("circuit:payments", apperrors.SeverityCritical, "circuit payments is unhealthy")

	require.Len(t, delivered, 1)
	assert.Equal(t, "circuit:payments", delivered[0].Source)
	assert.NotEmpty(t, delivered[0].ID)
	assert.Len(t, m.Active(), 1)

	m.Resolve("circuit:payments")
	assert.Empty(t, m.Active())
}

func TestAlertManager_DeduplicatesActiveSource(t *testing.T) {
	delivered := 0
	m := NewAlertManager(func(Alert) { delivered++ })

	m.Raise("circuit:x", apperrors.SeverityHigh, "down")
	m.Raise("circuit:x", apperrors.SeverityHigh, "still down")

	assert.Equal(t, 1, delivered)

	// After resolving, the source can alert again
	m.Resolve("circuit:x")
	m.Raise("circuit:x", apperrors.SeverityHigh, "down again")
	assert.Equal(t, 2, delivered)
}

func TestAlertManager_ResolveUnknownSourceIsNoop(t *testing.T) {
	m := NewAlertManager()
	m.Resolve("circuit:ghost")
	assert.Empty(t, m.Active())
}

func TestAlertManager_History(t *testing.T) {
	m := NewAlertManager()

	m.Raise("a", apperrors.SeverityLow, "x")
	m.Resolve("a")

	history := m.History(10)
	require.Len(t, history, 2)
	assert.False(t, history[0].Resolved)
	assert.True(t, history[1].Resolved)
}

func TestHealthMonitor_Check(t *testing.T) {
	registry := NewRegistry()
	degradation := NewDegradationManager(nil)
	alerts := NewAlertManager()
	monitor := NewHealthMonitor(registry, degradation, alerts, time.Hour)
	ctx := context.Background()

	healthy := registry.GetOrCreate("healthy")
	for i := 0; i < 10; i++ {
		healthy.Execute(ctx, succeedingOp)
	}
	registry.GetOrCreate("broken").ForceOpen()

	summary := monitor.Check()

	assert.Equal(t, "unhealthy", summary.OverallStatus)
	assert.Equal(t, LevelEssential, degradation.Level())
	require.Len(t, alerts.Active(), 1)
	assert.Equal(t, "circuit:broken", alerts.Active()[0].Source)
}

func TestHealthMonitor_RecoveryResolvesAlerts(t *testing.T) {
	registry := NewRegistry()
	degradation := NewDegradationManager(nil)
	alerts := NewAlertManager()
	monitor := NewHealthMonitor(registry, degradation, alerts, time.Hour)
	ctx := context.Background()

	cb := registry.GetOrCreate("dep")
	cb.ForceOpen()
	monitor.Check()
	require.Len(t, alerts.Active(), 1)

	cb.Reset()
	for i := 0; i < 20; i++ {
		cb.Execute(ctx, succeedingOp)
	}
	summary := monitor.Check()

	assert.Equal(t, "healthy", summary.OverallStatus)
	assert.Empty(t, alerts.Active())
	assert.Equal(t, LevelFull, degradation.Level())
}

func TestHealthMonitor_StartAndStop(t *testing.T) {
	registry := NewRegistry()
	monitor := NewHealthMonitor(registry, nil, nil, 10*time.Millisecond)

	monitor.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()
}

func TestHealthMonitor_StopsOnContextCancel(t *testing.T) {
	registry := NewRegistry()
	monitor := NewHealthMonitor(registry, nil, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		monitor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}
}
