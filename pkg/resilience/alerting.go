package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/0xchoux1/aide/pkg/errors"
	"github.com/0xchoux1/aide/pkg/logging"
)

// Alert is one raised condition about a circuit or the system
type Alert struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Severity  apperrors.Severity `json:"severity"`
	Source    string             `json:"source"`
	Message   string             `json:"message"`
	Resolved  bool               `json:"resolved"`
}

// AlertNotifier delivers alerts to an external channel
type AlertNotifier func(alert Alert)

// AlertManager collects alerts and forwards them to notifiers. Alerts
// keyed by source are deduplicated until resolved.
type AlertManager struct {
	mu        sync.Mutex
	active    map[string]Alert
	history   *ring[Alert]
	notifiers []AlertNotifier

	logger *logging.Logger
}

// NewAlertManager creates an alert manager
func NewAlertManager(notifiers ...AlertNotifier) *AlertManager {
	return &AlertManager{
		active:    make(map[string]Alert),
		history:   newRing[Alert](500),
		notifiers: notifiers,
		logger:    logging.GetLogger(),
	}
}

// AddNotifier registers an additional delivery channel
func (m *AlertManager) AddNotifier(notifier AlertNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, notifier)
}

// Raise opens an alert for a source. A source with an unresolved alert
// is not re-notified.
func (m *AlertManager) Raise(source string, severity apperrors.Severity, message string) {
	m.mu.Lock()
	if _, active := m.active[source]; active {
		m.mu.Unlock()
		return
	}

	alert := Alert{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Severity:  severity,
		Source:    source,
		Message:   message,
	}
	m.active[source] = alert
	m.history.append(alert)
	notifiers := make([]AlertNotifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.Unlock()

	m.logger.Error("Alert raised",
		"alert_id", alert.ID,
		"source", source,
		"severity", severity.String(),
		"message", message,
	)

	for _, notify := range notifiers {
		notify(alert)
	}
}

// Resolve closes the active alert for a source, if any
func (m *AlertManager) Resolve(source string) {
	m.mu.Lock()
	alert, ok := m.active[source]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.active, source)
	alert.Resolved = true
	m.history.append(alert)
	m.mu.Unlock()

	m.logger.Info("Alert resolved", "alert_id", alert.ID, "source", source)
}

// Active returns the currently unresolved alerts
func (m *AlertManager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	alerts := make([]Alert, 0, len(m.active))
	for _, alert := range m.active {
		alerts = append(alerts, alert)
	}
	return alerts
}

// History returns up to limit alert events, newest-last
func (m *AlertManager) History(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.tail(limit)
}

// HealthMonitor periodically inspects the circuit breaker fleet,
// adjusts the degradation level and raises alerts for unhealthy
// circuits
type HealthMonitor struct {
	registry    *Registry
	degradation *DegradationManager
	alerts      *AlertManager
	interval    time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	logger *logging.Logger
}

// NewHealthMonitor creates a monitor over the given registry. The
// degradation manager and alert manager are optional.
func NewHealthMonitor(registry *Registry, degradation *DegradationManager, alerts *AlertManager, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		registry:    registry,
		degradation: degradation,
		alerts:      alerts,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logging.GetLogger(),
	}
}

// Start runs the monitor loop until Stop is called or the context is
// cancelled
func (m *HealthMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *HealthMonitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Stop terminates the monitor loop and waits for it to exit
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
}

// Check performs one inspection pass
func (m *HealthMonitor) Check() HealthSummary {
	summary := m.registry.HealthSummary()

	if m.degradation != nil {
		m.degradation.ApplyHealthSummary(summary)
	}

	if m.alerts != nil {
		for name, report := range summary.Circuits {
			source := "circuit:" + name
			switch report.Status {
			case "unhealthy":
				m.alerts.Raise(source, apperrors.SeverityCritical, "circuit "+name+" is unhealthy")
			case "degraded", "recovering":
				m.alerts.Raise(source, apperrors.SeverityMedium, "circuit "+name+" is "+report.Status)
			default:
				m.alerts.Resolve(source)
			}
		}
	}

	m.logger.Debug("Health check completed",
		"circuits", summary.TotalCircuits,
		"status", summary.OverallStatus,
	)

	return summary
}
