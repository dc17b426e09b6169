package resilience

import (
	"sync"
	"time"

	"github.com/0xchoux1/aide/pkg/logging"
)

// DegradationLevel describes how much functionality the system is
// currently offering
type DegradationLevel int

const (
	// LevelFull - all features available
	LevelFull DegradationLevel = iota
	// LevelReduced - optional features disabled to shed load
	LevelReduced
	// LevelEssential - only core operations remain available
	LevelEssential
	// LevelMaintenance - the system serves nothing but health checks
	LevelMaintenance
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelReduced:
		return "reduced"
	case LevelEssential:
		return "essential"
	case LevelMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Feature is a named capability that can be shed under degradation
type Feature struct {
	Name string
	// MinLevel is the most degraded level at which the feature stays on
	MinLevel DegradationLevel
}

// DegradationManager tracks the system's degradation level and decides
// which features stay enabled at each level
type DegradationManager struct {
	mu        sync.RWMutex
	level     DegradationLevel
	changedAt time.Time
	features  map[string]Feature
	onChange  func(from, to DegradationLevel)

	logger *logging.Logger
}

// NewDegradationManager creates a manager starting at full service
func NewDegradationManager(onChange func(from, to DegradationLevel)) *DegradationManager {
	return &DegradationManager{
		level:     LevelFull,
		changedAt: time.Now(),
		features:  make(map[string]Feature),
		onChange:  onChange,
		logger:    logging.GetLogger(),
	}
}

// RegisterFeature declares a capability and the deepest degradation
// level it survives
func (m *DegradationManager) RegisterFeature(name string, minLevel DegradationLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[name] = Feature{Name: name, MinLevel: minLevel}
}

// Level returns the current degradation level
func (m *DegradationManager) Level() DegradationLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// SetLevel changes the degradation level, notifying the change callback
func (m *DegradationManager) SetLevel(level DegradationLevel) {
	m.mu.Lock()
	if m.level == level {
		m.mu.Unlock()
		return
	}
	prev := m.level
	m.level = level
	m.changedAt = time.Now()
	onChange := m.onChange
	m.mu.Unlock()

	m.logger.Warn("Degradation level changed",
		"from", prev.String(),
		"to", level.String(),
	)

	if onChange != nil {
		onChange(prev, level)
	}
}

// FeatureEnabled reports whether a feature is on at the current level.
// Unregistered features are treated as optional and only run at full
// service.
func (m *DegradationManager) FeatureEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	feature, ok := m.features[name]
	if !ok {
		return m.level == LevelFull
	}
	return m.level <= feature.MinLevel
}

// EnabledFeatures lists the registered features available at the
// current level
func (m *DegradationManager) EnabledFeatures() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var enabled []string
	for name, feature := range m.features {
		if m.level <= feature.MinLevel {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// Status is a snapshot of the manager for health endpoints
type Status struct {
	Level     string    `json:"level"`
	ChangedAt time.Time `json:"changed_at"`
	Features  []string  `json:"enabled_features"`
}

// Status returns the current level and enabled features
func (m *DegradationManager) Status() Status {
	return Status{
		Level:     m.Level().String(),
		ChangedAt: m.changedTime(),
		Features:  m.EnabledFeatures(),
	}
}

func (m *DegradationManager) changedTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changedAt
}

// ApplyHealthSummary derives the degradation level from the circuit
// breaker fleet: any unhealthy circuit drops to essential, degraded
// circuits drop to reduced, and a healthy fleet restores full service
func (m *DegradationManager) ApplyHealthSummary(summary HealthSummary) {
	switch summary.OverallStatus {
	case "unhealthy":
		m.SetLevel(LevelEssential)
	case "degraded":
		m.SetLevel(LevelReduced)
	default:
		m.SetLevel(LevelFull)
	}
}
