package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/0xchoux1/aide/pkg/errors"
	"github.com/0xchoux1/aide/pkg/logging"
)

// ErrorRecord is one handled error in the bounded history
type ErrorRecord struct {
	ID         string              `json:"id"`
	Timestamp  time.Time           `json:"timestamp"`
	Component  string              `json:"component"`
	Operation  string              `json:"operation"`
	Category   apperrors.Category  `json:"category"`
	Severity   apperrors.Severity  `json:"severity"`
	Pattern    string              `json:"pattern,omitempty"`
	ErrorType  string              `json:"error_type"`
	Message    string              `json:"message"`
	Escalated  bool                `json:"escalated"`
	RetryCount int                 `json:"retry_count"`
	Resolved   bool                `json:"resolved"`
	Details    map[string]string   `json:"details,omitempty"`
}

// HandleResult is what the handler decided about one error
type HandleResult struct {
	Classification Classification
	Pattern        string
	AutoRetry      bool
	MaxRetries     int
	Escalated      bool
	// Occurrences of the same pattern (or category, if no pattern
	// matched) within the frequency window, including this one
	RecentCount int
	// RecordID identifies this error in the handler's history, for
	// later MarkResolved calls
	RecordID string
}

// HandlerConfig configures an ErrorHandler
type HandlerConfig struct {
	// MaxHistory bounds the error history ring buffer
	MaxHistory int
	// FrequencyWindow is the trailing window for occurrence counting
	FrequencyWindow time.Duration
	// Sink receives audit events when an error escalates
	Sink EventSink
	// Alerts, when set, is notified of errors at or above AlertSeverity
	Alerts *AlertManager
	// AlertSeverity is the notification threshold; zero means HIGH
	AlertSeverity apperrors.Severity
}

// DefaultHandlerConfig returns the standard handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxHistory:      1000,
		FrequencyWindow: time.Hour,
	}
}

// ErrorHandler classifies errors, keeps a bounded history, tracks how
// often each signature recurs and escalates severity when a signature
// repeats too frequently
type ErrorHandler struct {
	config     HandlerConfig
	classifier *Classifier

	mu      sync.Mutex
	history *ring[ErrorRecord]

	logger *logging.Logger
}

// NewErrorHandler creates an error handler with the given classifier.
// A nil classifier gets the built-in pattern table.
func NewErrorHandler(config HandlerConfig, classifier *Classifier) *ErrorHandler {
	defaults := DefaultHandlerConfig()
	if config.MaxHistory <= 0 {
		config.MaxHistory = defaults.MaxHistory
	}
	if config.FrequencyWindow <= 0 {
		config.FrequencyWindow = defaults.FrequencyWindow
	}
	if config.AlertSeverity == 0 {
		config.AlertSeverity = apperrors.SeverityHigh
	}
	if classifier == nil {
		classifier = NewClassifier()
	}

	return &ErrorHandler{
		config:     config,
		classifier: classifier,
		history:    newRing[ErrorRecord](config.MaxHistory),
		logger:     logging.GetLogger(),
	}
}

// Classifier returns the handler's classifier
func (h *ErrorHandler) Classifier() *Classifier {
	return h.classifier
}

// Handle classifies the error, records it, and reports whether it
// should be retried and whether its recurrence escalates its severity
func (h *ErrorHandler) Handle(err error, component, operation string) HandleResult {
	if err == nil {
		return HandleResult{}
	}

	classification := h.classifier.Classify(err)

	result := HandleResult{Classification: classification}
	var escalateAfter int
	if pattern, ok := h.classifier.Match(err); ok {
		result.Pattern = pattern.Name
		result.AutoRetry = pattern.AutoRetry
		result.MaxRetries = pattern.MaxRetries
		escalateAfter = pattern.EscalateAfter
	}

	h.mu.Lock()

	now := time.Now()
	windowStart := now.Add(-h.config.FrequencyWindow)
	recent := 1
	for _, rec := range h.history.items() {
		if rec.Timestamp.Before(windowStart) {
			continue
		}
		if result.Pattern != "" {
			if rec.Pattern == result.Pattern {
				recent++
			}
		} else if rec.Category == classification.Category {
			recent++
		}
	}
	result.RecentCount = recent

	if escalateAfter > 0 && recent >= escalateAfter && classification.Severity < apperrors.SeverityEmergency {
		result.Escalated = true
		result.Classification.Severity = classification.Severity + 1
	}

	result.RecordID = uuid.New().String()
	h.history.append(ErrorRecord{
		ID:        result.RecordID,
		Timestamp: now,
		Component: component,
		Operation: operation,
		Category:  result.Classification.Category,
		Severity:  result.Classification.Severity,
		Pattern:   result.Pattern,
		ErrorType: fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Escalated: result.Escalated,
		Details:   apperrorDetails(err),
	})

	h.mu.Unlock()

	logger := h.logger.WithFields(map[string]interface{}{
		"component": component,
		"operation": operation,
		"category":  string(result.Classification.Category),
		"severity":  result.Classification.Severity.String(),
	})
	if result.Escalated {
		logger.WithField("recent_count", recent).Error("Error escalated: " + err.Error())
		emit(h.config.Sink, EventErrorEscalated, map[string]interface{}{
			"component":    component,
			"operation":    operation,
			"pattern":      result.Pattern,
			"category":     string(result.Classification.Category),
			"severity":     result.Classification.Severity.String(),
			"recent_count": recent,
		})
	} else if result.Classification.Severity >= apperrors.SeverityHigh {
		logger.Error(err.Error())
	} else {
		logger.Warning(err.Error())
	}

	if h.config.Alerts != nil && result.Classification.Severity >= h.config.AlertSeverity {
		h.config.Alerts.Raise("error:"+component, result.Classification.Severity, err.Error())
	}

	return result
}

func apperrorDetails(err error) map[string]string {
	if appErr, ok := err.(*apperrors.AppError); ok && len(appErr.Details) > 0 {
		details := make(map[string]string, len(appErr.Details))
		for k, v := range appErr.Details {
			details[k] = v
		}
		return details
	}
	return nil
}

// History returns up to limit records, newest-last
func (h *ErrorHandler) History(limit int) []ErrorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.tail(limit)
}

// MarkResolved flags a recorded error as recovered from. Returns false
// when the record has already rotated out of the history.
func (h *ErrorHandler) MarkResolved(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	found := false
	h.history.each(func(rec *ErrorRecord) {
		if rec.ID == id {
			rec.Resolved = true
			found = true
		}
	})
	return found
}

// NoteRetry increments the retry counter on a recorded error
func (h *ErrorHandler) NoteRetry(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	found := false
	h.history.each(func(rec *ErrorRecord) {
		if rec.ID == id {
			rec.RetryCount++
			found = true
		}
	})
	return found
}

// ClearHistory drops all recorded errors
func (h *ErrorHandler) ClearHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history.reset()
}

// ErrorStats summarizes the recorded error history
type ErrorStats struct {
	Total       int                `json:"total_errors"`
	ByCategory  map[string]int     `json:"by_category"`
	BySeverity  map[string]int     `json:"by_severity"`
	ByComponent map[string]int     `json:"by_component"`
	ByPattern   map[string]int     `json:"by_pattern"`
	Escalated   int                `json:"escalated"`
	RecentCount int                `json:"recent_count"`
	RecentRate  float64            `json:"recent_errors_per_minute"`
}

// Stats aggregates the full history; RecentCount and RecentRate cover
// the frequency window only
func (h *ErrorHandler) Stats() ErrorStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := ErrorStats{
		ByCategory:  make(map[string]int),
		BySeverity:  make(map[string]int),
		ByComponent: make(map[string]int),
		ByPattern:   make(map[string]int),
	}

	windowStart := time.Now().Add(-h.config.FrequencyWindow)
	for _, rec := range h.history.items() {
		stats.Total++
		stats.ByCategory[string(rec.Category)]++
		stats.BySeverity[rec.Severity.String()]++
		if rec.Component != "" {
			stats.ByComponent[rec.Component]++
		}
		if rec.Pattern != "" {
			stats.ByPattern[rec.Pattern]++
		}
		if rec.Escalated {
			stats.Escalated++
		}
		if !rec.Timestamp.Before(windowStart) {
			stats.RecentCount++
		}
	}

	if minutes := h.config.FrequencyWindow.Minutes(); minutes > 0 {
		stats.RecentRate = float64(stats.RecentCount) / minutes
	}

	return stats
}

// TrendPoint is one bucket of the error-rate trend
type TrendPoint struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Trend buckets the recorded errors of the last `window` into
// `buckets` equal intervals, oldest first
func (h *ErrorHandler) Trend(window time.Duration, buckets int) []TrendPoint {
	if buckets <= 0 || window <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	start := now.Add(-window)
	width := window / time.Duration(buckets)

	points := make([]TrendPoint, buckets)
	for i := range points {
		points[i].Start = start.Add(time.Duration(i) * width)
	}

	for _, rec := range h.history.items() {
		if rec.Timestamp.Before(start) {
			continue
		}
		idx := int(rec.Timestamp.Sub(start) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		points[idx].Count++
	}

	return points
}
