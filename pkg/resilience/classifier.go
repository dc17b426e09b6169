package resilience

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/0xchoux1/aide/pkg/errors"
)

// Classification is the category and severity assigned to an error
type Classification struct {
	Category apperrors.Category
	Severity apperrors.Severity
}

// ErrorPattern describes a known error signature and how to treat it
type ErrorPattern struct {
	// Name identifies the pattern in stats and logs
	Name string
	// Substrings of the error text that select this pattern; any match counts
	Substrings []string
	Category   apperrors.Category
	Severity   apperrors.Severity
	// AutoRetry marks errors of this pattern as transient
	AutoRetry bool
	// MaxRetries caps the retry loop for this pattern when AutoRetry is set
	MaxRetries int
	// EscalateAfter is the occurrence count within the frequency window
	// that raises the effective severity one level
	EscalateAfter int
}

// Matches reports whether the error text contains any of the pattern's
// substrings. Matching is case-insensitive.
func (p ErrorPattern) Matches(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, sub := range p.Substrings {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// DefaultPatterns returns the built-in pattern table. Order matters:
// the first matching pattern wins, so more specific signatures come
// before broader ones.
func DefaultPatterns() []ErrorPattern {
	return []ErrorPattern{
		{
			Name:          "connection_timeout",
			Substrings:    []string{"connection timeout", "connect timeout", "dial timeout"},
			Category:      apperrors.CategoryNetwork,
			Severity:      apperrors.SeverityMedium,
			AutoRetry:     true,
			MaxRetries:    3,
			EscalateAfter: 5,
		},
		{
			Name:          "connection_refused",
			Substrings:    []string{"connection refused", "connection reset"},
			Category:      apperrors.CategoryNetwork,
			Severity:      apperrors.SeverityHigh,
			AutoRetry:     true,
			MaxRetries:    3,
			EscalateAfter: 3,
		},
		{
			Name:          "dns_failure",
			Substrings:    []string{"no such host", "dns", "name resolution"},
			Category:      apperrors.CategoryNetwork,
			Severity:      apperrors.SeverityHigh,
			AutoRetry:     true,
			MaxRetries:    2,
			EscalateAfter: 3,
		},
		{
			Name:          "rate_limited",
			Substrings:    []string{"rate limit", "too many requests", "429"},
			Category:      apperrors.CategoryExternalAPI,
			Severity:      apperrors.SeverityMedium,
			AutoRetry:     true,
			MaxRetries:    5,
			EscalateAfter: 10,
		},
		{
			Name:          "service_unavailable",
			Substrings:    []string{"service unavailable", "503", "bad gateway", "502"},
			Category:      apperrors.CategoryExternalAPI,
			Severity:      apperrors.SeverityHigh,
			AutoRetry:     true,
			MaxRetries:    3,
			EscalateAfter: 5,
		},
		{
			Name:          "database_connection",
			Substrings:    []string{"database connection", "connection pool", "too many connections"},
			Category:      apperrors.CategoryDatabase,
			Severity:      apperrors.SeverityCritical,
			AutoRetry:     true,
			MaxRetries:    2,
			EscalateAfter: 2,
		},
		{
			Name:          "deadlock",
			Substrings:    []string{"deadlock", "lock wait timeout"},
			Category:      apperrors.CategoryDatabase,
			Severity:      apperrors.SeverityHigh,
			AutoRetry:     true,
			MaxRetries:    3,
			EscalateAfter: 3,
		},
		{
			Name:          "auth_expired",
			Substrings:    []string{"token expired", "credentials expired", "session expired"},
			Category:      apperrors.CategoryAuthentication,
			Severity:      apperrors.SeverityMedium,
			AutoRetry:     false,
			EscalateAfter: 5,
		},
		{
			Name:          "out_of_memory",
			Substrings:    []string{"out of memory", "cannot allocate", "oom"},
			Category:      apperrors.CategoryResource,
			Severity:      apperrors.SeverityCritical,
			AutoRetry:     false,
			EscalateAfter: 1,
		},
		{
			Name:          "disk_full",
			Substrings:    []string{"no space left", "disk full", "quota exceeded"},
			Category:      apperrors.CategoryResource,
			Severity:      apperrors.SeverityCritical,
			AutoRetry:     false,
			EscalateAfter: 1,
		},
	}
}

// categoryRules maps error-text substrings to categories for errors no
// pattern claims. Evaluated in order so more specific terms win.
var categoryRules = []struct {
	substrings []string
	category   apperrors.Category
	severity   apperrors.Severity
}{
	{[]string{"timeout", "timed out", "deadline"}, apperrors.CategoryNetwork, apperrors.SeverityMedium},
	{[]string{"connection", "network", "unreachable", "socket"}, apperrors.CategoryNetwork, apperrors.SeverityMedium},
	{[]string{"sql", "database", "query", "transaction"}, apperrors.CategoryDatabase, apperrors.SeverityMedium},
	{[]string{"memory", "disk", "resource", "capacity", "limit exceeded"}, apperrors.CategoryResource, apperrors.SeverityHigh},
	{[]string{"unauthorized", "unauthenticated", "login", "credential"}, apperrors.CategoryAuthentication, apperrors.SeverityLow},
	{[]string{"forbidden", "permission denied", "access denied"}, apperrors.CategoryAuthorization, apperrors.SeverityLow},
	{[]string{"invalid", "validation", "malformed", "bad request"}, apperrors.CategoryValidation, apperrors.SeverityLow},
	{[]string{"config", "environment variable", "missing setting"}, apperrors.CategoryConfiguration, apperrors.SeverityLow},
	{[]string{"api", "upstream", "remote service", "http"}, apperrors.CategoryExternalAPI, apperrors.SeverityLow},
	{[]string{"assertion", "unexpected state", "invariant"}, apperrors.CategoryLogic, apperrors.SeverityLow},
	{[]string{"system", "internal error", "panic"}, apperrors.CategorySystem, apperrors.SeverityHigh},
}

// Classifier assigns categories and severities to arbitrary errors
type Classifier struct {
	patterns []ErrorPattern
}

// NewClassifier creates a classifier with the built-in patterns plus
// any extras, which take precedence over the built-ins
func NewClassifier(extra ...ErrorPattern) *Classifier {
	patterns := make([]ErrorPattern, 0, len(extra)+10)
	patterns = append(patterns, extra...)
	patterns = append(patterns, DefaultPatterns()...)
	return &Classifier{patterns: patterns}
}

// Patterns returns the classifier's pattern table in match order
func (c *Classifier) Patterns() []ErrorPattern {
	return c.patterns
}

// Match returns the first pattern whose signature the error carries
func (c *Classifier) Match(err error) (ErrorPattern, bool) {
	for _, p := range c.patterns {
		if p.Matches(err) {
			return p, true
		}
	}
	return ErrorPattern{}, false
}

// Classify determines an error's category and severity. An *AppError
// already carries both and is returned as-is; context deadline errors
// are network timeouts; otherwise the pattern table and then the
// generic substring rules decide, defaulting to unknown/medium.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{Category: apperrors.CategoryUnknown, Severity: apperrors.SeverityLow}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return Classification{Category: appErr.Category, Severity: appErr.Severity}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Category: apperrors.CategoryNetwork, Severity: apperrors.SeverityMedium}
	}

	if pattern, ok := c.Match(err); ok {
		return Classification{Category: pattern.Category, Severity: pattern.Severity}
	}

	text := strings.ToLower(err.Error())
	for _, rule := range categoryRules {
		for _, sub := range rule.substrings {
			if strings.Contains(text, sub) {
				return Classification{Category: rule.category, Severity: rule.severity}
			}
		}
	}

	return Classification{Category: apperrors.CategoryUnknown, Severity: apperrors.SeverityMedium}
}
