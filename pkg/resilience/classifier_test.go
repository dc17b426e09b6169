package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/0xchoux1/aide/pkg/errors"
)

func TestClassifier_AppErrorShortCircuits(t *testing.T) {
	c := NewClassifier()

	// An already-classified error keeps its own category even when its
	// text would match a pattern
	err := apperrors.NewValidationError("connection timeout in field parser")
	result := c.Classify(err)

	assert.Equal(t, apperrors.CategoryValidation, result.Category)
	assert.Equal(t, apperrors.SeverityLow, result.Severity)
}

func TestClassifier_WrappedAppError(t *testing.T) {
	c := NewClassifier()

	err := fmt.Errorf("request failed: %w", apperrors.NewDatabaseError("pool exhausted"))
	result := c.Classify(err)

	assert.Equal(t, apperrors.CategoryDatabase, result.Category)
}

func TestClassifier_DeadlineExceeded(t *testing.T) {
	c := NewClassifier()

	result := c.Classify(context.DeadlineExceeded)

	assert.Equal(t, apperrors.CategoryNetwork, result.Category)
	assert.Equal(t, apperrors.SeverityMedium, result.Severity)
}

func TestClassifier_PatternMatching(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text     string
		pattern  string
		category apperrors.Category
	}{
		{"dial tcp 10.0.0.1:443: connection timeout", "connection_timeout", apperrors.CategoryNetwork},
		{"read tcp: connection refused", "connection_refused", apperrors.CategoryNetwork},
		{"lookup api.example.com: no such host", "dns_failure", apperrors.CategoryNetwork},
		{"API returned 429 Too Many Requests", "rate_limited", apperrors.CategoryExternalAPI},
		{"upstream returned 503 Service Unavailable", "service_unavailable", apperrors.CategoryExternalAPI},
		{"pq: too many connections", "database_connection", apperrors.CategoryDatabase},
		{"Error 1213: Deadlock found", "deadlock", apperrors.CategoryDatabase},
		{"oauth token expired", "auth_expired", apperrors.CategoryAuthentication},
		{"fork: cannot allocate memory", "out_of_memory", apperrors.CategoryResource},
		{"write /var/log: no space left on device", "disk_full", apperrors.CategoryResource},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := errors.New(tt.text)

			pattern, ok := c.Match(err)
			require.True(t, ok)
			assert.Equal(t, tt.pattern, pattern.Name)

			result := c.Classify(err)
			assert.Equal(t, tt.category, result.Category)
		})
	}
}

func TestClassifier_MatchingIsCaseInsensitive(t *testing.T) {
	c := NewClassifier()

	pattern, ok := c.Match(errors.New("CONNECTION REFUSED by peer"))
	require.True(t, ok)
	assert.Equal(t, "connection_refused", pattern.Name)
}

func TestClassifier_FirstPatternWins(t *testing.T) {
	c := NewClassifier(ErrorPattern{
		Name:       "custom_timeout",
		Substrings: []string{"connection timeout"},
		Category:   apperrors.CategorySystem,
		Severity:   apperrors.SeverityCritical,
	})

	pattern, ok := c.Match(errors.New("connection timeout"))
	require.True(t, ok)
	assert.Equal(t, "custom_timeout", pattern.Name)
}

func TestClassifier_GenericRules(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text     string
		category apperrors.Category
		severity apperrors.Severity
	}{
		{"operation timed out", apperrors.CategoryNetwork, apperrors.SeverityMedium},
		{"sql: transaction has already been committed", apperrors.CategoryDatabase, apperrors.SeverityMedium},
		{"worker exceeded memory budget", apperrors.CategoryResource, apperrors.SeverityHigh},
		{"401 unauthorized", apperrors.CategoryAuthentication, apperrors.SeverityLow},
		{"permission denied for path", apperrors.CategoryAuthorization, apperrors.SeverityLow},
		{"invalid payload shape", apperrors.CategoryValidation, apperrors.SeverityLow},
		{"missing environment variable FOO", apperrors.CategoryConfiguration, apperrors.SeverityLow},
		{"assertion failed in planner", apperrors.CategoryLogic, apperrors.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			result := c.Classify(errors.New(tt.text))
			assert.Equal(t, tt.category, result.Category)
			assert.Equal(t, tt.severity, result.Severity)
		})
	}
}

func TestClassifier_UnknownDefaults(t *testing.T) {
	c := NewClassifier()

	result := c.Classify(errors.New("entirely novel failure"))

	assert.Equal(t, apperrors.CategoryUnknown, result.Category)
	assert.Equal(t, apperrors.SeverityMedium, result.Severity)
}

func TestClassifier_NilError(t *testing.T) {
	c := NewClassifier()

	result := c.Classify(nil)

	assert.Equal(t, apperrors.CategoryUnknown, result.Category)
	assert.Equal(t, apperrors.SeverityLow, result.Severity)
}

func TestClassifier_RetryGuidance(t *testing.T) {
	c := NewClassifier()

	timeout, ok := c.Match(errors.New("connection timeout"))
	require.True(t, ok)
	assert.True(t, timeout.AutoRetry)
	assert.Equal(t, 3, timeout.MaxRetries)

	oom, ok := c.Match(errors.New("out of memory"))
	require.True(t, ok)
	assert.False(t, oom.AutoRetry)
}
