package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("carries category severity and code", func(t *testing.T) {
		err := NewNetworkError("connection lost")

		assert.Equal(t, CategoryNetwork, err.Category)
		assert.Equal(t, SeverityMedium, err.Severity)
		assert.Equal(t, "NETWORK_ERROR", err.Code)
		assert.Contains(t, err.Error(), "connection lost")
		assert.False(t, err.Timestamp.IsZero())
	})

	t.Run("wraps a cause", func(t *testing.T) {
		cause := errors.New("dial tcp: i/o timeout")
		err := NewNetworkError("upstream unreachable").WithCause(cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "dial tcp")
	})

	t.Run("details are attached", func(t *testing.T) {
		err := NewValidationError("bad input").
			WithDetail("field", "email").
			WithDetail("reason", "missing @")

		assert.Equal(t, "email", err.Details["field"])
		assert.Equal(t, "missing @", err.Details["reason"])
	})
}

func TestErrorHelpers(t *testing.T) {
	t.Run("category of wrapped app error", func(t *testing.T) {
		err := fmt.Errorf("request failed: %w", NewDatabaseError("query timeout"))

		assert.True(t, IsCategory(err, CategoryDatabase))
		assert.Equal(t, CategoryDatabase, GetCategory(err))
		assert.Equal(t, SeverityHigh, GetSeverity(err))
	})

	t.Run("plain errors are unknown", func(t *testing.T) {
		err := errors.New("something broke")

		assert.False(t, IsCategory(err, CategoryDatabase))
		assert.Equal(t, CategoryUnknown, GetCategory(err))
	})

	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, CategoryUnknown, GetCategory(nil))
		assert.False(t, IsCategory(nil, CategorySystem))
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category Category
		severity Severity
	}{
		{"network", NewNetworkError("x"), CategoryNetwork, SeverityMedium},
		{"timeout", NewTimeoutError("fetch"), CategoryNetwork, SeverityMedium},
		{"database", NewDatabaseError("x"), CategoryDatabase, SeverityHigh},
		{"authentication", NewAuthenticationError("x"), CategoryAuthentication, SeverityMedium},
		{"authorization", NewAuthorizationError("x"), CategoryAuthorization, SeverityMedium},
		{"validation", NewValidationError("x"), CategoryValidation, SeverityLow},
		{"configuration", NewConfigurationError("x"), CategoryConfiguration, SeverityHigh},
		{"external api", NewExternalAPIError("github", "x"), CategoryExternalAPI, SeverityMedium},
		{"rate limit", NewRateLimitError("x"), CategoryExternalAPI, SeverityMedium},
		{"resource", NewResourceError("x"), CategoryResource, SeverityCritical},
		{"system", NewSystemError("x"), CategorySystem, SeverityHigh},
		{"internal", NewInternalError("x"), CategoryLogic, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.severity, tt.err.Severity)
		})
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "LOW", SeverityLow.String())
	assert.Equal(t, "MEDIUM", SeverityMedium.String())
	assert.Equal(t, "HIGH", SeverityHigh.String())
	assert.Equal(t, "CRITICAL", SeverityCritical.String())
	assert.Equal(t, "EMERGENCY", SeverityEmergency.String())
}
