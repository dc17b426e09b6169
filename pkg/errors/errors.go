package errors

import (
	"errors"
	"fmt"
	"time"
)

// Category represents the classification category of an error
type Category string

const (
	CategorySystem         Category = "system"
	CategoryNetwork        Category = "network"
	CategoryDatabase       Category = "database"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryValidation     Category = "validation"
	CategoryConfiguration  Category = "configuration"
	CategoryExternalAPI    Category = "external_api"
	CategoryResource       Category = "resource"
	CategoryLogic          Category = "logic"
	CategoryUnknown        Category = "unknown"
)

// Severity represents how serious an error is, ordered LOW to EMERGENCY
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// AppError represents an application error with classification context
type AppError struct {
	Category  Category          `json:"category"`
	Severity  Severity          `json:"severity"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(category Category, severity Severity, code, message string) *AppError {
	return &AppError{
		Category:  category,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors
func NewNetworkError(message string) *AppError {
	return NewAppError(CategoryNetwork, SeverityMedium, "NETWORK_ERROR", message)
}

func NewTimeoutError(operation string) *AppError {
	return NewAppError(CategoryNetwork, SeverityMedium, "TIMEOUT", fmt.Sprintf("%s timed out", operation))
}

func NewDatabaseError(message string) *AppError {
	return NewAppError(CategoryDatabase, SeverityHigh, "DATABASE_ERROR", message)
}

func NewAuthenticationError(message string) *AppError {
	return NewAppError(CategoryAuthentication, SeverityMedium, "AUTHENTICATION_ERROR", message)
}

func NewAuthorizationError(message string) *AppError {
	return NewAppError(CategoryAuthorization, SeverityMedium, "AUTHORIZATION_ERROR", message)
}

func NewValidationError(message string) *AppError {
	return NewAppError(CategoryValidation, SeverityLow, "VALIDATION_ERROR", message)
}

func NewConfigurationError(message string) *AppError {
	return NewAppError(CategoryConfiguration, SeverityHigh, "CONFIGURATION_ERROR", message)
}

func NewExternalAPIError(service, message string) *AppError {
	return NewAppError(CategoryExternalAPI, SeverityMedium, "EXTERNAL_API_ERROR", message).
		WithDetail("service", service)
}

func NewRateLimitError(message string) *AppError {
	return NewAppError(CategoryExternalAPI, SeverityMedium, "RATE_LIMIT_EXCEEDED", message)
}

func NewResourceError(message string) *AppError {
	return NewAppError(CategoryResource, SeverityCritical, "RESOURCE_ERROR", message)
}

func NewSystemError(message string) *AppError {
	return NewAppError(CategorySystem, SeverityHigh, "SYSTEM_ERROR", message)
}

func NewInternalError(message string) *AppError {
	return NewAppError(CategoryLogic, SeverityHigh, "INTERNAL_ERROR", message)
}

// IsCategory checks if the error belongs to a specific category
func IsCategory(err error, category Category) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}

// GetCategory returns the error category, or CategoryUnknown for plain errors
func GetCategory(err error) Category {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return CategoryUnknown
}

// GetSeverity returns the error severity, or SeverityLow for plain errors
func GetSeverity(err error) Severity {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityLow
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
