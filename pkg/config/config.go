package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the resilience library configuration
type Config struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry"`
	Fallback       FallbackConfig       `json:"fallback"`
	ErrorHandling  ErrorHandlingConfig  `json:"error_handling"`
	Redis          RedisConfig          `json:"redis"`
	Logging        LoggingConfig        `json:"logging"`
}

// CircuitBreakerConfig contains default circuit breaker thresholds
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	SuccessThreshold int           `json:"success_threshold"`
	MonitoringWindow time.Duration `json:"monitoring_window"`
	HistorySize      int           `json:"history_size"`
}

// RetryConfig contains default retry policy values
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts"`
	BaseDelay       time.Duration `json:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay"`
	BackoffStrategy string        `json:"backoff_strategy"`
	Jitter          bool          `json:"jitter"`
}

// FallbackConfig contains fallback executor defaults
type FallbackConfig struct {
	CacheTTL     time.Duration `json:"cache_ttl"`
	CacheBackend string        `json:"cache_backend"`
}

// ErrorHandlingConfig contains error handler defaults
type ErrorHandlingConfig struct {
	MaxHistory            int           `json:"max_history"`
	FrequencyWindow       time.Duration `json:"frequency_window"`
	Notifications         bool          `json:"notifications"`
	NotificationThreshold int           `json:"notification_threshold"`
}

// RedisConfig contains Redis connection configuration for the
// redis-backed fallback cache
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:  getEnvDuration("CIRCUIT_RECOVERY_TIMEOUT", 60*time.Second),
			SuccessThreshold: getEnvInt("CIRCUIT_SUCCESS_THRESHOLD", 3),
			MonitoringWindow: getEnvDuration("CIRCUIT_MONITORING_WINDOW", 5*time.Minute),
			HistorySize:      getEnvInt("CIRCUIT_HISTORY_SIZE", 100),
		},
		Retry: RetryConfig{
			MaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:       getEnvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:        getEnvDuration("RETRY_MAX_DELAY", 60*time.Second),
			BackoffStrategy: getEnvString("RETRY_BACKOFF_STRATEGY", "exponential"),
			Jitter:          getEnvBool("RETRY_JITTER", true),
		},
		Fallback: FallbackConfig{
			CacheTTL:     getEnvDuration("FALLBACK_CACHE_TTL", 5*time.Minute),
			CacheBackend: getEnvString("FALLBACK_CACHE_BACKEND", "memory"),
		},
		ErrorHandling: ErrorHandlingConfig{
			MaxHistory:            getEnvInt("ERROR_MAX_HISTORY", 1000),
			FrequencyWindow:       getEnvDuration("ERROR_FREQUENCY_WINDOW", time.Hour),
			Notifications:         getEnvBool("ERROR_NOTIFICATIONS", true),
			NotificationThreshold: getEnvInt("ERROR_NOTIFICATION_THRESHOLD", 3),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit breaker success threshold must be positive")
	}
	if c.CircuitBreaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit breaker recovery timeout must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	switch c.Retry.BackoffStrategy {
	case "fixed", "linear", "exponential", "exponential_jitter":
	default:
		return fmt.Errorf("unknown backoff strategy: %s", c.Retry.BackoffStrategy)
	}
	switch c.Fallback.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown fallback cache backend: %s", c.Fallback.CacheBackend)
	}
	return nil
}

// RedisAddr returns the Redis address in host:port form
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
