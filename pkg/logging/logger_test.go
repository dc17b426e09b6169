package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	logger, err := NewLogger(&Config{
		Level:       "debug",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "aide-test",
		Version:     "test",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		logger, err := NewLogger(nil)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("rejects invalid level", func(t *testing.T) {
		_, err := NewLogger(&Config{Level: "loud", Format: "json", Output: "stdout"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		_, err := NewLogger(&Config{Level: "info", Format: "xml", Output: "stdout"})
		assert.Error(t, err)
	})
}

func TestStructuredFields(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.Info("circuit opened", "circuit", "payments", "failures", 5)

	entry := lastLogLine(t, buf)
	assert.Equal(t, "circuit opened", entry["message"])
	assert.Equal(t, "payments", entry["circuit"])
	assert.Equal(t, float64(5), entry["failures"])
	assert.Equal(t, "info", entry["level"])
}

func TestOddKeyValuePairs(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	// A dangling key must not panic
	logger.Warn("odd call", "key-without-value")

	entry := lastLogLine(t, buf)
	assert.Equal(t, "odd call", entry["message"])
}

func TestWithContext(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	ctx := WithCorrelationID(context.Background(), "corr-123")
	ctx = WithRequestID(ctx, "req-456")

	logger.WithContext(ctx).Info("handling request")

	entry := lastLogLine(t, buf)
	assert.Equal(t, "corr-123", entry["correlation_id"])
	assert.Equal(t, "req-456", entry["request_id"])
	assert.Equal(t, "aide-test", entry["service"])
}

func TestWithError(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.WithError(errors.New("dial timeout")).Error("call failed")

	entry := lastLogLine(t, buf)
	assert.Equal(t, "dial timeout", entry["error"])
}

func TestWithComponentAndCircuit(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.WithComponent("retry").Info("attempt scheduled")
	entry := lastLogLine(t, buf)
	assert.Equal(t, "retry", entry["component"])

	logger.WithCircuit("payments").Info("state change")
	entry = lastLogLine(t, buf)
	assert.Equal(t, "payments", entry["circuit"])
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetGlobalLogger(original)

	replacement, err := NewLogger(nil)
	require.NoError(t, err)
	SetGlobalLogger(replacement)

	assert.Same(t, replacement, GetLogger())
}
