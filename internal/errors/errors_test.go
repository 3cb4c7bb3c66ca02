package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	plain := NewValidationError(ErrCodeMissingResume, "no resume bound", nil)
	assert.Equal(t, "MISSING_RESUME: no resume bound", plain.Error())

	wrapped := NewNetworkError(ErrCodeBackendTimeout, "optimize timed out", fmt.Errorf("deadline exceeded"))
	assert.Equal(t, "BACKEND_TIMEOUT: optimize timed out (caused by: deadline exceeded)", wrapped.Error())
	assert.True(t, wrapped.Recoverable())
	assert.False(t, plain.Recoverable())
}

func TestIsTypeThroughWrapping(t *testing.T) {
	base := NewUnauthorizedError(ErrCodeUnauthorized, "missing token", nil)
	wrapped := fmt.Errorf("resolve identity: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeUnauthorized))
	assert.False(t, IsType(wrapped, ErrorTypeNetwork))
	assert.True(t, HasCode(wrapped, ErrCodeUnauthorized))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeValidation))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError(ErrCodeMissingJobDescription, "x", nil), http.StatusBadRequest},
		{"credits", NewValidationError(ErrCodeInsufficientCredits, "x", nil), http.StatusPaymentRequired},
		{"busy", NewValidationError(ErrCodeBusy, "x", nil), http.StatusConflict},
		{"not found", NewValidationError(ErrCodeNotFound, "x", nil), http.StatusNotFound},
		{"unauthorized", NewUnauthorizedError(ErrCodeUnauthorized, "x", nil), http.StatusUnauthorized},
		{"network", NewNetworkError(ErrCodeBackendUnavailable, "x", nil), http.StatusBadGateway},
		{"malformed", NewMalformedError(ErrCodeMalformedResponse, "x", nil), http.StatusBadGateway},
		{"internal", NewInternalError("BOOM", "x", nil), http.StatusInternalServerError},
		{"foreign", fmt.Errorf("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestLogErrorExpandsAppError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelDebug)

	err := NewNetworkError(ErrCodeBackendStatus, "backend returned 503", nil).WithContext("operation", "optimize")
	logger.LogError(err, "Optimization failed", "resume_id", "r1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "network", entry["error_type"])
	assert.Equal(t, "BACKEND_STATUS", entry["error_code"])
	assert.Equal(t, "optimize", entry["operation"])
	assert.Equal(t, "r1", entry["resume_id"])
	assert.Equal(t, "Optimization failed", entry["msg"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("verbose")
	assert.EqualError(t, err, "invalid log level: verbose")

	logger, err := New("warn")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
