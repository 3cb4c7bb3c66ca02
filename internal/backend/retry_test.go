package backend

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"missioncontrol/internal/errors"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffFor(t *testing.T) {
	for attempt := 1; attempt <= 4; attempt++ {
		base := time.Duration(1<<(attempt-1)) * time.Second
		delay := backoffFor(attempt)
		assert.GreaterOrEqual(t, delay, base)
		assert.LessOrEqual(t, delay, base+base/10)
	}
	assert.Equal(t, maxBackoff, backoffFor(10))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "service unavailable", err: &StatusError{Status: http.StatusServiceUnavailable}, want: true},
		{name: "too many requests", err: &StatusError{Status: http.StatusTooManyRequests}, want: true},
		{name: "bad request", err: &StatusError{Status: http.StatusBadRequest}, want: false},
		{name: "plain error", err: stderrors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestExecuteWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	never := func(time.Duration) <-chan time.Time { return nil }

	calls := 0
	_, err := executeWithRetry(ctx, errors.Nop(), "spyglass", 3, never, func() ([]byte, error) {
		calls++
		cancel()
		return nil, &StatusError{Status: http.StatusBadGateway}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetryWrapsLastError(t *testing.T) {
	_, err := executeWithRetry(context.Background(), errors.Nop(), "grade", 1, instantSleep, func() ([]byte, error) {
		return nil, &StatusError{Status: http.StatusBadGateway}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation 'grade' failed after 1 retries")
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestNewStatusErrorDetail(t *testing.T) {
	assert.Equal(t, "Insufficient credits", newStatusError(402, []byte(`{"detail": "Insufficient credits"}`)).Detail)
	assert.Equal(t, `[{"msg":"field required"}]`, newStatusError(422, []byte(`{"detail": [{"msg": "field required"}]}`)).Detail)
	assert.Equal(t, "Bad Gateway", newStatusError(502, []byte("<html/>")).Detail)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "open breaker", err: gobreaker.ErrOpenState, code: errors.ErrCodeCircuitOpen},
		{name: "half open limit", err: gobreaker.ErrTooManyRequests, code: errors.ErrCodeCircuitOpen},
		{name: "deadline", err: context.DeadlineExceeded, code: errors.ErrCodeBackendTimeout},
		{name: "status", err: &StatusError{Status: 500}, code: errors.ErrCodeBackendStatus},
		{name: "transport", err: stderrors.New("connection refused"), code: errors.ErrCodeBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("optimize", tt.err)
			assert.True(t, errors.HasCode(err, tt.code))
			assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
		})
	}

	validation := errors.NewValidationError(errors.ErrCodeInvalidRequest, "bad", nil)
	assert.Same(t, validation, classify("optimize", validation))
	assert.NoError(t, classify("optimize", nil))
}

func TestCountsAsOutage(t *testing.T) {
	assert.True(t, countsAsOutage(&StatusError{Status: 503}))
	assert.True(t, countsAsOutage(&StatusError{Status: 429}))
	assert.False(t, countsAsOutage(&StatusError{Status: 404}))
	assert.False(t, countsAsOutage(context.Canceled))
	assert.True(t, countsAsOutage(stderrors.New("dial tcp: refused")))
}
