package backend

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"missioncontrol/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// newStatusError pulls the "detail" field out of an error body when there is one
func newStatusError(status int, body []byte) *StatusError {
	var payload struct {
		Detail any `json:"detail"`
	}
	detail := ""
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		switch d := payload.Detail.(type) {
		case string:
			detail = d
		default:
			if b, err := json.Marshal(d); err == nil {
				detail = string(b)
			}
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(http.StatusText(status))
	}
	return &StatusError{Status: status, Detail: detail}
}

// countsAsOutage reports whether err says the backend is unhealthy rather than the request being wrong
func countsAsOutage(err error) bool {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests
	}
	return !stderrors.Is(err, context.Canceled)
}

// classify maps any failure of a backend call onto the error taxonomy.
// Transport failures, timeouts, non-2xx answers and an open breaker are all
// recoverable network errors; the caller decides whether to offer a retry.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}

	var (
		appErr    *errors.AppError
		statusErr *StatusError
		netErr    net.Error
	)
	switch {
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		appErr = errors.NewNetworkError(errors.ErrCodeCircuitOpen,
			fmt.Sprintf("%s is temporarily unavailable", operation), err)
	case stderrors.Is(err, context.DeadlineExceeded):
		appErr = errors.NewNetworkError(errors.ErrCodeBackendTimeout,
			fmt.Sprintf("%s timed out", operation), err)
	case stderrors.As(err, &statusErr):
		appErr = errors.NewNetworkError(errors.ErrCodeBackendStatus, statusErr.Error(), err).
			WithContext("status", statusErr.Status)
	case stderrors.As(err, &netErr) && netErr.Timeout():
		appErr = errors.NewNetworkError(errors.ErrCodeBackendTimeout,
			fmt.Sprintf("%s timed out", operation), err)
	default:
		appErr = errors.NewNetworkError(errors.ErrCodeBackendUnavailable,
			fmt.Sprintf("%s failed: backend unreachable", operation), err)
	}
	return appErr.WithContext("operation", operation)
}

// StatusOf extracts the HTTP status a classified error carries, or 0
func StatusOf(err error) int {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}
