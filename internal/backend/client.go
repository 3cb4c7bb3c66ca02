// Package backend is the typed HTTP client for the remote agent backend.
//
// Every call runs through a per-operation circuit breaker, a bounded retry loop and
// a per-attempt timeout, and every failure comes back as an *errors.AppError of type
// network (recoverable) or malformed (undecodable body).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 16 << 20

// Recorder receives one observation per backend call
type Recorder interface {
	RecordBackendCall(ctx context.Context, operation string, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordBackendCall(context.Context, string, time.Duration, error) {}

type operation struct {
	cfg     config.ResolvedOperation
	breaker *Breaker
}

// Client talks to the agent backend
type Client struct {
	baseURL       string
	apiKey        string
	userAgent     string
	maxUploadSize int64
	httpClient    *http.Client
	operations    map[string]*operation
	health        config.HealthCheckConfig
	recorder      Recorder
	logger        *errors.Logger
	sleep         func(time.Duration) <-chan time.Time
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRecorder wires a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// withSleep replaces the backoff timer in tests
func withSleep(sleep func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a backend client from configuration
func NewClient(cfg *config.Config, logger *errors.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.Backend.BaseURL, "/"),
		apiKey:        cfg.Backend.APIKey,
		userAgent:     cfg.Backend.UserAgent,
		maxUploadSize: cfg.Mission.MaxUploadSize,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		operations: make(map[string]*operation),
		health:     cfg.Observability.HealthCheck,
		recorder:   nopRecorder{},
		logger:     logger,
		sleep:      time.After,
	}

	for _, name := range config.BackendOperations() {
		resolved := cfg.GetOperationConfig(name)
		c.operations[name] = &operation{
			cfg:     resolved,
			breaker: NewBreaker(resolved, logger),
		}
	}
	// Health probes bypass breakers and retries so they report what they see
	c.operations[config.OperationHealth] = &operation{
		cfg: config.ResolvedOperation{Name: config.OperationHealth, Timeout: c.healthTimeout()},
	}

	for _, opt := range opts {
		opt(c)
	}

	logger.Debug("Backend client initialized",
		"base_url", c.baseURL,
		"has_api_key", c.apiKey != "",
		"operations", len(c.operations))

	return c
}

func (c *Client) healthTimeout() time.Duration {
	if c.health.BackendTimeout > 0 {
		return c.health.BackendTimeout
	}
	return 5 * time.Second
}

// BaseURL returns the backend root without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// requestBody produces a fresh body for every attempt
type requestBody func() (io.Reader, string, error)

func jsonBody(v any) requestBody {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// call performs one logical backend operation and returns the raw response body
func (c *Client) call(ctx context.Context, opName, method, path string, body requestBody) ([]byte, error) {
	op, ok := c.operations[opName]
	if !ok {
		return nil, errors.NewInternalError("UNKNOWN_OPERATION", "unknown backend operation "+opName, nil)
	}

	tracer := otel.Tracer("missioncontrol.backend")
	ctx, span := tracer.Start(ctx, "backend."+opName)
	defer span.End()
	span.SetAttributes(
		attribute.String("backend.operation", opName),
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	)

	start := time.Now()
	result, err := op.breaker.Execute(func() ([]byte, error) {
		return executeWithRetry(ctx, c.logger, opName, op.cfg.MaxRetries, c.sleep, func() ([]byte, error) {
			return c.attempt(ctx, op.cfg.Timeout, method, path, body)
		})
	})
	duration := time.Since(start)

	err = classify(opName, err)
	c.recorder.RecordBackendCall(ctx, opName, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("success", false))
		c.logger.LogError(err, "Backend call failed", "duration_ms", duration.Milliseconds())
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("backend.response_bytes", len(result)),
	)
	c.logger.Debug("Backend call completed",
		"operation", opName,
		"duration_ms", duration.Milliseconds(),
		"response_bytes", len(result))
	return result, nil
}

// attempt sends a single HTTP request bounded by the operation timeout
func (c *Client) attempt(ctx context.Context, timeout time.Duration, method, path string, body requestBody) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		r, ct, err := body()
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeInvalidRequest, "failed to encode request", err)
		}
		reader, contentType = r, ct
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInvalidRequest, "failed to build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Surface the parent's deadline rather than the per-attempt one when both fired
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, data)
	}
	return data, nil
}

// decode unmarshals a response body, reporting undecodable payloads as malformed
func decode[T any](operation string, data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewMalformedError(errors.ErrCodeMalformedResponse,
			fmt.Sprintf("%s returned an unreadable response", operation), err).
			WithContext("operation", operation)
	}
	return &out, nil
}

// GetStats returns breaker statistics per operation
func (c *Client) GetStats() map[string]any {
	stats := make(map[string]any, len(c.operations))
	for name, op := range c.operations {
		if name == config.OperationHealth {
			continue
		}
		stats[name] = op.breaker.GetStats()
	}
	return stats
}

// IsHealthy reports whether every breaker is closed
func (c *Client) IsHealthy() bool {
	for _, op := range c.operations {
		if !op.breaker.IsHealthy() {
			return false
		}
	}
	return true
}
