package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	mcErrors "missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

const defaultHealthCheckTimeout = 5 * time.Second

// breakerReporter is implemented by backend clients that expose circuit breaker state
type breakerReporter interface {
	GetStats() map[string]any
	IsHealthy() bool
}

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.BackendTimeout <= 0 {
		return defaultHealthCheckTimeout
	}
	return s.AppConfig.Observability.HealthCheck.BackendTimeout
}

// healthHandler reports BFF health, the backend probe, breaker states and certificate status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "missioncontrol",
		"version": s.Version,
	}
	overallHealthy := true

	probe := s.checkBackendHealth(r.Context())
	response["backend"] = probe
	if probe.State == types.ProbeOffline {
		overallHealthy = false
	}

	if breakers := s.checkCircuitBreakerHealth(); breakers != nil {
		response["circuit_breakers"] = breakers
	}

	certStatus := s.checkCertificateHealth()
	if certStatus != nil {
		response["certificates"] = certStatus
		if healthy, ok := certStatus["healthy"].(bool); ok && !healthy {
			overallHealthy = false
		}
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	} else if probe.State == types.ProbeDegraded {
		response["status"] = "degraded"
	}
	s.writeJSON(w, status, response)
}

// checkBackendHealth probes the agent backend with the health check timeout
func (s *Server) checkBackendHealth(ctx context.Context) types.ProbeResult {
	if s.API == nil {
		return types.ProbeResult{State: types.ProbeOffline, Error: "backend is not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.getHealthCheckTimeout())
	defer cancel()
	return s.API.Probe(ctx)
}

// checkCircuitBreakerHealth reports per-operation breaker states when the client exposes them
func (s *Server) checkCircuitBreakerHealth() map[string]any {
	reporter, ok := s.API.(breakerReporter)
	if !ok {
		return nil
	}
	return map[string]any{
		"healthy":    reporter.IsHealthy(),
		"operations": reporter.GetStats(),
	}
}

// checkCertificateHealth checks the health of TLS certificates
func (s *Server) checkCertificateHealth() map[string]any {
	if s.CertReloader == nil {
		return nil
	}

	certStatus := make(map[string]any)

	timeToExpiry, err := s.CertReloader.CheckExpiry()
	if err != nil {
		certStatus["healthy"] = false
		certStatus["error"] = fmt.Sprintf("Failed to check certificate expiry: %v", err)
		return certStatus
	}

	criticalThreshold := 24 * time.Hour
	warningThreshold := 7 * 24 * time.Hour

	certStatus["time_to_expiry_hours"] = int(timeToExpiry.Hours())
	certStatus["time_to_expiry"] = timeToExpiry.String()

	switch {
	case timeToExpiry <= 0:
		certStatus["healthy"] = false
		certStatus["status"] = "expired"
		certStatus["message"] = "Certificate has expired"
	case timeToExpiry <= criticalThreshold:
		certStatus["healthy"] = false
		certStatus["status"] = "critical"
		certStatus["message"] = "Certificate expires within 24 hours"
	case timeToExpiry <= warningThreshold:
		certStatus["healthy"] = true
		certStatus["status"] = "warning"
		certStatus["message"] = "Certificate expires within 7 days"
	default:
		certStatus["healthy"] = true
		certStatus["status"] = "ok"
		certStatus["message"] = "Certificate is valid"
	}

	certStatus["reload"] = s.CertReloader.Status()
	return certStatus
}

// statsHandler provides server statistics including rate limiting and workspace info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "missioncontrol",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
		},
		"workspaces": s.Workspaces.Stats(),
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_identity":      s.RateLimit.ByIdentity,
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest, "content-type must be application/json", nil)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest,
				fmt.Sprintf("request body too large (limit is %d bytes)", maxBytesErr.Limit), err)
		}
		return mcErrors.NewIOError(mcErrors.ErrCodeFileNotReadable, "failed to read request body", err)
	}
	defer func() { _ = r.Body.Close() }()

	if err := json.Unmarshal(body, v); err != nil {
		return mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest, "failed to parse JSON", err)
	}

	return nil
}

// writeJSON writes v with the given status
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.LogError(err, "Failed to encode response")
	}
}

// writeError maps err onto a status code and a structured body
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mcErrors.HTTPStatus(err)
	resp := ErrorResponse{Error: mcErrors.ErrCodeInvalidRequest, Message: err.Error()}

	if appErr, ok := mcErrors.As(err); ok {
		resp = ErrorResponse{
			Error:       appErr.Code,
			Message:     appErr.Message,
			Type:        string(appErr.Type),
			Recoverable: appErr.Recoverable(),
			Context:     appErr.Context,
		}
	} else {
		resp.Error = "INTERNAL_ERROR"
		resp.Message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, "Request failed", "endpoint", r.URL.Path, "method", r.Method)
	} else {
		s.Logger.Debug("Request rejected", "endpoint", r.URL.Path, "status", status, "error", err.Error())
	}
	s.writeJSON(w, status, resp)
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   code,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
