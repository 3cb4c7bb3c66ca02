package backend

import (
	"fmt"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// Breaker guards one backend operation with the circuit breaker pattern
type Breaker struct {
	cb *gobreaker.CircuitBreaker[[]byte]
}

// NewBreaker creates a circuit breaker configured for a specific operation
func NewBreaker(op config.ResolvedOperation, logger *errors.Logger) *Breaker {
	// A disabled breaker is represented by nil and passes calls straight through
	if !op.CircuitBreaker.Enabled {
		return nil
	}

	cbCfg := op.CircuitBreaker
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("backend-%s", op.Name),
		MaxRequests: cbCfg.MaxRequests,
		Interval:    cbCfg.Interval,
		Timeout:     cbCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cbCfg.MinRequests &&
				failureRatio >= cbCfg.FailureThreshold
		},
		// Client errors mean the backend is up and answering
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsOutage(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				"name", name,
				"operation", op.Name,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cbCfg.MaxRequests,
				"failure_threshold", cbCfg.FailureThreshold)
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[[]byte](settings)}
}

// Execute executes the provided function with circuit breaker protection
func (b *Breaker) Execute(fn func() ([]byte, error)) ([]byte, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// GetStats returns circuit breaker statistics
func (b *Breaker) GetStats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"counts":  b.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy returns true if the circuit breaker is in closed state
func (b *Breaker) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}
