package config

import "time"

// Backend operation names. They double as circuit breaker names and metric labels.
const (
	OperationUpload    = "upload"
	OperationOptimize  = "optimize"
	OperationGrade     = "grade"
	OperationSpyglass  = "spyglass"
	OperationChat      = "chat"
	OperationCourses   = "courses"
	OperationQuestions = "questions"
	OperationPosts     = "posts"
	OperationHealth    = "health"
)

// ResolvedOperation is an operation's settings after falling back to the backend globals
type ResolvedOperation struct {
	Name           string
	Timeout        time.Duration
	MaxRetries     int
	CircuitBreaker CircuitBreakerConfig
}

func (c *Config) operationOverrides(name string) OperationConfig {
	switch name {
	case OperationUpload:
		return c.Backend.Upload
	case OperationOptimize:
		return c.Backend.Optimize
	case OperationGrade:
		return c.Backend.Grade
	case OperationSpyglass:
		return c.Backend.Spyglass
	case OperationChat:
		return c.Backend.Chat
	case OperationCourses:
		return c.Backend.Courses
	case OperationQuestions:
		return c.Backend.Questions
	case OperationPosts:
		return c.Backend.Posts
	default:
		return OperationConfig{}
	}
}

// GetOperationConfig returns the settings for one backend operation with fallback to the backend defaults
func (c *Config) GetOperationConfig(name string) ResolvedOperation {
	op := c.operationOverrides(name)

	resolved := ResolvedOperation{
		Name:           name,
		Timeout:        c.Backend.Timeout,
		MaxRetries:     c.Backend.MaxRetries,
		CircuitBreaker: op.CircuitBreaker,
	}
	if op.Timeout != nil && *op.Timeout > 0 {
		resolved.Timeout = *op.Timeout
	}
	if op.MaxRetries != nil {
		resolved.MaxRetries = *op.MaxRetries
	}
	return resolved
}

// BackendOperations returns every operation that has its own breaker
func BackendOperations() []string {
	return append([]string(nil), backendOperations...)
}
