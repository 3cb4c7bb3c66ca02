package server

import (
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/backend"
	"missioncontrol/internal/config"
	mcErrors "missioncontrol/internal/errors"
	"missioncontrol/internal/formatters"
	"missioncontrol/internal/observability"
	"missioncontrol/internal/spyglass"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error       string         `json:"error"`
	Message     string         `json:"message,omitempty"`
	Type        string         `json:"type,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Context     map[string]any `json:"context,omitempty"`
}

// OptimizeRequest is the body of POST /api/workspaces/{ws}/optimize
type OptimizeRequest struct {
	JobDescription string `json:"job_description"`
}

// SelectQuestionRequest is the body of POST /api/workspaces/{ws}/interview/select
type SelectQuestionRequest struct {
	Index int `json:"index"`
}

// AnswerRequest is the body of POST /api/workspaces/{ws}/interview/answer
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// TabRequest is the body of POST /api/workspaces/{ws}/spyglass/tab
type TabRequest struct {
	Tab string `json:"tab"`
}

// ChatRequest is the body of POST /api/workspaces/{ws}/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// MinimizeRequest is the body of POST /api/workspaces/{ws}/chat/minimize
type MinimizeRequest struct {
	Minimized bool `json:"minimized"`
}

// ToneRequest is the body of POST /api/workspaces/{ws}/ghostwriter/regenerate
type ToneRequest struct {
	Tone string `json:"tone"`
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// TLS Configuration
	TLSConfig config.TLSConfig

	// Hot reloaded key pair, nil when TLS is off or reload is disabled
	CertReloader *CertReloader

	// Service API keys accepted alongside bearer tokens
	APIKeys map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Mission wiring
	API        backend.API
	Gate       *account.Gate
	Verifier   *account.Verifier
	Notifier   spyglass.Notifier
	Formatters *formatters.FormatterRegistry
	Workspaces *WorkspaceStore

	Observability *observability.ObservabilityManager

	// Logger
	Logger *mcErrors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	TLSConfig      config.TLSConfig
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig
	WorkspaceTTL   time.Duration
}

// Dependencies are the collaborators a server drives
type Dependencies struct {
	API           backend.API
	Gate          *account.Gate
	Verifier      *account.Verifier
	Notifier      spyglass.Notifier // optional
	Observability *observability.ObservabilityManager
}

// ConfigFromApp derives the server settings from application configuration
func ConfigFromApp(cfg *config.Config, version string) ServerConfig {
	return ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        version,
		TLSConfig:      cfg.Server.TLS,
		APIKeys:        cfg.Server.APIKeys,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.Mission.MaxUploadSize + 1<<20, // room for multipart framing
		RateLimit:      &cfg.Server.RateLimit,
		WorkspaceTTL:   cfg.Mission.WorkspaceTTL,
	}
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, deps Dependencies, logger *mcErrors.Logger) *Server {
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.BurstCapacity,
			logger,
		)
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		TLSConfig:      cfg.TLSConfig,
		APIKeys:        apiKeyMap,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		API:            deps.API,
		Gate:           deps.Gate,
		Verifier:       deps.Verifier,
		Notifier:       deps.Notifier,
		Formatters:     formatters.NewFormatterRegistry(),
		Workspaces:     NewWorkspaceStore(cfg.WorkspaceTTL, logger),
		Observability:  deps.Observability,
		Logger:         logger,
	}
}
