package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "MISSIONCONTROL"

	// DefaultBackendURL is the hosted agent backend.
	DefaultBackendURL = "https://resumegit-production.up.railway.app"
)

// backendOperations lists the keys under backend.* that carry per-endpoint overrides
var backendOperations = []string{"upload", "optimize", "grade", "spyglass", "chat", "courses", "questions", "posts"}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Backend
	v.SetDefault("backend.baseURL", DefaultBackendURL)
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.apiKey", "")
	v.SetDefault("backend.maxRetries", 2)
	v.SetDefault("backend.userAgent", "missioncontrol")

	for _, op := range backendOperations {
		prefix := "backend." + op + ".circuitBreaker."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"maxRequests", 3)
		v.SetDefault(prefix+"interval", 60*time.Second)
		v.SetDefault(prefix+"timeout", 60*time.Second)
		v.SetDefault(prefix+"minRequests", 3)
		v.SetDefault(prefix+"failureThreshold", 0.6)
	}
	// Optimize runs the whole agent pipeline and is never retried automatically
	v.SetDefault("backend.optimize.maxRetries", 0)
	v.SetDefault("backend.optimize.timeout", 30*time.Second)
	// Chat failures surface a message instead of retrying
	v.SetDefault("backend.chat.maxRetries", 0)

	// Mission
	v.SetDefault("mission.startingCredits", 10)
	v.SetDefault("mission.maxUploadSize", 10*1024*1024) // 10MB
	v.SetDefault("mission.spyglassInterval", 30*time.Second)
	v.SetDefault("mission.workspaceTTL", 2*time.Hour)
	v.SetDefault("mission.defaultUserEmail", "")
	v.SetDefault("mission.defaultUserName", "")
	v.SetDefault("mission.ghostwriterTone", "humble_brag")

	// Auth
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.devIdentity", "")
	v.SetDefault("auth.devEmail", "")

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.maxConns", 10)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.creditTTL", 5*time.Minute)

	// Notifications
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chatID", 0)

	// Server
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 45*time.Second) // Must outlast a 30s optimize call
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "require")
	v.SetDefault("server.tls.reload.enabled", true)
	v.SetDefault("server.tls.reload.debounceDelay", time.Second)
	v.SetDefault("server.tls.reload.vaultPollInterval", 5*time.Minute)
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byIdentity", false)
	v.SetDefault("server.rateLimit.window", time.Minute)

	// App
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown", "yaml"})

	// Vault
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.backendKey", "")
	v.SetDefault("vault.secrets.auth", "")
	v.SetDefault("vault.secrets.database", "")
	v.SetDefault("vault.secrets.telegram", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	// Observability
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "missioncontrol")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.timeout", 15*time.Second)
	v.SetDefault("observability.healthCheck.backendTimeout", 5*time.Second)
	v.SetDefault("observability.healthCheck.degradedAfter", 2*time.Second)
}
