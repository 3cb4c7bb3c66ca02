package observability

import (
	"fmt"
	"net/http"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	Enabled  bool
	Endpoint string
	Port     string
}

// MetricsEndpoint is a scrape target backed by its own registry
type MetricsEndpoint struct {
	Reader   metric.Reader
	Registry *promclient.Registry
	Handler  http.Handler
}

// NewMetricsEndpoint creates an exporter that registers with a private registry next to
// the Go runtime and process collectors. Each manager gets its own, so several can coexist.
func NewMetricsEndpoint() (*MetricsEndpoint, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	return &MetricsEndpoint{
		Reader:   exporter,
		Registry: registry,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}, nil
}

// Serve starts a dedicated HTTP server for the endpoint
func (e *MetricsEndpoint) Serve(cfg PrometheusConfig, logger *errors.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, e.Handler)

	addr := ":" + cfg.Port
	logger.Info("Starting Prometheus metrics server", "addr", addr, "endpoint", cfg.Endpoint)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(err, "Prometheus server stopped", "addr", addr)
		}
	}()
	return server
}

// GetPrometheusConfig creates Prometheus configuration from provided config
func GetPrometheusConfig(cfg *config.Config) PrometheusConfig {
	if cfg != nil {
		return PrometheusConfig{
			Enabled:  cfg.Observability.Prometheus.Enabled,
			Endpoint: cfg.Observability.Prometheus.Endpoint,
			Port:     cfg.Observability.Prometheus.Port,
		}
	}

	return PrometheusConfig{
		Enabled:  false,
		Endpoint: "/metrics",
		Port:     "9090",
	}
}
