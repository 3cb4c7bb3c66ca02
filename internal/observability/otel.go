package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	ConsoleOutput  bool
	SampleRate     float64
	Prometheus     PrometheusConfig
}

// Metrics holds all custom metrics for Mission Control
type Metrics struct {
	// Backend calls
	BackendRequests metric.Int64Counter
	BackendDuration metric.Float64Histogram
	BackendErrors   metric.Int64Counter

	// Mission activity
	Optimizations     metric.Int64Counter
	OptimizationTime  metric.Float64Histogram
	Grades            metric.Int64Counter
	ChatMessages      metric.Int64Counter
	SpyglassRefreshes metric.Int64Counter

	// Certificate metrics
	CertReloadCount metric.Int64Counter
	CertExpiryTime  metric.Float64Gauge

	// Rate limiting metrics
	RateLimitHits metric.Int64Counter
}

// ObservabilityManager manages OpenTelemetry setup and records mission metrics
type ObservabilityManager struct {
	config          ObservabilityConfig
	fullConfig      *config.Config
	logger          *errors.Logger
	tracerProvider  *trace.TracerProvider
	meterProvider   *sdkmetric.MeterProvider
	metrics         *Metrics
	extraReaders    []sdkmetric.Reader
	metricsEndpoint *MetricsEndpoint
	shutdownFuncs   []func(context.Context) error
}

// Option customizes an ObservabilityManager
type Option func(*ObservabilityManager)

// WithMetricReader adds a reader next to the configured exporters
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(om *ObservabilityManager) { om.extraReaders = append(om.extraReaders, r) }
}

// WithLogger sets the logger used for exporter lifecycle messages
func WithLogger(l *errors.Logger) Option {
	return func(om *ObservabilityManager) { om.logger = l }
}

// NewObservabilityManager creates a new observability manager
func NewObservabilityManager(obsConfig ObservabilityConfig, fullConfig *config.Config, opts ...Option) (*ObservabilityManager, error) {
	om := &ObservabilityManager{
		config:        obsConfig,
		fullConfig:    fullConfig,
		logger:        errors.Nop(),
		shutdownFuncs: make([]func(context.Context) error, 0),
	}
	for _, opt := range opts {
		opt(om)
	}
	if !obsConfig.Enabled {
		return om, nil
	}

	if err := om.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := om.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

// newResource describes this service instance
func (om *ObservabilityManager) newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(om.config.ServiceName),
			semconv.ServiceVersion(om.config.ServiceVersion),
			attribute.String("service.instance.id", om.getServiceInstanceID()),
		),
	)
}

// initTracing sets up OpenTelemetry tracing
func (om *ObservabilityManager) initTracing() error {
	var exporter trace.SpanExporter
	var err error

	switch {
	case om.config.ConsoleOutput:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case om.fullConfig != nil && om.fullConfig.Observability.OTLP.Enabled:
		exporter, err = om.createOTLPExporter()
	default:
		exporter = &noOpSpanExporter{}
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := om.newResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(om.config.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)

	return nil
}

// initMetrics sets up OpenTelemetry metrics
func (om *ObservabilityManager) initMetrics() error {
	readers, err := om.setupMetricReaders()
	if err != nil {
		return err
	}

	res, err := om.newResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	meterProviderOptions := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	for _, reader := range readers {
		meterProviderOptions = append(meterProviderOptions, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(meterProviderOptions...)

	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	return om.initCustomMetrics()
}

// setupMetricReaders sets up all metric readers based on configuration
func (om *ObservabilityManager) setupMetricReaders() ([]sdkmetric.Reader, error) {
	readers := append([]sdkmetric.Reader(nil), om.extraReaders...)

	if err := om.setupConsoleReader(&readers); err != nil {
		return nil, err
	}

	if err := om.setupOTLPReader(&readers); err != nil {
		return nil, err
	}

	if err := om.setupPrometheusReader(&readers); err != nil {
		return nil, err
	}

	// Instruments still need somewhere to aggregate
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}

	return readers, nil
}

// setupConsoleReader sets up console metric reader if enabled
func (om *ObservabilityManager) setupConsoleReader(readers *[]sdkmetric.Reader) error {
	if !om.config.ConsoleOutput {
		return nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("failed to create console metric exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	*readers = append(*readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	return nil
}

// setupOTLPReader sets up OTLP metric reader if enabled
func (om *ObservabilityManager) setupOTLPReader(readers *[]sdkmetric.Reader) error {
	if om.fullConfig == nil || !om.fullConfig.Observability.OTLP.Enabled {
		return nil
	}

	otlpReader, err := om.createOTLPMetricsReader()
	if err != nil {
		return fmt.Errorf("failed to create OTLP metrics reader: %w", err)
	}
	*readers = append(*readers, otlpReader)
	return nil
}

// setupPrometheusReader sets up Prometheus metric reader if enabled
func (om *ObservabilityManager) setupPrometheusReader(readers *[]sdkmetric.Reader) error {
	if !om.config.Prometheus.Enabled {
		return nil
	}

	endpoint, err := NewMetricsEndpoint()
	if err != nil {
		return err
	}
	*readers = append(*readers, endpoint.Reader)
	om.metricsEndpoint = endpoint

	if om.config.Prometheus.Port != "" {
		srv := endpoint.Serve(om.config.Prometheus, om.logger)
		om.shutdownFuncs = append(om.shutdownFuncs, srv.Shutdown)
	}
	return nil
}

// MetricsHandler returns the scrape path and handler to mount on the main server.
// It is nil when Prometheus is off or has a dedicated port.
func (om *ObservabilityManager) MetricsHandler() (string, http.Handler) {
	if om == nil || om.metricsEndpoint == nil || om.config.Prometheus.Port != "" {
		return "", nil
	}
	return om.config.Prometheus.Endpoint, om.metricsEndpoint.Handler
}

// initCustomMetrics creates all custom metrics for Mission Control
func (om *ObservabilityManager) initCustomMetrics() error {
	meter := om.meterProvider.Meter(om.config.ServiceName)
	om.metrics = &Metrics{}

	if err := om.createBackendMetrics(meter); err != nil {
		return err
	}

	if err := om.createMissionMetrics(meter); err != nil {
		return err
	}

	if err := om.createCertificateMetrics(meter); err != nil {
		return err
	}

	return om.createRateLimitMetrics(meter)
}

// createBackendMetrics creates metrics for calls to the agent backend
func (om *ObservabilityManager) createBackendMetrics(meter metric.Meter) error {
	var err error

	om.metrics.BackendRequests, err = meter.Int64Counter(
		"missioncontrol_backend_requests_total",
		metric.WithDescription("Total number of backend requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend request count metric: %w", err)
	}

	om.metrics.BackendDuration, err = meter.Float64Histogram(
		"missioncontrol_backend_request_duration_seconds",
		metric.WithDescription("Time spent waiting on backend requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend duration metric: %w", err)
	}

	om.metrics.BackendErrors, err = meter.Int64Counter(
		"missioncontrol_backend_errors_total",
		metric.WithDescription("Total number of failed backend requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend error count metric: %w", err)
	}

	return nil
}

// createMissionMetrics creates metrics for user facing mission activity
func (om *ObservabilityManager) createMissionMetrics(meter metric.Meter) error {
	var err error

	om.metrics.Optimizations, err = meter.Int64Counter(
		"missioncontrol_optimizations_total",
		metric.WithDescription("Total number of optimization runs"),
	)
	if err != nil {
		return fmt.Errorf("failed to create optimizations metric: %w", err)
	}

	om.metrics.OptimizationTime, err = meter.Float64Histogram(
		"missioncontrol_optimization_duration_seconds",
		metric.WithDescription("Wall time of optimization runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create optimization duration metric: %w", err)
	}

	om.metrics.Grades, err = meter.Int64Counter(
		"missioncontrol_grades_total",
		metric.WithDescription("Total number of graded interview answers"),
	)
	if err != nil {
		return fmt.Errorf("failed to create grades metric: %w", err)
	}

	om.metrics.ChatMessages, err = meter.Int64Counter(
		"missioncontrol_chat_messages_total",
		metric.WithDescription("Total number of chat turns"),
	)
	if err != nil {
		return fmt.Errorf("failed to create chat messages metric: %w", err)
	}

	om.metrics.SpyglassRefreshes, err = meter.Int64Counter(
		"missioncontrol_spyglass_refreshes_total",
		metric.WithDescription("Total number of tracking stats refreshes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create spyglass refreshes metric: %w", err)
	}

	return nil
}

// createCertificateMetrics creates certificate-related metrics
func (om *ObservabilityManager) createCertificateMetrics(meter metric.Meter) error {
	var err error

	om.metrics.CertReloadCount, err = meter.Int64Counter(
		"missioncontrol_cert_reloads_total",
		metric.WithDescription("Total number of certificate reloads"),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate reload count metric: %w", err)
	}

	om.metrics.CertExpiryTime, err = meter.Float64Gauge(
		"missioncontrol_cert_expiry_seconds",
		metric.WithDescription("Seconds until certificate expiry"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate expiry time metric: %w", err)
	}

	return nil
}

// createRateLimitMetrics creates rate limiting metrics
func (om *ObservabilityManager) createRateLimitMetrics(meter metric.Meter) error {
	var err error

	om.metrics.RateLimitHits, err = meter.Int64Counter(
		"missioncontrol_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return nil
}

// GetMetrics returns the metrics instance
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// HTTPMiddleware returns HTTP middleware with OpenTelemetry instrumentation
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if om == nil || !om.config.Enabled {
		return func(h http.Handler) http.Handler { return h }
	}

	return otelhttp.NewMiddleware(
		om.config.ServiceName,
		otelhttp.WithTracerProvider(om.tracerProvider),
		otelhttp.WithMeterProvider(om.meterProvider),
	)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if om == nil || !om.config.Enabled {
		return noop.NewTracerProvider().Tracer(name)
	}
	return om.tracerProvider.Tracer(name)
}

// Shutdown gracefully shuts down all observability components
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	for _, shutdown := range om.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// outcome labels a result the same way across every metric
func outcome(err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Bool("success", err == nil)}
	if err == nil {
		return attrs
	}
	if appErr, ok := errors.As(err); ok {
		return append(attrs,
			attribute.String("error.type", string(appErr.Type)),
			attribute.String("error.code", appErr.Code),
		)
	}
	return append(attrs, attribute.String("error.type", "unknown"))
}

// RecordBackendCall counts one backend call and its latency
func (om *ObservabilityManager) RecordBackendCall(ctx context.Context, operation string, duration time.Duration, err error) {
	if om == nil || om.metrics == nil {
		return
	}
	m := om.metrics
	attrs := append([]attribute.KeyValue{attribute.String("operation", operation)}, outcome(err)...)
	m.BackendRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.BackendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err != nil {
		m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordOptimization counts one finished optimization run
func (om *ObservabilityManager) RecordOptimization(ctx context.Context, duration time.Duration, err error) {
	if om == nil || om.metrics == nil {
		return
	}
	m := om.metrics
	attrs := outcome(err)
	m.Optimizations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.OptimizationTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGrade counts one graded interview answer
func (om *ObservabilityManager) RecordGrade(ctx context.Context, err error) {
	if om == nil || om.metrics == nil {
		return
	}
	om.metrics.Grades.Add(ctx, 1, metric.WithAttributes(outcome(err)...))
}

// RecordChat counts one chat turn by the answering agent
func (om *ObservabilityManager) RecordChat(ctx context.Context, agent types.AgentID, err error) {
	if om == nil || om.metrics == nil {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.String("agent", string(agent))}, outcome(err)...)
	om.metrics.ChatMessages.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSpyglassRefresh counts one tracking stats refresh
func (om *ObservabilityManager) RecordSpyglassRefresh(ctx context.Context, err error) {
	if om == nil || om.metrics == nil {
		return
	}
	om.metrics.SpyglassRefreshes.Add(ctx, 1, metric.WithAttributes(outcome(err)...))
}

// RecordRateLimitHit counts one rejected request
func (om *ObservabilityManager) RecordRateLimitHit(ctx context.Context, endpoint, method string) {
	if om == nil || om.metrics == nil {
		return
	}
	if om.fullConfig != nil && !om.fullConfig.Observability.Metrics.Enabled {
		return
	}
	om.metrics.RateLimitHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
	))
}

// RecordCertReload counts one certificate reload and publishes the new expiry
func (om *ObservabilityManager) RecordCertReload(ctx context.Context, source string, expiry time.Time, err error) {
	if om == nil || om.metrics == nil {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.String("source", source)}, outcome(err)...)
	om.metrics.CertReloadCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err == nil && !expiry.IsZero() {
		om.metrics.CertExpiryTime.Record(ctx, time.Until(expiry).Seconds(),
			metric.WithAttributes(attribute.String("source", source)))
	}
}

// No-op exporter for when neither console nor OTLP output is configured
type noOpSpanExporter struct{}

func (n *noOpSpanExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (n *noOpSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// createOTLPExporter creates an OTLP HTTP trace exporter
func (om *ObservabilityManager) createOTLPExporter() (trace.SpanExporter, error) {
	if om.fullConfig == nil {
		return nil, fmt.Errorf("config not available for OTLP configuration")
	}

	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return exporter, nil
}

// createOTLPMetricsReader creates an OTLP HTTP metrics reader
func (om *ObservabilityManager) createOTLPMetricsReader() (sdkmetric.Reader, error) {
	if om.fullConfig == nil {
		return nil, fmt.Errorf("config not available for OTLP configuration")
	}

	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

// getServiceInstanceID returns the service instance ID from config or a fixed fallback
func (om *ObservabilityManager) getServiceInstanceID() string {
	if om.fullConfig != nil && om.fullConfig.Observability.ServiceInstance != "" {
		return om.fullConfig.Observability.ServiceInstance
	}
	return "missioncontrol-1"
}

// getMetricsCollectionInterval returns the configured metrics collection interval
func (om *ObservabilityManager) getMetricsCollectionInterval() time.Duration {
	if om.fullConfig != nil && om.fullConfig.Observability.Metrics.CollectionInterval > 0 {
		return om.fullConfig.Observability.Metrics.CollectionInterval
	}
	return 15 * time.Second
}
