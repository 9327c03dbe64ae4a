package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var (
	// Metrics for upstream log API calls
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applogs_upstream_request_duration_seconds",
			Help:    "Duration of requests to the application log API",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"endpoint"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applogs_upstream_errors_total",
			Help: "Total number of failed requests to the application log API",
		},
		[]string{"endpoint", "status"},
	)

	// Metrics for aggregation
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applogs_aggregation_duration_seconds",
			Help:    "Duration of fetch-and-aggregate runs per view",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"view"},
	)

	RecordsAggregated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applogs_records_aggregated_total",
			Help: "Total number of log records folded into aggregates",
		},
		[]string{"view"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applogs_records_skipped_total",
			Help: "Total number of log records left out of time buckets",
		},
		[]string{"reason"},
	)

	StaleResultsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applogs_stale_results_dropped_total",
			Help: "Aggregation results discarded because a newer request superseded them",
		},
	)

	// Metrics for the ClickHouse archive
	ArchiveRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applogs_archive_rows_total",
			Help: "Total number of log rows written to the archive",
		},
		[]string{"status"},
	)

	ArchiveWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "applogs_archive_write_duration_seconds",
			Help:    "Duration of archive batch writes",
			Buckets: prometheus.DefBuckets,
		},
	)

	ArchiveBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "applogs_archive_batch_size",
			Help:    "Size of batches sent to the archive",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	ArchiveQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "applogs_archive_queue_size",
			Help: "Current number of batches waiting for the archive",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "applogs_active_streams",
			Help: "Current number of open dashboard stream connections",
		},
	)
)

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	SampleRate     float64
}

// InitTracing initializes OpenTelemetry tracing
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func StartMetricsServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Int("port", port).Msg("metrics server error")
		}
	}()

	return srv
}

// HealthCheck serves liveness and readiness probes.
type HealthCheck struct {
	ready atomic.Bool
}

// NewHealthCheck creates a new health check handler
func NewHealthCheck() *HealthCheck {
	return &HealthCheck{}
}

// SetReady marks the service as ready
func (h *HealthCheck) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports the current readiness state.
func (h *HealthCheck) Ready() bool {
	return h.ready.Load()
}

// LivenessHandler handles liveness probe requests
func (h *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ReadinessHandler handles readiness probe requests
func (h *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Not Ready"))
	}
}
