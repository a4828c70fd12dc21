package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ephyscli/internal/config"
)

const (
	ServiceVersion = "1.0.0"
	MeterName      = "ephyscli"
)

// Telemetry holds the tracing and metric providers for one process.
// Spans go to cfg.TraceFile as JSON lines; metrics are gathered into a
// private Prometheus registry and written to cfg.MetricsFile on Shutdown.
type Telemetry struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	Metrics  *PipelineMetrics
	Registry *prometheus.Registry

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	traceFile      *os.File
	metricsFile    string
	logger         *slog.Logger
}

// InitializeTelemetry sets up tracing and metrics from cfg
func InitializeTelemetry(cfg config.TelemetryConfig, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = GetLogger()
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		attribute.String("service.instance.id", NewRunID()),
	)

	t := &Telemetry{
		Registry:    prometheus.NewRegistry(),
		metricsFile: cfg.MetricsFile,
		logger:      logger,
	}

	if err := t.initializeTracing(cfg, res); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := t.initializeMetrics(res); err != nil {
		t.closeTraceFile()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.Debug("Telemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("tracing_enabled", t.tracerProvider != nil),
		slog.String("metrics_file", cfg.MetricsFile))

	return t, nil
}

func (t *Telemetry) initializeTracing(cfg config.TelemetryConfig, res *resource.Resource) error {
	if cfg.TraceFile == "" {
		t.Tracer = noop.NewTracerProvider().Tracer(MeterName)
		return nil
	}

	file, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	t.traceFile = file
	t.tracerProvider = tp
	t.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(ServiceVersion))
	return nil
}

func (t *Telemetry) initializeMetrics(res *resource.Resource) error {
	exporter, err := otelprom.New(otelprom.WithRegisterer(t.Registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	t.Meter = t.meterProvider.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))

	t.Metrics, err = NewPipelineMetrics(t.Meter)
	return err
}

// Shutdown flushes spans, writes the metrics textfile when configured and
// releases the trace file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if t.metricsFile != "" {
		if err := prometheus.WriteToTextfile(t.metricsFile, t.Registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if err := t.closeTraceFile(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (t *Telemetry) closeTraceFile() error {
	if t.traceFile == nil {
		return nil
	}
	err := t.traceFile.Close()
	t.traceFile = nil
	return err
}

// PipelineMetrics contains the instruments recorded by a pipeline run
type PipelineMetrics struct {
	RunsTotal        metric.Int64Counter
	RunDuration      metric.Float64Histogram
	StepsTotal       metric.Int64Counter
	StepDuration     metric.Float64Histogram
	RowsProcessed    metric.Int64Counter
	GroupCells       metric.Int64Gauge
	ArtifactsWritten metric.Int64Counter
	ArtifactBytes    metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	runsTotal, err := meter.Int64Counter(
		"membrane_runs",
		metric.WithDescription("Total number of pipeline runs"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"membrane_run_duration",
		metric.WithDescription("Duration of pipeline runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stepsTotal, err := meter.Int64Counter(
		"membrane_steps",
		metric.WithDescription("Total number of pipeline steps executed"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		"membrane_step_duration",
		metric.WithDescription("Duration of individual pipeline steps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rowsProcessed, err := meter.Int64Counter(
		"membrane_rows",
		metric.WithDescription("Measurement rows processed by classification outcome"),
	)
	if err != nil {
		return nil, err
	}

	groupCells, err := meter.Int64Gauge(
		"membrane_group_cells",
		metric.WithDescription("Cells assigned to each experimental group in the last run"),
	)
	if err != nil {
		return nil, err
	}

	artifactsWritten, err := meter.Int64Counter(
		"membrane_artifacts",
		metric.WithDescription("Artifacts written to the output store"),
	)
	if err != nil {
		return nil, err
	}

	artifactBytes, err := meter.Int64Counter(
		"membrane_artifact_bytes",
		metric.WithDescription("Bytes written to the output store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		RunsTotal:        runsTotal,
		RunDuration:      runDuration,
		StepsTotal:       stepsTotal,
		StepDuration:     stepDuration,
		RowsProcessed:    rowsProcessed,
		GroupCells:       groupCells,
		ArtifactsWritten: artifactsWritten,
		ArtifactBytes:    artifactBytes,
	}, nil
}

func statusOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}

// RecordRun records a finished pipeline run
func (m *PipelineMetrics) RecordRun(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", statusOf(err)))
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStep records one pipeline step
func (m *PipelineMetrics) RecordStep(ctx context.Context, step string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", statusOf(err)),
	)
	m.StepsTotal.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRows records how many rows were classified and left unclassified
func (m *PipelineMetrics) RecordRows(ctx context.Context, classified, unclassified int) {
	if m == nil {
		return
	}
	m.RowsProcessed.Add(ctx, int64(classified), metric.WithAttributes(attribute.String("outcome", "classified")))
	m.RowsProcessed.Add(ctx, int64(unclassified), metric.WithAttributes(attribute.String("outcome", "unclassified")))
}

// RecordGroup records the cell count of one experimental group
func (m *PipelineMetrics) RecordGroup(ctx context.Context, group string, cells int) {
	if m == nil {
		return
	}
	m.GroupCells.Record(ctx, int64(cells), metric.WithAttributes(attribute.String("group", group)))
}

// RecordArtifact records one artifact written to the output store
func (m *PipelineMetrics) RecordArtifact(ctx context.Context, kind string, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.ArtifactsWritten.Add(ctx, 1, attrs)
	m.ArtifactBytes.Add(ctx, int64(size), attrs)
}

// TraceIDFromContext extracts the trace ID from context
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span and marks it failed
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
