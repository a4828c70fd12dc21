package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ephyscli/internal/infrastructure"
)

const TracerName = "ephyscli.operations"

// runTracer provides OpenTelemetry instrumentation for pipeline runs
type runTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

func newRunTracer(t *infrastructure.Telemetry) *runTracer {
	if t == nil || t.Tracer == nil {
		return &runTracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	}
	return &runTracer{tracer: t.Tracer, metrics: t.Metrics}
}

// traceRun creates a span for the entire run
func (rt *runTracer) traceRun(ctx context.Context, state *RunState) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", state.ID),
			attribute.String("run.input", state.Options.InputPath),
			attribute.Float64("run.step_mv", state.Options.StepMillivolts),
			attribute.String("run.unclassified_policy", string(state.Options.Policy)),
		),
	)
}

// traceStep creates a span for one step
func (rt *runTracer) traceStep(ctx context.Context, runID string, step Step) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", step.ID()),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", step.ID()),
			attribute.String("step.name", step.Name()),
		),
	)
}

// finishStep records step completion on the span and in metrics
func (rt *runTracer) finishStep(ctx context.Context, span trace.Span, step string, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	rt.metrics.RecordStep(ctx, step, duration, err)
}

// finishRun records run completion on the span and in metrics
func (rt *runTracer) finishRun(ctx context.Context, span trace.Span, state *RunState, err error) {
	span.SetAttributes(
		attribute.String("run.status", string(state.GetStatus())),
		attribute.Int("run.rows", state.Loaded.Len()),
		attribute.Int("run.unclassified", len(state.Classified.Unclassified)),
		attribute.Int("run.artifacts", len(state.Artifacts)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	rt.metrics.RecordRun(ctx, state.Duration(), err)
}
