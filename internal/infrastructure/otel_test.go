package infrastructure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephyscli/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTelemetryDisabledTracing(t *testing.T) {
	tel, err := InitializeTelemetry(config.TelemetryConfig{ServiceName: "membrane-props"}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Metrics)

	ctx, span := tel.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	assert.Empty(t, TraceIDFromContext(ctx))
	span.End()

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetryWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.TelemetryConfig{
		ServiceName: "membrane-props",
		TraceFile:   filepath.Join(dir, "trace.jsonl"),
		MetricsFile: filepath.Join(dir, "metrics.prom"),
	}

	tel, err := InitializeTelemetry(cfg, discardLogger())
	require.NoError(t, err)

	ctx, span := tel.Tracer.Start(context.Background(), "pipeline.run")
	assert.NotEmpty(t, TraceIDFromContext(ctx))

	tel.Metrics.RecordRun(ctx, 1500*time.Millisecond, nil)
	tel.Metrics.RecordStep(ctx, "load", 10*time.Millisecond, nil)
	tel.Metrics.RecordStep(ctx, "classify", time.Millisecond, errors.New("boom"))
	tel.Metrics.RecordRows(ctx, 10, 2)
	tel.Metrics.RecordGroup(ctx, "W vehicle", 4)
	tel.Metrics.RecordArtifact(ctx, "per_cell", 512)
	RecordError(ctx, errors.New("boom"))
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))

	traces, err := os.ReadFile(cfg.TraceFile)
	require.NoError(t, err)
	assert.Contains(t, string(traces), "pipeline.run")

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	text := string(metrics)
	assert.Contains(t, text, "membrane_runs_total")
	assert.Contains(t, text, "membrane_step_duration_seconds")
	assert.Contains(t, text, `outcome="unclassified"`)
	assert.Contains(t, text, `group="W vehicle"`)
	assert.Contains(t, text, "membrane_artifact_bytes")
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRun(ctx, time.Second, nil)
		m.RecordStep(ctx, "load", time.Second, nil)
		m.RecordRows(ctx, 1, 0)
		m.RecordGroup(ctx, "x", 1)
		m.RecordArtifact(ctx, "x", 1)
	})
}

func TestTelemetryBadTraceFile(t *testing.T) {
	cfg := config.TelemetryConfig{
		ServiceName: "membrane-props",
		TraceFile:   filepath.Join(t.TempDir(), "missing", "trace.jsonl"),
	}
	_, err := InitializeTelemetry(cfg, discardLogger())
	assert.Error(t, err)
}
