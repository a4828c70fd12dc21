package operations

import (
	"context"
	"fmt"
	"log/slog"

	"ephyscli/internal/archive"
	"ephyscli/internal/config"
	"ephyscli/internal/dataprocessing"
	"ephyscli/internal/exporter"
	"ephyscli/internal/infrastructure"
	"ephyscli/internal/membrane"
)

// Options parameterise one run
type Options struct {
	InputPath string
	// StepMillivolts is the voltage step of the recording protocol. Zero is
	// accepted: resistance becomes zero and capacitance infinite.
	StepMillivolts float64
	Markers        membrane.Markers
	Policy         membrane.UnclassifiedPolicy
	// Artifacts names the output blobs. When empty the default suffixes
	// are applied to InputPath.
	Artifacts config.ArtifactNames
}

// DefaultOptions returns options for inputPath with the standard protocol
// step and markers.
func DefaultOptions(inputPath string) Options {
	return OptionsFromConfig(config.Default(), inputPath)
}

// OptionsFromConfig builds run options from the pipeline and output sections
// of cfg. An empty inputPath falls back to cfg.Input.Path.
func OptionsFromConfig(cfg *config.Config, inputPath string) Options {
	if inputPath == "" {
		inputPath = cfg.Input.Path
	}
	m := cfg.Pipeline.Markers
	return Options{
		InputPath:      inputPath,
		StepMillivolts: cfg.Pipeline.StepMV,
		Markers: membrane.Markers{
			WildType: m.WildType,
			Knockout: m.Knockout,
			Vehicle:  m.Vehicle,
			Drug:     m.Drug,
		},
		Policy:    membrane.UnclassifiedPolicy(cfg.Pipeline.Unclassified),
		Artifacts: cfg.Output.Artifacts(inputPath),
	}
}

// normalize fills defaults and rejects options no step could run with
func (o Options) normalize() (Options, error) {
	if o.InputPath == "" {
		return o, NewValidationError("", "input path is required")
	}

	policy, err := membrane.ParseUnclassifiedPolicy(string(o.Policy))
	if err != nil {
		return o, &StepError{Type: ErrorTypeValidation, Message: "invalid options", Cause: err}
	}
	o.Policy = policy

	if o.Markers == (membrane.Markers{}) {
		o.Markers = membrane.DefaultMarkers()
	}
	m := o.Markers
	if m.WildType == "" || m.Knockout == "" || m.Vehicle == "" || m.Drug == "" {
		return o, NewValidationError("", "all four group markers are required")
	}

	if o.Artifacts == (config.ArtifactNames{}) {
		o.Artifacts = config.Default().Output.Artifacts(o.InputPath)
	}
	return o, nil
}

// Pipeline runs load, convert, classify, aggregate, write and archive in order
type Pipeline struct {
	reader  *dataprocessing.Reader
	writer  *exporter.Writer
	archive Archiver
	tracer  *runTracer
	logger  *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithArchive records every run, failed or not, in a.
func WithArchive(a Archiver) Option {
	return func(p *Pipeline) { p.archive = a }
}

// WithTelemetry traces steps and records metrics through t
func WithTelemetry(t *infrastructure.Telemetry) Option {
	return func(p *Pipeline) { p.tracer = newRunTracer(t) }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline reading with reader and writing through writer
func NewPipeline(reader *dataprocessing.Reader, writer *exporter.Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		reader: reader,
		writer: writer,
		tracer: newRunTracer(nil),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = infrastructure.WithComponent(p.logger, "pipeline")
	return p
}

func (p *Pipeline) steps() []Step {
	return []Step{
		&loadStep{baseStep: baseStep{StepLoad, "Load measurements"}, reader: p.reader, logger: p.logger},
		&convertStep{baseStep: baseStep{StepConvert, "Convert units"}, logger: p.logger},
		&classifyStep{baseStep: baseStep{StepClassify, "Assign groups"}, tracer: p.tracer, logger: p.logger},
		&aggregateStep{baseStep: baseStep{StepAggregate, "Aggregate"}, logger: p.logger},
		&writeStep{baseStep: baseStep{StepWrite, "Write tables"}, writer: p.writer, tracer: p.tracer, logger: p.logger},
		&archiveStep{baseStep: baseStep{StepArchive, "Archive run"}, archive: p.archive, logger: p.logger},
	}
}

// Run executes every step for opts. The report is returned whenever the run
// started, including on failure, so callers can show which step failed.
// The run ID is taken from ctx when present.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	ctx = infrastructure.EnsureRunID(ctx)
	steps := p.steps()
	state := NewRunState(infrastructure.GetRunID(ctx), opts, steps)

	ctx, span := p.tracer.traceRun(ctx, state)
	defer span.End()

	state.Start()
	p.logger.InfoContext(ctx, "run_started",
		slog.String("input", opts.InputPath),
		slog.Float64("step_mv", opts.StepMillivolts),
		slog.String("unclassified_policy", string(opts.Policy)))

	if opts.StepMillivolts == 0 {
		state.Warn("step voltage is zero; input resistance will be zero and capacitance infinite")
		p.logger.WarnContext(ctx, "zero_step_voltage")
	}

	err = p.executeSequential(ctx, state, steps)
	if err != nil {
		state.Fail(err)
		p.archiveFailure(ctx, state, err)
		p.logger.ErrorContext(ctx, "run_failed",
			slog.String("status", string(state.GetStatus())),
			slog.String("step", FailedStep(err)),
			slog.String("error", err.Error()),
			slog.Duration("duration", state.Duration()))
	} else {
		state.Complete()
		p.logger.InfoContext(ctx, "run_completed",
			slog.Int("rows", state.Loaded.Len()),
			slog.Int("unclassified", len(state.Classified.Unclassified)),
			slog.Int("artifacts", len(state.Artifacts)),
			slog.Int("warnings", len(state.Warnings)),
			slog.Duration("duration", state.Duration()))
	}
	p.tracer.finishRun(ctx, span, state, err)

	return newReport(state), err
}

// executeSequential runs steps in order and skips the remainder after the
// first failure
func (p *Pipeline) executeSequential(ctx context.Context, state *RunState, steps []Step) error {
	for i, step := range steps {
		stepState := state.GetStep(step.ID())

		if err := ctx.Err(); err != nil {
			p.logger.WarnContext(ctx, "run_cancelled", slog.String("step", step.ID()))
			p.skipRemaining(state, steps[i:], "run was cancelled")
			return NewCancellationError(step.ID(), err)
		}

		if sk, ok := step.(skipper); ok {
			if reason := sk.SkipReason(state); reason != "" {
				stepState.Skip(reason)
				p.logger.InfoContext(ctx, "stage_skipped",
					slog.String("step", step.ID()),
					slog.String("reason", reason))
				continue
			}
		}

		p.logger.InfoContext(ctx, "executing_stage",
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		if err := p.executeStep(ctx, state, step); err != nil {
			p.logger.ErrorContext(ctx, "stage_failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			p.skipRemaining(state, steps[i+1:], fmt.Sprintf("previous step %s failed", step.ID()))
			return err
		}
		p.logger.InfoContext(ctx, "stage_completed_successfully",
			slog.String("step", step.ID()),
			slog.Duration("duration", stepState.Duration()))
	}
	return nil
}

func (p *Pipeline) executeStep(ctx context.Context, state *RunState, step Step) error {
	stepState := state.GetStep(step.ID())
	ctx, span := p.tracer.traceStep(ctx, state.ID, step)
	defer span.End()

	stepState.Start()
	err := step.Validate(state)
	if err == nil {
		err = step.Execute(ctx, state)
		if err != nil {
			err = NewExecutionError(step.ID(), err)
		}
	}
	if err != nil {
		stepState.Fail(err)
	} else {
		stepState.Complete()
	}
	p.tracer.finishStep(ctx, span, step.ID(), stepState.Duration(), err)
	return err
}

func (p *Pipeline) skipRemaining(state *RunState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.GetStep(step.ID()); s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}

// archiveFailure records a failed run so the archive also lists runs that
// produced no output. Errors are logged only.
func (p *Pipeline) archiveFailure(ctx context.Context, state *RunState, runErr error) {
	if p.archive == nil || FailedStep(runErr) == StepArchive {
		return
	}
	run := archiveRun(state, state.GetStatus(), runErr)
	// Aggregates are archived only for completed runs.
	if err := p.archive.RecordRun(context.WithoutCancel(ctx), run, archive.Tiers{}); err != nil {
		p.logger.WarnContext(ctx, "failed_run_not_archived", slog.String("error", err.Error()))
	}
}
