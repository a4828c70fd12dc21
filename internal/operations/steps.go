package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"ephyscli/internal/archive"
	"ephyscli/internal/dataprocessing"
	apperrors "ephyscli/internal/errors"
	"ephyscli/internal/exporter"
	"ephyscli/internal/membrane"
)

// Step IDs
const (
	StepLoad      = "load"
	StepConvert   = "convert"
	StepClassify  = "classify"
	StepAggregate = "aggregate"
	StepWrite     = "write"
	StepArchive   = "archive"
)

// skipper is implemented by steps that can decide not to run
type skipper interface {
	SkipReason(state *RunState) string
}

// Archiver persists a finished run
type Archiver interface {
	RecordRun(ctx context.Context, run archive.Run, tiers archive.Tiers) error
}

func missing(step, what string) error {
	return NewValidationError(step, fmt.Sprintf("%s is not available", what))
}

// loadStep reads the measurement table
type loadStep struct {
	baseStep
	reader *dataprocessing.Reader
	logger *slog.Logger
}

func (s *loadStep) Validate(state *RunState) error {
	if state.Options.InputPath == "" {
		return NewValidationError(s.id, "input path is required")
	}
	return nil
}

func (s *loadStep) Execute(ctx context.Context, state *RunState) error {
	table, err := s.reader.ReadFile(ctx, state.Options.InputPath)
	if err != nil {
		return err
	}
	state.Loaded = table

	step := state.GetStep(s.id)
	step.SetMetadata("rows", table.Len())
	step.SetMetadata("columns", len(table.Columns))

	if table.Len() == 0 {
		state.Warn("input has no data rows")
		s.logger.WarnContext(ctx, "input_has_no_rows", slog.String("path", state.Options.InputPath))
	}
	s.logger.InfoContext(ctx, "measurements_loaded",
		slog.String("path", state.Options.InputPath),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)))
	return nil
}

// convertStep derives input resistance and capacitance
type convertStep struct {
	baseStep
	logger *slog.Logger
}

func (s *convertStep) Validate(state *RunState) error {
	if state.GetStep(StepLoad).GetStatus() != StepStatusCompleted {
		return missing(s.id, "loaded table")
	}
	return nil
}

func (s *convertStep) Execute(ctx context.Context, state *RunState) error {
	stepMV := state.Options.StepMillivolts
	converted := membrane.Convert(state.Loaded, stepMV)
	state.Converted = converted

	nonFinite := 0
	for _, row := range converted.Rows {
		if !isFinite(row.InputResistance) || !isFinite(row.Capacitance) {
			nonFinite++
		}
	}
	step := state.GetStep(s.id)
	step.SetMetadata("step_mv", stepMV)
	step.SetMetadata("non_finite_rows", nonFinite)

	if nonFinite > 0 {
		state.Warn(fmt.Sprintf("%d row(s) have a non-finite input resistance or capacitance", nonFinite))
		s.logger.WarnContext(ctx, "non_finite_values",
			slog.Int("rows", nonFinite),
			slog.Float64("step_mv", stepMV))
	}
	s.logger.InfoContext(ctx, "units_converted",
		slog.Int("rows", converted.Len()),
		slog.Float64("step_mv", stepMV))
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// classifyStep assigns groups and sample sizes
type classifyStep struct {
	baseStep
	tracer *runTracer
	logger *slog.Logger
}

func (s *classifyStep) Validate(state *RunState) error {
	if !state.Converted.Converted() {
		return missing(s.id, "converted table")
	}
	return nil
}

func (s *classifyStep) Execute(ctx context.Context, state *RunState) error {
	opts := state.Options
	classified, err := membrane.AssignGroups(state.Converted, opts.Markers, opts.Policy)
	if err != nil {
		var unclassified *membrane.UnclassifiedError
		if errors.As(err, &unclassified) {
			return apperrors.NewClassificationError("rows match no genotype/treatment group", err).
				WithContext("rows", unclassified.Rows).
				WithContext("policy", string(opts.Policy))
		}
		return err
	}
	state.Classified = classified

	unassigned := len(classified.Unclassified)
	step := state.GetStep(s.id)
	step.SetMetadata("unclassified", unassigned)
	s.tracer.metrics.RecordRows(ctx, classified.Table.Len()-unassigned, unassigned)

	for _, g := range membrane.Groups {
		cells := classified.Counts[g]
		step.SetMetadata("group_"+strconv.Itoa(int(g)), cells)
		s.tracer.metrics.RecordGroup(ctx, groupLabel(opts.Markers, g), cells)
		s.logger.InfoContext(ctx, "group_assigned",
			slog.Int("group", int(g)),
			slog.String("label", groupLabel(opts.Markers, g)),
			slog.Int("cells", cells))
	}

	if unassigned > 0 {
		if opts.Policy == membrane.PolicySeparate {
			s.tracer.metrics.RecordGroup(ctx, groupLabel(opts.Markers, membrane.GroupUnassigned), unassigned)
			s.logger.InfoContext(ctx, "unclassified_rows_kept_separate",
				slog.Int("count", unassigned),
				slog.Any("rows", classified.Unclassified))
		} else {
			state.Warn(fmt.Sprintf("%d row(s) match no genotype/treatment group and are left out of every aggregate", unassigned))
			s.logger.WarnContext(ctx, "unclassified_rows_excluded",
				slog.Int("count", unassigned),
				slog.Any("rows", classified.Unclassified))
		}
	}
	return nil
}

// groupLabel names a group by the markers that select it
func groupLabel(m membrane.Markers, g membrane.Group) string {
	switch g {
	case membrane.GroupWildTypeVehicle:
		return m.WildType + " " + m.Vehicle
	case membrane.GroupWildTypeDrug:
		return m.WildType + " " + m.Drug
	case membrane.GroupKnockoutVehicle:
		return m.Knockout + " " + m.Vehicle
	case membrane.GroupKnockoutDrug:
		return m.Knockout + " " + m.Drug
	default:
		return g.String()
	}
}

// aggregateStep computes the three descriptive tiers
type aggregateStep struct {
	baseStep
	logger *slog.Logger
}

func (s *aggregateStep) Validate(state *RunState) error {
	if !state.Classified.Table.Classified() {
		return missing(s.id, "classified table")
	}
	return nil
}

func (s *aggregateStep) Execute(ctx context.Context, state *RunState) error {
	cells := state.Classified.Table

	perCell, err := membrane.PerCell(cells)
	if err != nil {
		return err
	}
	mouseAvg, err := membrane.MouseAverage(cells)
	if err != nil {
		return err
	}
	perMouse := membrane.PerMouse(mouseAvg)

	state.PerCell = perCell
	state.MouseAverage = mouseAvg
	state.PerMouse = perMouse

	step := state.GetStep(s.id)
	step.SetMetadata("per_cell", len(perCell))
	step.SetMetadata("mouse_avg", len(mouseAvg))
	step.SetMetadata("per_mouse", len(perMouse))

	if rows := membrane.RowsWithoutMouse(cells); len(rows) > 0 {
		step.SetMetadata("rows_without_mouse", len(rows))
		state.Warn(fmt.Sprintf("%d row(s) have no mouse ID and are left out of mouse_avg and per_mouse", len(rows)))
		s.logger.WarnContext(ctx, "rows_without_mouse", slog.Any("rows", rows))
	}
	s.warnSingleMember(ctx, state, "per_cell", perCell)
	s.warnSingleMember(ctx, state, "per_mouse", perMouse)

	s.logger.InfoContext(ctx, "aggregates_computed",
		slog.Int("per_cell", len(perCell)),
		slog.Int("mouse_avg", len(mouseAvg)),
		slog.Int("per_mouse", len(perMouse)))
	return nil
}

// warnSingleMember flags aggregates whose spread is undefined
func (s *aggregateStep) warnSingleMember(ctx context.Context, state *RunState, tier string, aggs []membrane.Aggregate) {
	for _, agg := range aggs {
		if agg.Members != 1 {
			continue
		}
		state.Warn(fmt.Sprintf("%s group %d (%s/%s) has a single member; std and ste are undefined",
			tier, int(agg.Group), agg.Genotype, agg.Treatment))
		s.logger.WarnContext(ctx, "single_member_group",
			slog.String("tier", tier),
			slog.Int("group", int(agg.Group)),
			slog.String("genotype", agg.Genotype),
			slog.String("treatment", agg.Treatment))
	}
}

// writeStep persists the four tables
type writeStep struct {
	baseStep
	writer *exporter.Writer
	tracer *runTracer
	logger *slog.Logger
}

func (s *writeStep) Validate(state *RunState) error {
	if state.GetStep(StepAggregate).GetStatus() != StepStatusCompleted {
		return missing(s.id, "aggregate tables")
	}
	return nil
}

func (s *writeStep) Execute(ctx context.Context, state *RunState) error {
	opts := state.Options
	metadata := map[string]string{
		"run_id":       state.ID,
		"input":        opts.InputPath,
		"step_mv":      strconv.FormatFloat(opts.StepMillivolts, 'g', -1, 64),
		"unclassified": string(opts.Policy),
	}
	artifacts, err := s.writer.Write(ctx, opts.Artifacts, exporter.Results{
		Cells:        state.Classified.Table,
		PerCell:      state.PerCell,
		MouseAverage: state.MouseAverage,
		PerMouse:     state.PerMouse,
	}, metadata)
	state.Artifacts = artifacts
	for _, art := range artifacts {
		s.tracer.metrics.RecordArtifact(ctx, art.Kind, int(art.Info.Size))
	}
	state.GetStep(s.id).SetMetadata("artifacts", len(artifacts))
	return err
}

// archiveStep records the run in the SQL archive
type archiveStep struct {
	baseStep
	archive Archiver
	logger  *slog.Logger
}

func (s *archiveStep) SkipReason(*RunState) string {
	if s.archive == nil {
		return "no archive configured"
	}
	return ""
}

func (s *archiveStep) Validate(state *RunState) error {
	if state.GetStep(StepWrite).GetStatus() != StepStatusCompleted {
		return missing(s.id, "written artifacts")
	}
	return nil
}

func (s *archiveStep) Execute(ctx context.Context, state *RunState) error {
	run := archiveRun(state, RunStatusCompleted, nil)
	err := s.archive.RecordRun(ctx, run, archive.Tiers{
		PerCell:      state.PerCell,
		MouseAverage: state.MouseAverage,
		PerMouse:     state.PerMouse,
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "run_archived", slog.String("run_id", run.ID))
	return nil
}

// archiveRun builds the archive record for state. The run is still active
// when the archive step executes, so status is passed in.
func archiveRun(state *RunState, status RunStatus, runErr error) archive.Run {
	opts := state.Options
	run := archive.Run{
		ID:             state.ID,
		InputPath:      opts.InputPath,
		StartedAt:      state.StartTime,
		FinishedAt:     time.Now(),
		Status:         string(status),
		StepMillivolts: opts.StepMillivolts,
		Policy:         string(opts.Policy),
		Rows:           state.Loaded.Len(),
		Unclassified:   len(state.Classified.Unclassified),
		GroupCounts:    make(map[int]int, len(state.Classified.Counts)),
	}
	for g, n := range state.Classified.Counts {
		run.GroupCounts[int(g)] = n
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return run
}
