package operations

import (
	"time"

	"ephyscli/internal/exporter"
	"ephyscli/internal/membrane"
)

// StepReport is a point-in-time copy of a StepState
type StepReport struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   StepStatus             `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Report summarises one run
type Report struct {
	RunID     string        `json:"run_id"`
	InputPath string        `json:"input_path"`
	Status    RunStatus     `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Steps     []StepReport  `json:"steps"`

	Rows        int                  `json:"rows"`
	GroupCounts membrane.GroupCounts `json:"group_counts"`
	// Unclassified lists the source row numbers that matched no group
	Unclassified []int `json:"unclassified,omitempty"`

	PerCell      []membrane.Aggregate `json:"per_cell"`
	MouseAverage []membrane.Aggregate `json:"mouse_avg"`
	PerMouse     []membrane.Aggregate `json:"per_mouse"`

	Artifacts []exporter.Artifact `json:"artifacts"`
	Warnings  []string            `json:"warnings,omitempty"`
}

func newReport(state *RunState) *Report {
	r := &Report{
		RunID:        state.ID,
		InputPath:    state.Options.InputPath,
		Status:       state.GetStatus(),
		StartedAt:    state.StartTime,
		Duration:     state.Duration(),
		Rows:         state.Loaded.Len(),
		GroupCounts:  membrane.GroupCounts{},
		Unclassified: append([]int(nil), state.Classified.Unclassified...),
		PerCell:      state.PerCell,
		MouseAverage: state.MouseAverage,
		PerMouse:     state.PerMouse,
		Artifacts:    state.Artifacts,
		Warnings:     append([]string(nil), state.Warnings...),
	}
	for g, n := range state.Classified.Counts {
		r.GroupCounts[g] = n
	}
	for _, s := range state.Steps() {
		r.Steps = append(r.Steps, s.Snapshot())
	}
	return r
}

// Step returns the report of step id
func (r *Report) Step(id string) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepReport{}, false
}

// Succeeded reports whether every step completed or was skipped
func (r *Report) Succeeded() bool {
	return r.Status == RunStatusCompleted
}
