package operations

import (
	"sync"
	"time"

	"ephyscli/internal/exporter"
	"ephyscli/internal/membrane"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState is the state of one pipeline run. Steps execute one at a time and
// each stores its output in its own field; no step modifies an earlier
// step's table.
type RunState struct {
	mu sync.RWMutex

	ID        string
	Options   Options
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time
	Error     error

	order []string
	steps map[string]*StepState

	// load
	Loaded membrane.Table
	// convert
	Converted membrane.Table
	// classify
	Classified membrane.Classified
	// aggregate
	PerCell      []membrane.Aggregate
	MouseAverage []membrane.Aggregate
	PerMouse     []membrane.Aggregate
	// write
	Artifacts []exporter.Artifact

	Warnings []string
}

// NewRunState creates a pending run with one state per step
func NewRunState(id string, opts Options, steps []Step) *RunState {
	s := &RunState{
		ID:      id,
		Options: opts,
		Status:  RunStatusPending,
		steps:   make(map[string]*StepState, len(steps)),
	}
	for _, step := range steps {
		s.order = append(s.order, step.ID())
		s.steps[step.ID()] = NewStepState(step.ID(), step.Name())
	}
	return s
}

// Start marks the run as running
func (s *RunState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = RunStatusRunning
	s.StartTime = time.Now()
}

// Complete marks the run as completed
func (s *RunState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusCompleted
}

// Fail marks the run as failed, or cancelled when err is a cancellation
func (s *RunState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusFailed
	if GetErrorType(err) == ErrorTypeCancellation {
		s.Status = RunStatusCancelled
	}
	s.Error = err
}

// GetStatus returns the current run status
func (s *RunState) GetStatus() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// GetStep returns the state of a specific step
func (s *RunState) GetStep(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[id]
}

// Steps returns the step states in execution order
func (s *RunState) Steps() []*StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*StepState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.steps[id])
	}
	return out
}

// Warn records a warning for the report
func (s *RunState) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
}

// Duration returns the run duration so far
func (s *RunState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}
