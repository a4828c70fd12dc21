package operations

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of pipeline error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeCancellation ErrorType = "cancellation"
)

// StepError is a failure attributed to a pipeline step. The cause keeps its
// own type, so errors.As still reaches the underlying AppError.
type StepError struct {
	Type    ErrorType `json:"type"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *StepError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Step != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError reports options that cannot run
func NewValidationError(step, message string) *StepError {
	return &StepError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
	}
}

// NewExecutionError wraps the error returned by a step
func NewExecutionError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: "step execution failed",
		Cause:   cause,
	}
}

// NewCancellationError reports a run stopped before step could start
func NewCancellationError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "run was cancelled",
		Cause:   cause,
	}
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Type
	}
	return ErrorTypeExecution
}

// FailedStep returns the step an error is attributed to, if any
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}
