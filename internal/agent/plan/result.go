package plan

import "github.com/mosfin/analyst/internal/domain"

// StepStatus is the terminal state of one executed step.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusError   StepStatus = "error"
	StatusSkipped StepStatus = "skipped"
)

// ExecutedStep is the immutable record of one step execution. Once
// appended to a session it is never mutated.
type ExecutedStep struct {
	StepID        int             `json:"step_id"`
	Tool          string          `json:"tool,omitempty"`
	Status        StepStatus      `json:"status"`
	ErrorCategory domain.Category `json:"error_category,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	ResultDigest  string          `json:"result_digest,omitempty"`
}

// ExecutionResult aggregates one orchestrator pass over a plan.
type ExecutionResult struct {
	Steps           []ExecutedStep `json:"steps"`
	HasFatalError   bool           `json:"has_fatal_error"`
	TotalDurationMS int64          `json:"total_duration_ms"`
}

// HasErrors reports whether any step failed, fatally or not.
func (r *ExecutionResult) HasErrors() bool {
	for _, s := range r.Steps {
		if s.Status == StatusError {
			return true
		}
	}
	return false
}

// FirstError returns the first errored step, if any.
func (r *ExecutionResult) FirstError() (ExecutedStep, bool) {
	for _, s := range r.Steps {
		if s.Status == StatusError {
			return s, true
		}
	}
	return ExecutedStep{}, false
}
