package engine

import (
	"time"
)

// DeploymentState accumulates step results as a run progresses and answers
// output references for later steps. Runs execute strictly sequentially on a
// single goroutine, so access is unsynchronized.
type DeploymentState struct {
	order   []string
	results map[string]*StepResult
}

// NewDeploymentState creates an empty deployment state.
func NewDeploymentState() *DeploymentState {
	return &DeploymentState{
		results: make(map[string]*StepResult),
	}
}

// Record stores a step's terminal result. Recording the same step twice
// replaces the earlier result without duplicating order.
func (s *DeploymentState) Record(result *StepResult) {
	if result == nil {
		return
	}
	if _, seen := s.results[result.StepName]; !seen {
		s.order = append(s.order, result.StepName)
	}
	s.results[result.StepName] = result
}

// Result returns the recorded result for a step.
func (s *DeploymentState) Result(step string) (*StepResult, bool) {
	r, ok := s.results[step]
	return r, ok
}

// Output returns one captured output of a completed step. Only steps that
// converged (Success or NoOp) answer references; failed steps never do.
func (s *DeploymentState) Output(step, output string) (string, bool) {
	r, ok := s.results[step]
	if !ok || !r.Outcome.Succeeded() {
		return "", false
	}
	v, ok := r.Outputs[output]
	return v, ok
}

// Results returns every recorded result in execution order.
func (s *DeploymentState) Results() []*StepResult {
	out := make([]*StepResult, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.results[name])
	}
	return out
}

// Manifest returns the captured outputs of every converged step, keyed by
// step name. The maps are copies; mutating them does not affect state.
func (s *DeploymentState) Manifest() map[string]map[string]string {
	manifest := make(map[string]map[string]string)
	for _, name := range s.order {
		r := s.results[name]
		if !r.Outcome.Succeeded() || len(r.Outputs) == 0 {
			continue
		}
		outputs := make(map[string]string, len(r.Outputs))
		for k, v := range r.Outputs {
			outputs[k] = v
		}
		manifest[name] = outputs
	}
	return manifest
}

// RunSummary is the structured result of a whole deployment run.
type RunSummary struct {
	// RunID is the unique identifier of this run.
	RunID string `json:"run_id"`

	// Stack is the deployed stack name.
	Stack string `json:"stack"`

	// Status is the terminal deployment status.
	Status DeploymentStatus `json:"status"`

	// Results are the per-step results in execution order. Skipped steps
	// are not included.
	Results []*StepResult `json:"results"`

	// Completed lists steps that finished with OutcomeSuccess.
	Completed []string `json:"completed,omitempty"`

	// Reused lists steps that finished with OutcomeNoOp.
	Reused []string `json:"reused,omitempty"`

	// Skipped lists steps never attempted because an earlier step failed.
	Skipped []string `json:"skipped,omitempty"`

	// Warnings are non-fatal diagnostics, e.g. poll timeouts with their
	// remediation commands.
	Warnings []string `json:"warnings,omitempty"`

	// FailedStep names the step whose fatal failure aborted the run.
	FailedStep string `json:"failed_step,omitempty"`

	// Err is the fatal error for aborted runs.
	Err *DeployError `json:"error,omitempty"`

	// Manifest holds the captured outputs of every converged step.
	Manifest map[string]map[string]string `json:"manifest,omitempty"`

	// StartedAt is when the run entered StatusRunning.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run reached a terminal status.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall-clock time the run took.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// AllNoOp reports whether every executed step reused an existing resource.
// A completed rerun of an already-converged stack is all NoOp.
func (s *RunSummary) AllNoOp() bool {
	if len(s.Results) == 0 {
		return false
	}
	for _, r := range s.Results {
		if r.Outcome != OutcomeNoOp {
			return false
		}
	}
	return true
}
