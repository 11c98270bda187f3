package policy

import (
	"time"

	"github.com/provio/provio/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block a run.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that veto the run.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that veto the run and demand
	// immediate attention.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity vetoes the run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a named Rego deployment gate.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The package must export a
	// `deny` set; each member becomes a violation.
	Rego string `json:"rego"`

	// Severity is the default severity for violations. Individual deny
	// results may override it.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single policy finding against a step sequence.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Step is the offending step name, when step-scoped.
	Step string `json:"step,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against a
// step sequence.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations are the blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// Evaluated lists the names of the policies that ran.
	Evaluated []string `json:"evaluated"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document handed to Rego as `input`.
type Input struct {
	// Stack is the stack name being deployed.
	Stack string `json:"stack"`

	// Steps are the steps of the sequence, in declaration order.
	Steps []StepInput `json:"steps"`

	// Context carries evaluation context.
	Context EvalContext `json:"context"`
}

// StepInput is the policy-facing view of a step. Durations are flattened
// to seconds so Rego rules stay arithmetic.
type StepInput struct {
	Name        string            `json:"name"`
	Resource    string            `json:"resource"`
	Action      string            `json:"action,omitempty"`
	Args        map[string]string `json:"args,omitempty"`
	Retries     int               `json:"retries"`
	HasProbe    bool              `json:"has_probe"`
	Confirm     bool              `json:"confirm"`
	Tags        []string          `json:"tags,omitempty"`
	Credentials []CredentialInput `json:"credentials,omitempty"`
	Secret      *SecretInput      `json:"secret,omitempty"`
	Poll        *PollInput        `json:"poll,omitempty"`
}

// CredentialInput is the policy-facing view of a credential requirement.
// Values never reach policy evaluation.
type CredentialInput struct {
	Name     string `json:"name"`
	HasValue bool   `json:"has_value"`
}

// SecretInput is the policy-facing view of a secret publication.
type SecretInput struct {
	Name      string `json:"name"`
	Resource  string `json:"resource"`
	Role      string `json:"role"`
	Mode      string `json:"mode"`
	Generator string `json:"generator,omitempty"`
}

// PollInput is the policy-facing view of a convergence poll.
type PollInput struct {
	Action          string `json:"action"`
	Attempts        int    `json:"attempts"`
	IntervalSeconds int    `json:"interval_seconds"`
	Remediation     string `json:"remediation,omitempty"`
}

// EvalContext provides context information for policy evaluation.
type EvalContext struct {
	// Environment is the deployment environment, e.g. "production".
	Environment string `json:"environment,omitempty"`

	// Operation is the operation being gated, always "deploy" today.
	Operation string `json:"operation"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// NewInput builds the Rego input document from a validated step sequence.
func NewInput(stack string, steps []engine.Step, environment string) *Input {
	in := &Input{
		Stack: stack,
		Context: EvalContext{
			Environment: environment,
			Operation:   "deploy",
			Timestamp:   time.Now(),
		},
	}
	for i := range steps {
		in.Steps = append(in.Steps, newStepInput(&steps[i]))
	}
	return in
}

func newStepInput(step *engine.Step) StepInput {
	si := StepInput{
		Name:     step.Name,
		Resource: step.Resource,
		Action:   step.Action,
		Args:     step.Args,
		Retries:  step.Retries,
		HasProbe: step.Probe != nil,
		Confirm:  step.Confirm,
		Tags:     step.Tags,
	}
	for _, cred := range step.Credentials {
		si.Credentials = append(si.Credentials, CredentialInput{
			Name:     cred.Name,
			HasValue: cred.Value != "",
		})
	}
	if step.Secret != nil {
		si.Secret = &SecretInput{
			Name:      step.Secret.Name(),
			Resource:  step.Secret.Resource,
			Role:      step.Secret.Role,
			Mode:      string(step.Secret.Mode),
			Generator: string(step.Secret.Generator),
		}
	}
	if step.Poll != nil {
		si.Poll = &PollInput{
			Action:          step.Poll.Action,
			Attempts:        step.Poll.Attempts,
			IntervalSeconds: int(step.Poll.Interval.Seconds()),
			Remediation:     step.Poll.Remediation,
		}
	}
	return si
}
