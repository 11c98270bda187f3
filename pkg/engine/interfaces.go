package engine

import (
	"context"
	"time"
)

// CredentialResolver resolves step credentials through the precedence chain:
// explicit value, environment variable, vault secret, interactive prompt.
type CredentialResolver interface {
	// Resolve resolves a single credential. It returns a
	// MissingCredentialError when every source misses.
	Resolve(ctx context.Context, spec CredentialSpec) (ResolvedCredential, error)
}

// SecretRequest asks the publisher for a secret under its derived name.
type SecretRequest struct {
	// Name is the vault secret name, typically "{resource}-{role}".
	Name string `json:"name"`

	// Mode controls reuse of an already-present value.
	Mode SecretMode `json:"mode"`

	// Generator selects fresh material production. Ignored when Value set.
	Generator SecretGenerator `json:"generator,omitempty"`

	// Length is the token byte length for GeneratorToken.
	Length int `json:"length,omitempty"`

	// Value publishes this exact value instead of generating one.
	Value string `json:"-"`
}

// SecretReceipt reports what the publisher did. The secret value itself is
// excluded from JSON and must never be copied into step outputs.
type SecretReceipt struct {
	// Name is the vault secret name.
	Name string `json:"name"`

	// Value is the published (or reused) secret value.
	Value string `json:"-"`

	// Reused is true when an existing value satisfied a reuse-mode request.
	Reused bool `json:"reused"`

	// PublicMaterial is non-secret companion material, e.g. the public key
	// of a generated keypair. Safe to capture as a step output.
	PublicMaterial string `json:"public_material,omitempty"`

	// Version is the vault version of the stored secret, when reported.
	Version int `json:"version,omitempty"`
}

// SecretPublisher publishes secrets to the vault with write-then-read-back
// verification.
type SecretPublisher interface {
	// Publish stores (or reuses) the secret and verifies the written value
	// reads back byte-identical. A mismatch returns a
	// SecretVerificationError and is never retried.
	Publish(ctx context.Context, req SecretRequest) (*SecretReceipt, error)
}

// Prompter abstracts operator interaction so the engine can run headless.
type Prompter interface {
	// Interactive reports whether an operator is attached.
	Interactive() bool

	// Unattended reports whether the operator explicitly requested a run
	// without prompts, as opposed to merely lacking a terminal.
	Unattended() bool

	// Confirm asks a yes/no question and returns the answer.
	Confirm(prompt string, def bool) (bool, error)

	// Select asks the operator to pick one of the presented options and
	// returns its index.
	Select(prompt string, options []string) (int, error)

	// Secret reads a value with terminal echo disabled.
	Secret(prompt string) (string, error)
}

// Predicate decides whether a status payload means a resource has converged.
type Predicate interface {
	// Eval evaluates the predicate against a status payload.
	Eval(ctx context.Context, status map[string]interface{}) (bool, error)
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(ctx context.Context, status map[string]interface{}) (bool, error)

// Eval implements Predicate.
func (f PredicateFunc) Eval(ctx context.Context, status map[string]interface{}) (bool, error) {
	return f(ctx, status)
}

// Event is a structured notification emitted during a run.
type Event struct {
	// Type is the event type, one of the EventType constants.
	Type string `json:"type"`

	// Level is the severity: "info", "warning" or "error".
	Level string `json:"level"`

	// RunID is the owning run.
	RunID string `json:"run_id,omitempty"`

	// Step is the step name, when step-scoped.
	Step string `json:"step,omitempty"`

	// Resource is the resource name, when resource-scoped.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Data carries additional event-specific fields. Never secret values.
	Data map[string]interface{} `json:"data,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Event type constants.
const (
	EventRunStarted      = "run.started"
	EventRunCompleted    = "run.completed"
	EventRunAborted      = "run.aborted"
	EventStepStarted     = "step.started"
	EventStepCompleted   = "step.completed"
	EventStepReused      = "step.reused"
	EventStepFailed      = "step.failed"
	EventStepSkipped     = "step.skipped"
	EventStepRetried     = "step.retried"
	EventPollTimedOut    = "poll.timed_out"
	EventSecretPublished = "secret.published"
	EventPolicyViolation = "policy.violation"
)

// Event level constants.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Recorder persists run progress for later inspection. A nil Recorder on the
// sequencer disables journaling without changing execution.
type Recorder interface {
	// RunStarted records a new run entering StatusRunning.
	RunStarted(ctx context.Context, runID, stackName string, steps []Step) error

	// StepFinished records a step's terminal result.
	StepFinished(ctx context.Context, runID string, result *StepResult) error

	// RunFinished records the run's terminal status and summary.
	RunFinished(ctx context.Context, runID string, summary *RunSummary) error

	// Event records a structured event.
	Event(ctx context.Context, event Event) error
}
