package engine

import (
	"fmt"
)

// DeploymentStatus represents the overall status of a deployment run.
type DeploymentStatus string

const (
	// StatusPending indicates the run has been validated but not yet started.
	StatusPending DeploymentStatus = "pending"

	// StatusRunning indicates the run is currently executing steps.
	StatusRunning DeploymentStatus = "running"

	// StatusCompleted indicates every step finished with Success or NoOp.
	StatusCompleted DeploymentStatus = "completed"

	// StatusAborted indicates a fatal failure halted the run before the
	// final step; remaining steps were skipped.
	StatusAborted DeploymentStatus = "aborted"
)

// IsTerminal returns true if the deployment status represents a final state.
func (s DeploymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// IsActive returns true if the deployment is pending or running.
func (s DeploymentStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// Validate checks if the deployment status is valid.
func (s DeploymentStatus) Validate() error {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid deployment status: %s", s)
	}
}

// StepOutcome represents the terminal result of executing a single step.
type StepOutcome string

const (
	// OutcomeSuccess indicates the step created or mutated its resource.
	OutcomeSuccess StepOutcome = "success"

	// OutcomeNoOp indicates the resource already existed and was reused
	// without any provider mutation.
	OutcomeNoOp StepOutcome = "noop"

	// OutcomeRetryableFailure indicates a classified transient failure.
	// It is only observed between attempts; exhausting the retry bound
	// promotes it to OutcomeFatal.
	OutcomeRetryableFailure StepOutcome = "retryable_failure"

	// OutcomeFatal indicates a non-recoverable failure that halts the
	// deployment sequence.
	OutcomeFatal StepOutcome = "fatal_failure"
)

// Succeeded returns true if the step converged (created or reused).
func (o StepOutcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeNoOp
}

// IsFailure returns true if the outcome represents a failure.
func (o StepOutcome) IsFailure() bool {
	return o == OutcomeRetryableFailure || o == OutcomeFatal
}

// Validate checks if the step outcome is valid.
func (o StepOutcome) Validate() error {
	switch o {
	case OutcomeSuccess, OutcomeNoOp, OutcomeRetryableFailure, OutcomeFatal:
		return nil
	default:
		return fmt.Errorf("invalid step outcome: %s", o)
	}
}

// Decision represents the selector's verdict for a probed resource.
type Decision string

const (
	// DecisionCreate indicates no matching resource exists and the step
	// should provision a new one.
	DecisionCreate Decision = "create"

	// DecisionReuse indicates an existing resource was selected and the
	// step should adopt it without mutation.
	DecisionReuse Decision = "reuse"
)

// Validate checks if the decision is valid.
func (d Decision) Validate() error {
	switch d {
	case DecisionCreate, DecisionReuse:
		return nil
	default:
		return fmt.Errorf("invalid decision: %s", d)
	}
}

// CredentialSource identifies which link of the resolution chain produced a
// credential value.
type CredentialSource string

const (
	// SourceExplicit means the value was supplied inline on the step.
	SourceExplicit CredentialSource = "explicit"

	// SourceEnv means the value came from an environment variable.
	SourceEnv CredentialSource = "env"

	// SourceVault means the value was read from the secret vault.
	SourceVault CredentialSource = "vault"

	// SourcePrompt means the operator typed the value at a masked prompt.
	SourcePrompt CredentialSource = "prompt"
)

// Validate checks if the credential source is valid.
func (s CredentialSource) Validate() error {
	switch s {
	case SourceExplicit, SourceEnv, SourceVault, SourcePrompt:
		return nil
	default:
		return fmt.Errorf("invalid credential source: %s", s)
	}
}

// SecretMode controls how the publisher treats an already-present secret.
type SecretMode string

const (
	// SecretModeReuse returns the existing secret when present and only
	// generates a fresh value when the vault has none.
	SecretModeReuse SecretMode = "reuse"

	// SecretModeRegenerate always generates and publishes a fresh value,
	// overwriting whatever the vault held.
	SecretModeRegenerate SecretMode = "regenerate"
)

// Validate checks if the secret mode is valid.
func (m SecretMode) Validate() error {
	switch m {
	case SecretModeReuse, SecretModeRegenerate:
		return nil
	default:
		return fmt.Errorf("invalid secret mode: %s", m)
	}
}

// SecretGenerator identifies how fresh secret material is produced.
type SecretGenerator string

const (
	// GeneratorToken produces a cryptographically random URL-safe token.
	GeneratorToken SecretGenerator = "token"

	// GeneratorSSHKeypair produces an ed25519 keypair; the private key is
	// published and the public key is captured as a step output.
	GeneratorSSHKeypair SecretGenerator = "ssh-keypair"
)

// Validate checks if the secret generator is valid.
func (g SecretGenerator) Validate() error {
	switch g {
	case GeneratorToken, GeneratorSSHKeypair:
		return nil
	default:
		return fmt.Errorf("invalid secret generator: %s", g)
	}
}
