package stack

import (
	"time"

	"github.com/provio/provio/pkg/engine"
)

// Manifest is one parsed stack manifest.
type Manifest struct {
	// Stack is the stack definition.
	Stack StackConfig `json:"stack"`

	// SourceFiles are the CUE files the manifest was loaded from.
	SourceFiles []string `json:"source_files,omitempty"`

	// ParsedAt is when parsing happened.
	ParsedAt time.Time `json:"parsed_at"`
}

// StackConfig is the root of a stack manifest.
type StackConfig struct {
	// Name identifies the stack, e.g. "demo".
	Name string `json:"name" validate:"required"`

	// Description is an optional human-readable summary.
	Description string `json:"description,omitempty"`

	// Provider configures the provider CLI the stack deploys through.
	Provider ProviderConfig `json:"provider" validate:"required"`

	// Steps is the ordered deployment sequence.
	Steps []StepConfig `json:"steps" validate:"required,min=1,dive"`
}

// ProviderConfig configures the provider CLI boundary.
type ProviderConfig struct {
	// Binary is the provider executable, e.g. "az".
	Binary string `json:"binary" validate:"required"`

	// BaseArgs are prepended to every invocation, e.g. ["--output", "json"].
	BaseArgs []string `json:"base_args,omitempty"`

	// TimeoutSeconds bounds one invocation. Zero uses the provider default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
}

// Timeout returns the invocation bound as a duration, zero when unset.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// StepConfig is one step of the manifest.
type StepConfig struct {
	// Name uniquely identifies the step within the stack.
	Name string `json:"name" validate:"required"`

	// Description is an optional human-readable summary.
	Description string `json:"description,omitempty"`

	// Resource is the target resource name, e.g. "vnet-demo".
	Resource string `json:"resource" validate:"required"`

	// Action is the provider action that creates the resource. Empty for
	// pure secret-publication steps.
	Action string `json:"action,omitempty"`

	// Args are the action arguments. Values may contain ref:// references.
	Args map[string]string `json:"args,omitempty"`

	// Probe describes how to look for an existing resource.
	Probe *ProbeConfig `json:"probe,omitempty"`

	// Captures declares the outputs recorded into deployment state.
	Captures []CaptureConfig `json:"captures,omitempty" validate:"omitempty,dive"`

	// Credentials are resolved before the action runs.
	Credentials []CredentialConfig `json:"credentials,omitempty" validate:"omitempty,dive"`

	// Secret, when set, is published after the action succeeds.
	Secret *SecretConfig `json:"secret,omitempty"`

	// Poll, when set, waits for asynchronous convergence.
	Poll *PollConfig `json:"poll,omitempty"`

	// Retries bounds re-invocations after retryable failures.
	Retries int `json:"retries,omitempty" validate:"omitempty,min=0,max=10"`

	// RetryDelaySeconds is the linear backoff base between attempts.
	RetryDelaySeconds int `json:"retry_delay_seconds,omitempty" validate:"omitempty,min=1"`

	// TimeoutSeconds bounds a single provider invocation for this step.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"omitempty,min=1"`

	// Confirm requires operator confirmation before the action runs.
	Confirm bool `json:"confirm,omitempty"`

	// Tags are free-form labels policies can match on.
	Tags []string `json:"tags,omitempty"`
}

// ProbeConfig describes a step's existence query.
type ProbeConfig struct {
	// Action is the provider list/query action.
	Action string `json:"action" validate:"required"`

	// Args are the probe arguments.
	Args map[string]string `json:"args,omitempty"`

	// IDField is the payload field holding each candidate's identifier.
	IDField string `json:"id_field,omitempty"`

	// NameField is the payload field holding each candidate's name.
	NameField string `json:"name_field,omitempty"`
}

// CaptureConfig declares one captured output.
type CaptureConfig struct {
	// Name is the output name later steps reference.
	Name string `json:"name" validate:"required"`

	// Path is the dotted path into the provider output. Defaults to Name.
	Path string `json:"path,omitempty"`
}

// CredentialConfig declares one credential the step needs.
type CredentialConfig struct {
	// Name is the logical credential name, e.g. "clientSecret".
	Name string `json:"name" validate:"required"`

	// Arg is the action argument the value is injected into.
	Arg string `json:"arg,omitempty"`

	// Resource is the owning resource for vault name derivation.
	Resource string `json:"resource,omitempty"`

	// Role is the credential role for vault name derivation.
	Role string `json:"role,omitempty"`

	// Value is an explicit inline value; resolution stops here when set.
	Value string `json:"value,omitempty"`
}

// SecretConfig declares a secret the step publishes.
type SecretConfig struct {
	// Resource is the owning resource name.
	Resource string `json:"resource" validate:"required"`

	// Role is the secret role, e.g. "client-secret".
	Role string `json:"role" validate:"required"`

	// Mode controls reuse of an already-present secret.
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=reuse regenerate"`

	// Generator selects fresh material production.
	Generator string `json:"generator,omitempty" validate:"omitempty,oneof=token ssh-keypair"`

	// Length is the token byte length for the token generator.
	Length int `json:"length,omitempty" validate:"omitempty,min=8,max=256"`

	// ValueFrom publishes an existing value instead of generating one.
	ValueFrom string `json:"value_from,omitempty"`
}

// PollConfig describes a step's convergence poll.
type PollConfig struct {
	// Action is the provider status action.
	Action string `json:"action" validate:"required"`

	// Args are the status action arguments.
	Args map[string]string `json:"args,omitempty"`

	// Attempts is the hard bound on status queries.
	Attempts int `json:"attempts" validate:"required,min=1"`

	// IntervalSeconds is the fixed delay between status queries.
	IntervalSeconds int `json:"interval_seconds" validate:"required,min=1"`

	// Predicate is a Starlark expression over the status payload, with
	// "status" in scope. Empty uses the provider's provisioningState check.
	Predicate string `json:"predicate,omitempty"`

	// Remediation is the command suggested when polling times out.
	Remediation string `json:"remediation,omitempty"`
}

// toStep converts one manifest step into an engine step. The poll predicate
// is compiled by the caller.
func (s *StepConfig) toStep(predicate engine.Predicate) engine.Step {
	step := engine.Step{
		Name:        s.Name,
		Description: s.Description,
		Resource:    s.Resource,
		Action:      s.Action,
		Args:        s.Args,
		Retries:     s.Retries,
		RetryDelay:  time.Duration(s.RetryDelaySeconds) * time.Second,
		Timeout:     time.Duration(s.TimeoutSeconds) * time.Second,
		Confirm:     s.Confirm,
		Tags:        s.Tags,
	}

	if s.Probe != nil {
		step.Probe = &engine.ProbeSpec{
			Action:    s.Probe.Action,
			Args:      s.Probe.Args,
			IDField:   s.Probe.IDField,
			NameField: s.Probe.NameField,
		}
	}
	for _, c := range s.Captures {
		step.Captures = append(step.Captures, engine.CaptureSpec{Name: c.Name, Path: c.Path})
	}
	for _, c := range s.Credentials {
		step.Credentials = append(step.Credentials, engine.CredentialSpec{
			Name:     c.Name,
			Arg:      c.Arg,
			Resource: c.Resource,
			Role:     c.Role,
			Value:    c.Value,
		})
	}
	if s.Secret != nil {
		mode := engine.SecretMode(s.Secret.Mode)
		if mode == "" {
			mode = engine.SecretModeReuse
		}
		step.Secret = &engine.SecretSpec{
			Resource:  s.Secret.Resource,
			Role:      s.Secret.Role,
			Mode:      mode,
			Generator: engine.SecretGenerator(s.Secret.Generator),
			Length:    s.Secret.Length,
			ValueFrom: s.Secret.ValueFrom,
		}
	}
	if s.Poll != nil {
		step.Poll = &engine.PollSpec{
			Action:      s.Poll.Action,
			Args:        s.Poll.Args,
			Attempts:    s.Poll.Attempts,
			Interval:    time.Duration(s.Poll.IntervalSeconds) * time.Second,
			Predicate:   predicate,
			Remediation: s.Poll.Remediation,
		}
	}
	return step
}
