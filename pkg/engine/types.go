package engine

import (
	"strings"
	"time"
	"unicode"
)

// ResourceReference identifies an existing resource discovered by a probe.
type ResourceReference struct {
	// ID is the provider's stable identifier for the resource.
	ID string `json:"id"`

	// Name is the human-readable resource name.
	Name string `json:"name"`

	// Kind is the provider resource kind, when the probe payload carries one.
	Kind string `json:"kind,omitempty"`

	// Location is the region or placement of the resource, when known.
	Location string `json:"location,omitempty"`

	// Attributes holds the remaining flattened fields of the probe payload
	// so reused resources can satisfy the step's output captures.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ProbeResult is the outcome of querying the provider for existing resources.
// Count always equals len(Candidates); a failed probe never produces a result.
type ProbeResult struct {
	// Count is the number of matching resources.
	Count int `json:"count"`

	// Candidates are the matching resources, in provider order.
	Candidates []ResourceReference `json:"candidates,omitempty"`
}

// ProbeSpec describes how to query the provider for resources matching a step.
type ProbeSpec struct {
	// Action is the provider list/query action, e.g. "network vnet list".
	Action string `json:"action"`

	// Args are the arguments passed to the probe action. Values may contain
	// ref:// references to earlier step outputs.
	Args map[string]string `json:"args,omitempty"`

	// IDField is the payload field holding each candidate's identifier.
	// Defaults to "id".
	IDField string `json:"id_field,omitempty"`

	// NameField is the payload field holding each candidate's name.
	// Defaults to "name".
	NameField string `json:"name_field,omitempty"`
}

// CaptureSpec declares one output field a step records into deployment state.
type CaptureSpec struct {
	// Name is the output name later steps reference as ref://<step>/<name>.
	Name string `json:"name"`

	// Path is the dotted path into the provider's structured output,
	// e.g. "id" or "properties.provisioningState". Defaults to Name.
	Path string `json:"path,omitempty"`
}

// CredentialSpec declares one credential a step needs before invoking its
// action. Resolution follows the precedence chain: explicit value,
// environment variable, vault secret, interactive prompt.
type CredentialSpec struct {
	// Name is the logical credential name, e.g. "clientSecret". It derives
	// the environment variable consulted (CLIENT_SECRET).
	Name string `json:"name"`

	// Arg is the action argument the resolved value is injected into.
	// Defaults to Name.
	Arg string `json:"arg,omitempty"`

	// Resource is the owning resource name used to derive the vault secret
	// name together with Role.
	Resource string `json:"resource,omitempty"`

	// Role is the credential's role for vault name derivation,
	// e.g. "client-secret".
	Role string `json:"role,omitempty"`

	// Value is an explicit inline value. When set, resolution stops here.
	Value string `json:"-"`
}

// VaultName returns the derived vault secret name for this credential,
// "{resource}-{role}". Empty when the spec carries no vault coordinates.
func (c CredentialSpec) VaultName() string {
	if c.Resource == "" || c.Role == "" {
		return ""
	}
	return SecretName(c.Resource, c.Role)
}

// ResolvedCredential is the outcome of resolving one CredentialSpec.
// The value is excluded from JSON so it never reaches logs or the journal.
type ResolvedCredential struct {
	// Name is the logical credential name.
	Name string `json:"name"`

	// Value is the resolved secret value.
	Value string `json:"-"`

	// Source identifies which link of the chain produced the value.
	Source CredentialSource `json:"source"`
}

// SecretSpec declares a secret a step publishes to the vault.
type SecretSpec struct {
	// Resource is the owning resource name; combined with Role it derives
	// the vault secret name "{resource}-{role}".
	Resource string `json:"resource"`

	// Role is the secret's role, e.g. "client-secret" or "jwt-key".
	Role string `json:"role"`

	// Mode controls reuse of an already-present secret.
	Mode SecretMode `json:"mode"`

	// Generator selects how fresh material is produced when needed.
	// Ignored when ValueFrom is set.
	Generator SecretGenerator `json:"generator,omitempty"`

	// Length is the token length in bytes for GeneratorToken. Defaults to 32.
	Length int `json:"length,omitempty"`

	// ValueFrom publishes an existing value instead of generating one.
	// It may be a literal or a ref:// reference to a captured output.
	ValueFrom string `json:"value_from,omitempty"`
}

// Name returns the derived vault secret name, "{resource}-{role}".
func (s SecretSpec) Name() string {
	return SecretName(s.Resource, s.Role)
}

// PollSpec describes how a step waits for asynchronous convergence after its
// action is accepted by the provider.
type PollSpec struct {
	// Action is the provider status action, e.g. "network vnet show".
	Action string `json:"action"`

	// Args are the status action arguments. Values may reference earlier
	// step outputs and this step's own captures.
	Args map[string]string `json:"args,omitempty"`

	// Attempts is the hard bound on status queries.
	Attempts int `json:"attempts"`

	// Interval is the fixed delay between status queries.
	Interval time.Duration `json:"interval"`

	// Predicate decides whether a status payload means "converged".
	// When nil the poller checks provisioningState == "Succeeded".
	Predicate Predicate `json:"-"`

	// Remediation is the command suggested to the operator when polling
	// times out, e.g. "provio probe --stack demo --step cert".
	Remediation string `json:"remediation,omitempty"`
}

// Step is one unit of the deployment sequence: probe for an existing
// resource, create it if absent, capture outputs, optionally publish a
// secret and poll for convergence.
type Step struct {
	// Name uniquely identifies the step within its stack.
	Name string `json:"name"`

	// Description is an optional human-readable summary.
	Description string `json:"description,omitempty"`

	// Resource is the target resource name, e.g. "vnet-demo".
	Resource string `json:"resource"`

	// Action is the provider action that creates the resource. Empty for
	// pure secret-publication steps.
	Action string `json:"action,omitempty"`

	// Args are the action arguments. Values may contain ref:// references
	// to outputs captured by strictly earlier steps.
	Args map[string]string `json:"args,omitempty"`

	// Probe describes how to look for an existing resource. Steps without
	// a probe (secret-only steps) skip the create/reuse decision.
	Probe *ProbeSpec `json:"probe,omitempty"`

	// Captures declares the output fields recorded into deployment state.
	Captures []CaptureSpec `json:"captures,omitempty"`

	// Credentials are resolved before the action runs and injected as args.
	Credentials []CredentialSpec `json:"credentials,omitempty"`

	// Secret, when set, is published after the action succeeds (or as the
	// whole step when Action is empty).
	Secret *SecretSpec `json:"secret,omitempty"`

	// Poll, when set, waits for asynchronous convergence after the action.
	Poll *PollSpec `json:"poll,omitempty"`

	// Retries bounds re-invocations after retryable failures. Defaults to 3.
	Retries int `json:"retries,omitempty"`

	// RetryDelay is the linear backoff base between attempts. Defaults to 2s.
	RetryDelay time.Duration `json:"retry_delay,omitempty"`

	// Timeout bounds a single provider invocation. Zero means the
	// provider's default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Confirm requires operator confirmation before the action runs.
	Confirm bool `json:"confirm,omitempty"`

	// Tags are free-form labels policies can match on, e.g. "production".
	Tags []string `json:"tags,omitempty"`
}

// StepResult records the terminal result of executing one step.
type StepResult struct {
	// StepName is the name of the executed step.
	StepName string `json:"step_name"`

	// Resource is the step's target resource name.
	Resource string `json:"resource"`

	// Outcome is the terminal step outcome.
	Outcome StepOutcome `json:"outcome"`

	// Decision is the selector verdict that drove execution, when probed.
	Decision Decision `json:"decision,omitempty"`

	// Ref identifies the created or reused resource, when known.
	Ref *ResourceReference `json:"ref,omitempty"`

	// Outputs are the captured output fields. Secret values are never
	// stored here; secret steps capture only names and public material.
	Outputs map[string]string `json:"outputs,omitempty"`

	// CredentialSources maps each resolved credential name to the chain
	// link that satisfied it. Values are never recorded.
	CredentialSources map[string]CredentialSource `json:"credential_sources,omitempty"`

	// Attempts counts provider invocations including retries.
	Attempts int `json:"attempts"`

	// Converged is false when a poll timed out before confirmation.
	Converged bool `json:"converged"`

	// Err is the fatal error for failed steps.
	Err *DeployError `json:"error,omitempty"`

	// Warning carries a non-fatal diagnostic, e.g. a poll timeout with its
	// remediation command.
	Warning *DeployError `json:"warning,omitempty"`

	// StartedAt is when the step began executing.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the step reached its terminal outcome.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall-clock time the step took.
func (r *StepResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// SecretName derives the vault secret name for a resource credential,
// "{resource}-{role}".
func SecretName(resource, role string) string {
	return resource + "-" + role
}

// EnvName converts a logical credential name to the environment variable
// consulted during resolution: camelCase words are split on case boundaries,
// separators become underscores, and the result is uppercased.
// "clientSecret" becomes "CLIENT_SECRET", "db-admin-password" becomes
// "DB_ADMIN_PASSWORD".
func EnvName(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, r := range runes {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' && !unicode.IsUpper(runes[i-1]) {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
