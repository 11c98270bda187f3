package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provio/provio/pkg/telemetry"
)

// Default retry settings applied by the stack builder when a step leaves
// them unset.
const (
	DefaultRetries    = 3
	DefaultRetryDelay = 2 * time.Second
)

// Executor drives a single step to a terminal result: probe for an existing
// resource, decide between create and reuse, resolve credentials, invoke the
// action with retries, capture outputs, publish the step's secret, and wait
// for convergence.
type Executor struct {
	provider Provider
	prober   *Prober
	selector *Selector
	resolver CredentialResolver
	secrets  SecretPublisher
	prompter Prompter
	poller   *Poller
	stack    string
	logger   *telemetry.Logger
}

// ExecutorConfig wires an executor's collaborators.
type ExecutorConfig struct {
	// Provider invokes actions. Required.
	Provider Provider

	// Credentials resolves step credentials. Required only for steps that
	// declare any.
	Credentials CredentialResolver

	// Secrets publishes step secrets. Required only for steps that declare
	// one.
	Secrets SecretPublisher

	// Prompter handles operator interaction. Nil means headless.
	Prompter Prompter

	// Stack names the stack for metrics labels.
	Stack string

	// Logger is the base logger. Nil falls back to the default logger.
	Logger *telemetry.Logger
}

// NewExecutor creates an executor from its configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Executor{
		provider: cfg.Provider,
		prober:   NewProber(cfg.Provider, logger),
		selector: NewSelector(cfg.Prompter, logger),
		resolver: cfg.Credentials,
		secrets:  cfg.Secrets,
		prompter: cfg.Prompter,
		poller:   NewPoller(cfg.Provider, logger),
		stack:    cfg.Stack,
		logger:   logger.WithField("component", "executor"),
	}
}

// ExecuteStep runs one step and returns its terminal result. Failures are
// recorded on the result rather than returned; the sequencer decides what a
// failure means for the rest of the run.
func (e *Executor) ExecuteStep(ctx context.Context, runID string, step *Step, state *DeploymentState) *StepResult {
	result := &StepResult{
		StepName:          step.Name,
		Resource:          step.Resource,
		Outcome:           OutcomeFatal,
		Decision:          DecisionCreate,
		Converged:         true,
		Outputs:           make(map[string]string),
		CredentialSources: make(map[string]CredentialSource),
		StartedAt:         time.Now(),
	}

	stepCtx := telemetry.WithStepContext(ctx, runID, step.Name, step.Resource, step.Action)
	defer func() {
		result.FinishedAt = time.Now()
		var err error
		if result.Err != nil {
			err = result.Err
		}
		telemetry.EndStepContext(stepCtx, runID, step.Name, step.Resource,
			string(result.Outcome), string(result.Decision), err)
	}()

	log := e.logger.WithRunID(runID).WithStep(step.Name).WithResource(step.Resource)

	if err := e.run(stepCtx, log, runID, step, state, result); err != nil {
		e.fail(result, step, err)
	}
	return result
}

// run is the step lifecycle. It mutates result as stages complete and
// returns the first error; outcomes for the happy paths are set by the
// stages themselves.
func (e *Executor) run(ctx context.Context, log *telemetry.Logger, runID string, step *Step, state *DeploymentState, result *StepResult) error {
	// Steps without an action exist only to publish a secret. They skip the
	// provider entirely; the vault reuse check is their probe.
	if step.Action == "" {
		return e.executeSecretOnly(ctx, log, runID, step, state, result)
	}

	if step.Probe != nil {
		probe, err := e.probe(ctx, step, state)
		if err != nil {
			return err
		}
		sel, err := e.selector.Select(step, probe)
		if err != nil {
			return err
		}
		result.Decision = sel.Decision
		if sel.Decision == DecisionReuse {
			return e.adoptExisting(ctx, log, runID, step, sel.Ref, state, result)
		}
	}

	if step.Confirm {
		if err := e.confirm(log, step); err != nil {
			return err
		}
	}

	args, err := ResolveArgs(step.Args, e.lookup(state, nil))
	if err != nil {
		return err
	}
	if err := e.resolveCredentials(ctx, log, step, args, result); err != nil {
		return err
	}

	inv, err := e.invokeWithRetry(ctx, log, runID, step, args, result)
	if err != nil {
		return err
	}

	if err := e.captureOutputs(step, inv, result); err != nil {
		return err
	}

	if step.Secret != nil {
		if _, err := e.ensureSecret(ctx, log, runID, step, state, result); err != nil {
			return err
		}
	}

	if step.Poll != nil {
		if err := e.waitForConvergence(ctx, log, runID, step, state, result); err != nil {
			return err
		}
	}

	result.Outcome = OutcomeSuccess
	log.WithField("attempts", result.Attempts).Info("Step completed")
	return nil
}

// probe resolves the probe arguments and queries the provider.
func (e *Executor) probe(ctx context.Context, step *Step, state *DeploymentState) (*ProbeResult, error) {
	args, err := ResolveArgs(step.Probe.Args, e.lookup(state, nil))
	if err != nil {
		return nil, err
	}
	probe, err := e.prober.Probe(ctx, step.Probe, step.Resource, args)

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		switch {
		case err != nil:
			tel.Metrics.RecordProbe("failed")
		case probe.Count == 0:
			tel.Metrics.RecordProbe("absent")
		case probe.Count == 1:
			tel.Metrics.RecordProbe("found")
		default:
			tel.Metrics.RecordProbe("ambiguous")
		}
	}
	return probe, err
}

// adoptExisting finishes a step whose resource already exists: the existing
// resource answers the step's captures and no action runs. The step's secret
// is still ensured, so a reused resource never leaves its credential behind.
func (e *Executor) adoptExisting(ctx context.Context, log *telemetry.Logger, runID string, step *Step, ref *ResourceReference, state *DeploymentState, result *StepResult) error {
	result.Ref = ref

	for _, cap := range step.Captures {
		path := cap.Path
		if path == "" {
			path = cap.Name
		}
		v, ok := ref.Attributes[path]
		if !ok {
			switch path {
			case "id":
				v, ok = ref.ID, ref.ID != ""
			case "name":
				v, ok = ref.Name, ref.Name != ""
			}
		}
		if !ok {
			return NewPermanentError(
				fmt.Sprintf("existing resource has no field %q for capture %q", path, cap.Name), nil).
				WithCode(ErrCodeValidation).
				WithStep(step.Name).
				WithResource(step.Resource)
		}
		result.Outputs[cap.Name] = v
	}

	reusedSecret := true
	if step.Secret != nil {
		receipt, err := e.ensureSecret(ctx, log, runID, step, state, result)
		if err != nil {
			return err
		}
		reusedSecret = receipt.Reused
	}

	// Regenerating the secret is real work even when the resource itself
	// was adopted untouched.
	if reusedSecret {
		result.Outcome = OutcomeNoOp
	} else {
		result.Outcome = OutcomeSuccess
	}

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		_ = tel.Events.PublishStepReused(runID, step.Name, step.Resource, ref.ID)
	}
	log.WithField("resource_id", ref.ID).Info("Adopted existing resource")
	return nil
}

// confirm asks the operator before a guarded action runs. Runs that opted
// out of prompting (--no-input, or no prompter wired at all) proceed with a
// warning. A run that merely lost its terminal fails the step: proceeding
// silently would strip the guard from a guarded action.
func (e *Executor) confirm(log *telemetry.Logger, step *Step) error {
	if e.prompter == nil || e.prompter.Unattended() {
		log.Warn("Confirmation required but run is unattended, proceeding")
		return nil
	}
	if !e.prompter.Interactive() {
		return NewPermanentError("confirmation required but no terminal attached; re-run with --no-input to proceed unattended", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.Name)
	}
	ok, err := e.prompter.Confirm(fmt.Sprintf("Create %s (%s)?", step.Resource, step.Action), true)
	if err != nil {
		return NewPermanentError("confirmation prompt failed", err).
			WithCode(ErrCodeValidation).
			WithStep(step.Name)
	}
	if !ok {
		return NewPermanentError("operator declined confirmation", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.Name)
	}
	return nil
}

// resolveCredentials runs the resolution chain for each declared credential
// and injects the values into the action arguments. Only the source of each
// credential is recorded; values never touch the result.
func (e *Executor) resolveCredentials(ctx context.Context, log *telemetry.Logger, step *Step, args map[string]string, result *StepResult) error {
	if len(step.Credentials) == 0 {
		return nil
	}
	if e.resolver == nil {
		return NewPermanentError("step declares credentials but no resolver is configured", nil).
			WithCode(ErrCodeMissingCredential).
			WithStep(step.Name)
	}

	for _, spec := range step.Credentials {
		cred, err := e.resolver.Resolve(ctx, spec)
		if err != nil {
			return err
		}
		arg := spec.Arg
		if arg == "" {
			arg = spec.Name
		}
		args[arg] = cred.Value
		result.CredentialSources[spec.Name] = cred.Source

		if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
			tel.Metrics.RecordCredentialResolution(string(cred.Source))
		}
		log.WithFields(map[string]interface{}{
			"credential": spec.Name,
			"source":     string(cred.Source),
		}).Debug("Credential resolved")
	}
	return nil
}

// invokeWithRetry runs the action, retrying retryable failures with linear
// backoff: the delay before attempt n+1 is n times the step's retry delay.
func (e *Executor) invokeWithRetry(ctx context.Context, log *telemetry.Logger, runID string, step *Step, args map[string]string, result *StepResult) (*Invocation, error) {
	attempts := step.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	delayBase := step.RetryDelay
	if delayBase <= 0 {
		delayBase = DefaultRetryDelay
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt

		invCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			invCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		var inv *Invocation
		err := telemetry.RecordProviderOperation(ctx, e.provider.Name(), step.Action, func() error {
			var ierr error
			inv, ierr = e.provider.Invoke(invCtx, step.Action, args)
			return ierr
		})
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return inv, nil
		}
		last = err

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		delay := time.Duration(attempt) * delayBase
		log.WithError(err).WithFields(map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": attempts,
			"delay":        delay.String(),
		}).Warn("Retryable failure, backing off")

		if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
			tel.Metrics.RecordStepRetry(e.stack)
			_ = tel.Events.PublishStepRetried(runID, step.Name, attempt+1, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, NewPermanentError("deployment cancelled", ctx.Err()).WithStep(step.Name)
		}
	}
	return nil, last
}

// captureOutputs extracts the declared captures from the action's payload
// and builds the created resource's reference.
func (e *Executor) captureOutputs(step *Step, inv *Invocation, result *StepResult) error {
	if inv == nil {
		if len(step.Captures) == 0 {
			return nil
		}
		return NewPermanentError("action produced no output to capture", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.Name)
	}

	payload, err := inv.OutputObject()
	if err != nil {
		return NewPermanentError("action output is not a JSON object", err).
			WithCode(ErrCodeValidation).
			WithStep(step.Name)
	}

	for _, cap := range step.Captures {
		path := cap.Path
		if path == "" {
			path = cap.Name
		}
		v, ok := extractString(payload, path)
		if !ok {
			return NewPermanentError(
				fmt.Sprintf("action output has no field %q for capture %q", path, cap.Name), nil).
				WithCode(ErrCodeValidation).
				WithStep(step.Name)
		}
		result.Outputs[cap.Name] = v
	}

	if id, ok := extractString(payload, "id"); ok && id != "" {
		ref := &ResourceReference{ID: id}
		if v, ok := extractString(payload, "name"); ok {
			ref.Name = v
		}
		if v, ok := extractString(payload, "type"); ok {
			ref.Kind = v
		}
		if v, ok := extractString(payload, "location"); ok {
			ref.Location = v
		}
		result.Ref = ref
	}
	return nil
}

// executeSecretOnly runs a step whose whole job is publishing a secret.
func (e *Executor) executeSecretOnly(ctx context.Context, log *telemetry.Logger, runID string, step *Step, state *DeploymentState, result *StepResult) error {
	result.Decision = ""

	receipt, err := e.ensureSecret(ctx, log, runID, step, state, result)
	if err != nil {
		return err
	}

	// Declared captures must be satisfied by the publication outputs.
	for _, cap := range step.Captures {
		if _, ok := result.Outputs[cap.Name]; !ok {
			return NewPermanentError(
				fmt.Sprintf("secret publication provides no output %q", cap.Name), nil).
				WithCode(ErrCodeValidation).
				WithStep(step.Name)
		}
	}

	if receipt.Reused {
		result.Outcome = OutcomeNoOp
	} else {
		result.Outcome = OutcomeSuccess
	}
	return nil
}

// ensureSecret publishes (or reuses) the step's secret and records the
// non-secret outputs: the vault name and, for keypairs, the public half.
// The value itself stays inside the publisher and the vault.
func (e *Executor) ensureSecret(ctx context.Context, log *telemetry.Logger, runID string, step *Step, state *DeploymentState, result *StepResult) (*SecretReceipt, error) {
	spec := step.Secret
	if e.secrets == nil {
		return nil, NewPermanentError("step declares a secret but no publisher is configured", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.Name)
	}

	req := SecretRequest{
		Name:      spec.Name(),
		Mode:      spec.Mode,
		Generator: spec.Generator,
		Length:    spec.Length,
	}
	if spec.ValueFrom != "" {
		v, err := ResolveValue(spec.ValueFrom, e.lookup(state, result))
		if err != nil {
			return nil, err
		}
		req.Value = v
	}

	receipt, err := e.secrets.Publish(ctx, req)
	if err != nil {
		return nil, err
	}

	result.Outputs["secretName"] = receipt.Name
	if receipt.PublicMaterial != "" {
		result.Outputs["publicKey"] = receipt.PublicMaterial
	}

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordSecretPublished(string(spec.Mode), receipt.Reused)
		_ = tel.Events.PublishSecretPublished(runID, receipt.Name, string(spec.Mode), receipt.Reused, req.Length)
	}
	log.WithFields(map[string]interface{}{
		"secret": receipt.Name,
		"mode":   string(spec.Mode),
		"reused": receipt.Reused,
	}).Info("Secret ensured")
	return receipt, nil
}

// waitForConvergence polls the step's status action. A poll timeout is a
// warning, not a failure: the provider accepted the work and the operator
// gets a remediation command to check later.
func (e *Executor) waitForConvergence(ctx context.Context, log *telemetry.Logger, runID string, step *Step, state *DeploymentState, result *StepResult) error {
	args, err := ResolveArgs(step.Poll.Args, e.lookup(state, result))
	if err != nil {
		return err
	}

	attempts, err := e.poller.Wait(ctx, step.Name, step.Poll, args)

	tel := telemetry.FromTelemetryContext(ctx)
	if tel != nil {
		tel.Metrics.RecordPollAttempts(e.stack, attempts)
	}
	if err == nil {
		return nil
	}

	var derr *DeployError
	if errors.As(err, &derr) && derr.Code == ErrCodePollTimeout {
		result.Converged = false
		result.Warning = derr
		if tel != nil {
			tel.Metrics.RecordPollTimeout(e.stack)
			_ = tel.Events.PublishPollTimedOut(runID, step.Name, step.Poll.Remediation, attempts)
		}
		log.WithField("remediation", step.Poll.Remediation).
			Warn("Continuing without convergence confirmation")
		return nil
	}
	return err
}

// lookup builds the reference resolver for a step. When self is non-nil the
// step's own freshly captured outputs answer self references; poll arguments
// and secret sources resolve after the action has captured.
func (e *Executor) lookup(state *DeploymentState, self *StepResult) func(step, output string) (string, bool) {
	return func(stepName, output string) (string, bool) {
		if self != nil && stepName == self.StepName {
			v, ok := self.Outputs[output]
			return v, ok
		}
		return state.Output(stepName, output)
	}
}

// fail records a terminal failure on the result, contextualizing the error
// with the step's identity.
func (e *Executor) fail(result *StepResult, step *Step, err error) {
	derr := asDeployError(err)
	if derr.Step == "" {
		derr = derr.WithStep(step.Name)
	}
	if derr.Resource == "" && step.Resource != "" {
		derr = derr.WithResource(step.Resource)
	}
	result.Err = derr
	if IsRetryable(derr) {
		result.Outcome = OutcomeRetryableFailure
	} else {
		result.Outcome = OutcomeFatal
	}
}

// asDeployError coerces any error into a classified deployment error.
func asDeployError(err error) *DeployError {
	var derr *DeployError
	if errors.As(err, &derr) {
		return derr
	}
	return NewPermanentError("execution failed", err).WithCode(ErrCodeInternal)
}
