// Package engine implements the deployment engine: the step model, the
// probe/select/execute/poll pipeline, and the sequencer that drives a
// run from validation to a terminal summary.
//
// # Execution model
//
// A deployment is an ordered list of Steps. Each step targets one
// provider resource and runs through the same lifecycle:
//
//  1. Probe - query the provider for resources matching the step (Prober)
//  2. Select - decide create vs reuse from the probe result (Selector)
//  3. Execute - resolve credentials and references, invoke the provider
//     with bounded retries (Executor)
//  4. Capture - extract declared output fields from the provider payload
//  5. Secret - publish the step's secret with read-back verification
//  6. Poll - wait for asynchronous convergence when the step declares it
//     (Poller)
//
// The Sequencer validates the whole sequence statically, passes it
// through the policy gate, then executes steps strictly in order. The
// first fatal failure halts the run; remaining steps are skipped and the
// summary says so.
//
// # Idempotence
//
// Re-running a deployment against converged infrastructure is a no-op.
// That property rests on two rules: a step whose probe finds its
// resource reuses it without mutation, and a failed probe is never
// treated as absence (it aborts the step instead, because "absent" is
// what triggers a create).
//
// # Ports
//
// The engine talks to the outside world through small interfaces, all
// defined here and implemented elsewhere: Provider (pkg/provider),
// CredentialResolver and SecretPublisher (pkg/secrets), Prompter
// (pkg/prompt), Recorder (pkg/journal), PolicyGate (pkg/policy).
//
// # Error classification
//
// Failures carry a DeployError with a class that drives retry behavior:
//
//   - transient, throttled, conflict: retried with linear backoff up to
//     the step's bound
//   - permanent: fails the step immediately
//
// Use IsRetryable, ClassOf and CodeOf to inspect classified errors;
// DeployError supports errors.Is and errors.As.
//
// # Secret handling
//
// Secret and credential values flow through step execution but never
// out of it: they are excluded from JSON marshalling, absent from step
// results and events, and logged only as short previews.
package engine
