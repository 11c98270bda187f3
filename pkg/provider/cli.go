package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/provio/provio/pkg/engine"
	"github.com/provio/provio/pkg/telemetry"
)

// DefaultTimeout bounds a single provider invocation when neither the step
// nor the caller's context carries a deadline.
const DefaultTimeout = 10 * time.Minute

// Config wires a CLI provider.
type Config struct {
	// Binary is the provider executable, e.g. "az". Required.
	Binary string

	// BaseArgs are prepended to every invocation, e.g. ["--output", "json"].
	BaseArgs []string

	// Timeout bounds one invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Classifier maps failures to error classes. Nil uses the embedded
	// rule table.
	Classifier *Classifier

	// Logger is the base logger. Nil falls back to the default logger.
	Logger *telemetry.Logger
}

// CLI invokes provider actions by running the provider's command-line tool
// as a subprocess. Actions are whitespace-separated subcommand paths
// ("network vnet create"); arguments become --key value flags in sorted
// order so invocations are reproducible in logs and tests.
type CLI struct {
	binary     string
	baseArgs   []string
	timeout    time.Duration
	classifier *Classifier
	logger     *telemetry.Logger
}

// New creates a CLI provider from its configuration.
func New(cfg Config) (*CLI, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("provider binary is required")
	}
	classifier := cfg.Classifier
	if classifier == nil {
		var err error
		classifier, err = NewClassifier()
		if err != nil {
			return nil, err
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &CLI{
		binary:     cfg.Binary,
		baseArgs:   cfg.BaseArgs,
		timeout:    timeout,
		classifier: classifier,
		logger:     logger.WithField("component", "provider").WithProvider(filepath.Base(cfg.Binary)),
	}, nil
}

// Name identifies the provider for logs and events.
func (c *CLI) Name() string {
	return filepath.Base(c.binary)
}

// Invoke runs one provider action. The returned invocation is non-nil
// whenever the process ran, including on failure, so callers can inspect
// exit code and stderr; the error carries the failure classification.
func (c *CLI) Invoke(ctx context.Context, action string, args map[string]string) (*engine.Invocation, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	argv := c.buildArgs(action, args)
	log := c.logger.WithAction(action)
	log.WithField("argv", strings.Join(argv, " ")).Debug("Invoking provider")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	inv := &engine.Invocation{
		Action:   action,
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: duration,
	}
	if out := bytes.TrimSpace(stdout.Bytes()); len(out) > 0 && json.Valid(out) {
		inv.Output = json.RawMessage(out)
	}

	if runErr == nil {
		log.WithField("duration_ms", duration.Milliseconds()).Debug("Provider action succeeded")
		return inv, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		inv.ExitCode = exitErr.ExitCode()
	} else {
		// The process never ran: missing binary, permission problem.
		inv.ExitCode = -1
		return inv, engine.NewPermanentError("failed to start provider", runErr).WithAction(action)
	}

	if ctx.Err() != nil {
		return inv, engine.NewTransientError("provider invocation timed out", ctx.Err()).WithAction(action)
	}

	return inv, c.classifyFailure(log, action, inv)
}

// classifyFailure converts a non-zero exit into a classified error using the
// rule table.
func (c *CLI) classifyFailure(log *telemetry.Logger, action string, inv *engine.Invocation) error {
	verdict := c.classifier.Classify(inv.ExitCode, inv.Stderr)
	cause := fmt.Errorf("exit status %d: %s", inv.ExitCode, firstLine(inv.Stderr))

	log.WithField("exit_code", inv.ExitCode).
		WithField("class", string(verdict.Class)).
		WithField("rule", verdict.Rule).
		Debug("Provider action failed")

	var err *engine.DeployError
	switch verdict.Class {
	case engine.ErrorClassTransient:
		err = engine.NewTransientError("provider action failed", cause)
	case engine.ErrorClassThrottled:
		err = engine.NewThrottledError("provider rate limited", cause)
	case engine.ErrorClassConflict:
		err = engine.NewConflictError("provider reported a resource conflict", cause)
	default:
		err = engine.NewPermanentError("provider action failed", cause)
	}
	return err.WithAction(action).WithCode(verdict.Code).WithDetail("exit_code", inv.ExitCode)
}

// buildArgs assembles the argv tail: base args, the action's subcommand
// words, then --key value flags in sorted key order. An empty value emits
// the flag alone, for boolean switches.
func (c *CLI) buildArgs(action string, args map[string]string) []string {
	argv := make([]string, 0, len(c.baseArgs)+len(args)*2+4)
	argv = append(argv, c.baseArgs...)
	argv = append(argv, strings.Fields(action)...)

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--"+k)
		if v := args[k]; v != "" {
			argv = append(argv, v)
		}
	}
	return argv
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
