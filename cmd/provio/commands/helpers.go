package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/provio/provio/pkg/engine"
	"github.com/provio/provio/pkg/journal"
	"github.com/provio/provio/pkg/policy"
	"github.com/provio/provio/pkg/provider"
	"github.com/provio/provio/pkg/secrets"
	"github.com/provio/provio/pkg/stack"
	"github.com/provio/provio/pkg/telemetry"
)

// Exit codes.
const (
	// ExitNotFound is returned by `provio probe` when the probe succeeds
	// and finds nothing.
	ExitNotFound = 3
)

// timeRounding keeps printed durations readable.
const timeRounding = 10 * time.Millisecond

// exitError carries a specific process exit code out of a command. An
// empty message means the command already printed its diagnostics.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// Quiet reports whether the error already printed its diagnostics and
// should not be logged again.
func Quiet(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.msg == ""
}

// setupTelemetry builds the telemetry stack from the global flags.
func setupTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if environment != "" {
		cfg.Environment = environment
	}
	if level := resolveLogLevel(); level != "" {
		cfg.Logging.Level = level
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	return telemetry.NewTelemetry(cfg)
}

func resolveLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	return os.Getenv("LOG_LEVEL")
}

// loadStack parses a stack manifest and builds its validated step sequence.
func loadStack(ctx context.Context, path string) (*stack.Manifest, []engine.Step, error) {
	return stack.NewParser().Load(ctx, path)
}

// newProvider builds the CLI provider declared by the manifest.
func newProvider(m *stack.Manifest, tel *telemetry.Telemetry) (*provider.CLI, error) {
	return provider.New(provider.Config{
		Binary:   m.Stack.Provider.Binary,
		BaseArgs: m.Stack.Provider.BaseArgs,
		Timeout:  m.Stack.Provider.Timeout(),
		Logger:   tel.Logger,
	})
}

// openVault connects to the vault. With required false a missing address
// yields a nil vault instead of an error, leaving the credential chain to
// its other links.
func openVault(required bool) (*secrets.HashiVault, error) {
	addr := vaultAddr
	if addr == "" {
		addr = secrets.AddressFromEnv()
	}
	if addr == "" {
		if required {
			return nil, fmt.Errorf("vault address is required: set --vault-addr or PROVIO_VAULT_ADDR")
		}
		return nil, nil
	}
	return secrets.NewVault(secrets.VaultConfig{Address: addr})
}

// openJournal opens the run journal at the configured (or default) path.
func openJournal(tel *telemetry.Telemetry) (*journal.Journal, error) {
	path := journalPath
	if path == "" {
		var err error
		path, err = journal.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return journal.Open(journal.Config{
		Path:   path,
		Logger: tel.Logger.Zerolog(),
	})
}

// newGate builds the policy gate: built-ins plus any --policy-dir paths.
func newGate(ctx context.Context, tel *telemetry.Telemetry) (*policy.Gate, error) {
	gate, err := policy.NewGate(policy.GateConfig{
		Environment: environment,
		Logger:      tel.Logger.Zerolog(),
	})
	if err != nil {
		return nil, err
	}
	if len(policyPaths) > 0 {
		if err := gate.LoadPaths(ctx, policyPaths); err != nil {
			return nil, err
		}
	}
	return gate, nil
}

// needsVault reports whether any step publishes a secret or declares a
// credential with vault coordinates.
func needsVault(steps []engine.Step) bool {
	for i := range steps {
		if steps[i].Secret != nil {
			return true
		}
		for _, cred := range steps[i].Credentials {
			if cred.VaultName() != "" {
				return true
			}
		}
	}
	return false
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
