package secrets

import (
	"context"
	"os"

	"github.com/provio/provio/pkg/engine"
	"github.com/provio/provio/pkg/telemetry"
)

// Resolver resolves step credentials through the precedence chain. First
// hit wins: an explicit value on the spec, then the environment variable
// derived from the credential name, then the vault secret derived from the
// resource and role, then a masked interactive prompt. A fully exhausted
// chain is a MissingCredentialError naming every source consulted.
type Resolver struct {
	vault     Vault
	prompter  engine.Prompter
	logger    *telemetry.Logger
	lookupEnv func(string) (string, bool)
}

// ResolverConfig wires a resolver.
type ResolverConfig struct {
	// Vault answers vault lookups. Nil skips the vault link of the chain.
	Vault Vault

	// Prompter asks the operator when everything else misses. Nil or
	// non-interactive skips the prompt link.
	Prompter engine.Prompter

	// Logger is the base logger. Nil falls back to the default logger.
	Logger *telemetry.Logger

	// LookupEnv overrides environment lookups in tests. Nil uses the
	// process environment.
	LookupEnv func(string) (string, bool)
}

// NewResolver creates a resolver from its configuration.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	lookupEnv := cfg.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Resolver{
		vault:     cfg.Vault,
		prompter:  cfg.Prompter,
		logger:    logger.WithField("component", "credentials"),
		lookupEnv: lookupEnv,
	}
}

// Resolve implements engine.CredentialResolver.
func (r *Resolver) Resolve(ctx context.Context, spec engine.CredentialSpec) (engine.ResolvedCredential, error) {
	log := r.logger.WithField("credential", spec.Name)
	var consulted []string

	if spec.Value != "" {
		log.Debug("Credential resolved from explicit value")
		return resolved(spec.Name, spec.Value, engine.SourceExplicit), nil
	}
	consulted = append(consulted, "explicit value")

	envName := engine.EnvName(spec.Name)
	if value, ok := r.lookupEnv(envName); ok && value != "" {
		log.WithField("env", envName).Debug("Credential resolved from environment")
		return resolved(spec.Name, value, engine.SourceEnv), nil
	}
	consulted = append(consulted, "environment variable "+envName)

	if vaultName := spec.VaultName(); vaultName != "" && r.vault != nil {
		entry, err := r.vault.Read(ctx, vaultName)
		if err != nil {
			// A broken vault is indistinguishable from a missing secret only
			// if we hide the error; surface it instead.
			return engine.ResolvedCredential{}, engine.NewPermanentError("vault lookup failed", err).
				WithResource(vaultName)
		}
		if entry != nil && entry.Value != "" {
			log.WithField("secret", vaultName).Debug("Credential resolved from vault")
			return resolved(spec.Name, entry.Value, engine.SourceVault), nil
		}
		consulted = append(consulted, "vault secret "+vaultName)
	} else {
		consulted = append(consulted, "vault (not configured)")
	}

	if r.prompter != nil && r.prompter.Interactive() {
		value, err := r.prompter.Secret("Enter value for credential " + spec.Name)
		if err == nil && value != "" {
			log.Debug("Credential resolved from operator prompt")
			return resolved(spec.Name, value, engine.SourcePrompt), nil
		}
		consulted = append(consulted, "interactive prompt")
	} else {
		consulted = append(consulted, "interactive prompt (non-interactive session)")
	}

	return engine.ResolvedCredential{}, engine.NewMissingCredentialError(spec.Name, consulted)
}

func resolved(name, value string, source engine.CredentialSource) engine.ResolvedCredential {
	return engine.ResolvedCredential{Name: name, Value: value, Source: source}
}
