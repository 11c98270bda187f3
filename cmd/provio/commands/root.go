package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel    string
	jsonOutput  bool
	noInput     bool
	vaultAddr   string
	journalPath string
	environment string
	policyPaths []string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "provio",
		Short: "Provio - Idempotent Cloud Provisioning Orchestrator",
		Long: `Provio deploys multi-resource cloud stacks through a provider's own CLI,
converging on the declared state instead of blindly re-creating it.

Every step probes for an existing resource first: present resources are
reused, absent ones are created, and re-running a deployment is always
safe. Stacks are CUE manifests; secrets live in Vault; Rego policies
gate every run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noInput, "no-input", false, "never prompt, even on a terminal")
	rootCmd.PersistentFlags().StringVar(&vaultAddr, "vault-addr", "", "vault server address (defaults to PROVIO_VAULT_ADDR / VAULT_ADDR)")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "run journal database path (defaults to ~/.provio/journal.db)")
	rootCmd.PersistentFlags().StringVar(&environment, "environment", "", "deployment environment for policy evaluation, e.g. production")
	rootCmd.PersistentFlags().StringArrayVar(&policyPaths, "policy-dir", nil, "extra policy file or directory (repeatable)")

	// Add subcommands
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newSecretCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newPolicyCommand())

	return rootCmd
}
