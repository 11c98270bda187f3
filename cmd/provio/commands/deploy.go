package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/provio/provio/pkg/engine"
	"github.com/provio/provio/pkg/prompt"
	"github.com/provio/provio/pkg/secrets"
)

func newDeployCommand() *cobra.Command {
	var (
		stackPath    string
		manifestPath string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a stack",
		Long: `Deploy every step of a stack manifest, in declaration order.

Each step probes the provider for an existing resource first: present
resources are reused without mutation, absent ones are created. Secrets
are published to Vault with read-back verification. Re-running a deploy
against a converged stack is a no-op.`,
		Example: `  # Deploy a stack manifest
  provio deploy --stack stacks/demo.cue

  # Deploy and export captured outputs
  provio deploy --stack stacks/demo.cue --manifest outputs.yaml

  # Headless deploy with policies for production
  provio deploy --stack stacks/demo.cue --no-input --environment production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()
			ctx = tel.WithContext(ctx)

			manifest, steps, err := loadStack(ctx, stackPath)
			if err != nil {
				return err
			}

			prov, err := newProvider(manifest, tel)
			if err != nil {
				return err
			}

			prompter := prompt.New(noInput)

			vault, err := openVault(needsVault(steps))
			if err != nil {
				return err
			}
			var vaultLink secrets.Vault
			var publisher engine.SecretPublisher
			if vault != nil {
				vaultLink = vault
				publisher = secrets.NewPublisher(vault, tel.Logger)
			}

			resolver := secrets.NewResolver(secrets.ResolverConfig{
				Vault:    vaultLink,
				Prompter: prompter,
				Logger:   tel.Logger,
			})

			gate, err := newGate(ctx, tel)
			if err != nil {
				return err
			}

			// Journaling is best-effort: a broken journal must not stop a
			// deployment.
			var recorder engine.Recorder
			jrnl, err := openJournal(tel)
			if err != nil {
				tel.Logger.WithError(err).Warn("Run journal unavailable, continuing without it")
			} else {
				recorder = jrnl
				defer jrnl.Close()
			}

			executor := engine.NewExecutor(engine.ExecutorConfig{
				Provider:    prov,
				Credentials: resolver,
				Secrets:     publisher,
				Prompter:    prompter,
				Stack:       manifest.Stack.Name,
				Logger:      tel.Logger,
			})
			sequencer := engine.NewSequencer(engine.SequencerConfig{
				Executor: executor,
				Recorder: recorder,
				Gate:     gate,
				Stack:    manifest.Stack.Name,
				Logger:   tel.Logger,
			})

			summary, err := sequencer.Deploy(ctx, steps)
			if err != nil {
				return err
			}

			if err := printSummary(summary); err != nil {
				return err
			}
			if manifestPath != "" {
				if err := writeOutputManifest(manifestPath, summary); err != nil {
					return err
				}
				fmt.Printf("Captured outputs written to %s\n", manifestPath)
			}

			if summary.Status == engine.StatusAborted {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stackPath, "stack", "f", "", "stack manifest file or directory")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "write captured step outputs to this YAML file")
	_ = cmd.MarkFlagRequired("stack")

	return cmd
}

// printSummary renders a run summary as text or JSON per the global flag.
func printSummary(summary *engine.RunSummary) error {
	if jsonOutput {
		return printJSON(summary)
	}

	fmt.Printf("Run %s (%s): %s in %s\n",
		summary.RunID, summary.Stack, summary.Status, summary.Duration().Round(timeRounding))

	for _, result := range summary.Results {
		switch result.Outcome {
		case engine.OutcomeSuccess:
			fmt.Printf("  + %s: created %s\n", result.StepName, result.Resource)
		case engine.OutcomeNoOp:
			fmt.Printf("  = %s: reused %s\n", result.StepName, result.Resource)
		default:
			fmt.Printf("  ! %s: failed: %v\n", result.StepName, result.Err)
		}
	}
	for _, name := range summary.Skipped {
		fmt.Printf("  - %s: skipped\n", name)
	}
	for _, warning := range summary.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}

	if summary.Status == engine.StatusCompleted && summary.AllNoOp() {
		fmt.Println("All resources already existed; nothing changed.")
	}
	return nil
}

// writeOutputManifest exports the captured outputs of every converged step.
func writeOutputManifest(path string, summary *engine.RunSummary) error {
	data, err := yaml.Marshal(summary.Manifest)
	if err != nil {
		return fmt.Errorf("failed to encode output manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output manifest: %w", err)
	}
	return nil
}
