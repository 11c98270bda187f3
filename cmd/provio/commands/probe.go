package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provio/provio/pkg/engine"
)

func newProbeCommand() *cobra.Command {
	var (
		stackPath string
		stepName  string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe the provider for a step's existing resources",
		Long: `Run one step's probe action and report the matching resources,
without creating anything.

Exit codes follow the probe contract: 0 when at least one resource
matches, 3 when the probe succeeds and finds nothing, 1 when the
provider fails.`,
		Example: `  # Probe a single step
  provio probe --stack stacks/demo.cue --step vnet`,
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

			step := findStep(steps, stepName)
			if step == nil {
				return fmt.Errorf("step %q not found in stack %s", stepName, manifest.Stack.Name)
			}
			if step.Probe == nil {
				return fmt.Errorf("step %q declares no probe", stepName)
			}

			// A standalone probe has no deployment state, so references to
			// earlier steps cannot be answered.
			probeArgs, err := engine.ResolveArgs(step.Probe.Args, func(string, string) (string, bool) {
				return "", false
			})
			if err != nil {
				return fmt.Errorf("probe arguments reference step outputs; run a full deploy instead: %w", err)
			}

			prov, err := newProvider(manifest, tel)
			if err != nil {
				return err
			}

			prober := engine.NewProber(prov, tel.Logger)
			result, err := prober.Probe(ctx, step.Probe, step.Resource, probeArgs)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else if result.Count == 0 {
				fmt.Printf("No resources match step %s.\n", step.Name)
			} else {
				fmt.Printf("%d resource(s) match step %s:\n", result.Count, step.Name)
				for _, ref := range result.Candidates {
					fmt.Printf("  %s (id: %s)\n", ref.Name, ref.ID)
				}
			}

			if result.Count == 0 {
				return &exitError{code: ExitNotFound}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stackPath, "stack", "f", "", "stack manifest file or directory")
	cmd.Flags().StringVar(&stepName, "step", "", "step whose probe to run")
	_ = cmd.MarkFlagRequired("stack")
	_ = cmd.MarkFlagRequired("step")

	return cmd
}

func findStep(steps []engine.Step, name string) *engine.Step {
	for i := range steps {
		if steps[i].Name == name {
			return &steps[i]
		}
	}
	return nil
}
