package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var stackPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a stack manifest without touching the provider",
		Long: `Validate a stack manifest end to end: CUE schema, struct constraints,
poll predicate compilation, static reference checks, and a policy dry
run. Nothing is probed or created.`,
		Example: `  # Validate a manifest
  provio validate --stack stacks/demo.cue

  # Validate against production policies
  provio validate --stack stacks/demo.cue --environment production`,
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

			gate, err := newGate(ctx, tel)
			if err != nil {
				return err
			}
			result, err := gate.Evaluate(ctx, manifest.Stack.Name, steps)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"stack":  manifest.Stack.Name,
					"steps":  len(steps),
					"policy": result,
				})
			}

			fmt.Printf("Stack %s: %d steps, manifest valid\n", manifest.Stack.Name, len(steps))
			for _, w := range result.Warnings {
				fmt.Printf("  policy warning (%s): %s\n", w.Policy, w.Message)
			}
			for _, v := range result.Violations {
				fmt.Printf("  policy violation (%s): %s\n", v.Policy, v.Message)
			}
			if !result.Allowed {
				return &exitError{code: 1, msg: "policy check failed"}
			}

			fmt.Println("Validation passed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&stackPath, "stack", "f", "", "stack manifest file or directory")
	_ = cmd.MarkFlagRequired("stack")

	return cmd
}
