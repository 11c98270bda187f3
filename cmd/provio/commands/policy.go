package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test deployment policies",
	}

	cmd.AddCommand(newPolicyListCommand())
	cmd.AddCommand(newPolicyTestCommand())

	return cmd
}

func newPolicyListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded policies",
		Example: `  # Built-in policies
  provio policy list

  # Including a custom directory
  provio policy list --policy-dir /etc/provio/policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			gate, err := newGate(ctx, tel)
			if err != nil {
				return err
			}

			policies := gate.Policies()
			if jsonOutput {
				return printJSON(policies)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}

func newPolicyTestCommand() *cobra.Command {
	var stackPath string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Evaluate policies against a stack without deploying",
		Long: `Run every enabled policy against a stack's validated step sequence and
report the findings. Blocking violations exit non-zero, exactly as they
would veto a deploy.`,
		Example: `  # Would this stack pass production policy?
  provio policy test --stack stacks/demo.cue --environment production`,
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
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				fmt.Printf("Evaluated %d policies against stack %s\n",
					len(result.Evaluated), manifest.Stack.Name)
				for _, w := range result.Warnings {
					fmt.Printf("  warning (%s): %s\n", w.Policy, w.Message)
				}
				for _, v := range result.Violations {
					fmt.Printf("  violation (%s, %s): %s\n", v.Policy, v.Severity, v.Message)
				}
				if result.Allowed {
					fmt.Println("Policy check passed.")
				}
			}

			if !result.Allowed {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stackPath, "stack", "f", "", "stack manifest file or directory")
	_ = cmd.MarkFlagRequired("stack")

	return cmd
}
