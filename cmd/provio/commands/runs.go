package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/provio/provio/pkg/journal"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect journaled deployment runs",
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Example: `  # The last 20 runs
  provio runs list

  # More history, as JSON
  provio runs list --limit 100 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			jrnl, err := openJournal(tel)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			runs, err := jrnl.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTACK\tSTATUS\tSTEPS\tSTARTED\tDURATION")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					run.ID, run.Stack, run.Status, run.StepCount,
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					runDuration(run))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	var withEvents bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's steps and outcome",
		Args:  cobra.ExactArgs(1),
		Example: `  # Step results of a run
  provio runs show 6a1f...

  # Include the event stream
  provio runs show 6a1f... --events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			jrnl, err := openJournal(tel)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			run, err := jrnl.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			steps, err := jrnl.ListSteps(ctx, runID)
			if err != nil {
				return err
			}
			var events []*journal.EventRecord
			if withEvents {
				events, err = jrnl.ListEvents(ctx, runID)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				out := map[string]interface{}{"run": run, "steps": steps}
				if withEvents {
					out["events"] = events
				}
				return printJSON(out)
			}

			fmt.Printf("Run %s (%s): %s, %d steps, started %s\n",
				run.ID, run.Stack, run.Status, run.StepCount,
				run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			if run.FailedStep != "" {
				fmt.Printf("Failed at %s: %s\n", run.FailedStep, run.Error)
			}

			for _, step := range steps {
				line := fmt.Sprintf("  %s: %s", step.StepName, step.Outcome)
				if step.Decision != "" {
					line += fmt.Sprintf(" (%s)", step.Decision)
				}
				if step.Attempts > 1 {
					line += fmt.Sprintf(", %d attempts", step.Attempts)
				}
				if !step.Converged {
					line += ", unconverged"
				}
				fmt.Println(line)
				if step.Error != "" {
					fmt.Printf("      error: %s\n", step.Error)
				}
				if step.Warning != "" {
					fmt.Printf("      warning: %s\n", step.Warning)
				}
			}

			for _, event := range events {
				fmt.Printf("  [%s] %s %s: %s\n",
					event.Timestamp.Local().Format("15:04:05"),
					event.Level, event.Type, event.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withEvents, "events", false, "include the run's event stream")

	return cmd
}

func runDuration(run *journal.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(timeRounding).String()
}
