package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/domain/models"
)

// trainCmd groups training control
func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run and inspect training",
	}
	cmd.AddCommand(
		trainRunCmd(),
		trainStatusCmd(),
		trainHistoryCmd(),
		trainTickCmd(),
	)
	return cmd
}

func trainRunCmd() *cobra.Command {
	var approach string

	cmd := &cobra.Command{
		Use:   "run <prompt-id>",
		Short: "Train a prompt now, ignoring the cooldown",
		Long: `Train a prompt immediately. Without --approach the approach is selected
from the prompt's recent feedback; the command fails when feedback does not
call for training.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chosen := models.Approach(approach)
			if approach != "" {
				if err := services.ValidateApproach(chosen); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), func(a *app) error {
				run, err := a.monitor.TrainNow(cmd.Context(), args[0], chosen)
				if err != nil {
					if run != nil && run.Outcome == models.RunOutcomeFailed {
						if printErr := printJSON(run); printErr != nil {
							return printErr
						}
					}
					return err
				}
				return printJSON(run)
			})
		},
	}

	cmd.Flags().StringVarP(&approach, "approach", "a", "", "adversarial, reinforcement, meta_prompt or few_shot")
	return cmd
}

func trainStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show in-flight and recent training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				status, err := a.orchestrator.Status(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(status.InFlight) > 0 {
					fmt.Printf("In flight: %v\n\n", status.InFlight)
				}
				return printRuns(status.Recent)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of recent runs")
	return cmd
}

func trainHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <prompt-id>",
		Short: "List training runs of a prompt, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				runs, err := a.orchestrator.History(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return printRuns(runs)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func trainTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one monitor tick over every known prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				report, err := a.monitor.Tick(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func printRuns(runs []*models.TrainingRun) error {
	if len(runs) == 0 {
		fmt.Println("No training runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPROMPT\tAPPROACH\tTRIGGER\tOUTCOME\tRECOMMENDATION\tREASON")
	for _, r := range runs {
		rec := string(r.Recommendation)
		if rec == "" {
			rec = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.PromptID, r.Approach, r.Trigger, r.Outcome, rec, r.FailureReason)
	}
	return w.Flush()
}
