package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/longregen/promptforge/internal/application/services"
	"github.com/longregen/promptforge/internal/domain/models"
)

// feedbackCmd groups feedback ingestion and inspection
func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect prompt feedback",
	}
	cmd.AddCommand(
		feedbackIngestCmd(),
		feedbackRateCmd(),
		feedbackSuggestCmd(),
		feedbackIssueCmd(),
		feedbackSummaryCmd(),
		feedbackPurgeCmd(),
	)
	return cmd
}

func feedbackIngestCmd() *cobra.Command {
	var (
		kind      string
		value     float64
		detail    string
		source    string
		sessionID string
		rawCtx    string
	)

	cmd := &cobra.Command{
		Use:   "ingest <prompt-id>",
		Short: "Record one feedback observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &services.IngestRequest{
				PromptID:  args[0],
				Kind:      models.FeedbackKind(kind),
				Detail:    detail,
				Source:    source,
				SessionID: sessionID,
			}
			if cmd.Flags().Changed("value") {
				req.Value = &value
			}
			if rawCtx != "" {
				if err := json.Unmarshal([]byte(rawCtx), &req.Context); err != nil {
					return fmt.Errorf("invalid --context JSON: %w", err)
				}
			}

			return withApp(cmd.Context(), func(a *app) error {
				ack, err := a.feedback.Ingest(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(ack)
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "feedback kind: rating, error, success or suggestion")
	cmd.Flags().Float64Var(&value, "value", 0, "rating in [0,1]")
	cmd.Flags().StringVarP(&detail, "detail", "d", "", "free text detail")
	cmd.Flags().StringVar(&source, "source", "", "origin of the observation (user or automated)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier")
	cmd.Flags().StringVar(&rawCtx, "context", "", "JSON object of extra context")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func feedbackRateCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "rate <prompt-id> <rating>",
		Short: "Record a user rating in [0,1]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rating float64
			if _, err := fmt.Sscanf(args[1], "%g", &rating); err != nil {
				return fmt.Errorf("invalid rating %q", args[1])
			}
			return withApp(cmd.Context(), func(a *app) error {
				ack, err := a.feedback.RateResponse(cmd.Context(), args[0], rating, message)
				if err != nil {
					return err
				}
				return printJSON(ack)
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "optional comment")
	return cmd
}

func feedbackSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <prompt-id> <suggestion>",
		Short: "Record an improvement suggestion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				ack, err := a.feedback.SuggestImprovement(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(ack)
			})
		},
	}
}

func feedbackIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <prompt-id> <type> <description>",
		Short: "Report an issue (incorrect, unclear, incomplete, inappropriate, other)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				ack, err := a.feedback.ReportIssue(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return printJSON(ack)
			})
		},
	}
}

func feedbackSummaryCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "summary <prompt-id>",
		Short: "Show aggregate feedback statistics over a trailing window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if window == 0 {
				window = cfg.Training.FeedbackWindow
			}
			return withApp(cmd.Context(), func(a *app) error {
				summary, err := a.feedback.Summary(cmd.Context(), args[0], window)
				if err != nil {
					return err
				}

				fmt.Printf("Prompt:       %s (last %s)\n", summary.PromptID, window)
				fmt.Printf("Records:      %d\n", summary.Count)
				fmt.Printf("Mean rating:  %.2f over %d rated\n", summary.MeanRating, summary.RatedCount)
				fmt.Printf("Errors:       %d (rate %.2f)\n", summary.ErrorCount, summary.ErrorRate)
				fmt.Printf("Suggestions:  %d\n", summary.SuggestionCount)
				fmt.Printf("Successes:    %d\n", summary.SuccessVolume)
				fmt.Printf("Would train:  %s\n", services.SelectApproach(summary, thresholds()))
				return nil
			})
		},
	}

	cmd.Flags().DurationVarP(&window, "window", "w", 0, "trailing window (default training.feedback_window)")
	return cmd
}

func feedbackPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete feedback older than the retention horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				n, err := a.feedback.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Purged %d records older than %d days\n", n, cfg.Training.RetentionDays)
				return nil
			})
		},
	}
}

// thresholds converts the configured training thresholds
func thresholds() services.Thresholds {
	t := cfg.Training
	return services.Thresholds{
		ErrorThreshold:      t.ErrorThreshold,
		RatingThreshold:     t.RatingThreshold,
		SuggestionThreshold: t.SuggestionThreshold,
		VolumeThreshold:     t.VolumeThreshold,
	}
}
