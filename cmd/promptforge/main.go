package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longregen/promptforge/internal/config"
	"github.com/longregen/promptforge/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "promptforge",
		Short: "promptforge - feedback-driven prompt training",
		Long: `promptforge collects production feedback about system prompts, decides when
a prompt needs retraining, synthesizes and evaluates candidate versions, and
deploys the ones that measurably improve.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $PROMPTFORGE_CONFIG or ~/.config/promptforge/config.yaml)")

	root.AddCommand(
		serveCmd(),
		feedbackCmd(),
		promptCmd(),
		trainCmd(),
		exportCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := cfg.Training

			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("LLM (synthesizer):")
			fmt.Printf("  URL:         %s\n", cfg.LLM.URL)
			fmt.Printf("  Model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  Max Tokens:  %d\n", cfg.LLM.MaxTokens)
			fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
			fmt.Printf("  API Key:     %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Println()

			fmt.Println("Test runner:")
			fmt.Printf("  URL:             %s\n", cfg.TestRunner.URL)
			fmt.Printf("  API Key:         %s\n", maskSecret(cfg.TestRunner.APIKey))
			fmt.Printf("  Breaker:         %d failures, open for %s\n", cfg.TestRunner.MaxFailures, cfg.TestRunner.BreakerTimeout)
			fmt.Println()

			fmt.Println("Database:")
			if cfg.UsesPostgres() {
				fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.PostgresURL))
			} else {
				fmt.Println("  In-memory (set PROMPTFORGE_DATABASE_POSTGRES_URL to persist)")
			}
			fmt.Println()

			fmt.Println("Training:")
			fmt.Printf("  Error threshold:       %.2f\n", t.ErrorThreshold)
			fmt.Printf("  Rating threshold:      %.2f\n", t.RatingThreshold)
			fmt.Printf("  Suggestion threshold:  %d\n", t.SuggestionThreshold)
			fmt.Printf("  Volume threshold:      %d\n", t.VolumeThreshold)
			fmt.Printf("  Min training interval: %s\n", t.MinTrainingInterval)
			fmt.Printf("  Monitor interval:      %s\n", t.MonitorInterval())
			fmt.Printf("  Feedback window:       %s\n", t.FeedbackWindow)
			fmt.Printf("  Retention:             %d days\n", t.RetentionDays)
			fmt.Printf("  Auto deploy:           %t\n", t.AutoDeploy)
			fmt.Printf("  Max parallel:          %d\n", t.MaxParallelTrainings)
			fmt.Printf("  Safety / success:      %.2f / %.2f\n", t.SafetyFloor, t.SuccessFloor)
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Listen: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("  Export: %s (cache %d, ttl %s)\n", cfg.Export.Dir, cfg.Export.CacheSize, cfg.Export.CacheTTL)
			fmt.Println()

			fmt.Println("Tracing:")
			switch {
			case !cfg.Tracing.Enabled:
				fmt.Println("  Disabled")
			case cfg.Tracing.OTLPEndpoint != "":
				fmt.Printf("  OTLP: %s\n", cfg.Tracing.OTLPEndpoint)
			default:
				fmt.Println("  stdout")
			}
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  PROMPTFORGE_CONFIG, PROMPTFORGE_LLM_URL, PROMPTFORGE_LLM_API_KEY")
			fmt.Println("  PROMPTFORGE_TESTRUNNER_URL, PROMPTFORGE_DATABASE_POSTGRES_URL")
			fmt.Println("  PROMPTFORGE_TRAINING_<OPTION>, e.g. PROMPTFORGE_TRAINING_ERROR_THRESHOLD")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("promptforge %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
