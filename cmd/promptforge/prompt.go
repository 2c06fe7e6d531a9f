package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// promptCmd groups version management
func promptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Inspect and manage prompt versions",
	}
	cmd.AddCommand(
		promptListCmd(),
		promptShowCmd(),
		promptVersionsCmd(),
		promptCreateCmd(),
		promptDeployCmd(),
		promptRollbackCmd(),
		promptExportCmd(),
	)
	return cmd
}

func promptListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				ids, err := a.versions.PromptIDs(cmd.Context())
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Println("No prompts found")
					return nil
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
}

func promptShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <prompt-id>",
		Short: "Show the active version of a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				overview, err := a.versions.Show(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(overview)
			})
		},
	}
}

func promptVersionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "versions <prompt-id>",
		Short: "List versions of a prompt, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				versions, err := a.versions.List(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					fmt.Printf("No versions for %s\n", args[0])
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATUS\tPRODUCED BY\tCREATED\tHASH")
				for _, v := range versions {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
						v.VersionNumber, v.Status, v.ProducedBy,
						v.CreatedAt.Format("2006-01-02 15:04"), shortHash(v.Hash))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of versions")
	return cmd
}

func promptCreateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create <prompt-id> [text]",
		Short: "Create a manual draft version",
		Long: `Create a manual draft version of a prompt. The text is taken from the
second argument or, with --file, from a file ("-" reads stdin).`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := promptText(args, file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				v, err := a.versions.CreateManual(cmd.Context(), args[0], text)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s version %d (%s)\n", v.PromptID, v.VersionNumber, v.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the prompt text from a file")
	return cmd
}

func promptDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <prompt-id> <version>",
		Short: "Deploy a specific version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number < 1 {
				return fmt.Errorf("invalid version number %q", args[1])
			}
			return withApp(cmd.Context(), func(a *app) error {
				v, err := a.versions.Deploy(cmd.Context(), args[0], number)
				if err != nil {
					return err
				}
				fmt.Printf("Deployed %s version %d\n", v.PromptID, v.VersionNumber)
				return nil
			})
		},
	}
}

func promptRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <prompt-id>",
		Short: "Restore the previously deployed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				v, err := a.versions.Rollback(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Rolled %s back to version %d\n", v.PromptID, v.VersionNumber)
				return nil
			})
		},
	}
}

func promptExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <prompt-id>",
		Short: "Print the deployed text of a prompt as served",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				exported, err := a.exports.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(exported)
			})
		},
	}
}

// promptText resolves prompt text from the positional argument or --file
func promptText(args []string, file string) (string, error) {
	switch {
	case file != "" && len(args) == 2:
		return "", fmt.Errorf("give the text either as an argument or with --file, not both")
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	case len(args) == 2:
		return args[1], nil
	default:
		return "", fmt.Errorf("prompt text is required")
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
