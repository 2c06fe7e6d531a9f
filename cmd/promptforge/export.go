package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exportCmd writes every deployed prompt to the export directory
func exportCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every deployed prompt to a directory for the serving layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = cfg.Export.Dir
			}
			return withApp(cmd.Context(), func(a *app) error {
				report, err := a.exports.ExportAll(cmd.Context(), dir)
				if err != nil {
					return err
				}

				fmt.Printf("Exported %d prompts to %s\n", len(report.Exported), report.Dir)
				for _, s := range report.Skipped {
					fmt.Printf("  skipped %s: %s\n", s.PromptID, s.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "target directory (default export.dir)")
	return cmd
}
