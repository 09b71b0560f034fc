package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/dirdiff"
)

func NewDirDiffCmd() *cobra.Command {
	var (
		contextLines int
		reportFile   string
		noColor      bool
	)

	cmd := &cobra.Command{
		Use:   "dirdiff LEFT RIGHT",
		Short: "Compare two directory trees file by file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := dirdiff.Compare(args[0], args[1], dirdiff.Options{
				ContextLines: contextLines,
			})
			if err != nil {
				return err
			}

			if err := dirdiff.Render(os.Stdout, result, dirdiff.Options{
				ContextLines: contextLines,
				Color:        !noColor,
			}); err != nil {
				return err
			}

			if reportFile != "" {
				if err := dirdiff.WriteReport(reportFile, result); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "report written to %s\n", reportFile)
			}

			// Differences are a finding, not a failure.
			return nil
		},
	}

	cmd.Flags().IntVarP(&contextLines, "lines", "l", 3, "context lines around each hunk")
	cmd.Flags().StringVar(&reportFile, "report", "", "also write a plain-text report to this file")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}
