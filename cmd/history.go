package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/cli"
	"github.com/opsctl/opsctl/internal/store"
	"github.com/opsctl/opsctl/internal/utils"
)

func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent mutating command runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.DefaultPath()
			if err != nil {
				return err
			}
			s, err := store.Open(path)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.List(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(cli.MutedStyle.Render("no recorded runs"))
				return nil
			}

			for _, run := range runs {
				status := cli.SuccessStyle.Render(utils.Check(run.OK))
				if !run.OK {
					status = cli.ErrorStyle.Render(utils.Check(run.OK))
				}
				fmt.Printf("%s  %-14s %-6s %s\n",
					utils.TimeOrDash(run.Time.Local(), utils.DateTimeSec),
					run.Command, status, run.Summary)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}
