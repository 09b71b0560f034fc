package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/cli"
)

func NewEBSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ebs",
		Short: "EBS volume cleanup",
	}
	cmd.AddCommand(newEBSPurgeCmd())
	return cmd
}

func newEBSPurgeCmd() *cobra.Command {
	var (
		profile, region string
		tag             string
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete available volumes carrying a tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value, ok := strings.Cut(tag, "=")
			if !ok || key == "" {
				return fmt.Errorf("--tag must have the form Key=Value, got %q", tag)
			}

			ctx := context.Background()
			client, err := newAWSClient(ctx, profile, region)
			if err != nil {
				return err
			}

			result, err := client.EBS.Purge(ctx, key, value, dryRun)
			if err != nil {
				recordRun(ctx, "ebs purge", err.Error(), false)
				return err
			}

			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			for _, v := range result.Deleted {
				fmt.Printf("%s %s %s (%d GiB)\n", cli.SuccessStyle.Render(verb), v.VolumeID, v.Name, v.SizeGiB)
			}
			for _, v := range result.Skipped {
				fmt.Printf("%s %s %s: state %s\n", cli.WarningStyle.Render("skipped"), v.VolumeID, v.Name, v.State)
			}
			for _, v := range result.Failed {
				fmt.Printf("%s %s %s\n", cli.ErrorStyle.Render("failed"), v.VolumeID, v.Name)
			}

			summary := fmt.Sprintf("tag %s: %d deleted, %d skipped, %d failed",
				tag, len(result.Deleted), len(result.Skipped), len(result.Failed))
			if !dryRun {
				recordRun(ctx, "ebs purge", summary, len(result.Failed) == 0)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d volume deletions failed", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS profile to use")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&tag, "tag", "", "tag selector, Key=Value")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without deleting")
	cmd.MarkFlagRequired("tag")

	return cmd
}
