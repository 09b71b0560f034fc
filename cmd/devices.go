package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/cli"
	"github.com/opsctl/opsctl/internal/devices"
)

func NewDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Bulk-edit JSON config files with a templated device table",
	}
	cmd.AddCommand(newDevicesApplyCmd())
	return cmd
}

func newDevicesApplyCmd() *cobra.Command {
	var (
		tablePath    string
		templatePath string
		deviceKey    string
		setFlags     []string
	)

	cmd := &cobra.Command{
		Use:   "apply GLOB...",
		Short: "Replace device arrays and set fields across matching config files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := devices.ApplyOptions{}

			if tablePath != "" {
				if templatePath == "" {
					return fmt.Errorf("--template is required with --table")
				}
				table, err := devices.LoadTable(tablePath)
				if err != nil {
					return err
				}
				entries, err := devices.RenderEntries(templatePath, table)
				if err != nil {
					return err
				}
				opts.DeviceKey = deviceKey
				opts.Entries = entries
			}

			for _, s := range setFlags {
				edit, err := devices.ParseEdit(s)
				if err != nil {
					return err
				}
				opts.Edits = append(opts.Edits, edit)
			}

			if opts.DeviceKey == "" && len(opts.Edits) == 0 {
				return fmt.Errorf("nothing to do: provide --table or --set")
			}

			result, err := devices.Apply(args, opts)
			if err != nil {
				return err
			}

			for _, f := range result.Patched {
				fmt.Printf("%s %s\n", cli.SuccessStyle.Render("patched"), f)
			}
			for _, f := range result.Failed {
				fmt.Printf("%s %s\n", cli.ErrorStyle.Render("failed"), f)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d files failed", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tablePath, "table", "", "device table YAML file")
	cmd.Flags().StringVar(&templatePath, "template", "", "per-device JSON entry template")
	cmd.Flags().StringVar(&deviceKey, "device-key", "devices", "config field holding the device array")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "field assignment, dotted.path=value (repeatable)")

	return cmd
}
