package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/render"
)

func NewRenderCmd() *cobra.Command {
	var (
		valuesPath string
		setFlags   []string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "render TEMPLATE...",
		Short: "Render deployment manifests from placeholder templates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := render.LoadValues(valuesPath, setFlags)
			if err != nil {
				return err
			}

			if outDir == "" {
				if len(args) != 1 {
					return fmt.Errorf("--out is required when rendering more than one template")
				}
				data, err := render.RenderFile(args[0], values)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}

			written, err := render.RenderAll(args, values, outDir)
			for _, path := range written {
				fmt.Printf("wrote %s\n", path)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&valuesPath, "values", "", "values YAML file")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "value override, key=value (repeatable, wins over the file)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (stdout for a single template when omitted)")

	return cmd
}
