package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/opsctl/opsctl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opsctl",
		Short: "Operator tools for AWS and Kubernetes maintenance",
	}

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(cmd.NewVPCCmd())
	rootCmd.AddCommand(cmd.NewPodsCmd())
	rootCmd.AddCommand(cmd.NewIAMCmd())
	rootCmd.AddCommand(cmd.NewEBSCmd())
	rootCmd.AddCommand(cmd.NewDirDiffCmd())
	rootCmd.AddCommand(cmd.NewDevicesCmd())
	rootCmd.AddCommand(cmd.NewRenderCmd())
	rootCmd.AddCommand(cmd.NewHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
