package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/cli"
	"github.com/opsctl/opsctl/internal/utils"
)

func NewPodsCmd() *cobra.Command {
	var kubeconfig, namespace string

	cmd := &cobra.Command{
		Use:   "pods",
		Short: "Pod maintenance: restart, purge, copy files, check services",
	}
	cmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "path to kubeconfig")
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "namespace (default from config, then \"default\")")

	restart := &cobra.Command{
		Use:   "restart PATTERN",
		Short: "Gracefully delete pods matching a name pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newK8sClient(kubeconfig)
			if err != nil {
				return err
			}
			ns := resolveNamespace(namespace)

			deleted, err := client.RestartPods(ctx, ns, args[0])
			if err != nil {
				recordRun(ctx, "pods restart", err.Error(), false)
				return err
			}
			for _, name := range deleted {
				fmt.Printf("%s %s/%s\n", cli.SuccessStyle.Render("restarted"), ns, name)
			}
			if len(deleted) == 0 {
				fmt.Println(cli.MutedStyle.Render("no pods matched " + args[0]))
			}
			recordRun(ctx, "pods restart",
				fmt.Sprintf("%s in %s matching %s", utils.Plural(len(deleted), "pod"), ns, args[0]), true)
			return nil
		},
	}

	var failedOnly bool
	purge := &cobra.Command{
		Use:   "purge PATTERN",
		Short: "Force-delete pods matching a name pattern (grace period 0)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newK8sClient(kubeconfig)
			if err != nil {
				return err
			}
			ns := resolveNamespace(namespace)

			deleted, err := client.PurgePods(ctx, ns, args[0], failedOnly)
			if err != nil {
				recordRun(ctx, "pods purge", err.Error(), false)
				return err
			}
			for _, name := range deleted {
				fmt.Printf("%s %s/%s\n", cli.SuccessStyle.Render("purged"), ns, name)
			}
			if len(deleted) == 0 {
				fmt.Println(cli.MutedStyle.Render("no pods matched " + args[0]))
			}
			recordRun(ctx, "pods purge",
				fmt.Sprintf("%s in %s matching %s", utils.Plural(len(deleted), "pod"), ns, args[0]), true)
			return nil
		},
	}
	purge.Flags().BoolVar(&failedOnly, "failed-only", false, "only purge pods in the Failed phase")

	var container, dest string
	copyCmd := &cobra.Command{
		Use:   "copy POD LOCAL_PATH",
		Short: "Copy a local file or directory into a running pod",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newK8sClient(kubeconfig)
			if err != nil {
				return err
			}
			ns := resolveNamespace(namespace)

			if err := client.CopyToPod(ctx, ns, args[0], container, args[1], dest); err != nil {
				return err
			}
			fmt.Printf("%s %s -> %s/%s:%s\n", cli.SuccessStyle.Render("copied"), args[1], ns, args[0], dest)
			return nil
		},
	}
	copyCmd.Flags().StringVarP(&container, "container", "c", "", "target container (defaults to the first)")
	copyCmd.Flags().StringVar(&dest, "dest", "/tmp", "destination directory in the pod")

	check := &cobra.Command{
		Use:   "check SERVICE",
		Short: "Verify a service exists and has ready endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newK8sClient(kubeconfig)
			if err != nil {
				return err
			}
			ns := resolveNamespace(namespace)

			status, err := client.CheckService(ctx, ns, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s/%s  clusterIP %s  ports %v  %s\n",
				cli.SuccessStyle.Render("healthy"), ns, status.Name,
				status.ClusterIP, status.Ports,
				utils.Plural(status.ReadyEndpoints, "ready endpoint"))
			return nil
		},
	}

	cmd.AddCommand(restart, purge, copyCmd, check)
	return cmd
}
