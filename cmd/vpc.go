package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opsctl/opsctl/internal/cli"
	"github.com/opsctl/opsctl/internal/utils"

	awsvpc "github.com/opsctl/opsctl/internal/aws/vpc"
)

func NewVPCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vpc",
		Short: "VPC subnet provisioning and usage analysis",
	}

	cmd.AddCommand(newVPCProvisionCmd())
	cmd.AddCommand(newVPCUsageCmd())

	return cmd
}

func newVPCProvisionCmd() *cobra.Command {
	var (
		profile, region  string
		vpcID, vpcCIDR   string
		subnetCIDRs      []string
		zones            []string
		sourceRouteTable string
		namePrefix       string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Associate a CIDR block and create subnets with copied routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newAWSClient(ctx, profile, region)
			if err != nil {
				return err
			}

			result, err := client.VPC.Provision(ctx, awsvpc.ProvisionConfig{
				VPCID:            vpcID,
				VPCCIDR:          vpcCIDR,
				SubnetCIDRs:      subnetCIDRs,
				AZs:              zones,
				SourceRouteTable: sourceRouteTable,
				NamePrefix:       namePrefix,
			})
			if err != nil {
				recordRun(ctx, "vpc provision", err.Error(), false)
				return err
			}

			if account := client.AccountID(ctx); account != "" {
				fmt.Println(cli.MutedStyle.Render("account " + account))
			}
			fmt.Printf("%s %s %s\n",
				cli.SuccessStyle.Render("provisioned"),
				result.VPCCIDR,
				cli.MutedStyle.Render("in "+result.VPCID))
			for _, s := range result.Subnets {
				state := "created"
				if s.Reused {
					state = "reused"
				}
				fmt.Printf("  %s  %s  %s  %s  %s copied, %s skipped\n",
					s.SubnetID, s.CIDR, s.AZ, state,
					utils.Plural(s.RoutesCopied, "route"),
					utils.Plural(s.RoutesSkipped, "route"))
			}

			recordRun(ctx, "vpc provision",
				fmt.Sprintf("%s: %s", result.VPCCIDR, utils.Plural(len(result.Subnets), "subnet")), true)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS profile to use")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&vpcID, "vpc-id", "", "target VPC ID")
	cmd.Flags().StringVar(&vpcCIDR, "vpc-cidr", "", "CIDR block to associate with the VPC")
	cmd.Flags().StringSliceVar(&subnetCIDRs, "subnet-cidr", nil, "subnet CIDR to create (repeatable)")
	cmd.Flags().StringSliceVar(&zones, "zone", nil, "availability zone per subnet (auto-selected when omitted)")
	cmd.Flags().StringVar(&sourceRouteTable, "source-route-table", "", "route table whose routes are copied to each new subnet")
	cmd.Flags().StringVar(&namePrefix, "name-prefix", "opsctl", "Name tag prefix for created resources")
	cmd.MarkFlagRequired("vpc-id")
	cmd.MarkFlagRequired("vpc-cidr")
	cmd.MarkFlagRequired("subnet-cidr")
	cmd.MarkFlagRequired("source-route-table")

	return cmd
}

func newVPCUsageCmd() *cobra.Command {
	var profile, region string

	cmd := &cobra.Command{
		Use:   "usage SUBNET_ID_OR_CIDR",
		Short: "Show IP usage and attached resources for a subnet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newAWSClient(ctx, profile, region)
			if err != nil {
				return err
			}

			report, err := client.Usage.Analyze(ctx, args[0])
			if err != nil {
				return err
			}

			s := report.Subnet
			fmt.Printf("%s\n", cli.HeaderStyle.Render(
				fmt.Sprintf("%s  %s  %s  %s", s.SubnetID, s.CIDR, s.AZ, s.VPCID)))
			fmt.Printf("%d of %d usable IPs in use (%d reported available)\n",
				len(report.UsedIPs), report.UsableIPs, s.AvailableIPs)

			ips := make([]string, 0, len(report.UsedIPs))
			for ip := range report.UsedIPs {
				ips = append(ips, ip)
			}
			sort.Strings(ips)
			for _, ip := range ips {
				fmt.Printf("  %-15s %s\n", ip, cli.MutedStyle.Render(report.UsedIPs[ip]))
			}

			fmt.Printf("\n%s using %d IPs (max %d)\n",
				utils.Plural(report.ELB.Count, "classic/application ELB"),
				report.ELB.CurrentIPs, report.ELB.MaxIPs)
			fmt.Printf("%s with %d instances here (max capacity %d)\n",
				utils.Plural(report.ASG.Count, "auto scaling group"),
				report.ASG.InstancesPresent, report.ASG.MaxCapacity)

			for _, nlb := range report.NLBs {
				fmt.Printf("NLB %s (%s) [%s]\n", nlb.Name, nlb.DNS, nlb.State)
				for k, v := range nlb.Tags {
					fmt.Printf("  %s=%s\n", k, v)
				}
			}
			for _, ng := range report.Nodegroups {
				fmt.Printf("EKS %s/%s [%s] %v scaling %d-%d (desired %d)\n",
					ng.Cluster, ng.Name, ng.Status, ng.InstanceTypes,
					ng.MinSize, ng.MaxSize, ng.DesiredSize)
			}

			fmt.Printf("\ntheoretical max with ELBs and ASGs fully scaled: %d\n", report.TheoreticalMax())
			if report.CountMismatch {
				fmt.Fprintln(os.Stderr, cli.WarningStyle.Render(
					"warning: found IP count differs from the API's available count; other services may hold addresses"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS profile to use")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")

	return cmd
}
