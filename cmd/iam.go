package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	awsiam "github.com/opsctl/opsctl/internal/aws/iam"
	"github.com/opsctl/opsctl/internal/cli"
)

func NewIAMCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iam",
		Short: "IAM role bootstrapping",
	}
	cmd.AddCommand(newIAMBootstrapCmd())
	return cmd
}

func newIAMBootstrapCmd() *cobra.Command {
	var (
		profile, region string
		roleName        string
		service         string
		description     string
		policyARNs      []string
		instanceProfile bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create a service role, attach policies, optionally add an instance profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newAWSClient(ctx, profile, region)
			if err != nil {
				return err
			}

			result, err := client.IAM.BootstrapRole(ctx, awsiam.RoleSpec{
				Name:             roleName,
				ServicePrincipal: service,
				Description:      description,
				PolicyARNs:       policyARNs,
				InstanceProfile:  instanceProfile,
			})
			if err != nil {
				recordRun(ctx, "iam bootstrap", err.Error(), false)
				return err
			}

			if account := client.AccountID(ctx); account != "" {
				fmt.Println(cli.MutedStyle.Render("account " + account))
			}
			state := "reused"
			if result.RoleCreated {
				state = "created"
			}
			fmt.Printf("%s role %s (%s)\n", cli.SuccessStyle.Render(state), roleName, result.RoleARN)
			for _, arn := range result.PoliciesAttached {
				fmt.Printf("  attached %s\n", arn)
			}
			for _, arn := range result.PoliciesAlreadyPresent {
				fmt.Printf("  %s\n", cli.MutedStyle.Render("already attached "+arn))
			}
			if instanceProfile {
				if result.InstanceProfileCreated {
					fmt.Println("  instance profile created")
				} else {
					fmt.Println(cli.MutedStyle.Render("  instance profile already existed"))
				}
			}

			recordRun(ctx, "iam bootstrap",
				fmt.Sprintf("role %s %s, %d policies attached", roleName, state,
					len(result.PoliciesAttached)), true)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS profile to use")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&roleName, "role", "", "role name")
	cmd.Flags().StringVar(&service, "service", "ec2.amazonaws.com", "service principal for the trust policy")
	cmd.Flags().StringVar(&description, "description", "", "role description")
	cmd.Flags().StringSliceVar(&policyARNs, "policy-arn", nil, "managed policy ARN to attach (repeatable)")
	cmd.Flags().BoolVar(&instanceProfile, "instance-profile", false, "also create an instance profile holding the role")
	cmd.MarkFlagRequired("role")

	return cmd
}
