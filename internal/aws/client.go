package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	awsiamsdk "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsebs "github.com/opsctl/opsctl/internal/aws/ebs"
	awsiam "github.com/opsctl/opsctl/internal/aws/iam"
	awsusage "github.com/opsctl/opsctl/internal/aws/usage"
	awsvpc "github.com/opsctl/opsctl/internal/aws/vpc"
)

// STSAPI is the caller-identity slice of the STS client.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type ServiceClient struct {
	VPC   *awsvpc.Client
	IAM   *awsiam.Client
	EBS   *awsebs.Client
	Usage *awsusage.Client

	sts STSAPI
}

// LoadConfig loads an AWS config with optional profile and region overrides.
func LoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

func NewServiceClient(ctx context.Context, profile, region string) (*ServiceClient, error) {
	cfg, err := LoadConfig(ctx, profile, region)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	ec2Client := ec2.NewFromConfig(cfg)

	return &ServiceClient{
		VPC: awsvpc.NewClient(ec2Client),
		IAM: awsiam.NewClient(awsiamsdk.NewFromConfig(cfg)),
		EBS: awsebs.NewClient(ec2Client),
		Usage: awsusage.NewClient(
			ec2Client,
			elbv2.NewFromConfig(cfg),
			autoscaling.NewFromConfig(cfg),
			eks.NewFromConfig(cfg),
		),
		sts: sts.NewFromConfig(cfg),
	}, nil
}

// AccountID returns the account the credentials resolve to, or empty string
// when the lookup fails (non-fatal, for display only).
func (s *ServiceClient) AccountID(ctx context.Context) string {
	out, err := s.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return ""
	}
	return aws.ToString(out.Account)
}
