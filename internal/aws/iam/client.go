package iam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsiam "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"k8s.io/klog/v2"
)

type IAMAPI interface {
	CreateRole(ctx context.Context, params *awsiam.CreateRoleInput, optFns ...func(*awsiam.Options)) (*awsiam.CreateRoleOutput, error)
	GetRole(ctx context.Context, params *awsiam.GetRoleInput, optFns ...func(*awsiam.Options)) (*awsiam.GetRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *awsiam.AttachRolePolicyInput, optFns ...func(*awsiam.Options)) (*awsiam.AttachRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *awsiam.ListAttachedRolePoliciesInput, optFns ...func(*awsiam.Options)) (*awsiam.ListAttachedRolePoliciesOutput, error)
	CreateInstanceProfile(ctx context.Context, params *awsiam.CreateInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.CreateInstanceProfileOutput, error)
	AddRoleToInstanceProfile(ctx context.Context, params *awsiam.AddRoleToInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.AddRoleToInstanceProfileOutput, error)
}

type Client struct {
	api IAMAPI
}

func NewClient(api IAMAPI) *Client {
	return &Client{api: api}
}

// assumeRolePolicy builds the trust policy document for a service principal.
func assumeRolePolicy(principal string) (string, error) {
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Effect":    "Allow",
				"Principal": map[string]any{"Service": principal},
				"Action":    "sts:AssumeRole",
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling trust policy: %w", err)
	}
	return string(b), nil
}

// BootstrapRole creates the role (idempotently), attaches the requested
// managed policies, and optionally wraps the role in an instance profile.
func (c *Client) BootstrapRole(ctx context.Context, spec RoleSpec) (*BootstrapResult, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("role name is required")
	}
	if spec.ServicePrincipal == "" {
		return nil, fmt.Errorf("service principal is required")
	}

	result := &BootstrapResult{}

	trust, err := assumeRolePolicy(spec.ServicePrincipal)
	if err != nil {
		return nil, err
	}

	out, err := c.api.CreateRole(ctx, &awsiam.CreateRoleInput{
		RoleName:                 aws.String(spec.Name),
		AssumeRolePolicyDocument: aws.String(trust),
		Description:              aws.String(spec.Description),
	})
	switch {
	case err == nil:
		result.RoleCreated = true
		result.RoleARN = aws.ToString(out.Role.Arn)
	case isEntityExists(err):
		klog.V(1).Infof("role %s already exists, reusing", spec.Name)
		existing, gerr := c.api.GetRole(ctx, &awsiam.GetRoleInput{RoleName: aws.String(spec.Name)})
		if gerr != nil {
			return nil, fmt.Errorf("GetRole(%s): %w", spec.Name, gerr)
		}
		result.RoleARN = aws.ToString(existing.Role.Arn)
	default:
		return nil, fmt.Errorf("CreateRole(%s): %w", spec.Name, err)
	}

	attached, err := c.attachedPolicies(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	for _, arn := range spec.PolicyARNs {
		if attached[arn] {
			result.PoliciesAlreadyPresent = append(result.PoliciesAlreadyPresent, arn)
			continue
		}
		if _, err := c.api.AttachRolePolicy(ctx, &awsiam.AttachRolePolicyInput{
			RoleName:  aws.String(spec.Name),
			PolicyArn: aws.String(arn),
		}); err != nil {
			return nil, fmt.Errorf("AttachRolePolicy(%s, %s): %w", spec.Name, arn, err)
		}
		result.PoliciesAttached = append(result.PoliciesAttached, arn)
	}

	if spec.InstanceProfile {
		created, err := c.ensureInstanceProfile(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		result.InstanceProfileCreated = created
	}

	return result, nil
}

func (c *Client) attachedPolicies(ctx context.Context, roleName string) (map[string]bool, error) {
	attached := map[string]bool{}
	var marker *string

	for {
		out, err := c.api.ListAttachedRolePolicies(ctx, &awsiam.ListAttachedRolePoliciesInput{
			RoleName: aws.String(roleName),
			Marker:   marker,
		})
		if err != nil {
			return nil, fmt.Errorf("ListAttachedRolePolicies(%s): %w", roleName, err)
		}

		for _, p := range out.AttachedPolicies {
			attached[aws.ToString(p.PolicyArn)] = true
		}

		if !out.IsTruncated {
			break
		}
		marker = out.Marker
	}

	return attached, nil
}

// ensureInstanceProfile creates an instance profile named after the role and
// adds the role to it. Both steps tolerate the entity already existing.
func (c *Client) ensureInstanceProfile(ctx context.Context, roleName string) (bool, error) {
	created := true
	_, err := c.api.CreateInstanceProfile(ctx, &awsiam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(roleName),
	})
	if err != nil {
		if !isEntityExists(err) {
			return false, fmt.Errorf("CreateInstanceProfile(%s): %w", roleName, err)
		}
		klog.V(1).Infof("instance profile %s already exists", roleName)
		created = false
	}

	_, err = c.api.AddRoleToInstanceProfile(ctx, &awsiam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(roleName),
		RoleName:            aws.String(roleName),
	})
	if err != nil && !isLimitExceeded(err) {
		return created, fmt.Errorf("AddRoleToInstanceProfile(%s): %w", roleName, err)
	}
	return created, nil
}

func isEntityExists(err error) bool {
	var exists *iamtypes.EntityAlreadyExistsException
	return errors.As(err, &exists)
}

// isLimitExceeded matches the error IAM returns when the instance profile
// already holds its (single) role.
func isLimitExceeded(err error) bool {
	var limit *iamtypes.LimitExceededException
	return errors.As(err, &limit)
}
