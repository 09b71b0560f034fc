package vpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"k8s.io/klog/v2"

	"github.com/opsctl/opsctl/internal/wait"
)

type VPCAPI interface {
	DescribeVpcs(ctx context.Context, params *awsec2.DescribeVpcsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeVpcsOutput, error)
	AssociateVpcCidrBlock(ctx context.Context, params *awsec2.AssociateVpcCidrBlockInput, optFns ...func(*awsec2.Options)) (*awsec2.AssociateVpcCidrBlockOutput, error)
	DescribeSubnets(ctx context.Context, params *awsec2.DescribeSubnetsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSubnetsOutput, error)
	CreateSubnet(ctx context.Context, params *awsec2.CreateSubnetInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateSubnetOutput, error)
	CreateRouteTable(ctx context.Context, params *awsec2.CreateRouteTableInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateRouteTableOutput, error)
	DescribeRouteTables(ctx context.Context, params *awsec2.DescribeRouteTablesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeRouteTablesOutput, error)
	AssociateRouteTable(ctx context.Context, params *awsec2.AssociateRouteTableInput, optFns ...func(*awsec2.Options)) (*awsec2.AssociateRouteTableOutput, error)
	ReplaceRouteTableAssociation(ctx context.Context, params *awsec2.ReplaceRouteTableAssociationInput, optFns ...func(*awsec2.Options)) (*awsec2.ReplaceRouteTableAssociationOutput, error)
	CreateRoute(ctx context.Context, params *awsec2.CreateRouteInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateRouteOutput, error)
	DescribeAvailabilityZones(ctx context.Context, params *awsec2.DescribeAvailabilityZonesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeAvailabilityZonesOutput, error)
}

type Client struct {
	api VPCAPI

	// Polling knobs for CIDR association convergence.
	PollInterval time.Duration
	PollAttempts int
}

func NewClient(api VPCAPI) *Client {
	return &Client{
		api:          api,
		PollInterval: 5 * time.Second,
		PollAttempts: 30,
	}
}

// CidrBlockState returns the association state of cidr on the VPC, or
// CidrStateMissing when no association exists.
func (c *Client) CidrBlockState(ctx context.Context, vpcID, cidr string) (CidrState, error) {
	out, err := c.api.DescribeVpcs(ctx, &awsec2.DescribeVpcsInput{
		VpcIds: []string{vpcID},
	})
	if err != nil {
		return CidrStateMissing, fmt.Errorf("DescribeVpcs(%s): %w", vpcID, err)
	}
	if len(out.Vpcs) == 0 {
		return CidrStateMissing, fmt.Errorf("VPC %s not found", vpcID)
	}

	for _, assoc := range out.Vpcs[0].CidrBlockAssociationSet {
		if aws.ToString(assoc.CidrBlock) != cidr {
			continue
		}
		if assoc.CidrBlockState == nil {
			return CidrStateMissing, nil
		}
		return CidrState(assoc.CidrBlockState.State), nil
	}
	return CidrStateMissing, nil
}

// EnsureCidrBlock makes sure cidr is associated with the VPC and in the
// `associated` state. Already-associated blocks are a no-op; in-flight
// associations are polled until they converge; `failed` and `failing` are
// fatal, as is exhausting the poll budget.
func (c *Client) EnsureCidrBlock(ctx context.Context, vpcID, cidr string) error {
	state, err := c.CidrBlockState(ctx, vpcID, cidr)
	if err != nil {
		return err
	}

	switch state {
	case CidrStateAssociated:
		klog.V(2).Infof("CIDR %s already associated with %s", cidr, vpcID)
		return nil
	case CidrStateFailed, CidrStateFailing:
		return fmt.Errorf("CIDR %s association on %s is in state %q", cidr, vpcID, state)
	case CidrStateMissing, CidrStateDisassociated:
		klog.V(2).Infof("associating CIDR %s with %s", cidr, vpcID)
		if _, err := c.api.AssociateVpcCidrBlock(ctx, &awsec2.AssociateVpcCidrBlockInput{
			VpcId:     aws.String(vpcID),
			CidrBlock: aws.String(cidr),
		}); err != nil {
			return fmt.Errorf("AssociateVpcCidrBlock(%s, %s): %w", vpcID, cidr, err)
		}
	}

	return c.waitCidrAssociated(ctx, vpcID, cidr)
}

func (c *Client) waitCidrAssociated(ctx context.Context, vpcID, cidr string) error {
	err := wait.Until(ctx, c.PollInterval, c.PollAttempts, func(ctx context.Context) (bool, error) {
		state, err := c.CidrBlockState(ctx, vpcID, cidr)
		if err != nil {
			return false, err
		}
		switch state {
		case CidrStateAssociated:
			return true, nil
		case CidrStateFailed, CidrStateFailing:
			return false, fmt.Errorf("CIDR %s association on %s reached state %q", cidr, vpcID, state)
		default:
			klog.V(2).Infof("CIDR %s on %s still %q", cidr, vpcID, state)
			return false, nil
		}
	})
	if err != nil {
		return fmt.Errorf("waiting for CIDR %s on %s: %w", cidr, vpcID, err)
	}
	return nil
}

// FindSubnetByCIDR returns the ID of the subnet in the VPC with exactly this
// CIDR, or empty string when none exists.
func (c *Client) FindSubnetByCIDR(ctx context.Context, vpcID, cidr string) (string, error) {
	out, err := c.api.DescribeSubnets(ctx, &awsec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("cidr-block"), Values: []string{cidr}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("DescribeSubnets: %w", err)
	}
	if len(out.Subnets) == 0 {
		return "", nil
	}
	return aws.ToString(out.Subnets[0].SubnetId), nil
}

// CreateSubnet creates a subnet with a Name tag and returns its ID.
func (c *Client) CreateSubnet(ctx context.Context, vpcID, cidr, az, name string) (string, error) {
	out, err := c.api.CreateSubnet(ctx, &awsec2.CreateSubnetInput{
		VpcId:            aws.String(vpcID),
		CidrBlock:        aws.String(cidr),
		AvailabilityZone: aws.String(az),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeSubnet,
				Tags: []types.Tag{
					{Key: aws.String("Name"), Value: aws.String(name)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("CreateSubnet(%s): %w", cidr, err)
	}
	return aws.ToString(out.Subnet.SubnetId), nil
}

// CreateRouteTable creates a route table in the VPC with a Name tag.
func (c *Client) CreateRouteTable(ctx context.Context, vpcID, name string) (string, error) {
	out, err := c.api.CreateRouteTable(ctx, &awsec2.CreateRouteTableInput{
		VpcId: aws.String(vpcID),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeRouteTable,
				Tags: []types.Tag{
					{Key: aws.String("Name"), Value: aws.String(name)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("CreateRouteTable(%s): %w", vpcID, err)
	}
	return aws.ToString(out.RouteTable.RouteTableId), nil
}

// AssociateRouteTable binds the route table to the subnet. When the subnet
// already has an explicit association it is replaced rather than erroring.
func (c *Client) AssociateRouteTable(ctx context.Context, routeTableID, subnetID string) error {
	existing, err := c.findSubnetAssociation(ctx, subnetID)
	if err != nil {
		return err
	}

	if existing != "" {
		klog.V(2).Infof("replacing route table association %s on %s", existing, subnetID)
		if _, err := c.api.ReplaceRouteTableAssociation(ctx, &awsec2.ReplaceRouteTableAssociationInput{
			AssociationId: aws.String(existing),
			RouteTableId:  aws.String(routeTableID),
		}); err != nil {
			return fmt.Errorf("ReplaceRouteTableAssociation(%s): %w", subnetID, err)
		}
		return nil
	}

	if _, err := c.api.AssociateRouteTable(ctx, &awsec2.AssociateRouteTableInput{
		RouteTableId: aws.String(routeTableID),
		SubnetId:     aws.String(subnetID),
	}); err != nil {
		return fmt.Errorf("AssociateRouteTable(%s, %s): %w", routeTableID, subnetID, err)
	}
	return nil
}

func (c *Client) findSubnetAssociation(ctx context.Context, subnetID string) (string, error) {
	out, err := c.api.DescribeRouteTables(ctx, &awsec2.DescribeRouteTablesInput{
		Filters: []types.Filter{
			{Name: aws.String("association.subnet-id"), Values: []string{subnetID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("DescribeRouteTables(association %s): %w", subnetID, err)
	}
	for _, rt := range out.RouteTables {
		for _, assoc := range rt.Associations {
			if aws.ToString(assoc.SubnetId) == subnetID {
				return aws.ToString(assoc.RouteTableAssociationId), nil
			}
		}
	}
	return "", nil
}

// SourceRoutes fetches the routes of a route table and decodes their targets.
func (c *Client) SourceRoutes(ctx context.Context, routeTableID string) ([]RouteSpec, error) {
	out, err := c.api.DescribeRouteTables(ctx, &awsec2.DescribeRouteTablesInput{
		RouteTableIds: []string{routeTableID},
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeRouteTables(%s): %w", routeTableID, err)
	}
	if len(out.RouteTables) == 0 {
		return nil, fmt.Errorf("route table %s not found", routeTableID)
	}

	var specs []RouteSpec
	for _, r := range out.RouteTables[0].Routes {
		specs = append(specs, RouteSpec{
			DestinationCIDR:     aws.ToString(r.DestinationCidrBlock),
			DestinationIPv6CIDR: aws.ToString(r.DestinationIpv6CidrBlock),
			Target:              decodeTarget(r),
		})
	}
	return specs, nil
}

// decodeTarget inspects which target field the route declares. GatewayId is
// overloaded by EC2: it carries "local", internet gateways, virtual gateways,
// and gateway VPC endpoints, so it is split by identifier class.
func decodeTarget(r types.Route) RouteTarget {
	switch {
	case r.NatGatewayId != nil:
		return RouteTarget{Kind: TargetNATGateway, ID: aws.ToString(r.NatGatewayId)}
	case r.VpcPeeringConnectionId != nil:
		return RouteTarget{Kind: TargetVPCPeering, ID: aws.ToString(r.VpcPeeringConnectionId)}
	case r.GatewayId != nil:
		id := aws.ToString(r.GatewayId)
		switch {
		case id == "local":
			return RouteTarget{Kind: TargetLocal, ID: id}
		case strings.HasPrefix(id, "igw-"):
			return RouteTarget{Kind: TargetInternetGateway, ID: id}
		case strings.HasPrefix(id, "vgw-"):
			return RouteTarget{Kind: TargetVirtualGateway, ID: id}
		case strings.HasPrefix(id, "vpce-"):
			return RouteTarget{Kind: TargetVPCEndpoint, ID: id}
		}
	}
	return RouteTarget{Kind: TargetUnsupported}
}

// CreateRoute adds one route to the table, mapping the decoded target kind
// back onto the matching input field.
func (c *Client) CreateRoute(ctx context.Context, routeTableID string, spec RouteSpec) error {
	in := &awsec2.CreateRouteInput{
		RouteTableId: aws.String(routeTableID),
	}
	if spec.DestinationCIDR != "" {
		in.DestinationCidrBlock = aws.String(spec.DestinationCIDR)
	} else if spec.DestinationIPv6CIDR != "" {
		in.DestinationIpv6CidrBlock = aws.String(spec.DestinationIPv6CIDR)
	} else {
		return fmt.Errorf("route has no CIDR destination")
	}

	switch spec.Target.Kind {
	case TargetInternetGateway, TargetVirtualGateway:
		in.GatewayId = aws.String(spec.Target.ID)
	case TargetNATGateway:
		in.NatGatewayId = aws.String(spec.Target.ID)
	case TargetVPCPeering:
		in.VpcPeeringConnectionId = aws.String(spec.Target.ID)
	case TargetVPCEndpoint:
		in.VpcEndpointId = aws.String(spec.Target.ID)
	default:
		return fmt.Errorf("unsupported route target %s", spec.Target.Kind)
	}

	if _, err := c.api.CreateRoute(ctx, in); err != nil {
		return fmt.Errorf("CreateRoute(%s -> %s): %w", spec.Destination(), spec.Target.ID, err)
	}
	return nil
}

// AvailabilityZones lists the names of available zones in the region.
func (c *Client) AvailabilityZones(ctx context.Context) ([]string, error) {
	out, err := c.api.DescribeAvailabilityZones(ctx, &awsec2.DescribeAvailabilityZonesInput{
		Filters: []types.Filter{
			{Name: aws.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeAvailabilityZones: %w", err)
	}

	var zones []string
	for _, az := range out.AvailabilityZones {
		zones = append(zones, aws.ToString(az.ZoneName))
	}
	return zones, nil
}
