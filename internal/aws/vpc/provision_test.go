package vpc

import (
	"context"
	"fmt"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// fakeRegion is a stateful VPCAPI backing the orchestrator tests: subnets and
// route tables land in maps so idempotence and route copies can be asserted.
type fakeRegion struct {
	cidrState      types.VpcCidrBlockStateCode
	associatedCidr string
	subnets        map[string]string   // cidr -> subnet ID
	subnetAZs      map[string]string   // subnet ID -> AZ
	routeTables    []string            // created route table IDs
	routes         map[string][]string // route table ID -> "dest via target"
	associations   map[string]string   // subnet ID -> route table ID
	sourceRoutes   []types.Route
	createSubnets  int
	duplicateRoute string // destination that fails with RouteAlreadyExists
}

func newFakeRegion(sourceRoutes []types.Route) *fakeRegion {
	return &fakeRegion{
		cidrState:    types.VpcCidrBlockStateCodeAssociated,
		subnets:      map[string]string{},
		subnetAZs:    map[string]string{},
		routes:       map[string][]string{},
		associations: map[string]string{},
		sourceRoutes: sourceRoutes,
	}
}

func (f *fakeRegion) api() *mockVPCAPI {
	return &mockVPCAPI{
		describeVpcsFunc: func(ctx context.Context, params *awsec2.DescribeVpcsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeVpcsOutput, error) {
			var assocs []types.VpcCidrBlockAssociation
			if f.associatedCidr != "" {
				assocs = append(assocs, types.VpcCidrBlockAssociation{
					CidrBlock:      awssdk.String(f.associatedCidr),
					CidrBlockState: &types.VpcCidrBlockState{State: f.cidrState},
				})
			}
			return &awsec2.DescribeVpcsOutput{
				Vpcs: []types.Vpc{{VpcId: awssdk.String("vpc-123"), CidrBlockAssociationSet: assocs}},
			}, nil
		},
		associateVpcCidrBlockFunc: func(ctx context.Context, params *awsec2.AssociateVpcCidrBlockInput, optFns ...func(*awsec2.Options)) (*awsec2.AssociateVpcCidrBlockOutput, error) {
			f.associatedCidr = awssdk.ToString(params.CidrBlock)
			return &awsec2.AssociateVpcCidrBlockOutput{}, nil
		},
		describeSubnetsFunc: func(ctx context.Context, params *awsec2.DescribeSubnetsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSubnetsOutput, error) {
			var cidr string
			for _, fl := range params.Filters {
				if awssdk.ToString(fl.Name) == "cidr-block" {
					cidr = fl.Values[0]
				}
			}
			if id, ok := f.subnets[cidr]; ok {
				return &awsec2.DescribeSubnetsOutput{
					Subnets: []types.Subnet{{SubnetId: awssdk.String(id), CidrBlock: awssdk.String(cidr)}},
				}, nil
			}
			return &awsec2.DescribeSubnetsOutput{}, nil
		},
		createSubnetFunc: func(ctx context.Context, params *awsec2.CreateSubnetInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateSubnetOutput, error) {
			f.createSubnets++
			id := fmt.Sprintf("subnet-%03d", f.createSubnets)
			cidr := awssdk.ToString(params.CidrBlock)
			f.subnets[cidr] = id
			f.subnetAZs[id] = awssdk.ToString(params.AvailabilityZone)
			return &awsec2.CreateSubnetOutput{
				Subnet: &types.Subnet{SubnetId: awssdk.String(id)},
			}, nil
		},
		createRouteTableFunc: func(ctx context.Context, params *awsec2.CreateRouteTableInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateRouteTableOutput, error) {
			id := fmt.Sprintf("rtb-%03d", len(f.routeTables)+1)
			f.routeTables = append(f.routeTables, id)
			return &awsec2.CreateRouteTableOutput{
				RouteTable: &types.RouteTable{RouteTableId: awssdk.String(id)},
			}, nil
		},
		describeRouteTablesFunc: func(ctx context.Context, params *awsec2.DescribeRouteTablesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeRouteTablesOutput, error) {
			if len(params.RouteTableIds) > 0 {
				// Source table lookup.
				return &awsec2.DescribeRouteTablesOutput{
					RouteTables: []types.RouteTable{{
						RouteTableId: awssdk.String(params.RouteTableIds[0]),
						Routes:       f.sourceRoutes,
					}},
				}, nil
			}
			// Association lookup by subnet: fake has no prior associations.
			return &awsec2.DescribeRouteTablesOutput{}, nil
		},
		associateRouteTableFunc: func(ctx context.Context, params *awsec2.AssociateRouteTableInput, optFns ...func(*awsec2.Options)) (*awsec2.AssociateRouteTableOutput, error) {
			f.associations[awssdk.ToString(params.SubnetId)] = awssdk.ToString(params.RouteTableId)
			return &awsec2.AssociateRouteTableOutput{AssociationId: awssdk.String("rtbassoc-x")}, nil
		},
		createRouteFunc: func(ctx context.Context, params *awsec2.CreateRouteInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateRouteOutput, error) {
			dest := awssdk.ToString(params.DestinationCidrBlock)
			if dest == "" {
				dest = awssdk.ToString(params.DestinationIpv6CidrBlock)
			}
			if dest == f.duplicateRoute {
				return nil, &smithy.GenericAPIError{
					Code:    "RouteAlreadyExists",
					Message: fmt.Sprintf("the route identified by %s already exists", dest),
				}
			}
			rtb := awssdk.ToString(params.RouteTableId)
			target := awssdk.ToString(params.GatewayId) + awssdk.ToString(params.NatGatewayId) +
				awssdk.ToString(params.VpcPeeringConnectionId) + awssdk.ToString(params.VpcEndpointId)
			f.routes[rtb] = append(f.routes[rtb], dest+" via "+target)
			return &awsec2.CreateRouteOutput{}, nil
		},
		describeAvailabilityZonesFunc: func(ctx context.Context, params *awsec2.DescribeAvailabilityZonesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeAvailabilityZonesOutput, error) {
			return &awsec2.DescribeAvailabilityZonesOutput{
				AvailabilityZones: []types.AvailabilityZone{
					{ZoneName: awssdk.String("us-east-1a")},
					{ZoneName: awssdk.String("us-east-1b")},
					{ZoneName: awssdk.String("us-east-1c")},
				},
			}, nil
		},
	}
}

func testConfig() ProvisionConfig {
	return ProvisionConfig{
		VPCID:            "vpc-123",
		VPCCIDR:          "172.32.65.0/24",
		SubnetCIDRs:      []string{"172.32.65.0/26", "172.32.65.64/26"},
		SourceRouteTable: "rtb-source",
		NamePrefix:       "expansion",
	}
}

func sourceRoutes() []types.Route {
	return []types.Route{
		{DestinationCidrBlock: awssdk.String("172.32.0.0/16"), GatewayId: awssdk.String("local")},
		{DestinationCidrBlock: awssdk.String("0.0.0.0/0"), GatewayId: awssdk.String("igw-abc")},
		{DestinationCidrBlock: awssdk.String("10.9.0.0/16"), NatGatewayId: awssdk.String("nat-xyz")},
		{DestinationIpv6CidrBlock: awssdk.String("::/0"), GatewayId: awssdk.String("igw-abc")},
		{DestinationCidrBlock: awssdk.String("192.168.0.0/16"), TransitGatewayId: awssdk.String("tgw-1")},
	}
}

func TestProvision_EndToEnd(t *testing.T) {
	fake := newFakeRegion(sourceRoutes())
	client := newTestClient(fake.api())

	res, err := client.Provision(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Subnets) != 2 {
		t.Fatalf("expected 2 subnets, got %d", len(res.Subnets))
	}
	if res.Subnets[0].SubnetID == res.Subnets[1].SubnetID {
		t.Error("subnets share an ID")
	}
	if res.Subnets[0].RouteTableID == res.Subnets[1].RouteTableID {
		t.Error("subnets share a route table")
	}
	if res.Subnets[0].AZ == res.Subnets[1].AZ {
		t.Errorf("auto-selected AZs should be distinct, both %s", res.Subnets[0].AZ)
	}

	// Each route table gets the igw, nat, and IPv6 routes; local and the
	// transit gateway route are never copied.
	for _, sub := range res.Subnets {
		if sub.RoutesCopied != 3 {
			t.Errorf("subnet %s: RoutesCopied = %d, want 3", sub.SubnetID, sub.RoutesCopied)
		}
		if sub.RoutesSkipped != 1 {
			t.Errorf("subnet %s: RoutesSkipped = %d, want 1", sub.SubnetID, sub.RoutesSkipped)
		}
		got := fake.routes[sub.RouteTableID]
		if len(got) != 3 {
			t.Fatalf("route table %s has %d routes: %v", sub.RouteTableID, len(got), got)
		}
		for _, r := range got {
			if r == "172.32.0.0/16 via local" {
				t.Errorf("local route copied into %s", sub.RouteTableID)
			}
			if r == "192.168.0.0/16 via tgw-1" {
				t.Errorf("unsupported target copied into %s", sub.RouteTableID)
			}
		}
		if fake.associations[sub.SubnetID] != sub.RouteTableID {
			t.Errorf("subnet %s associated with %s, want %s", sub.SubnetID, fake.associations[sub.SubnetID], sub.RouteTableID)
		}
	}
}

func TestProvision_IdempotentSubnets(t *testing.T) {
	fake := newFakeRegion(sourceRoutes())
	client := newTestClient(fake.api())

	first, err := client.Provision(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := client.Provision(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	for i := range first.Subnets {
		if first.Subnets[i].SubnetID != second.Subnets[i].SubnetID {
			t.Errorf("subnet %d: IDs differ between runs (%s vs %s)",
				i, first.Subnets[i].SubnetID, second.Subnets[i].SubnetID)
		}
		if !second.Subnets[i].Reused {
			t.Errorf("subnet %d: expected reuse on second run", i)
		}
	}
	if fake.createSubnets != 2 {
		t.Errorf("CreateSubnet called %d times, want 2", fake.createSubnets)
	}
}

func TestProvision_DuplicateRouteIsSkipped(t *testing.T) {
	fake := newFakeRegion(sourceRoutes())
	fake.duplicateRoute = "10.9.0.0/16"
	client := newTestClient(fake.api())

	res, err := client.Provision(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range res.Subnets {
		if sub.RoutesCopied != 2 {
			t.Errorf("RoutesCopied = %d, want 2 with one duplicate", sub.RoutesCopied)
		}
		if sub.RoutesSkipped != 2 {
			t.Errorf("RoutesSkipped = %d, want 2 (duplicate + unsupported)", sub.RoutesSkipped)
		}
	}
}

func TestIsRouteAlreadyExists(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"typed duplicate", &smithy.GenericAPIError{Code: "RouteAlreadyExists"}, true},
		{"wrapped typed duplicate", fmt.Errorf("CreateRoute: %w", &smithy.GenericAPIError{Code: "RouteAlreadyExists"}), true},
		{"other api error", &smithy.GenericAPIError{Code: "RouteLimitExceeded"}, false},
		{"plain error", fmt.Errorf("connection reset"), false},
	}
	for _, tc := range cases {
		if got := isRouteAlreadyExists(tc.err); got != tc.want {
			t.Errorf("%s: isRouteAlreadyExists = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestProvision_TimeoutCreatesNoSubnet(t *testing.T) {
	fake := newFakeRegion(sourceRoutes())
	fake.associatedCidr = "172.32.65.0/24"
	fake.cidrState = types.VpcCidrBlockStateCodeAssociating // never converges
	client := newTestClient(fake.api())

	_, err := client.Provision(context.Background(), testConfig())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if fake.createSubnets != 0 {
		t.Errorf("CreateSubnet called %d times after timeout, want 0", fake.createSubnets)
	}
}

func TestProvision_ValidationRejectsBadInput(t *testing.T) {
	client := newTestClient(&mockVPCAPI{}) // nil funcs: any API call would panic

	cases := []struct {
		name   string
		mutate func(*ProvisionConfig)
	}{
		{"malformed vpc cidr", func(c *ProvisionConfig) { c.VPCCIDR = "172.32.65/24" }},
		{"malformed subnet cidr", func(c *ProvisionConfig) { c.SubnetCIDRs[0] = "not-a-cidr" }},
		{"subnet outside vpc", func(c *ProvisionConfig) { c.SubnetCIDRs[1] = "10.0.0.0/26" }},
		{"subnet equals vpc", func(c *ProvisionConfig) { c.SubnetCIDRs[0] = "172.32.65.0/24" }},
		{"missing vpc id", func(c *ProvisionConfig) { c.VPCID = "" }},
		{"missing source table", func(c *ProvisionConfig) { c.SourceRouteTable = "" }},
	}
	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		if _, err := client.Provision(context.Background(), cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestProvision_ExplicitZonesRespected(t *testing.T) {
	fake := newFakeRegion(sourceRoutes())
	client := newTestClient(fake.api())

	cfg := testConfig()
	cfg.AZs = []string{"us-east-1c", "us-east-1a"}
	res, err := client.Provision(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Subnets[0].AZ != "us-east-1c" || res.Subnets[1].AZ != "us-east-1a" {
		t.Errorf("AZs = %s, %s; want us-east-1c, us-east-1a", res.Subnets[0].AZ, res.Subnets[1].AZ)
	}
}
