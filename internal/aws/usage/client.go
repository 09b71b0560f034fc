package usage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"k8s.io/klog/v2"

	"github.com/opsctl/opsctl/internal/netcalc"
)

// elbMaxIPs is how many addresses a single ELB can claim in one subnet
// when fully scaled out.
const elbMaxIPs = 8

var (
	subnetIDRe = regexp.MustCompile(`^subnet-[a-fA-F0-9]+$`)
	cidrRe     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/\d{1,2}$`)
	eniELBRe   = regexp.MustCompile(`^eni-[a-f0-9]+ / ELB (.+)$`)
)

type EC2API interface {
	DescribeSubnets(ctx context.Context, params *awsec2.DescribeSubnetsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSubnetsOutput, error)
	DescribeNetworkInterfaces(ctx context.Context, params *awsec2.DescribeNetworkInterfacesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeNetworkInterfacesOutput, error)
	DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
}

type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DescribeTags(ctx context.Context, params *elbv2.DescribeTagsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error)
}

type ASGAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}

type EKSAPI interface {
	ListClusters(ctx context.Context, params *awseks.ListClustersInput, optFns ...func(*awseks.Options)) (*awseks.ListClustersOutput, error)
	ListNodegroups(ctx context.Context, params *awseks.ListNodegroupsInput, optFns ...func(*awseks.Options)) (*awseks.ListNodegroupsOutput, error)
	DescribeNodegroup(ctx context.Context, params *awseks.DescribeNodegroupInput, optFns ...func(*awseks.Options)) (*awseks.DescribeNodegroupOutput, error)
}

type Client struct {
	ec2 EC2API
	elb ELBAPI
	asg ASGAPI
	eks EKSAPI
}

func NewClient(ec2 EC2API, elb ELBAPI, asg ASGAPI, eks EKSAPI) *Client {
	return &Client{ec2: ec2, elb: elb, asg: asg, eks: eks}
}

// Analyze resolves the subnet and builds the full usage report.
// The query is either a subnet ID or an exact CIDR block.
func (c *Client) Analyze(ctx context.Context, query string) (*Report, error) {
	subnet, err := c.FindSubnet(ctx, query)
	if err != nil {
		return nil, err
	}

	prefix, err := netcalc.ParseCIDR(subnet.CIDR)
	if err != nil {
		return nil, fmt.Errorf("subnet %s: %w", subnet.SubnetID, err)
	}

	report := &Report{
		Subnet:    *subnet,
		UsedIPs:   map[string]string{},
		UsableIPs: netcalc.UsableIPs(prefix),
	}

	if err := c.collectENIs(ctx, subnet.SubnetID, report.UsedIPs); err != nil {
		return nil, err
	}
	instanceIPs, err := c.collectInstances(ctx, subnet.SubnetID, report.UsedIPs)
	if err != nil {
		return nil, err
	}

	if report.ELB, err = c.elbUsage(ctx, subnet.SubnetID, report.UsedIPs); err != nil {
		return nil, err
	}
	if report.NLBs, err = c.networkLBs(ctx, subnet.SubnetID); err != nil {
		return nil, err
	}
	if report.ASG, err = c.asgUsage(ctx, subnet.SubnetID, instanceIPs); err != nil {
		return nil, err
	}
	if report.Nodegroups, err = c.nodegroups(ctx, subnet.SubnetID); err != nil {
		return nil, err
	}

	report.CountMismatch = len(report.UsedIPs) != report.UsableIPs-subnet.AvailableIPs
	return report, nil
}

// FindSubnet resolves a subnet ID or exact CIDR block to one subnet.
// When a CIDR matches several subnets the first one wins, with a warning.
func (c *Client) FindSubnet(ctx context.Context, query string) (*Subnet, error) {
	input := &awsec2.DescribeSubnetsInput{}
	switch {
	case subnetIDRe.MatchString(query):
		input.SubnetIds = []string{query}
	case cidrRe.MatchString(query):
		input.Filters = []ec2types.Filter{
			{Name: aws.String("cidr-block"), Values: []string{query}},
		}
	default:
		return nil, fmt.Errorf("%q is neither a subnet ID nor a CIDR block", query)
	}

	out, err := c.ec2.DescribeSubnets(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("DescribeSubnets(%s): %w", query, err)
	}
	if len(out.Subnets) == 0 {
		return nil, fmt.Errorf("no subnet found matching %s", query)
	}
	if len(out.Subnets) > 1 {
		klog.Warningf("%d subnets match %s, using the first", len(out.Subnets), query)
	}

	s := out.Subnets[0]
	return &Subnet{
		SubnetID:     aws.ToString(s.SubnetId),
		CIDR:         aws.ToString(s.CidrBlock),
		AZ:           aws.ToString(s.AvailabilityZone),
		VPCID:        aws.ToString(s.VpcId),
		AvailableIPs: int(aws.ToInt32(s.AvailableIpAddressCount)),
	}, nil
}

// collectENIs records every private IP held by an ENI in the subnet.
func (c *Client) collectENIs(ctx context.Context, subnetID string, used map[string]string) error {
	var nextToken *string
	for {
		out, err := c.ec2.DescribeNetworkInterfaces(ctx, &awsec2.DescribeNetworkInterfacesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("subnet-id"), Values: []string{subnetID}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return fmt.Errorf("DescribeNetworkInterfaces(%s): %w", subnetID, err)
		}

		for _, eni := range out.NetworkInterfaces {
			for _, addr := range eni.PrivateIpAddresses {
				used[aws.ToString(addr.PrivateIpAddress)] = fmt.Sprintf(
					"%s / %s",
					aws.ToString(eni.NetworkInterfaceId),
					aws.ToString(eni.Description),
				)
			}
		}

		if out.NextToken == nil {
			return nil
		}
		nextToken = out.NextToken
	}
}

// collectInstances records instance private IPs, overriding the generic ENI
// description with the instance ID. Returns IP -> instance ID.
func (c *Client) collectInstances(ctx context.Context, subnetID string, used map[string]string) (map[string]string, error) {
	instanceIPs := map[string]string{}
	var nextToken *string

	for {
		out, err := c.ec2.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("subnet-id"), Values: []string{subnetID}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances(%s): %w", subnetID, err)
		}

		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				ip := aws.ToString(inst.PrivateIpAddress)
				if ip == "" {
					continue
				}
				id := aws.ToString(inst.InstanceId)
				used[ip] = id
				instanceIPs[ip] = id
			}
		}

		if out.NextToken == nil {
			return instanceIPs, nil
		}
		nextToken = out.NextToken
	}
}

// elbUsage counts classic/application ELBs by the "ELB <name>" description
// their ENIs carry, then counts each one's ENIs in this subnet.
func (c *Client) elbUsage(ctx context.Context, subnetID string, used map[string]string) (LoadBalancerUsage, error) {
	names := map[string]bool{}
	for _, desc := range used {
		if m := eniELBRe.FindStringSubmatch(desc); m != nil {
			names[m[1]] = true
		}
	}

	usage := LoadBalancerUsage{Count: len(names)}
	for name := range names {
		out, err := c.ec2.DescribeNetworkInterfaces(ctx, &awsec2.DescribeNetworkInterfacesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("description"), Values: []string{"ELB " + name}},
				{Name: aws.String("subnet-id"), Values: []string{subnetID}},
			},
		})
		if err != nil {
			return usage, fmt.Errorf("DescribeNetworkInterfaces(ELB %s): %w", name, err)
		}
		usage.CurrentIPs += len(out.NetworkInterfaces)
		usage.MaxIPs += elbMaxIPs
	}
	return usage, nil
}

// networkLBs lists NLBs whose availability zones include the subnet,
// along with their tags. Tag lookup failures are not fatal.
func (c *Client) networkLBs(ctx context.Context, subnetID string) ([]NLB, error) {
	var nlbs []NLB
	var marker *string

	for {
		out, err := c.elb.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("DescribeLoadBalancers: %w", err)
		}

		for _, lb := range out.LoadBalancers {
			if lb.Type != elbv2types.LoadBalancerTypeEnumNetwork {
				continue
			}
			inSubnet := false
			for _, az := range lb.AvailabilityZones {
				if aws.ToString(az.SubnetId) == subnetID {
					inSubnet = true
					break
				}
			}
			if !inSubnet {
				continue
			}
			arn := aws.ToString(lb.LoadBalancerArn)
			nlb := NLB{
				Name: aws.ToString(lb.LoadBalancerName),
				DNS:  aws.ToString(lb.DNSName),
				ARN:  arn,
			}
			if lb.State != nil {
				nlb.State = string(lb.State.Code)
			}
			nlb.Tags = c.lbTags(ctx, arn)
			nlbs = append(nlbs, nlb)
		}

		if out.NextMarker == nil {
			return nlbs, nil
		}
		marker = out.NextMarker
	}
}

func (c *Client) lbTags(ctx context.Context, arn string) map[string]string {
	out, err := c.elb.DescribeTags(ctx, &elbv2.DescribeTagsInput{ResourceArns: []string{arn}})
	if err != nil {
		klog.V(1).Infof("could not get tags for %s: %v", arn, err)
		return nil
	}
	tags := map[string]string{}
	for _, td := range out.TagDescriptions {
		for _, tag := range td.Tags {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	return tags
}

// asgUsage scans every ASG whose VPCZoneIdentifier names the subnet and
// counts how many of its instances we already saw there.
func (c *Client) asgUsage(ctx context.Context, subnetID string, instanceIPs map[string]string) (ASGUsage, error) {
	present := map[string]bool{}
	for _, id := range instanceIPs {
		present[id] = true
	}

	usage := ASGUsage{}
	var nextToken *string
	for {
		out, err := c.asg.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			NextToken: nextToken,
		})
		if err != nil {
			return usage, fmt.Errorf("DescribeAutoScalingGroups: %w", err)
		}

		for _, group := range out.AutoScalingGroups {
			subnets := strings.Split(aws.ToString(group.VPCZoneIdentifier), ",")
			inSubnet := false
			for _, s := range subnets {
				if s == subnetID {
					inSubnet = true
					break
				}
			}
			if !inSubnet {
				continue
			}
			usage.Count++
			usage.MaxCapacity += int(aws.ToInt32(group.MaxSize))
			for _, inst := range group.Instances {
				if present[aws.ToString(inst.InstanceId)] {
					usage.InstancesPresent++
				}
			}
		}

		if out.NextToken == nil {
			return usage, nil
		}
		nextToken = out.NextToken
	}
}

// nodegroups walks every EKS cluster looking for node groups whose subnet
// list includes the target.
func (c *Client) nodegroups(ctx context.Context, subnetID string) ([]Nodegroup, error) {
	clusters, err := c.listClusters(ctx)
	if err != nil {
		return nil, err
	}

	var found []Nodegroup
	for _, cluster := range clusters {
		names, err := c.listNodegroups(ctx, cluster)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			out, err := c.eks.DescribeNodegroup(ctx, &awseks.DescribeNodegroupInput{
				ClusterName:   aws.String(cluster),
				NodegroupName: aws.String(name),
			})
			if err != nil {
				return nil, fmt.Errorf("DescribeNodegroup(%s/%s): %w", cluster, name, err)
			}
			ng := out.Nodegroup
			if ng == nil {
				continue
			}
			inSubnet := false
			for _, s := range ng.Subnets {
				if s == subnetID {
					inSubnet = true
					break
				}
			}
			if !inSubnet {
				continue
			}
			item := Nodegroup{
				Cluster:       cluster,
				Name:          name,
				Status:        string(ng.Status),
				InstanceTypes: ng.InstanceTypes,
			}
			if sc := ng.ScalingConfig; sc != nil {
				item.MinSize = int(aws.ToInt32(sc.MinSize))
				item.MaxSize = int(aws.ToInt32(sc.MaxSize))
				item.DesiredSize = int(aws.ToInt32(sc.DesiredSize))
			}
			found = append(found, item)
		}
	}
	return found, nil
}

func (c *Client) listClusters(ctx context.Context) ([]string, error) {
	var clusters []string
	var nextToken *string
	for {
		out, err := c.eks.ListClusters(ctx, &awseks.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("ListClusters: %w", err)
		}
		clusters = append(clusters, out.Clusters...)
		if out.NextToken == nil {
			return clusters, nil
		}
		nextToken = out.NextToken
	}
}

func (c *Client) listNodegroups(ctx context.Context, cluster string) ([]string, error) {
	var names []string
	var nextToken *string
	for {
		out, err := c.eks.ListNodegroups(ctx, &awseks.ListNodegroupsInput{
			ClusterName: aws.String(cluster),
			NextToken:   nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("ListNodegroups(%s): %w", cluster, err)
		}
		names = append(names, out.Nodegroups...)
		if out.NextToken == nil {
			return names, nil
		}
		nextToken = out.NextToken
	}
}
