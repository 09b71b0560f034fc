package vpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"k8s.io/klog/v2"

	"github.com/opsctl/opsctl/internal/netcalc"
)

// ProvisionConfig carries everything a provisioning run needs. It is built
// from flags and the config file; nothing is read from process globals.
type ProvisionConfig struct {
	VPCID            string
	VPCCIDR          string
	SubnetCIDRs      []string
	AZs              []string // optional; auto-selected when shorter than SubnetCIDRs
	SourceRouteTable string
	NamePrefix       string
}

func (c *ProvisionConfig) validate() error {
	if c.VPCID == "" {
		return fmt.Errorf("vpc-id is required")
	}
	if c.SourceRouteTable == "" {
		return fmt.Errorf("source route table is required")
	}
	if len(c.SubnetCIDRs) == 0 {
		return fmt.Errorf("at least one subnet CIDR is required")
	}
	if _, err := netcalc.ParseCIDR(c.VPCCIDR); err != nil {
		return err
	}
	for _, sub := range c.SubnetCIDRs {
		if err := netcalc.ValidateSubnet(c.VPCCIDR, sub); err != nil {
			return err
		}
	}
	return nil
}

// Provision associates the VPC CIDR, then creates each subnet with its own
// route table populated from the source table. Validation and convergence
// failures abort the run; per-route copy failures are logged and skipped.
// Already-created resources are not rolled back on failure.
func (c *Client) Provision(ctx context.Context, cfg ProvisionConfig) (*ProvisionResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := c.EnsureCidrBlock(ctx, cfg.VPCID, cfg.VPCCIDR); err != nil {
		return nil, err
	}

	azs, err := c.resolveZones(ctx, cfg.AZs, len(cfg.SubnetCIDRs))
	if err != nil {
		return nil, err
	}

	routes, err := c.SourceRoutes(ctx, cfg.SourceRouteTable)
	if err != nil {
		return nil, err
	}

	result := &ProvisionResult{VPCID: cfg.VPCID, VPCCIDR: cfg.VPCCIDR}
	for i, cidr := range cfg.SubnetCIDRs {
		sub, err := c.provisionSubnet(ctx, cfg, cidr, azs[i], i, routes)
		if err != nil {
			return nil, err
		}
		result.Subnets = append(result.Subnets, sub)
	}
	return result, nil
}

func (c *Client) provisionSubnet(ctx context.Context, cfg ProvisionConfig, cidr, az string, index int, routes []RouteSpec) (SubnetResult, error) {
	// Re-check the association state right before creating; the CIDR must be
	// `associated` for subnet creation inside it to succeed.
	state, err := c.CidrBlockState(ctx, cfg.VPCID, cfg.VPCCIDR)
	if err != nil {
		return SubnetResult{}, err
	}
	if state != CidrStateAssociated {
		return SubnetResult{}, fmt.Errorf("VPC CIDR %s is %q, expected %q", cfg.VPCCIDR, state, CidrStateAssociated)
	}

	name := fmt.Sprintf("%s-%d", cfg.NamePrefix, index)
	res := SubnetResult{CIDR: cidr, AZ: az}

	subnetID, err := c.FindSubnetByCIDR(ctx, cfg.VPCID, cidr)
	if err != nil {
		return SubnetResult{}, err
	}
	if subnetID != "" {
		klog.V(1).Infof("subnet %s already exists as %s, reusing", cidr, subnetID)
		res.Reused = true
	} else {
		subnetID, err = c.CreateSubnet(ctx, cfg.VPCID, cidr, az, name)
		if err != nil {
			return SubnetResult{}, err
		}
	}
	res.SubnetID = subnetID

	rtID, err := c.CreateRouteTable(ctx, cfg.VPCID, name)
	if err != nil {
		return SubnetResult{}, err
	}
	res.RouteTableID = rtID

	if err := c.AssociateRouteTable(ctx, rtID, subnetID); err != nil {
		return SubnetResult{}, err
	}

	res.RoutesCopied, res.RoutesSkipped = c.copyRoutes(ctx, rtID, routes)
	return res, nil
}

// copyRoutes copies every supported non-local route into the table.
// Failures (duplicate routes included) and unsupported targets are warned
// about and skipped; nothing here aborts the run.
func (c *Client) copyRoutes(ctx context.Context, routeTableID string, routes []RouteSpec) (copied, skipped int) {
	for _, spec := range routes {
		switch spec.Target.Kind {
		case TargetLocal:
			continue
		case TargetUnsupported:
			klog.Warningf("skipping route %s: unsupported target", spec.Destination())
			skipped++
			continue
		}
		if spec.Destination() == "" {
			klog.Warningf("skipping route to %s: no CIDR destination", spec.Target.ID)
			skipped++
			continue
		}

		if err := c.CreateRoute(ctx, routeTableID, spec); err != nil {
			if isRouteAlreadyExists(err) {
				klog.V(1).Infof("route %s already exists in %s", spec.Destination(), routeTableID)
			} else {
				klog.Warningf("skipping route %s -> %s: %v", spec.Destination(), spec.Target.ID, err)
			}
			skipped++
			continue
		}
		copied++
	}
	return copied, skipped
}

// isRouteAlreadyExists matches the typed EC2 error for a duplicate route.
// EC2 has no modeled exception type for it, so the code is matched on the
// generic API error.
func isRouteAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "RouteAlreadyExists"
}

// resolveZones fills in missing availability zones with the first distinct
// available zones of the region.
func (c *Client) resolveZones(ctx context.Context, requested []string, n int) ([]string, error) {
	zones := append([]string(nil), requested...)
	if len(zones) >= n {
		return zones[:n], nil
	}

	available, err := c.AvailabilityZones(ctx)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool, len(zones))
	for _, z := range zones {
		used[z] = true
	}
	for _, z := range available {
		if len(zones) == n {
			break
		}
		if used[z] {
			continue
		}
		zones = append(zones, z)
		used[z] = true
	}
	if len(zones) < n {
		return nil, fmt.Errorf("need %d availability zones, region offers %d", n, len(zones))
	}
	return zones, nil
}
