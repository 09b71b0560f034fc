package vpc

// CidrState mirrors the lifecycle of a VPC CIDR block association.
type CidrState string

const (
	CidrStateAssociating    CidrState = "associating"
	CidrStateAssociated     CidrState = "associated"
	CidrStateDisassociating CidrState = "disassociating"
	CidrStateDisassociated  CidrState = "disassociated"
	CidrStateFailing        CidrState = "failing"
	CidrStateFailed         CidrState = "failed"
	// CidrStateMissing means the CIDR block is not associated with the VPC.
	CidrStateMissing CidrState = ""
)

// RouteTargetKind identifies which target field a route declares.
type RouteTargetKind int

const (
	TargetUnsupported RouteTargetKind = iota
	TargetLocal
	TargetInternetGateway
	TargetVirtualGateway
	TargetNATGateway
	TargetVPCPeering
	TargetVPCEndpoint
)

func (k RouteTargetKind) String() string {
	switch k {
	case TargetLocal:
		return "local"
	case TargetInternetGateway:
		return "internet-gateway"
	case TargetVirtualGateway:
		return "virtual-gateway"
	case TargetNATGateway:
		return "nat-gateway"
	case TargetVPCPeering:
		return "vpc-peering"
	case TargetVPCEndpoint:
		return "vpc-endpoint"
	default:
		return "unsupported"
	}
}

// RouteTarget is the decoded target of a route: exactly one kind plus the
// resource identifier it points at.
type RouteTarget struct {
	Kind RouteTargetKind
	ID   string
}

// RouteSpec is a route to be copied: a destination (IPv4 or IPv6 CIDR) and
// its decoded target.
type RouteSpec struct {
	DestinationCIDR     string // IPv4 destination, empty if IPv6
	DestinationIPv6CIDR string
	Target              RouteTarget
}

// Destination returns whichever destination the route declares.
func (r RouteSpec) Destination() string {
	if r.DestinationCIDR != "" {
		return r.DestinationCIDR
	}
	return r.DestinationIPv6CIDR
}

// SubnetResult describes one provisioned subnet and its route table.
type SubnetResult struct {
	SubnetID      string
	CIDR          string
	AZ            string
	Reused        bool
	RouteTableID  string
	RoutesCopied  int
	RoutesSkipped int
}

// ProvisionResult summarizes a full provisioning run.
type ProvisionResult struct {
	VPCID   string
	VPCCIDR string
	Subnets []SubnetResult
}
