package usage

// Subnet is the resolved target of a usage query.
type Subnet struct {
	SubnetID     string
	CIDR         string
	AZ           string
	VPCID        string
	AvailableIPs int
}

// LoadBalancerUsage summarizes classic/application ELB presence in a subnet.
type LoadBalancerUsage struct {
	Count      int
	CurrentIPs int
	MaxIPs     int
}

// NLB is a network load balancer attached to the subnet.
type NLB struct {
	Name  string
	DNS   string
	State string
	ARN   string
	Tags  map[string]string
}

// ASGUsage summarizes auto scaling groups spanning the subnet.
type ASGUsage struct {
	Count            int
	InstancesPresent int
	MaxCapacity      int
}

// Nodegroup is an EKS node group whose subnets include the target subnet.
type Nodegroup struct {
	Cluster       string
	Name          string
	Status        string
	InstanceTypes []string
	MinSize       int
	MaxSize       int
	DesiredSize   int
}

// Report is the full picture for one subnet.
type Report struct {
	Subnet Subnet

	// UsedIPs maps private IP to a description of its holder
	// (ENI id / description, or instance id).
	UsedIPs map[string]string

	UsableIPs int

	ELB        LoadBalancerUsage
	NLBs       []NLB
	ASG        ASGUsage
	Nodegroups []Nodegroup

	// CountMismatch is set when the number of IPs we found in use does not
	// line up with AvailableIPs from the API, which means some other service
	// holds addresses this scan does not cover.
	CountMismatch bool
}

// TheoreticalMax is the IP count with every ELB and ASG fully scaled out.
func (r *Report) TheoreticalMax() int {
	return len(r.UsedIPs) + r.ELB.MaxIPs + r.ASG.MaxCapacity
}
