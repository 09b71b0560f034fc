package iam

// RoleSpec describes the role to bootstrap.
type RoleSpec struct {
	Name             string
	ServicePrincipal string   // e.g. ec2.amazonaws.com
	Description      string
	PolicyARNs       []string // managed policies to attach
	InstanceProfile  bool     // also create an instance profile holding the role
}

// BootstrapResult reports what the run did versus what already existed.
type BootstrapResult struct {
	RoleARN                string
	RoleCreated            bool
	PoliciesAttached       []string
	PoliciesAlreadyPresent []string
	InstanceProfileCreated bool
}
